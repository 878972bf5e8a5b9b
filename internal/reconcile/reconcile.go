// Package reconcile computes portfolio-level P&L and data-quality
// diagnostics from a ledger snapshot.
//
// Realized P&L is the running-cost approximation
//
//	realized = sell proceeds - (buy cost - open cost basis)
//
// and not lot-level (FIFO/LIFO) accounting: the log carries no per-lot
// linkage to match against. Whatever the inputs,
//
//	realized + unrealized == sell proceeds + open value - buy cost
//
// holds exactly because every term is a decimal.
package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/fill-ledger/internal/classify"
	"github.com/atmx/fill-ledger/internal/ledger"
	"github.com/atmx/fill-ledger/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Result is the whole-ledger reconciliation.
type Result struct {
	TotalBuyCost      decimal.Decimal `json:"total_buy_cost"`
	TotalSellProceeds decimal.Decimal `json:"total_sell_proceeds"`
	NetCashFlow       decimal.Decimal `json:"net_cash_flow"`
	CostBasisOpen     decimal.Decimal `json:"cost_basis_open"`
	CurrentValueOpen  decimal.Decimal `json:"current_value_open"`
	RealizedPnL       decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL     decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL          decimal.Decimal `json:"total_pnl"`
	PnLIfClosed       decimal.Decimal `json:"pnl_if_closed"`

	OpenPositions   int             `json:"open_positions"`
	ClosedPositions int             `json:"closed_positions"`
	SkipRatePct     decimal.Decimal `json:"skip_rate_pct"`
	FailRatePct     decimal.Decimal `json:"fail_rate_pct"`

	Counts   model.OutcomeCounts `json:"counts"`
	Warnings []Warning           `json:"warnings"`
}

// HasWarnings reports whether any diagnostic fired.
func (r Result) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Warning returns the warning with the given code, if present.
func (r Result) Warning(code WarningCode) (Warning, bool) {
	for _, w := range r.Warnings {
		if w.Code == code {
			return w, true
		}
	}
	return Warning{}, false
}

// Reconcile derives totals and warnings from snap. The counts normally come
// from snap.Outcomes(); they are a separate argument so callers can reconcile
// against tallies gathered elsewhere.
func Reconcile(snap *ledger.Snapshot, counts model.OutcomeCounts, th classify.Thresholds, now time.Time) Result {
	return FromClassifications(classify.Rank(snap.Positions(), th, now), counts, th)
}

// FromClassifications reconciles already-classified positions.
func FromClassifications(cs []classify.Classification, counts model.OutcomeCounts, th classify.Thresholds) Result {
	r := Result{
		TotalBuyCost:      counts.TotalBuyCost,
		TotalSellProceeds: counts.TotalSellProceeds,
		Counts:            counts,
	}

	var zeroPrice, negBasis, dust, negShares int
	for _, c := range cs {
		if c.Has(classify.LabelNegativeShares) {
			negShares++
		}
		if !c.Open {
			r.ClosedPositions++
			continue
		}
		r.OpenPositions++
		r.CostBasisOpen = r.CostBasisOpen.Add(c.State.CostBasis)
		r.CurrentValueOpen = r.CurrentValueOpen.Add(c.CurrentValue)
		if c.Has(classify.LabelZeroPrice) {
			zeroPrice++
		}
		if c.Has(classify.LabelNegativeBasis) {
			negBasis++
		}
		if c.Has(classify.LabelDust) {
			dust++
		}
	}

	r.NetCashFlow = r.TotalSellProceeds.Sub(r.TotalBuyCost)
	r.RealizedPnL = r.TotalSellProceeds.Sub(r.TotalBuyCost.Sub(r.CostBasisOpen))
	r.UnrealizedPnL = r.CurrentValueOpen.Sub(r.CostBasisOpen)
	r.TotalPnL = r.RealizedPnL.Add(r.UnrealizedPnL)
	r.PnLIfClosed = r.TotalSellProceeds.Add(r.CurrentValueOpen).Sub(r.TotalBuyCost)

	if counts.Total > 0 {
		total := decimal.NewFromInt(int64(counts.Total))
		r.SkipRatePct = decimal.NewFromInt(int64(counts.Skipped)).Div(total).Mul(hundred)
		r.FailRatePct = decimal.NewFromInt(int64(counts.Failed)).Div(total).Mul(hundred)
	}

	r.Warnings = diagnose(r, th, zeroPrice, negBasis, dust, negShares)
	return r
}
