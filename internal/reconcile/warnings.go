package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/fill-ledger/internal/classify"
)

// WarningCode identifies a data-quality diagnostic.
type WarningCode string

const (
	WarnHighSkipRate        WarningCode = "high_skip_rate"
	WarnFailedTrades        WarningCode = "failed_trades"
	WarnZeroPricePositions  WarningCode = "zero_price_positions"
	WarnLargeUnrealizedLoss WarningCode = "large_unrealized_loss"
	WarnNegativeCostBasis   WarningCode = "negative_cost_basis"
	WarnDustPositions       WarningCode = "dust_positions"
	WarnNegativeShares      WarningCode = "negative_shares"
	WarnParseDefects        WarningCode = "parse_defects"
	WarnNumericFallbacks    WarningCode = "numeric_fallbacks"
	WarnPriceOutOfRange     WarningCode = "price_out_of_range"
)

// Warning is a thresholded diagnostic. Warnings never abort reconciliation;
// the caller decides what they mean.
type Warning struct {
	Code    WarningCode      `json:"code"`
	Message string           `json:"message"`
	Count   int              `json:"count,omitempty"`
	Value   *decimal.Decimal `json:"value,omitempty"`
}

func diagnose(r Result, th classify.Thresholds, zeroPrice, negBasis, dust, negShares int) []Warning {
	var ws []Warning
	c := r.Counts

	if c.Total > 0 && r.SkipRatePct.GreaterThan(th.HighSkipRatePct) {
		v := r.SkipRatePct
		ws = append(ws, Warning{
			Code:    WarnHighSkipRate,
			Message: fmt.Sprintf("high skip rate: %s%% of %d trades skipped", v.StringFixed(1), c.Total),
			Count:   c.Skipped,
			Value:   &v,
		})
	}
	if c.Failed > 0 {
		ws = append(ws, Warning{
			Code:    WarnFailedTrades,
			Message: fmt.Sprintf("%d failed trades; positions may be overstated", c.Failed),
			Count:   c.Failed,
		})
	}
	if zeroPrice > 0 {
		ws = append(ws, Warning{
			Code:    WarnZeroPricePositions,
			Message: fmt.Sprintf("%d open positions have no positive last price; their values are unreliable", zeroPrice),
			Count:   zeroPrice,
		})
	}
	if r.UnrealizedPnL.LessThan(th.LargeLossUSD) {
		v := r.UnrealizedPnL
		ws = append(ws, Warning{
			Code:    WarnLargeUnrealizedLoss,
			Message: fmt.Sprintf("unrealized P&L $%s is below $%s", v.StringFixed(2), th.LargeLossUSD.StringFixed(2)),
			Value:   &v,
		})
	}
	if negBasis > 0 {
		ws = append(ws, Warning{
			Code:    WarnNegativeCostBasis,
			Message: fmt.Sprintf("%d open positions have negative cost basis", negBasis),
			Count:   negBasis,
		})
	}
	if dust > 0 {
		ws = append(ws, Warning{
			Code:    WarnDustPositions,
			Message: fmt.Sprintf("%d dust positions are too small to close", dust),
			Count:   dust,
		})
	}
	if negShares > 0 {
		ws = append(ws, Warning{
			Code:    WarnNegativeShares,
			Message: fmt.Sprintf("%d instruments sold more shares than were bought", negShares),
			Count:   negShares,
		})
	}
	if c.ParseDefects > 0 {
		ws = append(ws, Warning{
			Code:    WarnParseDefects,
			Message: fmt.Sprintf("%d log lines could not be parsed", c.ParseDefects),
			Count:   c.ParseDefects,
		})
	}
	if c.NumericFallbacks > 0 {
		ws = append(ws, Warning{
			Code:    WarnNumericFallbacks,
			Message: fmt.Sprintf("%d records had numeric fields replaced by zero", c.NumericFallbacks),
			Count:   c.NumericFallbacks,
		})
	}
	if c.PriceOutOfRange > 0 {
		ws = append(ws, Warning{
			Code:    WarnPriceOutOfRange,
			Message: fmt.Sprintf("%d records have a price outside [0, 1]", c.PriceOutOfRange),
			Count:   c.PriceOutOfRange,
		})
	}
	return ws
}
