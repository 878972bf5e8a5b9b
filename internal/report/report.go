// Package report turns ledger snapshots into the views callers consume:
// position tables, P&L reconciliation, sell/close candidate lists, recent
// activity and trading statistics.
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/fill-ledger/internal/classify"
	"github.com/atmx/fill-ledger/internal/ledger"
	"github.com/atmx/fill-ledger/internal/model"
	"github.com/atmx/fill-ledger/internal/reconcile"
)

// DefaultActivityLimit is the number of fills shown by Activity when the
// caller passes n <= 0.
const DefaultActivityLimit = 20

const statsRecent = 5

// Builder builds views with a fixed policy and clock.
type Builder struct {
	th  classify.Thresholds
	now func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the evaluation time, mainly for tests and --now.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder returns a Builder using th for every classification.
func NewBuilder(th classify.Thresholds, opts ...Option) *Builder {
	b := &Builder{th: th, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Thresholds returns the policy the builder classifies with.
func (b *Builder) Thresholds() classify.Thresholds {
	return b.th
}

// PositionRow is one instrument in a position table.
type PositionRow struct {
	InstrumentID     string           `json:"instrument_id"`
	NetShares        decimal.Decimal  `json:"net_shares"`
	AveragePrice     decimal.Decimal  `json:"average_price"`
	CostBasis        decimal.Decimal  `json:"cost_basis"`
	LastPrice        decimal.Decimal  `json:"last_price"`
	EffectivePrice   decimal.Decimal  `json:"effective_price"`
	PriceSource      string           `json:"price_source"`
	CurrentValue     decimal.Decimal  `json:"current_value"`
	UnrealizedPnL    decimal.Decimal  `json:"unrealized_pnl"`
	UnrealizedPnLPct *decimal.Decimal `json:"unrealized_pnl_pct,omitempty"`
	BuyCount         int              `json:"buy_count"`
	SellCount        int              `json:"sell_count"`
	LastFillAt       *time.Time       `json:"last_fill_at,omitempty"`
	AgeDays          *int             `json:"age_days,omitempty"`
	Labels           []classify.Label `json:"labels"`
}

// Has reports whether the row carries label l.
func (r PositionRow) Has(l classify.Label) bool {
	for _, x := range r.Labels {
		if x == l {
			return true
		}
	}
	return false
}

func rowFrom(c classify.Classification) PositionRow {
	r := PositionRow{
		InstrumentID:     c.State.InstrumentID,
		NetShares:        c.State.NetShares,
		AveragePrice:     c.AveragePrice,
		CostBasis:        c.State.CostBasis,
		LastPrice:        c.State.LastPrice,
		EffectivePrice:   c.EffectivePrice,
		PriceSource:      string(c.PriceSource),
		CurrentValue:     c.CurrentValue,
		UnrealizedPnL:    c.UnrealizedPnL,
		UnrealizedPnLPct: c.UnrealizedPnLPct,
		BuyCount:         c.State.BuyCount,
		SellCount:        c.State.SellCount,
		LastFillAt:       c.State.LastFillAt,
		Labels:           c.Labels,
	}
	if c.AgeKnown {
		age := c.AgeDays
		r.AgeDays = &age
	}
	return r
}

func rows(cs []classify.Classification) []PositionRow {
	out := make([]PositionRow, 0, len(cs))
	for _, c := range cs {
		out = append(out, rowFrom(c))
	}
	return out
}

func (b *Builder) rank(snap *ledger.Snapshot) ([]classify.Classification, time.Time) {
	now := b.now().UTC()
	return classify.Rank(snap.Positions(), b.th, now), now
}

// Position returns the row for one instrument.
func (b *Builder) Position(snap *ledger.Snapshot, id string) (PositionRow, bool) {
	s, ok := snap.Position(id)
	if !ok {
		return PositionRow{}, false
	}
	return rowFrom(classify.Classify(s, b.th, b.now().UTC())), true
}

// Positions lists open positions by descending value, or every position
// when all is set.
func (b *Builder) Positions(snap *ledger.Snapshot, all bool) PositionsView {
	cs, now := b.rank(snap)
	v := PositionsView{GeneratedAt: now, All: all}
	var shown []classify.Classification
	for _, c := range cs {
		if c.Open {
			v.OpenCount++
			v.TotalCostBasis = v.TotalCostBasis.Add(c.State.CostBasis)
			v.TotalValue = v.TotalValue.Add(c.CurrentValue)
		} else {
			v.ClosedCount++
		}
		if c.Open || all {
			shown = append(shown, c)
		}
	}
	v.UnrealizedPnL = v.TotalValue.Sub(v.TotalCostBasis)
	v.Rows = rows(shown)
	return v
}

// Labeled lists positions carrying label l, by descending value.
func (b *Builder) Labeled(snap *ledger.Snapshot, l classify.Label) []PositionRow {
	cs, _ := b.rank(snap)
	return rows(classify.Filter(cs, l))
}

// PnL reconciles the snapshot against its own outcome counts.
func (b *Builder) PnL(snap *ledger.Snapshot) PnLView {
	cs, now := b.rank(snap)
	var open []classify.Classification
	for _, c := range cs {
		if c.Open {
			open = append(open, c)
		}
	}
	return PnLView{
		GeneratedAt: now,
		Result:      reconcile.FromClassifications(cs, snap.Outcomes(), b.th),
		Rows:        rows(open),
	}
}

// Large lists sell candidates: open positions worth at least the large
// position threshold.
func (b *Builder) Large(snap *ledger.Snapshot) LargeView {
	cs, now := b.rank(snap)
	v := LargeView{GeneratedAt: now, ThresholdUSD: b.th.LargePositionUSD}
	large := classify.Filter(cs, classify.LabelLarge)
	for _, c := range large {
		v.TotalValue = v.TotalValue.Add(c.CurrentValue)
	}
	v.Rows = rows(large)
	return v
}

// Stale lists close candidates, oldest first, plus positions about to go
// stale and those whose age is unknown.
func (b *Builder) Stale(snap *ledger.Snapshot) StaleView {
	cs, now := b.rank(snap)
	stale := classify.Filter(cs, classify.LabelStale)
	near := classify.Filter(cs, classify.LabelNearStale)
	for _, list := range [][]classify.Classification{stale, near} {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].AgeDays > list[j].AgeDays
		})
	}
	v := StaleView{
		GeneratedAt: now,
		StaleDays:   b.th.StaleDays,
		Stale:       rows(stale),
		NearStale:   rows(near),
		AgeUnknown:  rows(classify.Filter(cs, classify.LabelAgeUnknown)),
		Ages:        classify.SummarizeAges(cs),
	}
	for _, c := range stale {
		v.StaleValue = v.StaleValue.Add(c.CurrentValue)
	}
	return v
}

// Activity lists the last n records of the log, newest first.
func (b *Builder) Activity(log model.FillLog, n int) ActivityView {
	if n <= 0 {
		n = DefaultActivityLimit
	}
	v := ActivityView{GeneratedAt: b.now().UTC(), Total: len(log.Records)}
	v.Rows = recent(log.Records, n)
	return v
}

func recent(records []model.FillRecord, n int) []ActivityRow {
	out := make([]ActivityRow, 0, min(n, len(records)))
	for i := len(records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, activityRow(records[i]))
	}
	return out
}

// Stats summarizes trading activity over the whole log.
func (b *Builder) Stats(log model.FillLog, snap *ledger.Snapshot) StatsView {
	c := snap.Outcomes()
	v := StatsView{
		GeneratedAt:  b.now().UTC(),
		TotalTrades:  c.Total,
		BuyTrades:    c.BuyFills,
		SellTrades:   c.SellFills,
		Successful:   c.Successful(),
		Skipped:      c.Skipped,
		Failed:       c.Failed,
		ParseDefects: len(log.Defects),
		Instruments:  snap.Len(),
		Recent:       recent(log.Records, statsRecent),
	}
	if c.Total > 0 {
		v.SuccessRatePct = decimal.NewFromInt(int64(v.Successful)).
			Div(decimal.NewFromInt(int64(c.Total))).
			Mul(decimal.NewFromInt(100))
	}
	for _, r := range log.Records {
		v.Volume = v.Volume.Add(r.USDValue)
	}
	for _, p := range snap.Positions() {
		if p.NetShares.GreaterThan(b.th.PositionEpsilon) {
			v.OpenPositions++
		}
	}
	return v
}
