// Package ledger folds an ordered sequence of fill records into per-instrument
// position state. The fold is strictly sequential and never fails: odd input
// is counted, not rejected.
package ledger

import (
	"github.com/atmx/fill-ledger/internal/model"
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithExcludeFailed keeps Failed fills out of position state. They are still
// counted. Off by default.
func WithExcludeFailed(exclude bool) Option {
	return func(l *Ledger) {
		l.excludeFailed = exclude
	}
}

// Ledger is the owned, mutable position table. It is not safe for
// concurrent use; hand out Snapshots instead.
type Ledger struct {
	positions     map[string]*model.PositionState
	counts        model.OutcomeCounts
	excludeFailed bool
}

// New returns an empty Ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{positions: make(map[string]*model.PositionState)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Fold applies records in order to a fresh Ledger and returns its snapshot.
func Fold(records []model.FillRecord, opts ...Option) *Snapshot {
	l := New(opts...)
	for _, r := range records {
		l.Apply(r)
	}
	return l.Snapshot()
}

// FoldLog is Fold plus defect accounting for a parsed log.
func FoldLog(log model.FillLog, opts ...Option) *Snapshot {
	l := New(opts...)
	for _, pd := range log.Defects {
		l.RecordDefect(pd)
	}
	for _, r := range log.Records {
		l.Apply(r)
	}
	return l.Snapshot()
}

// RecordDefect counts a line the parser could not interpret.
func (l *Ledger) RecordDefect(model.ParseDefect) {
	l.counts.ParseDefects++
}

// Apply folds one record into the ledger.
func (l *Ledger) Apply(r model.FillRecord) {
	c := &l.counts
	c.Total++
	switch r.Status {
	case model.StatusExecuted:
		c.Executed++
	case model.StatusSkipped:
		c.Skipped++
	case model.StatusFailed:
		c.Failed++
	default:
		c.UnknownStatus++
	}
	switch r.Direction {
	case model.DirectionBuy:
		c.BuyFills++
	case model.DirectionSell:
		c.SellFills++
	default:
		c.UnknownDirection++
	}
	if len(r.Fallbacks) > 0 {
		c.NumericFallbacks++
	}
	if r.PriceOutOfRange() {
		c.PriceOutOfRange++
	}

	if r.Status == model.StatusSkipped {
		return
	}
	if l.excludeFailed && r.Status == model.StatusFailed {
		return
	}

	p, ok := l.positions[r.InstrumentID]
	if !ok {
		p = &model.PositionState{InstrumentID: r.InstrumentID}
		l.positions[r.InstrumentID] = p
	}

	p.LastPrice = r.Price
	p.FillCount++
	// Last fill in log order, like LastPrice. A fill without a timestamp keeps
	// the previous one.
	if r.Timestamp != nil {
		ts := *r.Timestamp
		p.LastFillAt = &ts
	}

	switch r.Direction {
	case model.DirectionBuy:
		p.NetShares = p.NetShares.Add(r.Shares)
		p.CostBasis = p.CostBasis.Add(r.USDValue)
		p.BuyCount++
		c.TotalBuyCost = c.TotalBuyCost.Add(r.USDValue)
	case model.DirectionSell:
		p.NetShares = p.NetShares.Sub(r.Shares)
		p.CostBasis = p.CostBasis.Sub(r.USDValue)
		p.SellCount++
		c.TotalSellProceeds = c.TotalSellProceeds.Add(r.USDValue)
	}
}

// Snapshot returns a deep copy of the current state. Later Apply calls never
// affect it.
func (l *Ledger) Snapshot() *Snapshot {
	return newSnapshot(l.positions, l.counts)
}
