// Package classify labels individual positions for risk and data quality.
//
// Classification is a pure function of a PositionState, the Thresholds and
// the evaluation time. It never mutates the state it is given.
package classify

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/fill-ledger/internal/model"
)

// Label is one classification attached to a position.
type Label string

const (
	LabelOpen           Label = "open"
	LabelClosed         Label = "closed"
	LabelLarge          Label = "large"
	LabelStale          Label = "stale"
	LabelNearStale      Label = "near_stale"
	LabelAgeUnknown     Label = "age_unknown"
	LabelDust           Label = "dust"
	LabelNegativeBasis  Label = "negative_basis"
	LabelZeroPrice      Label = "zero_price"
	LabelNegativeShares Label = "negative_shares"
)

var knownLabels = []Label{
	LabelOpen, LabelClosed, LabelLarge, LabelStale, LabelNearStale,
	LabelAgeUnknown, LabelDust, LabelNegativeBasis, LabelZeroPrice, LabelNegativeShares,
}

// ParseLabel maps a label name to its Label.
func ParseLabel(s string) (Label, bool) {
	for _, l := range knownLabels {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}

// PriceSource says where EffectivePrice came from.
type PriceSource string

const (
	PriceLast    PriceSource = "last"
	PriceAverage PriceSource = "average"
	PriceNone    PriceSource = "none"
)

var hundred = decimal.NewFromInt(100)

// Classification is the derived view of one position.
type Classification struct {
	State  model.PositionState `json:"state"`
	Open   bool                `json:"open"`
	Labels []Label             `json:"labels"`

	EffectivePrice decimal.Decimal `json:"effective_price"`
	PriceSource    PriceSource     `json:"price_source"`
	CurrentValue   decimal.Decimal `json:"current_value"`
	AveragePrice   decimal.Decimal `json:"average_price"`

	UnrealizedPnL    decimal.Decimal  `json:"unrealized_pnl"`
	UnrealizedPnLPct *decimal.Decimal `json:"unrealized_pnl_pct,omitempty"` // nil when cost basis ≤ 0

	AgeDays  int  `json:"age_days"`
	AgeKnown bool `json:"age_known"`
}

// Has reports whether the label is attached.
func (c Classification) Has(l Label) bool {
	for _, x := range c.Labels {
		if x == l {
			return true
		}
	}
	return false
}

// Classify derives value, P&L and labels for one position at time now.
func Classify(s model.PositionState, th Thresholds, now time.Time) Classification {
	c := Classification{
		State:       s,
		Open:        s.NetShares.GreaterThan(th.PositionEpsilon),
		PriceSource: PriceNone,
	}
	if s.LastFillAt != nil {
		ts := *s.LastFillAt
		c.State.LastFillAt = &ts
		c.AgeKnown = true
		if age := now.Sub(ts); age > 0 {
			c.AgeDays = int(age / (24 * time.Hour))
		}
	}

	if s.NetShares.IsPositive() {
		c.AveragePrice = s.CostBasis.Div(s.NetShares)
	}

	switch {
	case s.LastPrice.IsPositive():
		c.EffectivePrice = s.LastPrice
		c.PriceSource = PriceLast
	case c.Open && c.AveragePrice.IsPositive():
		c.EffectivePrice = c.AveragePrice
		c.PriceSource = PriceAverage
	}

	if !c.Open {
		c.Labels = append(c.Labels, LabelClosed)
		if s.NetShares.LessThan(th.PositionEpsilon.Neg()) {
			c.Labels = append(c.Labels, LabelNegativeShares)
		}
		return c
	}

	c.Labels = append(c.Labels, LabelOpen)
	c.CurrentValue = s.NetShares.Mul(c.EffectivePrice)
	c.UnrealizedPnL = c.CurrentValue.Sub(s.CostBasis)
	if s.CostBasis.IsPositive() {
		pct := c.UnrealizedPnL.Div(s.CostBasis).Mul(hundred)
		c.UnrealizedPnLPct = &pct
	}

	if c.CurrentValue.GreaterThanOrEqual(th.LargePositionUSD) {
		c.Labels = append(c.Labels, LabelLarge)
	}
	switch {
	case !c.AgeKnown:
		c.Labels = append(c.Labels, LabelAgeUnknown)
	case c.AgeDays >= th.StaleDays:
		c.Labels = append(c.Labels, LabelStale)
	case th.NearStaleWindowDays > 0 && c.AgeDays >= th.StaleDays-th.NearStaleWindowDays:
		c.Labels = append(c.Labels, LabelNearStale)
	}
	if s.NetShares.LessThan(th.DustShareCeiling) && c.CurrentValue.LessThan(th.DustValueUSD) {
		c.Labels = append(c.Labels, LabelDust)
	}
	if s.CostBasis.IsNegative() {
		c.Labels = append(c.Labels, LabelNegativeBasis)
	}
	if !s.LastPrice.IsPositive() {
		c.Labels = append(c.Labels, LabelZeroPrice)
	}
	return c
}
