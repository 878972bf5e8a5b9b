// Package model defines the core domain types shared across the fill ledger.
// All monetary values and share quantities use shopspring/decimal; never
// float64 for money.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownInstrument is used when a record carries no instrument id.
const UnknownInstrument = "unknown"

// Direction is the trade side parsed from the free-text direction column.
type Direction string

const (
	DirectionBuy     Direction = "BUY"
	DirectionSell    Direction = "SELL"
	DirectionUnknown Direction = "UNKNOWN"
)

// OrderStatus classifies the free-text order_status column.
type OrderStatus string

const (
	StatusExecuted OrderStatus = "EXECUTED"
	StatusSkipped  OrderStatus = "SKIPPED"
	StatusFailed   OrderStatus = "FAILED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// Names of numeric fields, as reported in FillRecord.Fallbacks.
const (
	FieldShares   = "shares"
	FieldPrice    = "price_per_share"
	FieldUSDValue = "usd_value"
)

var one = decimal.NewFromInt(1)

// FillRecord is an immutable record of one executed or attempted trade.
// Once parsed, records are never modified.
type FillRecord struct {
	Line            int             `json:"line"`
	InstrumentID    string          `json:"instrument_id"`
	Timestamp       *time.Time      `json:"timestamp,omitempty"`
	RawTimestamp    string          `json:"raw_timestamp,omitempty"`
	Direction       Direction       `json:"direction"`
	RawDirection    string          `json:"raw_direction,omitempty"`
	Shares          decimal.Decimal `json:"shares"`
	Price           decimal.Decimal `json:"price_per_share"`
	USDValue        decimal.Decimal `json:"usd_value"`
	USDValueDerived bool            `json:"usd_value_derived,omitempty"` // shares × price
	Status          OrderStatus     `json:"order_status"`
	RawStatus       string          `json:"raw_status,omitempty"`
	Fallbacks       []string        `json:"fallbacks,omitempty"` // numeric fields zeroed after a parse failure

	// RawNumeric keeps the original text of each field in Fallbacks, keyed
	// by field name, so the record can be written back unchanged.
	RawNumeric map[string]string `json:"raw_numeric,omitempty"`
}

// PriceOutOfRange reports whether the price lies outside the [0,1] share
// pricing range. Such records are kept and only flagged.
func (r FillRecord) PriceOutOfRange() bool {
	return r.Price.IsNegative() || r.Price.GreaterThan(one)
}

// ParseDefect describes a raw line that could not be interpreted at all.
type ParseDefect struct {
	Line   int    `json:"line"`
	Raw    string `json:"raw,omitempty"`
	Reason string `json:"reason"`
}

func (d *ParseDefect) Error() string {
	return fmt.Sprintf("line %d: %s", d.Line, d.Reason)
}

// FillLog is the result of reading a raw log: the parsed records in their
// original order plus every line that had to be skipped.
type FillLog struct {
	Records []FillRecord  `json:"records"`
	Defects []ParseDefect `json:"defects,omitempty"`
}

// PositionState is the running state of one instrument. It is owned by the
// ledger; everything else sees copies.
type PositionState struct {
	InstrumentID string          `json:"instrument_id"`
	NetShares    decimal.Decimal `json:"net_shares"`  // signed; negative is a data-quality anomaly
	CostBasis    decimal.Decimal `json:"cost_basis"`  // running net USD cost of held shares
	LastPrice    decimal.Decimal `json:"last_price"`  // most recent fill price
	LastFillAt   *time.Time      `json:"last_fill_at,omitempty"`
	BuyCount     int             `json:"buy_count"`
	SellCount    int             `json:"sell_count"`
	FillCount    int             `json:"fill_count"`
}

// OutcomeCounts tallies every record the ledger saw, including the ones that
// never touched a position.
type OutcomeCounts struct {
	Total            int `json:"total"`
	Executed         int `json:"executed"`
	Skipped          int `json:"skipped"`
	Failed           int `json:"failed"`
	UnknownStatus    int `json:"unknown_status"`
	BuyFills         int `json:"buy_fills"`
	SellFills        int `json:"sell_fills"`
	UnknownDirection int `json:"unknown_direction"`
	ParseDefects     int `json:"parse_defects"`
	NumericFallbacks int `json:"numeric_fallbacks"`
	PriceOutOfRange  int `json:"price_out_of_range"`

	TotalBuyCost      decimal.Decimal `json:"total_buy_cost"`
	TotalSellProceeds decimal.Decimal `json:"total_sell_proceeds"`
}

// Successful returns the number of records that were neither skipped nor failed.
func (c OutcomeCounts) Successful() int {
	return c.Total - c.Skipped - c.Failed
}
