package classify

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidThreshold is returned by Thresholds.Validate.
var ErrInvalidThreshold = errors.New("classify: invalid threshold")

// Thresholds holds every policy constant used by classification and
// reconciliation. It is passed explicitly; there is no package-level state.
type Thresholds struct {
	// LargePositionUSD marks open positions worth at least this much.
	LargePositionUSD decimal.Decimal

	// StaleDays is the age at which an open position counts as stale.
	StaleDays int

	// NearStaleWindowDays flags positions this many days before going stale.
	NearStaleWindowDays int

	// Dust is an open position below DustShareCeiling shares and worth
	// less than DustValueUSD.
	DustValueUSD     decimal.Decimal
	DustShareCeiling decimal.Decimal

	// LargeLossUSD is the (negative) unrealized P&L below which the
	// reconciler warns.
	LargeLossUSD decimal.Decimal

	// PositionEpsilon separates open from closed positions.
	PositionEpsilon decimal.Decimal

	// HighSkipRatePct is the skip rate, in percent, above which the
	// reconciler warns.
	HighSkipRatePct decimal.Decimal
}

// DefaultThresholds returns the thresholds the copy-trading agent has always
// reported with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LargePositionUSD:    decimal.NewFromInt(50),
		StaleDays:           30,
		NearStaleWindowDays: 5,
		DustValueUSD:        decimal.RequireFromString("0.10"),
		DustShareCeiling:    decimal.RequireFromString("0.1"),
		LargeLossUSD:        decimal.NewFromInt(-10),
		PositionEpsilon:     decimal.RequireFromString("0.001"),
		HighSkipRatePct:     decimal.NewFromInt(50),
	}
}

// Validate checks that the thresholds describe a usable policy.
func (t Thresholds) Validate() error {
	switch {
	case !t.PositionEpsilon.IsPositive():
		return fmt.Errorf("%w: position epsilon must be positive, got %s", ErrInvalidThreshold, t.PositionEpsilon)
	case t.StaleDays <= 0:
		return fmt.Errorf("%w: stale days must be positive, got %d", ErrInvalidThreshold, t.StaleDays)
	case t.NearStaleWindowDays < 0 || t.NearStaleWindowDays > t.StaleDays:
		return fmt.Errorf("%w: near-stale window must be within [0, %d], got %d", ErrInvalidThreshold, t.StaleDays, t.NearStaleWindowDays)
	case t.LargePositionUSD.IsNegative():
		return fmt.Errorf("%w: large position threshold must not be negative, got %s", ErrInvalidThreshold, t.LargePositionUSD)
	case t.DustValueUSD.IsNegative():
		return fmt.Errorf("%w: dust value must not be negative, got %s", ErrInvalidThreshold, t.DustValueUSD)
	case t.DustShareCeiling.LessThan(t.PositionEpsilon):
		return fmt.Errorf("%w: dust share ceiling %s is below epsilon %s", ErrInvalidThreshold, t.DustShareCeiling, t.PositionEpsilon)
	case t.LargeLossUSD.IsPositive():
		return fmt.Errorf("%w: large loss threshold must not be positive, got %s", ErrInvalidThreshold, t.LargeLossUSD)
	case t.HighSkipRatePct.IsNegative() || t.HighSkipRatePct.GreaterThan(decimal.NewFromInt(100)):
		return fmt.Errorf("%w: skip rate must be a percentage, got %s", ErrInvalidThreshold, t.HighSkipRatePct)
	}
	return nil
}
