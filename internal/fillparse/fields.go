package fillparse

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/fill-ledger/internal/model"
)

// timestampLayouts are tried in order. The agent writes the first one;
// the others cover hand-edited and exported logs.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDirection classifies a direction column by substring: BUY_FILL, BUY
// and friends are buys; anything without BUY or SELL is Unknown, which is
// not an error.
func ParseDirection(raw string) model.Direction {
	switch {
	case strings.Contains(raw, "BUY"):
		return model.DirectionBuy
	case strings.Contains(raw, "SELL"):
		return model.DirectionSell
	default:
		return model.DirectionUnknown
	}
}

// ParseStatus classifies an order_status column. A missing column is Unknown;
// "error" is matched case-sensitively, as the agent writes it.
func ParseStatus(raw string, present bool) model.OrderStatus {
	switch {
	case !present:
		return model.StatusUnknown
	case strings.Contains(raw, "SKIPPED"):
		return model.StatusSkipped
	case strings.Contains(raw, "EXEC_FAIL"), strings.Contains(raw, "error"):
		return model.StatusFailed
	default:
		return model.StatusExecuted
	}
}

// ParseTimestamp parses the timestamp formats seen in fill logs. Naive
// timestamps are taken as UTC.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}

// Bounds on accepted numeric fields. decimal accepts any int32 exponent, and
// arithmetic on a value like 1e200000000 rescales to a huge big.Int.
const (
	maxExponent = 28
	maxDigits   = 40
)

// parseDecimal returns the value and whether it parsed. Failures, including
// values outside the accepted magnitude, yield zero.
func parseDecimal(raw string) (decimal.Decimal, bool) {
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	if exp := v.Exponent(); exp > maxExponent || exp < -maxExponent {
		return decimal.Zero, false
	}
	if v.NumDigits() > maxDigits {
		return decimal.Zero, false
	}
	return v, true
}
