package fillparse

import "strings"

// Column is a logical column of the fill log.
type Column int

const (
	ColTimestamp Column = iota
	ColDirection
	ColShares
	ColPrice
	ColStatus
	ColUSDValue
	ColInstrument
	numColumns
)

var columnNames = [numColumns]string{
	"timestamp", "direction", "shares", "price_per_share", "order_status", "usd_value", "instrument_id",
}

func (c Column) String() string {
	if c < 0 || c >= numColumns {
		return "column(?)"
	}
	return columnNames[c]
}

// aliases maps normalized header names to logical columns. The copy-trading
// agent writes clob_asset_id for the instrument.
var aliases = map[string]Column{
	"timestamp":       ColTimestamp,
	"time":            ColTimestamp,
	"direction":       ColDirection,
	"side":            ColDirection,
	"shares":          ColShares,
	"size":            ColShares,
	"price_per_share": ColPrice,
	"price":           ColPrice,
	"order_status":    ColStatus,
	"status":          ColStatus,
	"usd_value":       ColUSDValue,
	"usd":             ColUSDValue,
	"instrument_id":   ColInstrument,
	"clob_asset_id":   ColInstrument,
	"token_id":        ColInstrument,
	"asset_id":        ColInstrument,
}

// Header maps logical columns to field positions. A position of -1 means the
// column is missing, which is permitted.
type Header struct {
	index [numColumns]int
}

// PositionalHeader returns the default column order:
// timestamp, direction, shares, price_per_share, order_status, usd_value, instrument_id.
func PositionalHeader() Header {
	var h Header
	for i := range h.index {
		h.index[i] = i
	}
	return h
}

// DetectHeader reports whether fields form a header row, i.e. name at least
// one known column, and returns the resulting mapping. Unknown names are ignored;
// the first occurrence of a column wins.
func DetectHeader(fields []string) (Header, bool) {
	var h Header
	for i := range h.index {
		h.index[i] = -1
	}
	found := false
	for pos, f := range fields {
		col, ok := aliases[normalizeName(f)]
		if !ok || h.index[col] >= 0 {
			continue
		}
		h.index[col] = pos
		found = true
	}
	return h, found
}

// Has reports whether the column is mapped.
func (h Header) Has(c Column) bool {
	return h.index[c] >= 0
}

// value returns the trimmed field for c and whether it is present and non-empty.
func (h Header) value(fields []string, c Column) (string, bool) {
	pos := h.index[c]
	if pos < 0 || pos >= len(fields) {
		return "", false
	}
	v := strings.TrimSpace(fields[pos])
	return v, v != ""
}

func normalizeName(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
	return strings.ToLower(s)
}
