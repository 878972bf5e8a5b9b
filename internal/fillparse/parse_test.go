package fillparse

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/fill-ledger/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

const agentHeader = "timestamp,direction,shares,price_per_share,order_status,usd_value,clob_asset_id"

func TestParseDirection(t *testing.T) {
	tests := map[string]model.Direction{
		"BUY":       model.DirectionBuy,
		"BUY_FILL":  model.DirectionBuy,
		"SELL":      model.DirectionSell,
		"SELL_FILL": model.DirectionSell,
		"":          model.DirectionUnknown,
		"buy":       model.DirectionUnknown,
		"HOLD":      model.DirectionUnknown,
	}
	for raw, want := range tests {
		if got := ParseDirection(raw); got != want {
			t.Errorf("ParseDirection(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw     string
		present bool
		want    model.OrderStatus
	}{
		{"", false, model.StatusUnknown},
		{"SKIPPED_PROBABILITY", true, model.StatusSkipped},
		{"EXEC_FAIL: insufficient balance", true, model.StatusFailed},
		{"http error 502", true, model.StatusFailed},
		{"ERROR", true, model.StatusExecuted}, // case-sensitive
		{"200 OK", true, model.StatusExecuted},
		{"MOCK_ONLY", true, model.StatusExecuted},
	}
	for _, tt := range tests {
		if got := ParseStatus(tt.raw, tt.present); got != tt.want {
			t.Errorf("ParseStatus(%q, %v) = %s, want %s", tt.raw, tt.present, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 3, 4, 12, 30, 15, 0, time.UTC)
	for _, raw := range []string{
		"2025-03-04 12:30:15",
		"2025-03-04T12:30:15Z",
		"2025-03-04T14:30:15+02:00",
		"2025-03-04T12:30:15",
		fmt.Sprint(want.Unix()),
	} {
		got, ok := ParseTimestamp(raw)
		if !ok {
			t.Errorf("ParseTimestamp(%q) failed", raw)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", raw, got, want)
		}
	}

	frac, ok := ParseTimestamp("2025-03-04 12:30:15.250")
	if !ok || frac.Nanosecond() != 250_000_000 {
		t.Errorf("expected fractional seconds, got %v ok=%v", frac, ok)
	}

	for _, raw := range []string{"", "yesterday", "03/04/2025"} {
		if _, ok := ParseTimestamp(raw); ok {
			t.Errorf("expected %q to be unparsable", raw)
		}
	}
}

func TestParse_HeaderDriven(t *testing.T) {
	in := agentHeader + "\n" +
		"2025-03-04 12:00:00,BUY_FILL,10,0.50,200 OK,5.00,tok-a\n" +
		"2025-03-04 12:05:00,SELL_FILL,4,0.70,SKIPPED_LOW_BALANCE,2.80,tok-a\n"

	log, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(log.Defects) != 0 {
		t.Fatalf("unexpected defects: %+v", log.Defects)
	}
	if len(log.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(log.Records))
	}

	r := log.Records[0]
	if r.InstrumentID != "tok-a" {
		t.Errorf("expected instrument tok-a, got %s", r.InstrumentID)
	}
	if r.Direction != model.DirectionBuy || r.Status != model.StatusExecuted {
		t.Errorf("unexpected direction/status %s/%s", r.Direction, r.Status)
	}
	if !r.Shares.Equal(d(10)) || !r.Price.Equal(d(0.5)) || !r.USDValue.Equal(d(5)) {
		t.Errorf("unexpected numbers shares=%s price=%s usd=%s", r.Shares, r.Price, r.USDValue)
	}
	if r.Line != 2 {
		t.Errorf("expected line 2, got %d", r.Line)
	}
	if r.Timestamp == nil {
		t.Fatal("expected parsed timestamp")
	}
	if log.Records[1].Status != model.StatusSkipped {
		t.Errorf("expected skipped, got %s", log.Records[1].Status)
	}
}

func TestParse_HeaderReordered(t *testing.T) {
	in := "token_id,side,price,size\n" +
		"tok-b,SELL,0.25,8\n"

	log, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(log.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(log.Records))
	}
	r := log.Records[0]
	if r.InstrumentID != "tok-b" || r.Direction != model.DirectionSell {
		t.Errorf("unexpected record %+v", r)
	}
	if r.Status != model.StatusUnknown {
		t.Errorf("missing status column must be Unknown, got %s", r.Status)
	}
	if !r.USDValueDerived || !r.USDValue.Equal(d(2)) {
		t.Errorf("expected derived usd_value 2, got %s derived=%v", r.USDValue, r.USDValueDerived)
	}
	if r.Timestamp != nil {
		t.Errorf("expected nil timestamp, got %v", r.Timestamp)
	}
}

func TestParse_Positional(t *testing.T) {
	in := "2025-03-04 12:00:00,BUY,10,0.5,200 OK,5,tok-a\n"

	log, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(log.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(log.Records))
	}
	if log.Records[0].InstrumentID != "tok-a" || log.Records[0].Line != 1 {
		t.Errorf("unexpected record %+v", log.Records[0])
	}
}

func TestParse_MissingInstrumentDefaultsToUnknown(t *testing.T) {
	in := "2025-03-04 12:00:00,BUY,10,0.5,200 OK,5\n"
	log, _ := Parse(strings.NewReader(in))
	if len(log.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(log.Records))
	}
	if log.Records[0].InstrumentID != model.UnknownInstrument {
		t.Errorf("expected %q, got %q", model.UnknownInstrument, log.Records[0].InstrumentID)
	}
}

func TestParse_NumericFallback(t *testing.T) {
	in := agentHeader + "\n" +
		"2025-03-04 12:00:00,BUY,ten,0.5,200 OK,n/a,tok-a\n"

	log, _ := Parse(strings.NewReader(in))
	if len(log.Records) != 1 {
		t.Fatalf("expected 1 record, got %d (defects %+v)", len(log.Records), log.Defects)
	}
	r := log.Records[0]
	if !r.Shares.IsZero() || !r.USDValue.IsZero() {
		t.Errorf("expected zeroed shares and usd_value, got %s %s", r.Shares, r.USDValue)
	}
	if len(r.Fallbacks) != 2 || r.Fallbacks[0] != model.FieldShares || r.Fallbacks[1] != model.FieldUSDValue {
		t.Errorf("unexpected fallbacks %v", r.Fallbacks)
	}
}

func TestParse_OversizedNumbersFallBack(t *testing.T) {
	in := agentHeader + "\n" +
		"2025-01-01 00:00:00,BUY,1e200000000,0.5,200 OK,1,tok\n" +
		"2025-01-01 00:00:01,BUY,1,1e-200000000,200 OK,12345678901234567890123456789012345678901,tok\n" +
		"2025-01-01 00:00:02,BUY,1e28,0.25,200 OK,1,tok\n"

	start := time.Now()
	log, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(log.Records) != 3 {
		t.Fatalf("expected 3 records, got %d (defects %+v)", len(log.Records), log.Defects)
	}

	first := log.Records[0]
	if !first.Shares.IsZero() || len(first.Fallbacks) != 1 || first.Fallbacks[0] != model.FieldShares {
		t.Errorf("huge exponent should fall back to zero, got %s %v", first.Shares, first.Fallbacks)
	}
	if first.RawNumeric[model.FieldShares] != "1e200000000" {
		t.Errorf("raw text not kept: %v", first.RawNumeric)
	}

	second := log.Records[1]
	if len(second.Fallbacks) != 2 || second.Fallbacks[0] != model.FieldPrice || second.Fallbacks[1] != model.FieldUSDValue {
		t.Errorf("tiny exponent and too many digits should fall back, got %v", second.Fallbacks)
	}

	third := log.Records[2]
	if len(third.Fallbacks) != 0 || !third.Shares.Equal(decimal.New(1, 28)) {
		t.Errorf("1e28 is within bounds, got %s %v", third.Shares, third.Fallbacks)
	}

	// Comparisons on accepted values stay cheap.
	eps := decimal.RequireFromString("0.001")
	for _, r := range log.Records {
		_ = r.Shares.GreaterThan(eps)
		_ = r.Price.GreaterThan(eps)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("parsing oversized numbers took %s", elapsed)
	}
}

func TestParse_UnparsableTimestampIsNotDefect(t *testing.T) {
	in := agentHeader + "\n" + "last tuesday,BUY,1,0.5,200 OK,0.5,tok-a\n"
	log, _ := Parse(strings.NewReader(in))
	if len(log.Defects) != 0 || len(log.Records) != 1 {
		t.Fatalf("expected one record and no defects, got %d/%d", len(log.Records), len(log.Defects))
	}
	if log.Records[0].Timestamp != nil || log.Records[0].RawTimestamp != "last tuesday" {
		t.Errorf("unexpected timestamp fields %+v", log.Records[0])
	}
}

func TestParse_DefectsDoNotStopParsing(t *testing.T) {
	in := agentHeader + "\n" +
		"2025-03-04 12:00:00,BUY,10,0.5,200 OK,5,tok-a\n" +
		",,,,,,\n" +
		"2025-03-04 12:01:00,BUY,1,\"0.5,200 OK,0.5,tok-a\n" +
		"\n" +
		"2025-03-04 12:02:00,SELL,2,0.6,200 OK,1.2,tok-a\n"

	log, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(log.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(log.Records))
	}
	if len(log.Defects) != 2 {
		t.Fatalf("expected 2 defects, got %+v", log.Defects)
	}
	if log.Defects[0].Line != 3 || log.Defects[0].Reason != ErrEmptyRecord.Error() {
		t.Errorf("unexpected first defect %+v", log.Defects[0])
	}
	if log.Defects[1].Line != 4 || log.Defects[1].Raw == "" {
		t.Errorf("unexpected second defect %+v", log.Defects[1])
	}
	if log.Records[1].Line != 6 {
		t.Errorf("expected last record on line 6, got %d", log.Records[1].Line)
	}
}

func TestParse_RepeatedHeader(t *testing.T) {
	in := agentHeader + "\n" +
		"2025-03-04 12:00:00,BUY,10,0.5,200 OK,5,tok-a\n" +
		agentHeader + "\n"

	log, _ := Parse(strings.NewReader(in))
	if len(log.Records) != 1 || len(log.Defects) != 1 {
		t.Fatalf("expected 1 record and 1 defect, got %d/%d", len(log.Records), len(log.Defects))
	}
	if log.Defects[0].Reason != ErrRepeatedHeader.Error() {
		t.Errorf("unexpected reason %q", log.Defects[0].Reason)
	}
}

func TestParseRecord_EmptyIsDefect(t *testing.T) {
	_, err := ParseRecord(PositionalHeader(), []string{"", " ", ""}, 7)
	var pd *model.ParseDefect
	if !errors.As(err, &pd) {
		t.Fatalf("expected *model.ParseDefect, got %v", err)
	}
	if pd.Line != 7 {
		t.Errorf("expected line 7, got %d", pd.Line)
	}
}

func TestParseRecord_PriceOutOfRangeIsKept(t *testing.T) {
	rec, err := ParseRecord(PositionalHeader(), []string{"", "BUY", "1", "1.5", "200 OK", "1.5", "tok"}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.PriceOutOfRange() {
		t.Error("expected price 1.5 to be flagged out of range")
	}
}

func TestParse_WorkersPreserveOrder(t *testing.T) {
	var b strings.Builder
	b.WriteString(agentHeader + "\n")
	for i := 0; i < 500; i++ {
		if i%50 == 0 {
			b.WriteString(",,,\n")
			continue
		}
		fmt.Fprintf(&b, "2025-03-04 12:00:00,BUY,%d,0.5,200 OK,%d,tok-%d\n", i, i, i%7)
	}

	serial, err := Parse(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parallel, err := Parse(strings.NewReader(b.String()), WithWorkers(8))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(serial.Records) != len(parallel.Records) || len(serial.Defects) != len(parallel.Defects) {
		t.Fatalf("length mismatch serial=%d/%d parallel=%d/%d",
			len(serial.Records), len(serial.Defects), len(parallel.Records), len(parallel.Defects))
	}
	for i := range serial.Records {
		if serial.Records[i].Line != parallel.Records[i].Line ||
			!serial.Records[i].Shares.Equal(parallel.Records[i].Shares) {
			t.Fatalf("record %d differs: %+v vs %+v", i, serial.Records[i], parallel.Records[i])
		}
	}
	if len(serial.Defects) != 10 {
		t.Errorf("expected 10 defects, got %d", len(serial.Defects))
	}
}

func TestDetectHeader(t *testing.T) {
	h, ok := DetectHeader([]string{"\ufeffTimestamp", "Direction", "comment", "clob_asset_id"})
	if !ok {
		t.Fatal("expected header to be detected")
	}
	if !h.Has(ColTimestamp) || !h.Has(ColInstrument) || h.Has(ColShares) {
		t.Errorf("unexpected mapping %+v", h)
	}
	if _, ok := DetectHeader([]string{"2025-03-04", "BUY", "10"}); ok {
		t.Error("data row must not be detected as header")
	}
}
