package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/fill-ledger/internal/fillparse"
	"github.com/atmx/fill-ledger/internal/model"
)

// DefaultCSVPath is the file the trading agent appends fills to.
const DefaultCSVPath = "matches_optimized.csv"

// fileHeader matches the columns the trading agent writes.
var fileHeader = []string{
	"timestamp", "direction", "shares", "price_per_share", "order_status", "usd_value", "clob_asset_id",
}

// FileStore is the CSV log on disk. Load parses it; Append adds rows and
// copies defect lines through verbatim.
type FileStore struct {
	mu   sync.Mutex
	path string
	opts []fillparse.Option
}

// NewFileStore returns a store over the CSV file at path. Parse options are
// applied on every Load.
func NewFileStore(path string, opts ...fillparse.Option) *FileStore {
	if path == "" {
		path = DefaultCSVPath
	}
	return &FileStore{path: path, opts: opts}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Load parses the file. A missing file is an empty log.
func (s *FileStore) Load(ctx context.Context) (model.FillLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return model.FillLog{}, err
	}
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.FillLog{}, nil
	}
	if err != nil {
		return model.FillLog{}, fmt.Errorf("store: open %s: %w", s.path, err)
	}
	defer f.Close()

	log, err := fillparse.Parse(f, s.opts...)
	if err != nil {
		return model.FillLog{}, fmt.Errorf("store: parse %s: %w", s.path, err)
	}
	return log, nil
}

// Append writes the batch to the end of the file, creating it with a header
// when needed.
func (s *FileStore) Append(ctx context.Context, log model.FillLog) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("store: open %s: %w", s.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("store: stat %s: %w", s.path, err)
	}

	var buf bytes.Buffer
	if info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("store: read %s: %w", s.path, err)
		}
		if last[0] != '\n' {
			buf.WriteByte('\n')
		}
	}

	cw := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := cw.Write(fileHeader); err != nil {
			return "", err
		}
	}
	for _, e := range ordered(log) {
		if e.rec != nil {
			if err := cw.Write(encodeRecord(*e.rec)); err != nil {
				return "", fmt.Errorf("store: encode line %d: %w", e.rec.Line, err)
			}
			continue
		}
		if e.defect.Raw == "" {
			continue
		}
		cw.Flush()
		buf.WriteString(e.defect.Raw)
		buf.WriteByte('\n')
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("store: encode: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return "", fmt.Errorf("store: append %s: %w", s.path, err)
	}
	return uuid.NewString(), nil
}

func (s *FileStore) Close() error {
	return nil
}

// encodeRecord renders a record in fileHeader column order.
func encodeRecord(r model.FillRecord) []string {
	ts := r.RawTimestamp
	if ts == "" && r.Timestamp != nil {
		ts = r.Timestamp.Format("2006-01-02 15:04:05.000")
	}
	dir := r.RawDirection
	if dir == "" && r.Direction != model.DirectionUnknown {
		dir = string(r.Direction)
	}
	return []string{
		ts,
		dir,
		encodeNumber(r, model.FieldShares, r.Shares),
		encodeNumber(r, model.FieldPrice, r.Price),
		encodeStatus(r),
		encodeNumber(r, model.FieldUSDValue, r.USDValue),
		r.InstrumentID,
	}
}

// unparsedCell stands in for a fallback field whose original text is lost.
// It fails to parse again, so the fallback survives a reload.
const unparsedCell = "#N/A"

// encodeNumber writes the decimal, or for a fallback field the text that
// failed to parse. Writing the zeroed value would turn a fallback into a
// clean zero on the next Load.
func encodeNumber(r model.FillRecord, field string, v decimal.Decimal) string {
	if !slices.Contains(r.Fallbacks, field) {
		return v.String()
	}
	if raw, ok := r.RawNumeric[field]; ok && raw != "" {
		return raw
	}
	return unparsedCell
}

// encodeStatus keeps the agent's text when there is one, otherwise writes a
// tag that parses back to the same status.
func encodeStatus(r model.FillRecord) string {
	if r.RawStatus != "" {
		return r.RawStatus
	}
	switch r.Status {
	case model.StatusExecuted:
		return "EXECUTED"
	case model.StatusSkipped:
		return "SKIPPED"
	case model.StatusFailed:
		return "EXEC_FAIL"
	default:
		return ""
	}
}
