// Package fillparse turns raw fill-log lines into validated FillRecords.
//
// The parser favours continuing over halting: a field that cannot be read
// degrades to a documented default (and is noted on the record), and only a
// structurally unreadable line becomes a ParseDefect. Nothing is dropped
// without a reason.
package fillparse

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/atmx/fill-ledger/internal/model"
)

const maxLineBytes = 1 << 20

var (
	// ErrEmptyRecord is the defect reason for a line with no non-empty field.
	ErrEmptyRecord = errors.New("fillparse: record has no fields")

	// ErrRepeatedHeader is the defect reason for a header row found after
	// the first line, e.g. when two logs were concatenated.
	ErrRepeatedHeader = errors.New("fillparse: repeated header row")
)

type options struct {
	workers int
	header  *Header
}

// Option configures Parse.
type Option func(*options)

// WithWorkers converts lines on n goroutines. Output order always equals
// input order.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithHeader forces a column mapping and disables header detection.
func WithHeader(h Header) Option {
	return func(o *options) {
		o.header = &h
	}
}

type rawLine struct {
	num  int
	text string
}

type slot struct {
	rec    model.FillRecord
	defect *model.ParseDefect
}

// Parse reads a delimited fill log. The first non-blank line is used as a
// header when it names a known column; otherwise columns are positional.
// An error is returned only when r itself fails.
func Parse(r io.Reader, opts ...Option) (model.FillLog, error) {
	o := options{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}

	var lines []rawLine
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	num := 0
	for sc.Scan() {
		num++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		lines = append(lines, rawLine{num: num, text: text})
	}
	if err := sc.Err(); err != nil {
		return model.FillLog{}, fmt.Errorf("fillparse: read line %d: %w", num+1, err)
	}

	h := PositionalHeader()
	switch {
	case o.header != nil:
		h = *o.header
	case len(lines) > 0:
		if fields, err := splitLine(lines[0].text); err == nil {
			if detected, ok := DetectHeader(fields); ok {
				h = detected
				lines = lines[1:]
			}
		}
	}

	slots := make([]slot, len(lines))
	convert := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			rec, err := ParseLine(h, lines[i].text, lines[i].num)
			if err != nil {
				slots[i].defect = asDefect(err, lines[i])
				continue
			}
			slots[i].rec = rec
		}
	}

	if o.workers <= 1 || len(lines) < 2*o.workers {
		convert(0, len(lines))
	} else {
		var g errgroup.Group
		chunk := (len(lines) + o.workers - 1) / o.workers
		for lo := 0; lo < len(lines); lo += chunk {
			lo, hi := lo, min(lo+chunk, len(lines))
			g.Go(func() error {
				convert(lo, hi)
				return nil
			})
		}
		_ = g.Wait()
	}

	var log model.FillLog
	log.Records = make([]model.FillRecord, 0, len(slots))
	for _, s := range slots {
		if s.defect != nil {
			log.Defects = append(log.Defects, *s.defect)
			continue
		}
		log.Records = append(log.Records, s.rec)
	}
	return log, nil
}

// ParseLine parses one raw delimited line. Structural failures are returned
// as *model.ParseDefect.
func ParseLine(h Header, raw string, line int) (model.FillRecord, error) {
	fields, err := splitLine(raw)
	if err != nil {
		return model.FillRecord{}, &model.ParseDefect{Line: line, Raw: raw, Reason: err.Error()}
	}
	if _, isHeader := DetectHeader(fields); isHeader && !looksLikeData(h, fields) {
		return model.FillRecord{}, &model.ParseDefect{Line: line, Raw: raw, Reason: ErrRepeatedHeader.Error()}
	}
	return ParseRecord(h, fields, line)
}

// ParseRecord builds a FillRecord from already-split fields.
func ParseRecord(h Header, fields []string, line int) (model.FillRecord, error) {
	if allBlank(fields) {
		return model.FillRecord{}, &model.ParseDefect{Line: line, Reason: ErrEmptyRecord.Error()}
	}

	rec := model.FillRecord{Line: line, InstrumentID: model.UnknownInstrument}

	if v, ok := h.value(fields, ColInstrument); ok {
		rec.InstrumentID = v
	}
	if v, ok := h.value(fields, ColTimestamp); ok {
		rec.RawTimestamp = v
		if ts, ok := ParseTimestamp(v); ok {
			rec.Timestamp = &ts
		}
	}

	rawDir, _ := h.value(fields, ColDirection)
	rec.RawDirection = rawDir
	rec.Direction = ParseDirection(rawDir)

	rawStatus, hasStatus := h.value(fields, ColStatus)
	rec.RawStatus = rawStatus
	rec.Status = ParseStatus(rawStatus, hasStatus)

	fallback := func(field, raw string) {
		rec.Fallbacks = append(rec.Fallbacks, field)
		if rec.RawNumeric == nil {
			rec.RawNumeric = make(map[string]string, 3)
		}
		rec.RawNumeric[field] = raw
	}
	if v, ok := h.value(fields, ColShares); ok {
		var parsed bool
		if rec.Shares, parsed = parseDecimal(v); !parsed {
			fallback(model.FieldShares, v)
		}
	}
	if v, ok := h.value(fields, ColPrice); ok {
		var parsed bool
		if rec.Price, parsed = parseDecimal(v); !parsed {
			fallback(model.FieldPrice, v)
		}
	}
	if v, ok := h.value(fields, ColUSDValue); ok {
		var parsed bool
		if rec.USDValue, parsed = parseDecimal(v); !parsed {
			fallback(model.FieldUSDValue, v)
		}
	} else {
		rec.USDValue = rec.Shares.Mul(rec.Price)
		rec.USDValueDerived = true
	}

	return rec, nil
}

func splitLine(raw string) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(raw))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	fields, err := cr.Read()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, fmt.Errorf("malformed delimited record at column %d: %w", pe.Column, pe.Err)
		}
		return nil, err
	}
	return fields, nil
}

// looksLikeData guards against instrument ids or statuses that happen to
// equal a column name: a row with a parsable numeric share count is data.
func looksLikeData(h Header, fields []string) bool {
	v, ok := h.value(fields, ColShares)
	if !ok {
		return false
	}
	_, parsed := parseDecimal(v)
	return parsed
}

func allBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func asDefect(err error, l rawLine) *model.ParseDefect {
	var pd *model.ParseDefect
	if errors.As(err, &pd) {
		if pd.Raw == "" {
			pd.Raw = l.text
		}
		return pd
	}
	return &model.ParseDefect{Line: l.num, Raw: l.text, Reason: err.Error()}
}
