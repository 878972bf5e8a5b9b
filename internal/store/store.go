// Package store persists the append-only fill log. Implementations include
// the CSV file the trading agent writes, PostgreSQL and SQLite for shared or
// local history, Redis as a read-through cache, and in-memory for tests.
package store

import (
	"context"
	"errors"
	"maps"
	"sort"
	"strings"

	"github.com/atmx/fill-ledger/internal/model"
)

var (
	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("store: unknown backend")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: closed")
)

// FillStore is the persistence interface for fill logs. Appends never
// rewrite history; Load returns every record and defect in append order.
type FillStore interface {
	// Append persists a parsed batch and returns its batch id.
	Append(ctx context.Context, log model.FillLog) (string, error)

	// Load returns the full log.
	Load(ctx context.Context) (model.FillLog, error)

	// Close releases the backend.
	Close() error
}

const (
	kindFill   = "fill"
	kindDefect = "defect"
)

// entry is one line of a stored log, either a record or a defect.
type entry struct {
	rec    *model.FillRecord
	defect *model.ParseDefect
}

// ordered interleaves records and defects by source line so a batch is
// stored in the order it was read.
func ordered(log model.FillLog) []entry {
	out := make([]entry, 0, len(log.Records)+len(log.Defects))
	for i := range log.Records {
		out = append(out, entry{rec: &log.Records[i]})
	}
	for i := range log.Defects {
		out = append(out, entry{defect: &log.Defects[i]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].line() < out[j].line()
	})
	return out
}

func (e entry) line() int {
	if e.rec != nil {
		return e.rec.Line
	}
	return e.defect.Line
}

// assemble rebuilds a FillLog from stored entries. Lines are renumbered by
// position in the stored log, since batches were numbered independently.
func assemble(entries []entry) model.FillLog {
	var log model.FillLog
	for i, e := range entries {
		if e.rec != nil {
			r := *e.rec
			r.Line = i + 1
			r.Fallbacks = append([]string(nil), r.Fallbacks...)
			r.RawNumeric = maps.Clone(r.RawNumeric)
			if r.Timestamp != nil {
				ts := *r.Timestamp
				r.Timestamp = &ts
			}
			log.Records = append(log.Records, r)
			continue
		}
		d := *e.defect
		d.Line = i + 1
		log.Defects = append(log.Defects, d)
	}
	return log
}

func joinFallbacks(fs []string) string {
	return strings.Join(fs, ",")
}

func splitFallbacks(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
