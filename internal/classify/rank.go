package classify

import (
	"sort"
	"time"

	"github.com/atmx/fill-ledger/internal/model"
)

// Rank classifies every state and orders the result by descending current
// value. Equal values are ordered by instrument id so the output is stable.
func Rank(states []model.PositionState, th Thresholds, now time.Time) []Classification {
	out := make([]Classification, len(states))
	for i, s := range states {
		out[i] = Classify(s, th, now)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if cmp := out[i].CurrentValue.Cmp(out[j].CurrentValue); cmp != 0 {
			return cmp > 0
		}
		return out[i].State.InstrumentID < out[j].State.InstrumentID
	})
	return out
}

// Filter returns the classifications carrying label l, in input order.
func Filter(cs []Classification, l Label) []Classification {
	var out []Classification
	for _, c := range cs {
		if c.Has(l) {
			out = append(out, c)
		}
	}
	return out
}

// AgeSummary describes how old the open positions are.
type AgeSummary struct {
	Aged         int    `json:"aged"`
	Unknown      int    `json:"unknown"`
	OldestID     string `json:"oldest_id,omitempty"`
	OldestDays   int    `json:"oldest_days"`
	YoungestID   string `json:"youngest_id,omitempty"`
	YoungestDays int    `json:"youngest_days"`
}

// SummarizeAges reports the oldest and youngest open positions with a known
// age, and how many open positions have no timestamp at all.
func SummarizeAges(cs []Classification) AgeSummary {
	var s AgeSummary
	for _, c := range cs {
		if !c.Open {
			continue
		}
		if !c.AgeKnown {
			s.Unknown++
			continue
		}
		id := c.State.InstrumentID
		if s.Aged == 0 || c.AgeDays > s.OldestDays || (c.AgeDays == s.OldestDays && id < s.OldestID) {
			s.OldestID, s.OldestDays = id, c.AgeDays
		}
		if s.Aged == 0 || c.AgeDays < s.YoungestDays || (c.AgeDays == s.YoungestDays && id < s.YoungestID) {
			s.YoungestID, s.YoungestDays = id, c.AgeDays
		}
		s.Aged++
	}
	return s
}
