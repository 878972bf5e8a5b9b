package ledger

import (
	"sort"

	"github.com/atmx/fill-ledger/internal/model"
)

// Snapshot is a read-only view of the ledger at one point of the fold.
type Snapshot struct {
	positions []model.PositionState
	index     map[string]int
	counts    model.OutcomeCounts
}

func newSnapshot(src map[string]*model.PositionState, counts model.OutcomeCounts) *Snapshot {
	s := &Snapshot{
		positions: make([]model.PositionState, 0, len(src)),
		index:     make(map[string]int, len(src)),
		counts:    counts,
	}
	for _, p := range src {
		s.positions = append(s.positions, clone(*p))
	}
	sort.Slice(s.positions, func(i, j int) bool {
		return s.positions[i].InstrumentID < s.positions[j].InstrumentID
	})
	for i, p := range s.positions {
		s.index[p.InstrumentID] = i
	}
	return s
}

// Positions returns copies of every position, sorted by instrument id.
func (s *Snapshot) Positions() []model.PositionState {
	out := make([]model.PositionState, len(s.positions))
	for i, p := range s.positions {
		out[i] = clone(p)
	}
	return out
}

// Position returns a copy of one instrument's state.
func (s *Snapshot) Position(id string) (model.PositionState, bool) {
	i, ok := s.index[id]
	if !ok {
		return model.PositionState{}, false
	}
	return clone(s.positions[i]), true
}

// Outcomes returns the record tallies accumulated during the fold.
func (s *Snapshot) Outcomes() model.OutcomeCounts {
	return s.counts
}

// Len is the number of instruments with state.
func (s *Snapshot) Len() int {
	return len(s.positions)
}

func clone(p model.PositionState) model.PositionState {
	if p.LastFillAt != nil {
		ts := *p.LastFillAt
		p.LastFillAt = &ts
	}
	return p
}
