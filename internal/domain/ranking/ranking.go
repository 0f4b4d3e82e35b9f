// Package ranking orders finishers by time and assigns placements and gaps.
package ranking

import (
	"cmp"
	"slices"

	"github.com/okian/racescore/internal/domain/clock"
	"github.com/okian/racescore/internal/domain/model"
)

// Convention decides how placements continue after a tie.
type Convention int

const (
	// Dense shares a placement within a tie and continues with the next integer: 1,1,2.
	Dense Convention = iota
	// Competition shares a placement and skips the tie size: 1,1,3.
	Competition
)

func (c Convention) String() string {
	switch c {
	case Dense:
		return "dense"
	case Competition:
		return "competition"
	default:
		return "unknown"
	}
}

// ParseConvention maps "dense" / "competition" to a Convention. Empty means Dense.
func ParseConvention(s string) (Convention, bool) {
	switch s {
	case "", "dense":
		return Dense, true
	case "competition", "skip":
		return Competition, true
	default:
		return Dense, false
	}
}

// Entry is the ranking input for one athlete. Finish is None for DNF, DNS,
// unfinished or malformed times.
type Entry struct {
	AthleteID model.AthleteID
	Finish    clock.Time
	TieBreak  int
}

// Placed is a finisher with its derived placement and gap to the leader.
type Placed struct {
	AthleteID model.AthleteID
	FinishMs  int64
	Placement int
	GapMs     int64
}

// Resolve ranks the entries that have a finish time. Entries without one are
// dropped. Equal millisecond times share a placement; within a tie the order
// is TieBreak (set values first, ascending) then AthleteID, so output is
// deterministic regardless of input order.
func Resolve(entries []Entry, conv Convention) []Placed {
	finished := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Finish.Valid() {
			finished = append(finished, e)
		}
	}
	if len(finished) == 0 {
		return []Placed{}
	}

	slices.SortFunc(finished, compareEntries)

	leader := finished[0].Finish.MustMillis()
	out := make([]Placed, len(finished))
	placement := 0
	var prev int64 = -1
	for i, e := range finished {
		ms := e.Finish.MustMillis()
		if ms != prev {
			switch conv {
			case Competition:
				placement = i + 1
			default:
				placement++
			}
			prev = ms
		}
		out[i] = Placed{
			AthleteID: e.AthleteID,
			FinishMs:  ms,
			Placement: placement,
			GapMs:     ms - leader,
		}
	}
	return out
}

func compareEntries(a, b Entry) int {
	if c := cmp.Compare(a.Finish.MustMillis(), b.Finish.MustMillis()); c != 0 {
		return c
	}
	if c := compareTieBreak(a.TieBreak, b.TieBreak); c != 0 {
		return c
	}
	return cmp.Compare(a.AthleteID, b.AthleteID)
}

// unset tie-breaks (0) sort after any set value
func compareTieBreak(a, b int) int {
	switch {
	case a == b:
		return 0
	case a == 0:
		return 1
	case b == 0:
		return -1
	default:
		return cmp.Compare(a, b)
	}
}
