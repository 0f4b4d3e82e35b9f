package seed

import (
	"errors"
	"fmt"

	"github.com/okian/racescore/internal/adapters/repository"
)

// Verify checks the scored rows of a generated game for internal
// consistency. Every finding wraps ErrInconsistent; nil means clean.
func Verify(game Game, rows []repository.ScoredRow) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInconsistent, fmt.Sprintf(format, args...)))
	}

	if len(rows) != len(game.Results) {
		fail("%d rows for %d athletes", len(rows), len(game.Results))
	}

	var prev *repository.ScoredRow
	unranked := false
	for i := range rows {
		r := &rows[i]
		if r.Position != i+1 {
			fail("%s: position %d at index %d", r.AthleteID, r.Position, i)
		}
		if r.TotalPoints != r.Breakdown.Total() {
			fail("%s: total %d does not match breakdown %d", r.AthleteID, r.TotalPoints, r.Breakdown.Total())
		}

		if !r.Ranked() {
			unranked = true
			if r.TotalPoints != 0 {
				fail("%s: unranked athlete has %d points", r.AthleteID, r.TotalPoints)
			}
			continue
		}
		if unranked {
			fail("%s: ranked athlete listed after unranked ones", r.AthleteID)
		}
		if prev == nil {
			if r.Placement != 1 || r.GapMs != 0 {
				fail("%s: leader has placement %d and gap %d", r.AthleteID, r.Placement, r.GapMs)
			}
		} else {
			if r.FinishMs < prev.FinishMs {
				fail("%s: finishes before %s but is listed after", r.AthleteID, prev.AthleteID)
			}
			if r.Placement < prev.Placement {
				fail("%s: placement %d after placement %d", r.AthleteID, r.Placement, prev.Placement)
			}
			if r.FinishMs == prev.FinishMs && r.Placement != prev.Placement {
				fail("%s and %s share a time but not a placement", prev.AthleteID, r.AthleteID)
			}
		}
		prev = r
	}
	return errors.Join(errs...)
}
