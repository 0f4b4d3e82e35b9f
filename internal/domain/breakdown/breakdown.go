// Package breakdown assembles the auditable per-athlete points record.
//
// Each scoring stage produces a Fragment. Fragments are merged into a new
// Breakdown whose total is computed once, from its parts, at construction.
// Nothing else can set the total.
package breakdown

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/okian/racescore/internal/domain/bonus"
)

// Fragment is the contribution of one scoring stage. Zero fields contribute
// nothing.
type Fragment struct {
	PlacementPoints int
	GapBonus        int
	Bonuses         []bonus.Award
}

// Placement is a fragment carrying only placement points.
func Placement(points int) Fragment { return Fragment{PlacementPoints: points} }

// Gap is a fragment carrying only the gap bonus.
func Gap(points int) Fragment { return Fragment{GapBonus: points} }

// Bonuses is a fragment carrying performance bonuses.
func Bonuses(awards ...bonus.Award) Fragment { return Fragment{Bonuses: awards} }

// Breakdown is immutable once built.
type Breakdown struct {
	placement int
	gap       int
	bonuses   []bonus.Award
	total     int
}

// Zero is the breakdown of an athlete with no points.
var Zero = Breakdown{bonuses: []bonus.Award{}}

// Merge combines fragments into a Breakdown. Placement and gap points may be
// set by at most one fragment each. Bonuses keep their merge order; a bonus
// type may appear only once and pacing bonuses may not conflict.
func Merge(frags ...Fragment) (Breakdown, error) {
	var (
		b            = Breakdown{bonuses: make([]bonus.Award, 0, 2)}
		placementSet bool
		gapSet       bool
	)
	for _, f := range frags {
		if f.PlacementPoints != 0 {
			if placementSet {
				return Breakdown{}, fmt.Errorf("%w: placement points set twice", ErrConflict)
			}
			placementSet = true
			b.placement = f.PlacementPoints
		}
		if f.GapBonus != 0 {
			if gapSet {
				return Breakdown{}, fmt.Errorf("%w: gap bonus set twice", ErrConflict)
			}
			gapSet = true
			b.gap = f.GapBonus
		}
		for _, a := range f.Bonuses {
			if err := admit(b.bonuses, a); err != nil {
				return Breakdown{}, err
			}
			b.bonuses = append(b.bonuses, a)
		}
	}
	b.total = b.placement + b.gap
	for _, a := range b.bonuses {
		b.total += a.Points
	}
	return b, nil
}

func admit(have []bonus.Award, a bonus.Award) error {
	if _, err := a.Type.MarshalText(); err != nil {
		return err
	}
	if a.Points < 0 {
		return fmt.Errorf("%w: negative points for %s", ErrConflict, a.Type)
	}
	for _, h := range have {
		if h.Type == a.Type {
			return fmt.Errorf("%w: %s awarded twice", ErrConflict, a.Type)
		}
		if bonus.Conflicts(h.Type, a.Type) {
			return fmt.Errorf("%w: %s with %s", ErrConflict, h.Type, a.Type)
		}
	}
	return nil
}

func (b Breakdown) PlacementPoints() int { return b.placement }
func (b Breakdown) GapBonus() int        { return b.gap }
func (b Breakdown) Total() int           { return b.total }

// Bonuses returns a copy of the performance bonuses.
func (b Breakdown) Bonuses() []bonus.Award {
	if len(b.bonuses) == 0 {
		return []bonus.Award{}
	}
	return slices.Clone(b.bonuses)
}

// Has reports whether t was awarded.
func (b Breakdown) Has(t bonus.Type) bool {
	return slices.ContainsFunc(b.bonuses, func(a bonus.Award) bool { return a.Type == t })
}

// Equal compares every component.
func (b Breakdown) Equal(o Breakdown) bool {
	return b.placement == o.placement &&
		b.gap == o.gap &&
		b.total == o.total &&
		slices.Equal(b.bonuses, o.bonuses)
}

func (b Breakdown) String() string {
	return fmt.Sprintf("placement=%d gap=%d bonuses=%v total=%d", b.placement, b.gap, b.bonuses, b.total)
}

// wire is the persisted JSON shape. Field order is part of the contract.
type wire struct {
	PlacementPoints    int           `json:"placement_points"`
	GapBonus           int           `json:"gap_bonus"`
	PerformanceBonuses []bonus.Award `json:"performance_bonuses"`
	Total              int           `json:"total"`
}

// MarshalJSON emits
//
//	{"placement_points":N,"gap_bonus":N,"performance_bonuses":[{"type":T,"points":N}],"total":N}
//
// with an empty array, never null, when no bonus applies.
func (b Breakdown) MarshalJSON() ([]byte, error) {
	bs := b.bonuses
	if bs == nil {
		bs = []bonus.Award{}
	}
	return json.Marshal(wire{
		PlacementPoints:    b.placement,
		GapBonus:           b.gap,
		PerformanceBonuses: bs,
		Total:              b.total,
	})
}

// UnmarshalJSON rebuilds a breakdown through Merge and rejects payloads whose
// stored total does not equal the sum of their parts.
func (b *Breakdown) UnmarshalJSON(raw []byte) error {
	var w wire
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("breakdown: %w", err)
	}
	out, err := Merge(Placement(w.PlacementPoints), Gap(w.GapBonus), Bonuses(w.PerformanceBonuses...))
	if err != nil {
		return err
	}
	if out.total != w.Total {
		return fmt.Errorf("%w: stored %d, components sum to %d", ErrTotalMismatch, w.Total, out.total)
	}
	*b = out
	return nil
}
