// Package rules holds the versioned, immutable scoring rule sets.
//
// A published RuleSet is never mutated: accessors return copies and the
// registry refuses to republish a version with different content.
package rules

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/okian/racescore/internal/domain/bonus"
	"github.com/okian/racescore/internal/domain/ranking"
)

// GapTier awards Points to finishers whose gap to the leader is at most WithinMs.
type GapTier struct {
	WithinMs int64 `yaml:"within_ms" json:"within_ms"`
	Points   int   `yaml:"points" json:"points"`
}

// Document is the serialized form of a rule set (YAML files, database rows).
type Document struct {
	Version         int          `yaml:"version" json:"version"`
	Name            string       `yaml:"name" json:"name"`
	Convention      string       `yaml:"placement_convention" json:"placement_convention"`
	PlacementPoints []int        `yaml:"placement_points" json:"placement_points"`
	FloorPoints     int          `yaml:"floor_points" json:"floor_points"`
	GapTiers        []GapTier    `yaml:"gap_tiers" json:"gap_tiers"`
	Bonuses         bonus.Config `yaml:"bonuses" json:"bonuses"`
}

// RuleSet is a validated, immutable scoring table.
type RuleSet struct {
	version    int
	name       string
	convention ranking.Convention
	placement  []int
	floor      int
	tiers      []GapTier // sorted by WithinMs ascending
	bonuses    bonus.Config
}

// New validates doc and builds a RuleSet from a private copy of its tables.
func New(doc Document) (*RuleSet, error) {
	if doc.Version <= 0 {
		return nil, fmt.Errorf("%w: version must be positive, got %d", ErrInvalidRuleSet, doc.Version)
	}
	conv, ok := ranking.ParseConvention(doc.Convention)
	if !ok {
		return nil, fmt.Errorf("%w: v%d: unknown placement convention %q", ErrInvalidRuleSet, doc.Version, doc.Convention)
	}
	if len(doc.PlacementPoints) == 0 {
		return nil, fmt.Errorf("%w: v%d: placement_points is empty", ErrInvalidRuleSet, doc.Version)
	}
	for i, p := range doc.PlacementPoints {
		if p < 0 {
			return nil, fmt.Errorf("%w: v%d: negative points for placement %d", ErrInvalidRuleSet, doc.Version, i+1)
		}
	}
	if doc.FloorPoints < 0 {
		return nil, fmt.Errorf("%w: v%d: negative floor_points", ErrInvalidRuleSet, doc.Version)
	}
	tiers := slices.Clone(doc.GapTiers)
	slices.SortFunc(tiers, func(a, b GapTier) int { return cmp.Compare(a.WithinMs, b.WithinMs) })
	for i, t := range tiers {
		if t.WithinMs < 0 || t.Points < 0 {
			return nil, fmt.Errorf("%w: v%d: gap tier %d has negative values", ErrInvalidRuleSet, doc.Version, i)
		}
		if i > 0 && tiers[i-1].WithinMs == t.WithinMs {
			return nil, fmt.Errorf("%w: v%d: duplicate gap tier within_ms=%d", ErrInvalidRuleSet, doc.Version, t.WithinMs)
		}
	}
	if err := doc.Bonuses.Validate(); err != nil {
		return nil, fmt.Errorf("%w: v%d: %w", ErrInvalidRuleSet, doc.Version, err)
	}

	return &RuleSet{
		version:    doc.Version,
		name:       doc.Name,
		convention: conv,
		placement:  slices.Clone(doc.PlacementPoints),
		floor:      doc.FloorPoints,
		tiers:      tiers,
		bonuses:    doc.Bonuses,
	}, nil
}

// MustNew is New for static tables; it panics on invalid input.
func MustNew(doc Document) *RuleSet {
	rs, err := New(doc)
	if err != nil {
		panic(err)
	}
	return rs
}

func (r *RuleSet) Version() int                   { return r.version }
func (r *RuleSet) Name() string                   { return r.name }
func (r *RuleSet) Convention() ranking.Convention { return r.convention }
func (r *RuleSet) Bonuses() bonus.Config          { return r.bonuses }
func (r *RuleSet) FloorPoints() int               { return r.floor }

// Depth is the number of placements with an explicit award.
func (r *RuleSet) Depth() int { return len(r.placement) }

// PlacementPoints returns the explicit award for placement p (1-based), or
// the floor for placements beyond the table. Non-positive placements get 0.
func (r *RuleSet) PlacementPoints(p int) int {
	switch {
	case p <= 0:
		return 0
	case p <= len(r.placement):
		return r.placement[p-1]
	default:
		return r.floor
	}
}

// GapTiers returns a copy of the gap tiers, tightest first.
func (r *RuleSet) GapTiers() []GapTier { return slices.Clone(r.tiers) }

// Document returns the serialized form of r.
func (r *RuleSet) Document() Document {
	return Document{
		Version:         r.version,
		Name:            r.name,
		Convention:      r.convention.String(),
		PlacementPoints: slices.Clone(r.placement),
		FloorPoints:     r.floor,
		GapTiers:        slices.Clone(r.tiers),
		Bonuses:         r.bonuses,
	}
}

// Equal reports whether two rule sets award identically.
func (r *RuleSet) Equal(o *RuleSet) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.version == o.version &&
		r.name == o.name &&
		r.convention == o.convention &&
		slices.Equal(r.placement, o.placement) &&
		r.floor == o.floor &&
		slices.Equal(r.tiers, o.tiers) &&
		r.bonuses == o.bonuses
}
