// Package scoring turns ranked finishers into points under a rule set.
package scoring

import (
	"fmt"

	"github.com/okian/racescore/internal/domain/bonus"
	"github.com/okian/racescore/internal/domain/breakdown"
	"github.com/okian/racescore/internal/domain/clock"
	"github.com/okian/racescore/internal/domain/model"
	"github.com/okian/racescore/internal/domain/ranking"
	"github.com/okian/racescore/internal/domain/rules"
)

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithoutBonuses disables performance bonus evaluation. Placement and gap
// points are unaffected.
func WithoutBonuses() Option {
	return func(c *Calculator) {
		c.bonuses = nil
	}
}

// WithEvaluator overrides the bonus evaluator built from the rule set.
func WithEvaluator(ev *bonus.Evaluator) Option {
	return func(c *Calculator) {
		if ev != nil {
			c.bonuses = ev
		}
	}
}

// Input is one ranked finisher plus the normalized splits bonuses inspect.
type Input struct {
	Placed ranking.Placed
	Splits map[model.Checkpoint]clock.Time
}

// Result is the scored finisher.
type Result struct {
	AthleteID model.AthleteID
	Placement int
	GapMs     int64
	Breakdown breakdown.Breakdown
}

// Scorer scores one finisher.
type Scorer interface {
	Score(in Input) (Result, error)
}

// Calculator applies one rule set. It is a pure function of its inputs and
// safe for concurrent use.
type Calculator struct {
	rules   *rules.RuleSet
	tiers   []rules.GapTier
	bonuses *bonus.Evaluator
}

// NewCalculator creates a calculator for rs.
func NewCalculator(rs *rules.RuleSet, opts ...Option) *Calculator {
	c := &Calculator{
		rules:   rs,
		tiers:   rs.GapTiers(),
		bonuses: bonus.NewEvaluator(rs.Bonuses()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RuleSet returns the rule set in use.
func (c *Calculator) RuleSet() *rules.RuleSet { return c.rules }

// PlacementPoints looks up the award for a placement. Tied athletes share
// a placement and therefore the same points.
func (c *Calculator) PlacementPoints(placement int) int {
	return c.rules.PlacementPoints(placement)
}

// GapBonus returns the points of the tightest tier whose bound is at least
// gapMs (inclusive). Tiers do not stack. Negative gaps score nothing.
func (c *Calculator) GapBonus(gapMs int64) int {
	if gapMs < 0 {
		return 0
	}
	for _, t := range c.tiers {
		if gapMs <= t.WithinMs {
			return t.Points
		}
	}
	return 0
}

// PlacementFragment scores placement and gap for p.
func (c *Calculator) PlacementFragment(p ranking.Placed) (breakdown.Fragment, breakdown.Fragment) {
	return breakdown.Placement(c.PlacementPoints(p.Placement)), breakdown.Gap(c.GapBonus(p.GapMs))
}

// BonusFragment evaluates performance bonuses for p.
func (c *Calculator) BonusFragment(p ranking.Placed, splits map[model.Checkpoint]clock.Time) breakdown.Fragment {
	if c.bonuses == nil {
		return breakdown.Fragment{}
	}
	return breakdown.Bonuses(c.bonuses.Evaluate(clock.FromMillis(p.FinishMs), splits)...)
}

// Score runs every stage for one finisher and merges the fragments.
func (c *Calculator) Score(in Input) (Result, error) {
	if in.Placed.Placement <= 0 {
		return Result{}, fmt.Errorf("%w: athlete %s has placement %d", ErrNotRanked, in.Placed.AthleteID, in.Placed.Placement)
	}
	placement, gap := c.PlacementFragment(in.Placed)
	b, err := breakdown.Merge(placement, gap, c.BonusFragment(in.Placed, in.Splits))
	if err != nil {
		return Result{}, fmt.Errorf("scoring athlete %s: %w", in.Placed.AthleteID, err)
	}
	return Result{
		AthleteID: in.Placed.AthleteID,
		Placement: in.Placed.Placement,
		GapMs:     in.Placed.GapMs,
		Breakdown: b,
	}, nil
}
