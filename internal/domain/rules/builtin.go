package rules

import "github.com/okian/racescore/internal/domain/bonus"

// Builtin returns the rule sets shipped with the binary.
//
// v1 is the launch table. v2 widens the gap tiers and pays deeper. Both rank
// dense; competition placements are only available to operator-supplied sets.
func Builtin() []*RuleSet {
	return []*RuleSet{
		MustNew(Document{
			Version:    1,
			Name:       "classic",
			Convention: "dense",
			PlacementPoints: []int{
				100, 80, 70, 62, 55, 49, 44, 40, 36, 33,
				30, 27, 24, 21, 18, 16, 14, 12, 11, 10,
			},
			FloorPoints: 5,
			GapTiers: []GapTier{
				{WithinMs: 10_000, Points: 15},
				{WithinMs: 30_000, Points: 10},
				{WithinMs: 60_000, Points: 5},
				{WithinMs: 180_000, Points: 2},
			},
			Bonuses: bonus.Config{
				NegativeSplit: bonus.NegativeSplitRule{Points: 10},
				EvenPace:      bonus.EvenPaceRule{Points: 8, MaxDeviationBps: 200},
				FastFinish:    bonus.FastFinishRule{Points: 6, MinGainBps: 300},
			},
		}),
		MustNew(Document{
			Version:    2,
			Name:       "deep-field",
			Convention: "dense",
			PlacementPoints: []int{
				120, 95, 82, 72, 64, 57, 51, 46, 42, 38,
				35, 32, 29, 27, 25, 23, 21, 19, 17, 16,
				15, 14, 13, 12, 11, 10, 9, 8, 7, 6,
			},
			FloorPoints: 3,
			GapTiers: []GapTier{
				{WithinMs: 15_000, Points: 20},
				{WithinMs: 45_000, Points: 12},
				{WithinMs: 120_000, Points: 6},
				{WithinMs: 300_000, Points: 3},
			},
			Bonuses: bonus.Config{
				NegativeSplit: bonus.NegativeSplitRule{Points: 12},
				EvenPace:      bonus.EvenPaceRule{Points: 10, MaxDeviationBps: 150},
				FastFinish:    bonus.FastFinishRule{Points: 8, MinGainBps: 400},
			},
		}),
	}
}
