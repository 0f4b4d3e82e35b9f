package scoring_test

import (
	"errors"
	"testing"

	"github.com/okian/racescore/internal/domain/bonus"
	"github.com/okian/racescore/internal/domain/clock"
	"github.com/okian/racescore/internal/domain/model"
	"github.com/okian/racescore/internal/domain/ranking"
	"github.com/okian/racescore/internal/domain/rules"
	"github.com/okian/racescore/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func classic() *rules.RuleSet {
	return rules.Builtin()[0]
}

func TestPlacementPoints(t *testing.T) {
	Convey("Given the classic rule set", t, func() {
		calc := scoring.NewCalculator(classic())

		Convey("When three athletes finish at 7689000, 7689000 and 7700000 ms", func() {
			placed := ranking.Resolve([]ranking.Entry{
				{AthleteID: "a", Finish: clock.FromMillis(7_689_000)},
				{AthleteID: "b", Finish: clock.FromMillis(7_689_000)},
				{AthleteID: "c", Finish: clock.FromMillis(7_700_000)},
			}, calc.RuleSet().Convention())

			Convey("Then the tied leaders share first place points", func() {
				So(calc.PlacementPoints(placed[0].Placement), ShouldEqual, 100)
				So(calc.PlacementPoints(placed[1].Placement), ShouldEqual, 100)
				So(calc.PlacementPoints(placed[2].Placement), ShouldEqual, 80)
			})

			Convey("Then the gap bonus follows the gap, not the placement", func() {
				So(calc.GapBonus(placed[0].GapMs), ShouldEqual, 15)
				So(calc.GapBonus(placed[2].GapMs), ShouldEqual, 10)
			})
		})

		Convey("Then placements past the table collapse to the floor", func() {
			So(calc.PlacementPoints(20), ShouldEqual, 10)
			So(calc.PlacementPoints(21), ShouldEqual, 5)
			So(calc.PlacementPoints(150), ShouldEqual, 5)
		})
	})
}

func TestGapBonusBoundaries(t *testing.T) {
	Convey("Given the classic gap tiers", t, func() {
		calc := scoring.NewCalculator(classic())

		cases := []struct {
			gap  int64
			want int
		}{
			{0, 15},
			{10_000, 15},
			{10_001, 10},
			{30_000, 10},
			{30_001, 5},
			{60_000, 5},
			{180_000, 2},
			{180_001, 0},
			{-1, 0},
		}
		for _, tc := range cases {
			So(calc.GapBonus(tc.gap), ShouldEqual, tc.want)
		}
	})
}

func TestScore(t *testing.T) {
	Convey("Given a negative-split winner", t, func() {
		calc := scoring.NewCalculator(classic())
		in := scoring.Input{
			Placed: ranking.Placed{AthleteID: "kip", FinishMs: 7_680_000, Placement: 1, GapMs: 0},
			Splits: map[model.Checkpoint]clock.Time{model.CPHalf: clock.Parse("1:04:30")},
		}

		Convey("Then every stage is merged into the total", func() {
			res, err := calc.Score(in)
			So(err, ShouldBeNil)
			So(res.AthleteID, ShouldEqual, model.AthleteID("kip"))
			So(res.Breakdown.PlacementPoints(), ShouldEqual, 100)
			So(res.Breakdown.GapBonus(), ShouldEqual, 15)
			So(res.Breakdown.Bonuses(), ShouldResemble, []bonus.Award{{Type: bonus.NegativeSplit, Points: 10}})
			So(res.Breakdown.Total(), ShouldEqual, 125)
		})

		Convey("Then bonuses can be switched off", func() {
			res, err := scoring.NewCalculator(classic(), scoring.WithoutBonuses()).Score(in)
			So(err, ShouldBeNil)
			So(res.Breakdown.Bonuses(), ShouldBeEmpty)
			So(res.Breakdown.Total(), ShouldEqual, 115)
		})

		Convey("Then an evaluator can be injected", func() {
			ev := bonus.NewEvaluator(bonus.Config{NegativeSplit: bonus.NegativeSplitRule{Points: 1}})
			res, err := scoring.NewCalculator(classic(), scoring.WithEvaluator(ev)).Score(in)
			So(err, ShouldBeNil)
			So(res.Breakdown.Total(), ShouldEqual, 116)
		})
	})

	Convey("Given a result without placement", t, func() {
		_, err := scoring.NewCalculator(classic()).Score(scoring.Input{Placed: ranking.Placed{AthleteID: "x"}})
		So(errors.Is(err, scoring.ErrNotRanked), ShouldBeTrue)
	})
}
