// Package bonus evaluates split-based performance bonuses.
//
// Pacing bonuses (NegativeSplit, EvenPace) are mutually exclusive; FastFinishKick
// measures a different race phase and stacks with either. Missing or
// inconsistent split data skips the affected check.
package bonus

import (
	"fmt"
	"slices"

	"github.com/okian/racescore/internal/domain/clock"
	"github.com/okian/racescore/internal/domain/model"
)

// basis points in one whole
const bpsScale = 10_000

// Type is the closed set of performance bonus kinds.
type Type int

const (
	NegativeSplit Type = iota + 1
	EvenPace
	FastFinishKick
)

// Types lists every bonus type in evaluation order.
func Types() []Type {
	return []Type{NegativeSplit, EvenPace, FastFinishKick}
}

func (t Type) String() string {
	switch t {
	case NegativeSplit:
		return "NEGATIVE_SPLIT"
	case EvenPace:
		return "EVEN_PACE"
	case FastFinishKick:
		return "FAST_FINISH_KICK"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType is the inverse of String.
func ParseType(s string) (Type, error) {
	for _, t := range Types() {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// MarshalText encodes the wire name.
func (t Type) MarshalText() ([]byte, error) {
	switch t {
	case NegativeSplit, EvenPace, FastFinishKick:
		return []byte(t.String()), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
}

// UnmarshalText decodes the wire name.
func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// IsPacing reports whether t belongs to the mutually exclusive pacing group.
func (t Type) IsPacing() bool {
	switch t {
	case NegativeSplit, EvenPace:
		return true
	case FastFinishKick:
		return false
	default:
		return false
	}
}

// Conflicts reports whether a and b may not both be awarded to one athlete.
func Conflicts(a, b Type) bool {
	return a != b && a.IsPacing() && b.IsPacing()
}

// Award is one granted bonus.
type Award struct {
	Type   Type `json:"type"`
	Points int  `json:"points"`
}

// EvenPaceRule configures the even pacing check.
type EvenPaceRule struct {
	Points int `yaml:"points" json:"points"`
	// MaxDeviationBps bounds how far any segment pace may stray from the
	// average race pace, in basis points (inclusive).
	MaxDeviationBps int64 `yaml:"max_deviation_bps" json:"max_deviation_bps"`
}

// FastFinishRule configures the 40k-to-finish kick check.
type FastFinishRule struct {
	Points int `yaml:"points" json:"points"`
	// MinGainBps is how much faster than average race pace the last segment
	// must be, in basis points (inclusive).
	MinGainBps int64 `yaml:"min_gain_bps" json:"min_gain_bps"`
}

// NegativeSplitRule configures the negative split check.
type NegativeSplitRule struct {
	Points int `yaml:"points" json:"points"`
}

// Config holds every bonus rule. A rule with zero points is disabled.
type Config struct {
	NegativeSplit NegativeSplitRule `yaml:"negative_split" json:"negative_split"`
	EvenPace      EvenPaceRule      `yaml:"even_pace" json:"even_pace"`
	FastFinish    FastFinishRule    `yaml:"fast_finish" json:"fast_finish"`
}

// Validate rejects negative points or thresholds.
func (c Config) Validate() error {
	switch {
	case c.NegativeSplit.Points < 0, c.EvenPace.Points < 0, c.FastFinish.Points < 0:
		return fmt.Errorf("%w: negative bonus points", ErrInvalidConfig)
	case c.EvenPace.MaxDeviationBps < 0 || c.EvenPace.MaxDeviationBps > bpsScale:
		return fmt.Errorf("%w: even_pace.max_deviation_bps out of range", ErrInvalidConfig)
	case c.FastFinish.MinGainBps < 0 || c.FastFinish.MinGainBps > bpsScale:
		return fmt.Errorf("%w: fast_finish.min_gain_bps out of range", ErrInvalidConfig)
	}
	return nil
}

// Evaluator applies a Config to one athlete's times.
type Evaluator struct {
	cfg Config
}

// NewEvaluator returns an evaluator for cfg.
func NewEvaluator(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Points returns the configured award for t.
func (e *Evaluator) Points(t Type) int {
	switch t {
	case NegativeSplit:
		return e.cfg.NegativeSplit.Points
	case EvenPace:
		return e.cfg.EvenPace.Points
	case FastFinishKick:
		return e.cfg.FastFinish.Points
	default:
		return 0
	}
}

// Qualifies reports whether the times numerically satisfy t, ignoring
// exclusivity and whether the rule is enabled.
func (e *Evaluator) Qualifies(t Type, finish clock.Time, splits map[model.Checkpoint]clock.Time) bool {
	fin, ok := finish.Millis()
	if !ok || fin <= 0 {
		return false
	}
	switch t {
	case NegativeSplit:
		return negativeSplit(fin, splits)
	case EvenPace:
		return evenPace(fin, splits, e.cfg.EvenPace.MaxDeviationBps)
	case FastFinishKick:
		return fastFinish(fin, splits, e.cfg.FastFinish.MinGainBps)
	default:
		return false
	}
}

// Evaluate returns the awards earned. At most one pacing bonus is returned;
// NegativeSplit wins when both pacing conditions hold.
func (e *Evaluator) Evaluate(finish clock.Time, splits map[model.Checkpoint]clock.Time) []Award {
	awards := make([]Award, 0, 2)
	pacingAwarded := false
	for _, t := range Types() {
		pts := e.Points(t)
		if pts == 0 {
			continue
		}
		if t.IsPacing() && pacingAwarded {
			continue
		}
		if !e.Qualifies(t, finish, splits) {
			continue
		}
		awards = append(awards, Award{Type: t, Points: pts})
		if t.IsPacing() {
			pacingAwarded = true
		}
	}
	return awards
}

func negativeSplit(finishMs int64, splits map[model.Checkpoint]clock.Time) bool {
	half, ok := splits[model.CPHalf].Millis()
	if !ok || half <= 0 || half >= finishMs {
		return false
	}
	secondHalf := finishMs - half
	return secondHalf < half
}

type mark struct {
	dm int64
	ms int64
}

// courseMarks returns start, available splits and finish in course order, or
// false when times do not strictly increase with distance.
func courseMarks(finishMs int64, splits map[model.Checkpoint]clock.Time) ([]mark, bool) {
	marks := []mark{{dm: 0, ms: 0}}
	cps := make([]model.Checkpoint, 0, len(splits))
	for cp := range splits {
		if cp.Valid() {
			cps = append(cps, cp)
		}
	}
	slices.SortFunc(cps, func(a, b model.Checkpoint) int { return int(a.Decimeters() - b.Decimeters()) })
	for _, cp := range cps {
		if ms, ok := splits[cp].Millis(); ok {
			marks = append(marks, mark{dm: cp.Decimeters(), ms: ms})
		}
	}
	marks = append(marks, mark{dm: model.MarathonDecimeters, ms: finishMs})
	for i := 1; i < len(marks); i++ {
		if marks[i].ms <= marks[i-1].ms {
			return nil, false
		}
	}
	return marks, true
}

// evenPace compares each segment pace (ms/dm) against the average pace using
// cross-multiplication: |seg.ms*total - finish*seg.dm| * 10000 <= bps * finish * seg.dm.
func evenPace(finishMs int64, splits map[model.Checkpoint]clock.Time, maxDeviationBps int64) bool {
	marks, ok := courseMarks(finishMs, splits)
	if !ok || len(marks) < 3 {
		return false
	}
	for i := 1; i < len(marks); i++ {
		segMs := marks[i].ms - marks[i-1].ms
		segDm := marks[i].dm - marks[i-1].dm
		diff := segMs*model.MarathonDecimeters - finishMs*segDm
		if diff < 0 {
			diff = -diff
		}
		if diff*bpsScale > maxDeviationBps*finishMs*segDm {
			return false
		}
	}
	return true
}

// fastFinish checks that the 40k-to-finish pace beats the average pace by at
// least minGainBps: (finish*kickDm - kickMs*total) * 10000 >= bps * finish * kickDm.
func fastFinish(finishMs int64, splits map[model.Checkpoint]clock.Time, minGainBps int64) bool {
	at40, ok := splits[model.CP40K].Millis()
	if !ok || at40 <= 0 || at40 >= finishMs {
		return false
	}
	kickMs := finishMs - at40
	kickDm := model.MarathonDecimeters - model.CP40K.Decimeters()
	gain := finishMs*kickDm - kickMs*model.MarathonDecimeters
	return gain*bpsScale >= minGainBps*finishMs*kickDm
}
