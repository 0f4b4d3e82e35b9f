// Package model contains domain models passed between layers.
package model

import "strings"

// GameID identifies a fantasy game (one race, many rosters).
type GameID string

// RaceID identifies the real-world race a game is played on.
type RaceID string

// AthleteID identifies a competitor.
type AthleteID string

// Game binds a fantasy game to the race it scores.
type Game struct {
	ID     GameID
	RaceID RaceID
	Name   string
}

// RaceResultInput is one raw result row for (game, athlete).
// Times are kept as received; normalization happens in the engine.
type RaceResultInput struct {
	GameID     GameID
	AthleteID  AthleteID
	FinishTime string                // "2:08:09.03", "DNF", "DNS" or ""
	Splits     map[Checkpoint]string // partial maps are normal
	// TieBreak orders athletes that share a placement (lower first). Zero means unset.
	TieBreak int
}

// Checkpoint is a fixed timing point on the marathon course.
type Checkpoint int

// Course checkpoints in distance order.
const (
	CP5K Checkpoint = iota + 1
	CP10K
	CP15K
	CP20K
	CPHalf
	CP25K
	CP30K
	CP35K
	CP40K
)

// MarathonDecimeters is the full marathon distance (42,195 m) in decimeters.
const MarathonDecimeters int64 = 421_950

var checkpointNames = map[Checkpoint]string{
	CP5K:   "5k",
	CP10K:  "10k",
	CP15K:  "15k",
	CP20K:  "20k",
	CPHalf: "half",
	CP25K:  "25k",
	CP30K:  "30k",
	CP35K:  "35k",
	CP40K:  "40k",
}

// decimeters keeps the half-marathon mark exact (21,097.5 m).
var checkpointDecimeters = map[Checkpoint]int64{
	CP5K:   50_000,
	CP10K:  100_000,
	CP15K:  150_000,
	CP20K:  200_000,
	CPHalf: 210_975,
	CP25K:  250_000,
	CP30K:  300_000,
	CP35K:  350_000,
	CP40K:  400_000,
}

// Checkpoints returns every checkpoint in course order.
func Checkpoints() []Checkpoint {
	return []Checkpoint{CP5K, CP10K, CP15K, CP20K, CPHalf, CP25K, CP30K, CP35K, CP40K}
}

func (c Checkpoint) String() string {
	if name, ok := checkpointNames[c]; ok {
		return name
	}
	return "unknown"
}

// Decimeters returns the checkpoint distance from the start.
func (c Checkpoint) Decimeters() int64 {
	return checkpointDecimeters[c]
}

// Valid reports whether c is a known checkpoint.
func (c Checkpoint) Valid() bool {
	_, ok := checkpointNames[c]
	return ok
}

// ParseCheckpoint accepts names like "5k", "HALF", "40K".
func ParseCheckpoint(s string) (Checkpoint, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range checkpointNames {
		if name == s {
			return c, true
		}
	}
	return 0, false
}

// MarshalText encodes the checkpoint by name so split maps serialize as JSON objects.
func (c Checkpoint) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a checkpoint name. Unknown names are rejected.
func (c *Checkpoint) UnmarshalText(b []byte) error {
	cp, ok := ParseCheckpoint(string(b))
	if !ok {
		return &UnknownCheckpointError{Name: string(b)}
	}
	*c = cp
	return nil
}

// UnknownCheckpointError reports a split key that names no checkpoint.
type UnknownCheckpointError struct {
	Name string
}

func (e *UnknownCheckpointError) Error() string {
	return "unknown checkpoint: " + e.Name
}
