// Package repository defines the scoring persistence interfaces and their
// in-memory and SQL implementations.
package repository

import (
	"context"
	"time"

	"github.com/okian/racescore/internal/domain/breakdown"
	"github.com/okian/racescore/internal/domain/model"
	"github.com/okian/racescore/internal/domain/rules"
)

// ScoredRow is one persisted (game, athlete) result. Placement is 0 for
// athletes without a valid finish time; their breakdown is zero. Position is
// the 1-based display order within the game, tie-breaks applied.
type ScoredRow struct {
	GameID         model.GameID
	AthleteID      model.AthleteID
	Position       int
	Placement      int
	FinishMs       int64
	GapMs          int64
	TotalPoints    int
	Breakdown      breakdown.Breakdown
	RuleSetVersion int
	RunID          string
	ScoredAt       time.Time
}

// Ranked reports whether the row has a placement.
func (r ScoredRow) Ranked() bool { return r.Placement > 0 }

// ResultSource supplies the raw inputs of a scoring run.
type ResultSource interface {
	// Game returns ErrGameNotFound for unknown ids.
	Game(ctx context.Context, id model.GameID) (model.Game, error)
	// Results returns every input row of the game, ordered by athlete id.
	Results(ctx context.Context, id model.GameID) ([]model.RaceResultInput, error)
}

// RuleSetStore persists published rule sets.
type RuleSetStore interface {
	// RuleSet returns ErrRuleSetNotFound for unknown versions.
	RuleSet(ctx context.Context, version int) (*rules.RuleSet, error)
	// RuleSets lists every published version ascending.
	RuleSets(ctx context.Context) ([]*rules.RuleSet, error)
	// PublishRuleSet stores rs once. Identical republishing is a no-op;
	// different content returns ErrRuleSetConflict.
	PublishRuleSet(ctx context.Context, rs *rules.RuleSet) error
}

// ResultSink receives scoring output.
type ResultSink interface {
	// ReplaceScores atomically swaps every scored row of a game for rows.
	ReplaceScores(ctx context.Context, id model.GameID, rows []ScoredRow) error
	// Scores returns the persisted rows in Position order.
	Scores(ctx context.Context, id model.GameID) ([]ScoredRow, error)
}

// InputWriter records games and raw results. Used by seeding and tests; the
// live results feed is an external collaborator.
type InputWriter interface {
	PutGame(ctx context.Context, g model.Game) error
	PutResults(ctx context.Context, rows []model.RaceResultInput) error
}

// Store is the full persistence surface.
type Store interface {
	ResultSource
	RuleSetStore
	ResultSink
	InputWriter
	Close() error
}
