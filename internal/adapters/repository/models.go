package repository

import (
	"time"

	"github.com/uptrace/bun"
)

// GameModel is a fantasy game bound to one race.
type GameModel struct {
	bun.BaseModel `bun:"table:games,alias:g"`
	ID            string    `bun:"id,pk,type:varchar(64)"`
	RaceID        string    `bun:"race_id,notnull,type:varchar(64)"`
	Name          string    `bun:"name,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// RaceResultModel is one raw result row as received from commissioners or
// the results feed. Times stay as text; the engine normalizes them.
type RaceResultModel struct {
	bun.BaseModel `bun:"table:race_results,alias:rr"`
	GameID        string            `bun:"game_id,pk,type:varchar(64)"`
	AthleteID     string            `bun:"athlete_id,pk,type:varchar(64)"`
	FinishTime    string            `bun:"finish_time,notnull"`
	Splits        map[string]string `bun:"splits,type:text"`
	TieBreak      int               `bun:"tie_break,notnull,default:0"`
	UpdatedAt     time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// RuleSetModel stores a published rule set as its JSON document.
type RuleSetModel struct {
	bun.BaseModel `bun:"table:rule_sets,alias:rs"`
	Version       int       `bun:"version,pk"`
	Name          string    `bun:"name,notnull"`
	Document      string    `bun:"document,notnull,type:text"`
	PublishedAt   time.Time `bun:"published_at,nullzero,notnull,default:current_timestamp"`
}

// ScoredResultModel is the engine output for one (game, athlete). Breakdown
// holds the exact JSON bytes produced by the engine.
type ScoredResultModel struct {
	bun.BaseModel  `bun:"table:scored_results,alias:sr"`
	GameID         string    `bun:"game_id,pk,type:varchar(64)"`
	AthleteID      string    `bun:"athlete_id,pk,type:varchar(64)"`
	Position       int       `bun:"position,notnull"`
	Placement      *int      `bun:"placement"`
	FinishMs       *int64    `bun:"finish_ms"`
	GapMs          *int64    `bun:"gap_ms"`
	TotalPoints    int       `bun:"total_points,notnull"`
	Breakdown      string    `bun:"breakdown,notnull,type:text"`
	RuleSetVersion int       `bun:"rule_set_version,notnull"`
	RunID          string    `bun:"run_id,notnull,type:varchar(36)"`
	ScoredAt       time.Time `bun:"scored_at,notnull"`
}
