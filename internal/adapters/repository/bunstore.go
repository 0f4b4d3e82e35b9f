package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/okian/racescore/internal/domain/breakdown"
	"github.com/okian/racescore/internal/domain/model"
	"github.com/okian/racescore/internal/domain/rules"
)

// Storage drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// BunStore implements Store on a SQL database through bun.
type BunStore struct {
	db *bun.DB
}

var _ Store = (*BunStore)(nil)

// NewBunStore wraps an open bun handle.
func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

// OpenDB opens a bun handle for a SQL driver.
func OpenDB(driver, dsn string) (*bun.DB, error) {
	switch driver {
	case DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		return bun.NewDB(sqldb, pgdialect.New()), nil
	case DriverSQLite:
		sqldb, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("repository.OpenDB: %w", err)
		}
		// one connection so ":memory:" databases are shared by every query
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// Open returns the Store for driver. The memory driver ignores dsn.
func Open(driver, dsn string) (Store, error) {
	if driver == DriverMemory {
		return NewMemoryStore(), nil
	}
	db, err := OpenDB(driver, dsn)
	if err != nil {
		return nil, err
	}
	return NewBunStore(db), nil
}

// DB exposes the underlying handle for migrations.
func (s *BunStore) DB() *bun.DB { return s.db }

func (s *BunStore) Close() error { return s.db.Close() }

func (s *BunStore) Game(ctx context.Context, id model.GameID) (model.Game, error) {
	var g GameModel
	err := s.db.NewSelect().Model(&g).Where("id = ?", string(id)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Game{}, fmt.Errorf("%w: %s", ErrGameNotFound, id)
	}
	if err != nil {
		return model.Game{}, fmt.Errorf("repository.Game: %w", err)
	}
	return model.Game{ID: model.GameID(g.ID), RaceID: model.RaceID(g.RaceID), Name: g.Name}, nil
}

func (s *BunStore) Results(ctx context.Context, id model.GameID) ([]model.RaceResultInput, error) {
	var rows []RaceResultModel
	err := s.db.NewSelect().Model(&rows).
		Where("game_id = ?", string(id)).
		Order("athlete_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository.Results: %w", err)
	}
	out := make([]model.RaceResultInput, 0, len(rows))
	for _, r := range rows {
		in, err := toInput(r)
		if err != nil {
			return nil, fmt.Errorf("repository.Results: %w", err)
		}
		out = append(out, in)
	}
	return out, nil
}

func (s *BunStore) RuleSet(ctx context.Context, version int) (*rules.RuleSet, error) {
	var m RuleSetModel
	err := s.db.NewSelect().Model(&m).Where("version = ?", version).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: v%d", ErrRuleSetNotFound, version)
	}
	if err != nil {
		return nil, fmt.Errorf("repository.RuleSet: %w", err)
	}
	return toRuleSet(m)
}

func (s *BunStore) RuleSets(ctx context.Context) ([]*rules.RuleSet, error) {
	var ms []RuleSetModel
	if err := s.db.NewSelect().Model(&ms).Order("version ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("repository.RuleSets: %w", err)
	}
	out := make([]*rules.RuleSet, 0, len(ms))
	for _, m := range ms {
		rs, err := toRuleSet(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, nil
}

func (s *BunStore) PublishRuleSet(ctx context.Context, rs *rules.RuleSet) error {
	doc, err := json.Marshal(rs.Document())
	if err != nil {
		return fmt.Errorf("repository.PublishRuleSet: %w", err)
	}
	m := &RuleSetModel{Version: rs.Version(), Name: rs.Name(), Document: string(doc)}
	if _, err := s.db.NewInsert().Model(m).On("CONFLICT (version) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("repository.PublishRuleSet: %w", err)
	}
	stored, err := s.RuleSet(ctx, rs.Version())
	if err != nil {
		return err
	}
	if !stored.Equal(rs) {
		return fmt.Errorf("%w: v%d", ErrRuleSetConflict, rs.Version())
	}
	return nil
}

// ReplaceScores deletes and reinserts the game's rows in one transaction, so
// readers see either the previous run or this one.
func (s *BunStore) ReplaceScores(ctx context.Context, id model.GameID, rows []ScoredRow) error {
	models := make([]ScoredResultModel, 0, len(rows))
	for _, r := range rows {
		if r.GameID != id {
			return fmt.Errorf("repository.ReplaceScores: row for game %s in batch for %s", r.GameID, id)
		}
		m, err := toScoredModel(r)
		if err != nil {
			return fmt.Errorf("repository.ReplaceScores: %w", err)
		}
		models = append(models, m)
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*ScoredResultModel)(nil)).Where("game_id = ?", string(id)).Exec(ctx); err != nil {
			return fmt.Errorf("repository.ReplaceScores: delete: %w", err)
		}
		if len(models) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&models).Exec(ctx); err != nil {
			return fmt.Errorf("repository.ReplaceScores: insert: %w", err)
		}
		return nil
	})
}

func (s *BunStore) Scores(ctx context.Context, id model.GameID) ([]ScoredRow, error) {
	var ms []ScoredResultModel
	err := s.db.NewSelect().Model(&ms).
		Where("game_id = ?", string(id)).
		Order("position ASC", "athlete_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository.Scores: %w", err)
	}
	out := make([]ScoredRow, 0, len(ms))
	for _, m := range ms {
		r, err := fromScoredModel(m)
		if err != nil {
			return nil, fmt.Errorf("repository.Scores: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *BunStore) PutGame(ctx context.Context, g model.Game) error {
	m := &GameModel{ID: string(g.ID), RaceID: string(g.RaceID), Name: g.Name}
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (id) DO UPDATE").
		Set("race_id = EXCLUDED.race_id").
		Set("name = EXCLUDED.name").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("repository.PutGame: %w", err)
	}
	return nil
}

func (s *BunStore) PutResults(ctx context.Context, rows []model.RaceResultInput) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]RaceResultModel, 0, len(rows))
	for _, r := range rows {
		models = append(models, toResultModel(r))
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, gid := range distinctGames(rows) {
			n, err := tx.NewSelect().Model((*GameModel)(nil)).Where("id = ?", string(gid)).Count(ctx)
			if err != nil {
				return fmt.Errorf("repository.PutResults: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("repository.PutResults: %w: %s", ErrGameNotFound, gid)
			}
		}
		_, err := tx.NewInsert().Model(&models).
			On("CONFLICT (game_id, athlete_id) DO UPDATE").
			Set("finish_time = EXCLUDED.finish_time").
			Set("splits = EXCLUDED.splits").
			Set("tie_break = EXCLUDED.tie_break").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("repository.PutResults: %w", err)
		}
		return nil
	})
}

func distinctGames(rows []model.RaceResultInput) []model.GameID {
	seen := make(map[model.GameID]struct{}, 1)
	var out []model.GameID
	for _, r := range rows {
		if _, ok := seen[r.GameID]; !ok {
			seen[r.GameID] = struct{}{}
			out = append(out, r.GameID)
		}
	}
	return out
}

func toResultModel(in model.RaceResultInput) RaceResultModel {
	m := RaceResultModel{
		GameID:     string(in.GameID),
		AthleteID:  string(in.AthleteID),
		FinishTime: in.FinishTime,
		TieBreak:   in.TieBreak,
	}
	if len(in.Splits) > 0 {
		m.Splits = make(map[string]string, len(in.Splits))
		for cp, raw := range in.Splits {
			m.Splits[cp.String()] = raw
		}
	}
	return m
}

func toInput(m RaceResultModel) (model.RaceResultInput, error) {
	in := model.RaceResultInput{
		GameID:     model.GameID(m.GameID),
		AthleteID:  model.AthleteID(m.AthleteID),
		FinishTime: m.FinishTime,
		TieBreak:   m.TieBreak,
	}
	if len(m.Splits) > 0 {
		in.Splits = make(map[model.Checkpoint]string, len(m.Splits))
		for name, raw := range m.Splits {
			cp, ok := model.ParseCheckpoint(name)
			if !ok {
				return model.RaceResultInput{}, &model.UnknownCheckpointError{Name: name}
			}
			in.Splits[cp] = raw
		}
	}
	return in, nil
}

func toRuleSet(m RuleSetModel) (*rules.RuleSet, error) {
	var doc rules.Document
	if err := json.Unmarshal([]byte(m.Document), &doc); err != nil {
		return nil, fmt.Errorf("repository: rule set v%d: %w", m.Version, err)
	}
	return rules.New(doc)
}

func toScoredModel(r ScoredRow) (ScoredResultModel, error) {
	raw, err := json.Marshal(r.Breakdown)
	if err != nil {
		return ScoredResultModel{}, err
	}
	m := ScoredResultModel{
		GameID:         string(r.GameID),
		AthleteID:      string(r.AthleteID),
		Position:       r.Position,
		TotalPoints:    r.TotalPoints,
		Breakdown:      string(raw),
		RuleSetVersion: r.RuleSetVersion,
		RunID:          r.RunID,
		ScoredAt:       r.ScoredAt.UTC(),
	}
	if r.Ranked() {
		placement, finish, gap := r.Placement, r.FinishMs, r.GapMs
		m.Placement = &placement
		m.FinishMs = &finish
		m.GapMs = &gap
	}
	return m, nil
}

func fromScoredModel(m ScoredResultModel) (ScoredRow, error) {
	var b breakdown.Breakdown
	if err := json.Unmarshal([]byte(m.Breakdown), &b); err != nil {
		return ScoredRow{}, fmt.Errorf("athlete %s: %w", m.AthleteID, err)
	}
	r := ScoredRow{
		GameID:         model.GameID(m.GameID),
		AthleteID:      model.AthleteID(m.AthleteID),
		Position:       m.Position,
		TotalPoints:    m.TotalPoints,
		Breakdown:      b,
		RuleSetVersion: m.RuleSetVersion,
		RunID:          m.RunID,
		ScoredAt:       m.ScoredAt,
	}
	if m.Placement != nil {
		r.Placement = *m.Placement
	}
	if m.FinishMs != nil {
		r.FinishMs = *m.FinishMs
	}
	if m.GapMs != nil {
		r.GapMs = *m.GapMs
	}
	return r, nil
}
