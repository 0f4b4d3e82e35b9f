package repository

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/okian/racescore/internal/domain/model"
	"github.com/okian/racescore/internal/domain/rules"
)

// MemoryStore keeps everything in process. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	games    map[model.GameID]model.Game
	results  map[model.GameID]map[model.AthleteID]model.RaceResultInput
	ruleSets map[int]*rules.RuleSet
	scores   map[model.GameID][]ScoredRow
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:    make(map[model.GameID]model.Game),
		results:  make(map[model.GameID]map[model.AthleteID]model.RaceResultInput),
		ruleSets: make(map[int]*rules.RuleSet),
		scores:   make(map[model.GameID][]ScoredRow),
	}
}

func (s *MemoryStore) Game(_ context.Context, id model.GameID) (model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	if !ok {
		return model.Game{}, fmt.Errorf("%w: %s", ErrGameNotFound, id)
	}
	return g, nil
}

func (s *MemoryStore) Results(_ context.Context, id model.GameID) ([]model.RaceResultInput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byAthlete := s.results[id]
	out := make([]model.RaceResultInput, 0, len(byAthlete))
	for _, athlete := range slices.Sorted(maps.Keys(byAthlete)) {
		out = append(out, cloneInput(byAthlete[athlete]))
	}
	return out, nil
}

func (s *MemoryStore) RuleSet(_ context.Context, version int) (*rules.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.ruleSets[version]
	if !ok {
		return nil, fmt.Errorf("%w: v%d", ErrRuleSetNotFound, version)
	}
	return rs, nil
}

func (s *MemoryStore) RuleSets(_ context.Context) ([]*rules.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*rules.RuleSet, 0, len(s.ruleSets))
	for _, v := range slices.Sorted(maps.Keys(s.ruleSets)) {
		out = append(out, s.ruleSets[v])
	}
	return out, nil
}

func (s *MemoryStore) PublishRuleSet(_ context.Context, rs *rules.RuleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.ruleSets[rs.Version()]; ok {
		if cur.Equal(rs) {
			return nil
		}
		return fmt.Errorf("%w: v%d", ErrRuleSetConflict, rs.Version())
	}
	s.ruleSets[rs.Version()] = rs
	return nil
}

func (s *MemoryStore) ReplaceScores(_ context.Context, id model.GameID, rows []ScoredRow) error {
	for _, r := range rows {
		if r.GameID != id {
			return fmt.Errorf("repository.ReplaceScores: row for game %s in batch for %s", r.GameID, id)
		}
	}
	cp := slices.Clone(rows)
	sortRows(cp)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[id] = cp
	return nil
}

func (s *MemoryStore) Scores(_ context.Context, id model.GameID) ([]ScoredRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.scores[id]
	if rows == nil {
		return []ScoredRow{}, nil
	}
	return slices.Clone(rows), nil
}

func (s *MemoryStore) PutGame(_ context.Context, g model.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.ID] = g
	return nil
}

func (s *MemoryStore) PutResults(_ context.Context, rows []model.RaceResultInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		if _, ok := s.games[r.GameID]; !ok {
			return fmt.Errorf("repository.PutResults: %w: %s", ErrGameNotFound, r.GameID)
		}
	}
	for _, r := range rows {
		byAthlete, ok := s.results[r.GameID]
		if !ok {
			byAthlete = make(map[model.AthleteID]model.RaceResultInput)
			s.results[r.GameID] = byAthlete
		}
		byAthlete[r.AthleteID] = cloneInput(r)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneInput(in model.RaceResultInput) model.RaceResultInput {
	in.Splits = maps.Clone(in.Splits)
	return in
}

// sortRows orders rows by Position, falling back to athlete id.
func sortRows(rows []ScoredRow) {
	slices.SortFunc(rows, func(a, b ScoredRow) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.AthleteID, b.AthleteID)
	})
}
