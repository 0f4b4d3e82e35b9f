// Package seed generates synthetic marathon fields for local runs and load
// tests, and sanity-checks the results the engine scores for them.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/okian/racescore/internal/adapters/repository"
	"github.com/okian/racescore/internal/domain/clock"
	"github.com/okian/racescore/internal/domain/model"
	"github.com/okian/racescore/pkg/logger"
)

// Field shape. Elite men finish around 2:03 to 2:10; the tail runs to 3:30.
const (
	fastestFinishMs = 2*hourMs + 3*minuteMs
	slowestFinishMs = 3*hourMs + 30*minuteMs
	hourMs          = int64(time.Hour / time.Millisecond)
	minuteMs        = int64(time.Minute / time.Millisecond)

	// pace drift per checkpoint, in basis points of the even pace
	maxDriftBps = 600
)

// Config describes one synthetic game.
type Config struct {
	GameID   model.GameID
	RaceID   model.RaceID
	Name     string
	Athletes int
	// DNFRate is the share of athletes without a finish, 0..1.
	DNFRate float64
	// SplitRate is the share of checkpoints each finisher reports, 0..1.
	SplitRate float64
	Seed      uint64
}

// DefaultConfig is a 50-athlete field with realistic gaps.
func DefaultConfig() Config {
	return Config{
		GameID:    "demo",
		RaceID:    "demo-marathon",
		Athletes:  50,
		DNFRate:   0.06,
		SplitRate: 0.8,
	}
}

// Game is a generated game with its raw result rows.
type Game struct {
	Game    model.Game
	Results []model.RaceResultInput
}

// Generator builds synthetic games. A fixed seed yields the same field.
type Generator struct {
	faker *gofakeit.Faker
}

// NewGenerator creates a generator. A zero seed picks one from the clock.
func NewGenerator(seed uint64) *Generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{faker: gofakeit.New(seed)}
}

// Generate builds a game per cfg.
func (g *Generator) Generate(cfg Config) (Game, error) {
	if cfg.GameID == "" || cfg.RaceID == "" {
		return Game{}, fmt.Errorf("%w: game and race ids are required", ErrInvalidConfig)
	}
	if cfg.Athletes < 0 {
		return Game{}, fmt.Errorf("%w: athletes must not be negative", ErrInvalidConfig)
	}
	if cfg.DNFRate < 0 || cfg.DNFRate > 1 || cfg.SplitRate < 0 || cfg.SplitRate > 1 {
		return Game{}, fmt.Errorf("%w: rates must be within 0..1", ErrInvalidConfig)
	}

	name := cfg.Name
	if name == "" {
		name = g.faker.City() + " fantasy league"
	}
	out := Game{
		Game:    model.Game{ID: cfg.GameID, RaceID: cfg.RaceID, Name: name},
		Results: make([]model.RaceResultInput, 0, cfg.Athletes),
	}

	seen := make(map[model.AthleteID]struct{}, cfg.Athletes)
	for i := 0; i < cfg.Athletes; i++ {
		id := g.athleteID(i, seen)
		out.Results = append(out.Results, g.result(cfg, id))
	}
	return out, nil
}

func (g *Generator) athleteID(i int, seen map[model.AthleteID]struct{}) model.AthleteID {
	base := strings.ToLower(g.faker.LastName())
	id := model.AthleteID(fmt.Sprintf("%s-%03d", base, i+1))
	for {
		if _, dup := seen[id]; !dup {
			break
		}
		id = model.AthleteID(fmt.Sprintf("%s-%s", id, g.faker.Numerify("###")))
	}
	seen[id] = struct{}{}
	return id
}

func (g *Generator) result(cfg Config, id model.AthleteID) model.RaceResultInput {
	in := model.RaceResultInput{GameID: cfg.GameID, AthleteID: id}

	if g.faker.Float64Range(0, 1) < cfg.DNFRate {
		in.FinishTime = g.faker.RandomString([]string{"DNF", "DNS"})
		return in
	}

	// finishes are drawn on a 10ms grid so some athletes share a time
	finish := int64(g.faker.Number(int(fastestFinishMs/10), int(slowestFinishMs/10))) * 10
	in.FinishTime = clock.Format(clock.FromMillis(finish))

	// A drift above zero means the athlete slowed down over the course.
	drift := int64(g.faker.Number(-maxDriftBps, maxDriftBps))
	splits := make(map[model.Checkpoint]string)
	for _, cp := range model.Checkpoints() {
		if g.faker.Float64Range(0, 1) >= cfg.SplitRate {
			continue
		}
		splits[cp] = clock.Format(clock.FromMillis(splitAt(finish, cp, drift)))
	}
	if len(splits) > 0 {
		in.Splits = splits
	}
	return in
}

// splitAt places a checkpoint on an even pace bent by driftBps. Positive
// drift puts the athlete ahead of even pace early, which is a positive split.
func splitAt(finishMs int64, cp model.Checkpoint, driftBps int64) int64 {
	even := finishMs * cp.Decimeters() / model.MarathonDecimeters
	bent := even * (10_000 - driftBps) / 10_000
	if bent >= finishMs {
		bent = finishMs - 1
	}
	return bent
}

// Load writes the game and its results to store.
func Load(ctx context.Context, store repository.Store, game Game) error {
	if err := store.PutGame(ctx, game.Game); err != nil {
		return fmt.Errorf("seed.Load: game: %w", err)
	}
	if err := store.PutResults(ctx, game.Results); err != nil {
		return fmt.Errorf("seed.Load: results: %w", err)
	}
	logger.Get().Info(ctx, "seeded game",
		logger.String("game_id", string(game.Game.ID)),
		logger.String("race_id", string(game.Game.RaceID)),
		logger.Int("athletes", len(game.Results)),
	)
	return nil
}
