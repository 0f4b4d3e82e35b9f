package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/okian/racescore/internal/adapters/repository"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.NewCreateIndex().
				Model((*repository.ScoredResultModel)(nil)).
				Index("scored_results_game_position_idx").
				Column("game_id", "position").
				IfNotExists().
				Exec(ctx)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.NewDropIndex().
				Model((*repository.ScoredResultModel)(nil)).
				Index("scored_results_game_position_idx").
				IfExists().
				Exec(ctx)
			return err
		},
	)
}
