package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/okian/racescore/internal/adapters/repository"
)

var scoringTables = []interface{}{
	(*repository.GameModel)(nil),
	(*repository.RaceResultModel)(nil),
	(*repository.RuleSetModel)(nil),
	(*repository.ScoredResultModel)(nil),
}

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			for _, m := range scoringTables {
				if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
					return fmt.Errorf("create %T: %w", m, err)
				}
			}
			return nil
		},
		func(ctx context.Context, db *bun.DB) error {
			for i := len(scoringTables) - 1; i >= 0; i-- {
				if _, err := db.NewDropTable().Model(scoringTables[i]).IfExists().Exec(ctx); err != nil {
					return fmt.Errorf("drop %T: %w", scoringTables[i], err)
				}
			}
			return nil
		},
	)
}
