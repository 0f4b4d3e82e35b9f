// Command racescore is the operator tool: schema migrations, synthetic
// games, one-shot scoring and result inspection against the configured store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/okian/racescore/internal/adapters/repository"
	"github.com/okian/racescore/internal/adapters/repository/migrations"
	service "github.com/okian/racescore/internal/app"
	"github.com/okian/racescore/internal/bootstrap"
	"github.com/okian/racescore/internal/config"
	"github.com/okian/racescore/internal/domain/clock"
	"github.com/okian/racescore/internal/domain/model"
	"github.com/okian/racescore/internal/domain/rules"
	"github.com/okian/racescore/internal/seed"
	"github.com/okian/racescore/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		os.Stderr.WriteString("racescore: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "racescore",
		Usage:     "fantasy marathon scoring engine tools",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML config file", EnvVars: []string{"RACESCORE_CONFIG"}},
			&cli.StringFlag{Name: "driver", Usage: "storage driver override (memory, postgres, sqlite)"},
			&cli.StringFlag{Name: "dsn", Usage: "storage DSN override"},
			&cli.StringFlag{Name: "log-level", Value: "warn"},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			seedCommand(),
			driveCommand(),
			scoreCommand(),
			resultsCommand(),
			ruleSetsCommand(),
			parseCommand(),
		},
	}
}

// loadConfig applies the global flags on top of the layered config.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		if err := os.Setenv("RACESCORE_CONFIG", path); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(c.Context)
	if err != nil {
		return nil, err
	}
	if d := c.String("driver"); d != "" {
		cfg.StorageDriver = d
	}
	if dsn := c.String("dsn"); dsn != "" {
		cfg.StorageDSN = dsn
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logger.Init(logger.WithOutput(c.App.ErrWriter), logger.WithFormat(cfg.LogFormat), logger.WithSource(false)); err != nil {
		return nil, err
	}
	if err := logger.SetLevelString(c.String("log-level")); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withService opens the store, starts a service over it and hands both to fn.
func withService(c *cli.Context, fn func(*service.Service, repository.Store) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := bootstrap.OpenStore(c.Context, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := bootstrap.NewService(cfg, store, nil, service.WithWorkerCount(1))
	if err != nil {
		return err
	}
	if err := svc.Start(c.Context); err != nil {
		return err
	}
	defer func() { _ = svc.Stop(context.WithoutCancel(c.Context)) }()
	return fn(svc, store)
}

func migrateCommand() *cli.Command {
	withDB := func(fn func(c *cli.Context, store *repository.BunStore) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if cfg.StorageDriver == config.DriverMemory {
				return fmt.Errorf("migrate: the %s driver has no schema", cfg.StorageDriver)
			}
			db, err := repository.OpenDB(cfg.StorageDriver, cfg.StorageDSN)
			if err != nil {
				return err
			}
			store := repository.NewBunStore(db)
			defer store.Close()
			return fn(c, store)
		}
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Action: withDB(func(c *cli.Context, store *repository.BunStore) error {
					group, err := migrations.Up(c.Context, store.DB())
					if err != nil {
						return err
					}
					if group.IsZero() {
						fmt.Fprintln(c.App.Writer, "no new migrations to run")
						return nil
					}
					fmt.Fprintf(c.App.Writer, "migrated to %s\n", group)
					return nil
				}),
			},
			{
				Name:  "down",
				Usage: "roll back the last migration group",
				Action: withDB(func(c *cli.Context, store *repository.BunStore) error {
					group, err := migrations.Down(c.Context, store.DB())
					if err != nil {
						return err
					}
					if group.IsZero() {
						fmt.Fprintln(c.App.Writer, "no groups to roll back")
						return nil
					}
					fmt.Fprintf(c.App.Writer, "rolled back %s\n", group)
					return nil
				}),
			},
			{
				Name:  "status",
				Usage: "print migration status",
				Action: withDB(func(c *cli.Context, store *repository.BunStore) error {
					ms, err := migrations.Status(c.Context, store.DB())
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "applied: %s\n", ms.Applied())
					fmt.Fprintf(c.App.Writer, "unapplied: %s\n", ms.Unapplied())
					return nil
				}),
			},
		},
	}
}

func seedCommand() *cli.Command {
	def := seed.DefaultConfig()
	return &cli.Command{
		Name:  "seed",
		Usage: "generate a synthetic game and store its results",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "game", Value: string(def.GameID)},
			&cli.StringFlag{Name: "race", Value: string(def.RaceID)},
			&cli.StringFlag{Name: "name"},
			&cli.IntFlag{Name: "athletes", Value: def.Athletes},
			&cli.Float64Flag{Name: "dnf-rate", Value: def.DNFRate},
			&cli.Float64Flag{Name: "split-rate", Value: def.SplitRate},
			&cli.Uint64Flag{Name: "seed", Usage: "0 picks a random field"},
			&cli.BoolFlag{Name: "score", Usage: "score the game right away and verify the results"},
			&cli.IntFlag{Name: "rule-set", Usage: "rule set version for --score; 0 uses the default"},
		},
		Action: func(c *cli.Context) error {
			cfg := seed.Config{
				GameID:    model.GameID(c.String("game")),
				RaceID:    model.RaceID(c.String("race")),
				Name:      c.String("name"),
				Athletes:  c.Int("athletes"),
				DNFRate:   c.Float64("dnf-rate"),
				SplitRate: c.Float64("split-rate"),
				Seed:      c.Uint64("seed"),
			}
			game, err := seed.NewGenerator(cfg.Seed).Generate(cfg)
			if err != nil {
				return err
			}

			return withService(c, func(svc *service.Service, store repository.Store) error {
				if err := seed.Load(c.Context, store, game); err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "seeded %s (%s) with %d athletes\n", game.Game.ID, game.Game.RaceID, len(game.Results))
				if !c.Bool("score") {
					return nil
				}

				report, err := svc.ScoreNow(c.Context, game.Game.ID, game.Game.RaceID, c.Int("rule-set"))
				if err != nil {
					return err
				}
				printReport(c.App.Writer, report)
				printRows(c.App.Writer, report.Rows)
				return seed.Verify(game, report.Rows)
			})
		},
	}
}

func driveCommand() *cli.Command {
	return &cli.Command{
		Name:  "drive",
		Usage: "seed games into the shared store and score them concurrently through a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:9080"},
			&cli.IntFlag{Name: "games", Value: 10},
			&cli.IntFlag{Name: "athletes", Value: 100},
			&cli.IntFlag{Name: "rounds", Value: 5, Usage: "score requests per game"},
			&cli.IntFlag{Name: "workers", Value: 8},
			&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second},
			&cli.IntFlag{Name: "rule-set", Usage: "0 uses the server default"},
			&cli.Uint64Flag{Name: "seed"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if cfg.StorageDriver == config.DriverMemory {
				return fmt.Errorf("drive: the server cannot see a %s store; use postgres or sqlite", cfg.StorageDriver)
			}
			store, err := bootstrap.OpenStore(c.Context, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			gen := seed.NewGenerator(c.Uint64("seed"))
			games := make([]seed.Game, 0, c.Int("games"))
			for i := 1; i <= c.Int("games"); i++ {
				sc := seed.DefaultConfig()
				sc.GameID = model.GameID(fmt.Sprintf("drive-%d", i))
				sc.RaceID = model.RaceID(fmt.Sprintf("drive-race-%d", i))
				sc.Athletes = c.Int("athletes")
				game, err := gen.Generate(sc)
				if err != nil {
					return err
				}
				if err := seed.Load(c.Context, store, game); err != nil {
					return err
				}
				games = append(games, game)
			}

			stats, err := seed.Drive(c.Context, seed.DriveConfig{
				BaseURL:        c.String("url"),
				Rounds:         c.Int("rounds"),
				Workers:        c.Int("workers"),
				Timeout:        c.Duration("timeout"),
				RuleSetVersion: c.Int("rule-set"),
			}, games)
			fmt.Fprintf(c.App.Writer, "requests=%d scored=%d busy=%d throttled=%d failed=%d verified=%d/%d in %s\n",
				stats.Requests, stats.Scored, stats.Busy, stats.Throttled, stats.Failed, stats.Verified, len(games), stats.Duration)
			return err
		},
	}
}

func scoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "score",
		Usage:     "score a game once and print its results",
		ArgsUsage: "GAME_ID RACE_ID",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "rule-set", Usage: "rule set version; 0 uses the default"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("score: want GAME_ID RACE_ID, got %d arguments", c.NArg())
			}
			gameID, raceID := model.GameID(c.Args().Get(0)), model.RaceID(c.Args().Get(1))
			return withService(c, func(svc *service.Service, _ repository.Store) error {
				report, err := svc.ScoreNow(c.Context, gameID, raceID, c.Int("rule-set"))
				if err != nil {
					return err
				}
				printReport(c.App.Writer, report)
				printRows(c.App.Writer, report.Rows)
				return nil
			})
		},
	}
}

func resultsCommand() *cli.Command {
	return &cli.Command{
		Name:      "results",
		Usage:     "print the persisted results of a game",
		ArgsUsage: "GAME_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("results: want GAME_ID, got %d arguments", c.NArg())
			}
			return withService(c, func(svc *service.Service, _ repository.Store) error {
				rows, err := svc.Results(c.Context, model.GameID(c.Args().First()))
				if err != nil {
					return err
				}
				printRows(c.App.Writer, rows)
				return nil
			})
		},
	}
}

func ruleSetsCommand() *cli.Command {
	return &cli.Command{
		Name:  "rulesets",
		Usage: "print every published rule set as YAML",
		Action: func(c *cli.Context) error {
			return withService(c, func(svc *service.Service, _ repository.Store) error {
				sets, err := svc.RuleSets(c.Context)
				if err != nil {
					return err
				}
				return rules.Encode(c.App.Writer, sets...)
			})
		},
	}
}

func parseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "normalize race clock strings",
		ArgsUsage: "TIME...",
		Action: func(c *cli.Context) error {
			tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "INPUT\tMILLIS\tCANONICAL\tDISPLAY")
			for _, raw := range c.Args().Slice() {
				t := clock.Parse(raw)
				ms, ok := t.Millis()
				if !ok {
					fmt.Fprintf(tw, "%q\t-\t-\t-\n", raw)
					continue
				}
				fmt.Fprintf(tw, "%q\t%d\t%s\t%s\n", raw, ms, clock.Format(t), clock.RoundToDisplaySecond(ms))
			}
			return tw.Flush()
		},
	}
}

func printReport(w io.Writer, r service.Report) {
	fmt.Fprintf(w, "run %s: game %s scored under rule set %d, %d finishers of %d athletes in %s\n",
		r.RunID, r.GameID, r.RuleSetVersion, r.Finishers, len(r.Rows), r.Duration)
}

func printRows(w io.Writer, rows []repository.ScoredRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tPLACE\tATHLETE\tFINISH\tGAP\tPOINTS\tBREAKDOWN")
	for _, r := range rows {
		place, finish, gap := "-", "-", "-"
		if r.Ranked() {
			place = fmt.Sprint(r.Placement)
			finish = clock.Format(clock.FromMillis(r.FinishMs))
			gap = clock.FormatGap(r.GapMs)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.Position, place, r.AthleteID, finish, gap, r.TotalPoints, strings.TrimSpace(r.Breakdown.String()))
	}
	_ = tw.Flush()
}
