package seed_test

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/racescore/internal/adapters/http/api"
	"github.com/okian/racescore/internal/adapters/repository"
	service "github.com/okian/racescore/internal/app"
	"github.com/okian/racescore/internal/domain/model"
	"github.com/okian/racescore/internal/seed"
)

func TestDrive(t *testing.T) {
	Convey("Given three seeded games behind a live server", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		gen := seed.NewGenerator(11)

		var games []seed.Game
		for i := 1; i <= 3; i++ {
			cfg := seed.DefaultConfig()
			cfg.GameID = model.GameID(fmt.Sprintf("g%d", i))
			cfg.Athletes = 25
			g, err := gen.Generate(cfg)
			So(err, ShouldBeNil)
			So(seed.Load(ctx, store, g), ShouldBeNil)
			games = append(games, g)
		}

		svc := service.New(store, service.WithWorkerCount(2))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		srv := httptest.NewServer(api.NewServer(svc).Handler(ctx))
		defer srv.Close()

		Convey("When every game is scored three times by four workers", func() {
			stats, err := seed.Drive(ctx, seed.DriveConfig{
				BaseURL: srv.URL,
				Rounds:  3,
				Workers: 4,
				Timeout: 5 * time.Second,
			}, games)

			Convey("Then each request scores and every game verifies", func() {
				So(err, ShouldBeNil)
				So(stats.Requests, ShouldEqual, 9)
				So(stats.Scored, ShouldEqual, 9)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Verified, ShouldEqual, 3)
			})
		})

		Convey("When the config has no workers", func() {
			_, err := seed.Drive(ctx, seed.DriveConfig{BaseURL: srv.URL, Rounds: 1}, games)
			So(errors.Is(err, seed.ErrInvalidConfig), ShouldBeTrue)
		})
	})

	Convey("Given no server", t, func() {
		srv := httptest.NewServer(nil)
		url := srv.URL
		srv.Close()

		_, err := seed.Drive(context.Background(), seed.DriveConfig{BaseURL: url, Rounds: 1, Workers: 1, Timeout: time.Second}, nil)
		So(err, ShouldNotBeNil)
	})
}
