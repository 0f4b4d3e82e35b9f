package bootstrap_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/racescore/internal/adapters/notify"
	"github.com/okian/racescore/internal/adapters/repository"
	"github.com/okian/racescore/internal/bootstrap"
	"github.com/okian/racescore/internal/config"
	"github.com/okian/racescore/internal/domain/model"
	"github.com/okian/racescore/pkg/logger"
)

func init() {
	_ = logger.Init(logger.WithOutput(io.Discard))
}

func TestOpenStore(t *testing.T) {
	Convey("Given the memory driver", t, func() {
		store, err := bootstrap.OpenStore(context.Background(), config.New())
		So(err, ShouldBeNil)
		defer store.Close()

		Convey("Then an in-memory store is returned", func() {
			_, ok := store.(*repository.MemoryStore)
			So(ok, ShouldBeTrue)
		})
	})

	Convey("Given an in-memory sqlite database", t, func() {
		cfg := config.New()
		cfg.StorageDriver = config.DriverSQLite
		cfg.StorageDSN = ":memory:"

		store, err := bootstrap.OpenStore(context.Background(), cfg)
		So(err, ShouldBeNil)
		defer store.Close()

		Convey("Then the schema is ready to use", func() {
			ctx := context.Background()
			So(store.PutGame(ctx, model.Game{ID: "g", RaceID: "r"}), ShouldBeNil)
			g, err := store.Game(ctx, "g")
			So(err, ShouldBeNil)
			So(g.RaceID, ShouldEqual, model.RaceID("r"))
		})
	})

	Convey("Given an unknown driver", t, func() {
		cfg := config.New()
		cfg.StorageDriver = "mongo"

		_, err := bootstrap.OpenStore(context.Background(), cfg)
		So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)
	})
}

func TestNewService(t *testing.T) {
	Convey("Given a config with an unknown lock mode", t, func() {
		cfg := config.New()
		cfg.LockMode = "spin"

		_, err := bootstrap.NewService(cfg, repository.NewMemoryStore(), nil)
		So(errors.Is(err, bootstrap.ErrLockMode), ShouldBeTrue)
	})

	Convey("Given a service wired to the event bus", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cfg := config.New()
		cfg.WorkerCount = 1
		cfg.NotifyTopic = "scores"
		events := bootstrap.NewEvents(cfg)
		defer events.Close()

		msgs, err := events.PubSub.Subscribe(ctx, "scores")
		So(err, ShouldBeNil)

		store := repository.NewMemoryStore()
		So(store.PutGame(ctx, model.Game{ID: "g", RaceID: "r"}), ShouldBeNil)
		So(store.PutResults(ctx, []model.RaceResultInput{{GameID: "g", AthleteID: "a", FinishTime: "2:10:00"}}), ShouldBeNil)

		svc, err := bootstrap.NewService(cfg, store, events)
		So(err, ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		report, err := svc.ScoreNow(ctx, "g", "r", 0)
		So(err, ShouldBeNil)

		Convey("Then a game scored event reaches the configured topic", func() {
			var msg *message.Message
			select {
			case msg = <-msgs:
			case <-time.After(time.Second):
			}
			So(msg, ShouldNotBeNil)
			msg.Ack()
			ev, err := notify.Decode(msg)
			So(err, ShouldBeNil)
			So(ev.RunID, ShouldEqual, report.RunID)
			So(ev.Finishers, ShouldEqual, 1)
		})
	})
}

func TestLogScoredGames(t *testing.T) {
	Convey("Given an event logger on the bus", t, func() {
		cfg := config.New()
		events := bootstrap.NewEvents(cfg)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- bootstrap.LogScoredGames(ctx, events.PubSub, cfg.NotifyTopic) }()

		Convey("Then it consumes events and stops with its context", func() {
			// give the subscription a moment to register
			time.Sleep(20 * time.Millisecond)
			So(events.Publisher.GameScored(ctx, notify.GameScored{RunID: "run-1", GameID: "g"}), ShouldBeNil)

			cancel()
			select {
			case err := <-done:
				So(err, ShouldBeNil)
			case <-time.After(time.Second):
				So("logger did not stop", ShouldBeEmpty)
			}
			So(events.Close(), ShouldBeNil)
		})
	})
}
