package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/racescore/internal/app"
	"github.com/okian/racescore/internal/adapters/notify"
	"github.com/okian/racescore/internal/adapters/repository"
	"github.com/okian/racescore/internal/domain/model"
	"github.com/okian/racescore/internal/domain/rules"
	"github.com/okian/racescore/pkg/metrics"
)

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc := service.New(repository.NewMemoryStore(),
			service.WithWorkerCount(2),
			service.WithQueueSize(8),
		)

		Convey("When it has not been started", func() {
			_, err := svc.ScoreNow(ctx, gameID, raceID, 0)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.ScoreAsync(ctx, gameID, raceID, 0)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("When starting the service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			defer func() { _ = svc.Stop(ctx) }()

			Convey("Then it is running with the builtin rule sets published", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["workerCount"], ShouldEqual, 2)
				So(stats["ruleSetVersions"], ShouldResemble, []int{1, 2})

				sets, err := svc.RuleSets(ctx)
				So(err, ShouldBeNil)
				So(sets, ShouldHaveLength, 2)
			})

			Convey("Then starting again is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})
		})

		Convey("When stopping the service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it is marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(svc.Stop(ctx), ShouldBeNil)
			})
		})
	})
}

func TestService_RuleSetsFile(t *testing.T) {
	Convey("Given a rule sets file", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "rules.yaml")
		f, err := os.Create(path)
		So(err, ShouldBeNil)
		doc := rules.Builtin()[0].Document()
		doc.Version = 7
		doc.Name = "sprint-finish"
		So(rules.Encode(f, rules.MustNew(doc)), ShouldBeNil)
		So(f.Close(), ShouldBeNil)

		Convey("When the service starts with it", func() {
			svc := service.New(repository.NewMemoryStore(), service.WithRuleSetsFile(path))
			So(svc.Start(ctx), ShouldBeNil)
			defer func() { _ = svc.Stop(ctx) }()

			Convey("Then the extra version is published", func() {
				rs, err := svc.RuleSet(ctx, 7)
				So(err, ShouldBeNil)
				So(rs.Name(), ShouldEqual, "sprint-finish")
			})
		})

		Convey("When the file redefines a builtin version", func() {
			doc.Version = 1
			f, err := os.Create(path)
			So(err, ShouldBeNil)
			So(rules.Encode(f, rules.MustNew(doc)), ShouldBeNil)
			So(f.Close(), ShouldBeNil)

			svc := service.New(repository.NewMemoryStore(), service.WithRuleSetsFile(path))
			err = svc.Start(ctx)

			Convey("Then start fails with a configuration error", func() {
				So(errors.Is(err, service.ErrConfiguration), ShouldBeTrue)
			})
		})

		Convey("When the file is missing", func() {
			svc := service.New(repository.NewMemoryStore(), service.WithRuleSetsFile(path+".missing"))
			So(errors.Is(svc.Start(ctx), service.ErrConfiguration), ShouldBeTrue)
		})
	})
}

func TestService_Scoring(t *testing.T) {
	Convey("Given a started service over a seeded store", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		store := repository.NewMemoryStore()
		So(store.PutGame(ctx, model.Game{ID: gameID, RaceID: raceID}), ShouldBeNil)
		So(store.PutResults(ctx, []model.RaceResultInput{
			result("a", "2:05:30", nil),
			result("b", "2:06:10", nil),
			result("c", "DNF", nil),
		}), ShouldBeNil)

		pubsub := notify.NewInProcess()
		defer func() { _ = pubsub.Close() }()
		events, err := pubsub.Subscribe(ctx, notify.DefaultTopic)
		So(err, ShouldBeNil)

		svc := service.New(store,
			service.WithWorkerCount(2),
			service.WithDefaultRuleSetVersion(2),
			service.WithOrchestratorOptions(service.WithNotifier(notify.NewPublisher(pubsub))),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When scoring synchronously without a version", func() {
			report, err := svc.ScoreNow(ctx, gameID, raceID, 0)
			So(err, ShouldBeNil)

			Convey("Then the default version is used and results read back", func() {
				So(report.RuleSetVersion, ShouldEqual, 2)
				rows, err := svc.Results(ctx, gameID)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 3)
				So(rows[0].TotalPoints, ShouldEqual, 140)
				So(rows[2].Ranked(), ShouldBeFalse)
			})

			Convey("Then a game.scored event is published", func() {
				select {
				case msg := <-events:
					msg.Ack()
					ev, err := notify.Decode(msg)
					So(err, ShouldBeNil)
					So(ev.RunID, ShouldEqual, report.RunID)
					So(msg.UUID, ShouldEqual, report.RunID)
					So(ev.Finishers, ShouldEqual, 2)
				case <-time.After(2 * time.Second):
					So("no event", ShouldBeEmpty)
				}
			})
		})

		Convey("When scoring asynchronously", func() {
			id, err := svc.ScoreAsync(ctx, gameID, raceID, 1)
			So(err, ShouldBeNil)
			So(id, ShouldNotBeEmpty)

			Convey("Then a worker persists the results", func() {
				var rows []repository.ScoredRow
				for i := 0; i < 100; i++ {
					rows, _ = svc.Results(ctx, gameID)
					if len(rows) == 3 {
						break
					}
					time.Sleep(10 * time.Millisecond)
				}
				So(rows, ShouldHaveLength, 3)
				So(rows[0].RuleSetVersion, ShouldEqual, 1)
				So(rows[0].TotalPoints, ShouldEqual, 115)
			})
		})

		Convey("When reading results of an unknown game", func() {
			_, err := svc.Results(ctx, "missing")
			So(errors.Is(err, service.ErrConfiguration), ShouldBeTrue)
		})

		Convey("When reading an unknown rule set", func() {
			_, err := svc.RuleSet(ctx, 404)
			So(errors.Is(err, service.ErrConfiguration), ShouldBeTrue)
		})
	})
}

func TestService_QueueFull(t *testing.T) {
	Convey("Given a service whose only worker is stuck behind a held lock", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		store := repository.NewMemoryStore()
		So(store.PutGame(ctx, model.Game{ID: gameID, RaceID: raceID}), ShouldBeNil)

		hold := make(chan struct{})
		blocker := &blockingNotifier{release: hold, entered: make(chan struct{})}
		svc := service.New(store,
			service.WithWorkerCount(1),
			service.WithQueueSize(1),
			service.WithOrchestratorOptions(service.WithNotifier(blocker)),
		)
		So(svc.Start(ctx), ShouldBeNil)

		_, err := svc.ScoreAsync(ctx, gameID, raceID, 1)
		So(err, ShouldBeNil)
		<-blocker.entered

		_, err = svc.ScoreAsync(ctx, gameID, raceID, 1)
		So(err, ShouldBeNil)

		Convey("When another request arrives", func() {
			_, err := svc.ScoreAsync(ctx, gameID, raceID, 1)

			Convey("Then it is refused as queue full", func() {
				So(errors.Is(err, service.ErrQueueFull), ShouldBeTrue)
			})
		})

		Convey("When the gauges are refreshed", func() {
			metrics.UpdateQueueSize(0)
			before := svc.GetStats()
			So(before["queueLength"], ShouldEqual, 1)
			So(gatherQueueSize("0"), ShouldBeNil)

			svc.RefreshMetrics()

			Convey("Then the queue depth is published", func() {
				So(gatherQueueSize("1"), ShouldBeNil)
			})
		})

		close(hold)
		So(svc.Stop(ctx), ShouldBeNil)
	})
}

// gatherQueueSize compares the published queue gauge with want.
func gatherQueueSize(want string) error {
	expected := `
# HELP racescore_engine_queue_size Pending async score requests
# TYPE racescore_engine_queue_size gauge
racescore_engine_queue_size ` + want + `
`
	return testutil.GatherAndCompare(metrics.GetRegistry(), strings.NewReader(expected), "racescore_engine_queue_size")
}

// blockingNotifier parks the first run after persisting until release closes.
type blockingNotifier struct {
	release <-chan struct{}
	entered chan struct{}
	once    bool
}

func (n *blockingNotifier) GameScored(context.Context, notify.GameScored) error {
	if !n.once {
		n.once = true
		close(n.entered)
		<-n.release
	}
	return nil
}
