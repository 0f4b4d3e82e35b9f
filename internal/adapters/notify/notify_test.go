package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/racescore/internal/adapters/notify"
)

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error { return errors.New("broker down") }
func (failingPublisher) Close() error                              { return nil }

func TestPublisher(t *testing.T) {
	Convey("Given an in-process pub/sub with a subscriber", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		bus := notify.NewInProcess()
		defer bus.Close()

		msgs, err := bus.Subscribe(ctx, "standings.rescore")
		So(err, ShouldBeNil)

		pub := notify.NewPublisher(bus, notify.WithTopic("standings.rescore"))
		So(pub.Topic(), ShouldEqual, "standings.rescore")

		Convey("When a game is scored", func() {
			ev := notify.GameScored{
				RunID:          "0b8a9f6e-6f0e-4c55-9c1e-0b7c1b7c2a11",
				GameID:         "g1",
				RaceID:         "boston-2026",
				RuleSetVersion: 2,
				ScoredAt:       time.Date(2026, 4, 20, 16, 0, 0, 0, time.UTC),
				Finishers:      18,
				Athletes:       20,
			}
			So(pub.GameScored(ctx, ev), ShouldBeNil)

			Convey("Then the subscriber receives the event keyed by run id", func() {
				select {
				case msg := <-msgs:
					msg.Ack()
					So(msg.UUID, ShouldEqual, ev.RunID)
					So(msg.Metadata.Get("game_id"), ShouldEqual, "g1")
					got, err := notify.Decode(msg)
					So(err, ShouldBeNil)
					So(got, ShouldResemble, ev)
				case <-ctx.Done():
					So(ctx.Err(), ShouldBeNil)
				}
			})
		})
	})

	Convey("Given a publisher whose broker fails", t, func() {
		pub := notify.NewPublisher(failingPublisher{})

		Convey("Then the error is returned to the caller", func() {
			err := pub.GameScored(context.Background(), notify.GameScored{GameID: "g1"})
			So(err, ShouldNotBeNil)
			So(pub.Topic(), ShouldEqual, notify.DefaultTopic)
		})
	})

	Convey("Given the no-op notifier", t, func() {
		So(notify.Nop{}.GameScored(context.Background(), notify.GameScored{}), ShouldBeNil)
	})
}
