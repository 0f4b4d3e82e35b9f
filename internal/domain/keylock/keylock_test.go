package keylock_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/racescore/internal/domain/keylock"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLocker(t *testing.T) {
	Convey("Given a new Locker", t, func() {
		l := keylock.New()
		ctx := context.Background()

		Convey("When a key is held", func() {
			unlock, err := l.Lock(ctx, "game-1")
			So(err, ShouldBeNil)
			So(l.Active(), ShouldEqual, 1)

			Convey("Then TryLock on the same key fails", func() {
				_, ok := l.TryLock("game-1")
				So(ok, ShouldBeFalse)
				unlock()
			})

			Convey("Then other keys are independent", func() {
				other, ok := l.TryLock("game-2")
				So(ok, ShouldBeTrue)
				other()
				unlock()
			})

			Convey("Then a waiter gives up when its context ends", func() {
				wctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
				defer cancel()
				_, err := l.Lock(wctx, "game-1")
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
				So(l.Active(), ShouldEqual, 1)
				unlock()
			})

			Convey("Then releasing frees the key and its entry", func() {
				unlock()
				unlock()
				So(l.Active(), ShouldEqual, 0)
				again, ok := l.TryLock("game-1")
				So(ok, ShouldBeTrue)
				again()
			})
		})

		Convey("When many goroutines contend for one key", func() {
			var (
				inside  atomic.Int32
				overlap atomic.Bool
				wg      sync.WaitGroup
			)
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock, err := l.Lock(ctx, "hot")
					if err != nil {
						return
					}
					if inside.Add(1) > 1 {
						overlap.Store(true)
					}
					time.Sleep(time.Millisecond)
					inside.Add(-1)
					unlock()
				}()
			}
			wg.Wait()

			Convey("Then no two holders ever overlap", func() {
				So(overlap.Load(), ShouldBeFalse)
				So(l.Active(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a Locker capped at two keys", t, func() {
		l := keylock.New(keylock.WithMaxKeys(2))
		ctx := context.Background()

		var unlocks []func()
		for i := 0; i < 2; i++ {
			u, err := l.Lock(ctx, fmt.Sprintf("k%d", i))
			So(err, ShouldBeNil)
			unlocks = append(unlocks, u)
		}

		Convey("Then a third key is refused", func() {
			_, err := l.Lock(ctx, "k2")
			So(errors.Is(err, keylock.ErrTooManyKeys), ShouldBeTrue)
			_, ok := l.TryLock("k2")
			So(ok, ShouldBeFalse)
		})

		Reset(func() {
			for _, u := range unlocks {
				u()
			}
		})
	})
}
