package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/racescore/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.StorageDriver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.DefaultRuleSetVersion, convey.ShouldEqual, 1)
			convey.So(cfg.LockMode, convey.ShouldEqual, "wait")
			convey.So(cfg.NotifyTopic, convey.ShouldEqual, "game.scored")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid configurations", t, func() {
		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = "" }},
			{"unknown driver", func(c *config.Config) { c.StorageDriver = "mongo" }},
			{"postgres without dsn", func(c *config.Config) { c.StorageDriver = config.DriverPostgres }},
			{"unknown lock mode", func(c *config.Config) { c.LockMode = "spin" }},
			{"unknown log format", func(c *config.Config) { c.LogFormat = "xml" }},
			{"zero rule set version", func(c *config.Config) { c.DefaultRuleSetVersion = 0 }},
			{"zero workers", func(c *config.Config) { c.WorkerCount = 0 }},
			{"negative burst", func(c *config.Config) { c.ScoreRateBurst = -1 }},
		}

		for _, tc := range cases {
			convey.Convey("Then "+tc.name+" is rejected", func() {
				cfg := config.New()
				tc.mutate(cfg)
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}

		convey.Convey("Then sqlite with a dsn is accepted", func() {
			cfg := config.New()
			cfg.StorageDriver = config.DriverSQLite
			cfg.StorageDSN = "file:racescore.db"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
