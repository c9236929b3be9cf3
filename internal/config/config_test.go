package config_test

import (
	"errors"
	"testing"

	"github.com/agiraud1/radar-fr/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.Timezone, convey.ShouldEqual, "Europe/Paris")
			convey.So(cfg.Scores.DefaultLimit, convey.ShouldEqual, 50)
			convey.So(cfg.Scores.MaxLimit, convey.ShouldEqual, 200)
			convey.So(cfg.Signals.DefaultLimit, convey.ShouldEqual, 50)
			convey.So(cfg.Signals.MaxLimit, convey.ShouldEqual, 200)
			convey.So(cfg.Feedback.NoteMaxLen, convey.ShouldEqual, 2000)
			convey.So(cfg.Feedback.DefaultLimit, convey.ShouldEqual, 10)
			convey.So(cfg.Feedback.MaxLimit, convey.ShouldEqual, 50)
			convey.So(cfg.LinkCheck.LookbackDays, convey.ShouldEqual, 14)
			convey.So(cfg.LinkCheck.Limit, convey.ShouldEqual, 200)
			convey.So(cfg.Scheduler.CheckLinksSpec, convey.ShouldEqual, "0 */3 * * *")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the time zone resolves", func() {
			loc, err := cfg.Location()
			convey.So(err, convey.ShouldBeNil)
			convey.So(loc.String(), convey.ShouldEqual, "Europe/Paris")
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		convey.Convey("When the time zone is unknown", func() {
			cfg.Timezone = "Mars/Olympus"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the default score limit exceeds the maximum", func() {
			cfg.Scores.DefaultLimit = 500
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the default signal page exceeds the maximum", func() {
			cfg.Signals.DefaultLimit = 300
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the default feedback limit exceeds the maximum", func() {
			cfg.Feedback.MaxLimit = 5
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the log format is unknown", func() {
			cfg.LogFormat = "xml"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When link check concurrency is zero", func() {
			cfg.LinkCheck.Concurrency = 0
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the scheduler is disabled without specs", func() {
			cfg.Scheduler.Enabled = false
			cfg.Scheduler.RecomputeSpec = ""
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
