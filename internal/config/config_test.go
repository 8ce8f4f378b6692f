package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/elonfeng/rewatch/pkg/policy"
	"github.com/elonfeng/rewatch/pkg/sport"
	. "github.com/smartystreets/goconvey/convey"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rewatch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	Convey("Given no config file", t, func() {
		cfg, err := Load("")

		Convey("Then defaults are valid", func() {
			So(err, ShouldBeNil)
			So(cfg.Schedule.ParsePollInterval(), ShouldEqual, 60*time.Second)
			So(cfg.Ledger.ParseRetention(), ShouldEqual, 7*24*time.Hour)
			So(cfg.Source.ESPN.RetryPolicy().Attempts, ShouldEqual, 4)
			So(cfg.Source.ESPN.RetryPolicy().Delay, ShouldEqual, 5*time.Second)

			sports, err := cfg.EnabledSports()
			So(err, ShouldBeNil)
			So(sports, ShouldResemble, []sport.Sport{sport.NBA})
		})
	})

	Convey("Given a YAML file with overrides", t, func() {
		path := writeConfig(t, `
schedule:
  poll_interval: 2m
sports:
  enabled: [nba, cfb, nba]
  policies:
    ncaaf:
      mode: any
      threshold: 85
    nfl:
      threshold: 0
    ncaab:
      mode: any
  curves:
    mlb: {min: 0.01, median: 0.05, p90: 0.08, p99: 0.12, max: 0.2}
ledger:
  backend: sqlite
`)
		cfg, err := Load(path)
		So(err, ShouldBeNil)

		Convey("Then they are applied", func() {
			So(cfg.Schedule.ParsePollInterval(), ShouldEqual, 2*time.Minute)

			sports, _ := cfg.EnabledSports()
			So(sports, ShouldResemble, []sport.Sport{sport.NBA, sport.NCAAF})

			p, err := cfg.Policy()
			So(err, ShouldBeNil)
			So(p.Rule(sport.NCAAF), ShouldResemble, policy.Rule{Threshold: 85, Mode: policy.ModeAny})
			So(p.Rule(sport.NFL), ShouldResemble, policy.Rule{Threshold: 0, Mode: policy.ModeAny})
			So(p.Rule(sport.NCAAB), ShouldResemble, policy.Rule{Threshold: 70, Mode: policy.ModeAny})
			So(p.AutoSurface(sport.NFL, 41, ""), ShouldBeTrue)

			e, err := cfg.Engine()
			So(err, ShouldBeNil)
			c, _ := e.Curve(sport.MLB)
			So(c.Median, ShouldEqual, 0.05)
			So(e.Score(sport.MLB, 0.05), ShouldEqual, 70)
		})
	})

	Convey("Given a curve that is not increasing", t, func() {
		path := writeConfig(t, `
sports:
  curves:
    nfl: {min: 0.1, median: 0.05, p90: 0.2, p99: 0.3, max: 0.4}
`)
		_, err := Load(path)

		Convey("Then loading fails before anything is scored", func() {
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "nfl")
		})
	})

	Convey("Given an unknown sport", t, func() {
		_, err := Load(writeConfig(t, "sports:\n  enabled: [cricket]\n"))
		So(errors.Is(err, sport.ErrUnknownSport), ShouldBeTrue)
	})

	Convey("Given an unknown posting mode", t, func() {
		_, err := Load(writeConfig(t, "sports:\n  policies:\n    nba: {mode: xor}\n"))
		So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
	})

	Convey("Given a threshold above the score range", t, func() {
		_, err := Load(writeConfig(t, "sports:\n  policies:\n    nba: {threshold: 101}\n"))
		So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
	})

	Convey("Given an enabled sink without its URL", t, func() {
		_, err := Load(writeConfig(t, "alerts:\n  slack:\n    enabled: true\n"))
		So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
	})

	Convey("Given a bad ledger backend", t, func() {
		_, err := Load(writeConfig(t, "ledger:\n  backend: etcd\n"))
		So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
	})
}

func TestEnvOverrides(t *testing.T) {
	Convey("Given REWATCH_* environment variables", t, func() {
		t.Setenv("REWATCH_SPORTS", "nfl, mlb")
		t.Setenv("REWATCH_POLL_SECONDS", "90")
		t.Setenv("REWATCH_LEDGER_DAYS", "3")
		t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.test/x")

		cfg, err := Load("")
		So(err, ShouldBeNil)

		Convey("Then they win over defaults", func() {
			So(cfg.Sports.Enabled, ShouldResemble, []string{"nfl", "mlb"})
			So(cfg.Schedule.ParsePollInterval(), ShouldEqual, 90*time.Second)
			So(cfg.Ledger.ParseRetention(), ShouldEqual, 72*time.Hour)
			So(cfg.Alerts.Slack.Enabled, ShouldBeTrue)
		})
	})
}
