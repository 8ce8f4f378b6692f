package policy_test

import (
	"testing"

	"github.com/elonfeng/rewatch/pkg/policy"
	"github.com/elonfeng/rewatch/pkg/sport"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRule_AutoSurface(t *testing.T) {
	tests := []struct {
		name      string
		rule      policy.Rule
		score     int
		broadcast string
		want      bool
	}{
		{"any: high score, local", policy.Rule{Threshold: 70, Mode: policy.ModeAny}, 70, "", true},
		{"any: low score, national", policy.Rule{Threshold: 70, Mode: policy.ModeAny}, 41, "ESPN", true},
		{"any: low score, local", policy.Rule{Threshold: 70, Mode: policy.ModeAny}, 69, "", false},
		{"any: whitespace broadcast", policy.Rule{Threshold: 70, Mode: policy.ModeAny}, 69, "  ", false},
		{"all: high score, local", policy.Rule{Threshold: 70, Mode: policy.ModeAll}, 95, "", false},
		{"all: low score, national", policy.Rule{Threshold: 70, Mode: policy.ModeAll}, 60, "ABC", false},
		{"all: both", policy.Rule{Threshold: 70, Mode: policy.ModeAll}, 70, "ABC", true},
		{"raised threshold", policy.Rule{Threshold: 90, Mode: policy.ModeAny}, 89, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.AutoSurface(tt.score, tt.broadcast); got != tt.want {
				t.Errorf("AutoSurface(%d, %q) = %v, want %v", tt.score, tt.broadcast, got, tt.want)
			}
		})
	}
}

func TestPolicy(t *testing.T) {
	Convey("Given the default policy", t, func() {
		p := policy.New(nil)

		Convey("Then pro leagues use the OR rule", func() {
			So(p.Rule(sport.NBA), ShouldResemble, policy.Rule{Threshold: 70, Mode: policy.ModeAny})
			So(p.AutoSurface(sport.NFL, 50, "FOX"), ShouldBeTrue)
		})

		Convey("Then college leagues use the AND rule", func() {
			So(p.Rule(sport.NCAAF).Mode, ShouldEqual, policy.ModeAll)
			So(p.AutoSurface(sport.NCAAB, 85, ""), ShouldBeFalse)
			So(p.AutoSurface(sport.NCAAB, 85, "CBS"), ShouldBeTrue)
		})
	})

	Convey("Given per-sport overrides", t, func() {
		p := policy.New(map[sport.Sport]policy.Rule{
			sport.NCAAF: {Mode: policy.ModeAny},
			sport.MLB:   {Threshold: 90},
		})

		Convey("Then only the overridden fields change", func() {
			So(p.Rule(sport.NCAAF), ShouldResemble, policy.Rule{Threshold: 70, Mode: policy.ModeAny})
			So(p.Rule(sport.MLB), ShouldResemble, policy.Rule{Threshold: 90, Mode: policy.ModeAny})
		})
	})

	Convey("Given a rule set with a zero threshold", t, func() {
		p := policy.New(nil)
		p.SetRule(sport.NBA, policy.Rule{Threshold: 0, Mode: policy.ModeAny})

		Convey("Then the zero is kept and every game surfaces", func() {
			So(p.Rule(sport.NBA).Threshold, ShouldEqual, 0)
			So(p.AutoSurface(sport.NBA, 40, ""), ShouldBeTrue)
		})
	})

	Convey("Given posting mode strings", t, func() {
		m, err := policy.ParseMode("AND")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, policy.ModeAll)

		m, err = policy.ParseMode("or")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, policy.ModeAny)

		_, err = policy.ParseMode("xor")
		So(err, ShouldNotBeNil)
	})
}

func TestPickFallback(t *testing.T) {
	Convey("Given three final games below the threshold", t, func() {
		cands := []policy.Candidate{
			{EventID: "a", Final: true, Scored: true, Score: 55},
			{EventID: "b", Final: true, Scored: true, Score: 62},
			{EventID: "c", Final: true, Scored: false},
		}

		Convey("When one of them still has no series", func() {
			_, verdict := policy.PickFallback(cands)

			Convey("Then the fallback waits", func() {
				So(verdict, ShouldEqual, policy.FallbackWaitData)
			})
		})

		Convey("When all three have scores", func() {
			cands[2].Scored = true
			cands[2].Score = 48
			pick, verdict := policy.PickFallback(cands)

			Convey("Then the highest score is selected", func() {
				So(verdict, ShouldEqual, policy.FallbackSelected)
				So(pick.EventID, ShouldEqual, "b")
			})
		})
	})

	Convey("Given a slate with a game still in progress", t, func() {
		_, verdict := policy.PickFallback([]policy.Candidate{
			{EventID: "a", Final: true, Scored: true, Score: 66},
			{EventID: "b", Final: false},
		})
		So(verdict, ShouldEqual, policy.FallbackWaitFinal)
	})

	Convey("Given a slate where a game already auto-surfaced", t, func() {
		_, verdict := policy.PickFallback([]policy.Candidate{
			{EventID: "a", Final: true, Scored: true, Score: 50},
			{EventID: "b", Final: false},
			{EventID: "c", Final: true, Scored: true, Score: 45, AutoSurface: true},
		})
		So(verdict, ShouldEqual, policy.FallbackNotNeeded)
	})

	Convey("Given a slate with no scored games", t, func() {
		_, verdict := policy.PickFallback([]policy.Candidate{
			{EventID: "a", Final: true},
			{EventID: "b", Final: false},
		})
		So(verdict, ShouldEqual, policy.FallbackNoGames)

		_, verdict = policy.PickFallback(nil)
		So(verdict, ShouldEqual, policy.FallbackNoGames)
	})

	Convey("Given tied scores", t, func() {
		pick, verdict := policy.PickFallback([]policy.Candidate{
			{EventID: "first", Final: true, Scored: true, Score: 60},
			{EventID: "second", Final: true, Scored: true, Score: 60},
		})
		So(verdict, ShouldEqual, policy.FallbackSelected)
		So(pick.EventID, ShouldEqual, "first")
	})
}
