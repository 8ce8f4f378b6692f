package source_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elonfeng/rewatch/pkg/excite"
	"github.com/elonfeng/rewatch/pkg/source"
	"github.com/elonfeng/rewatch/pkg/sport"
	. "github.com/smartystreets/goconvey/convey"
)

const scoreboardJSON = `{
  "events": [
    {
      "id": "401810001",
      "date": "2025-11-05T00:30Z",
      "competitions": [{
        "status": {"type": {"state": "post"}},
        "competitors": [
          {"homeAway": "home", "score": "112", "team": {"abbreviation": "bos"}},
          {"homeAway": "away", "score": "110", "team": {"abbreviation": "LAL"}}
        ],
        "broadcasts": [{"market": "national", "names": ["ESPN"]}]
      }]
    },
    {
      "id": "401810002",
      "date": "2025-11-05T03:00Z",
      "competitions": [{
        "status": {"type": {"state": "in"}},
        "competitors": [
          {"homeAway": "home", "score": "40", "team": {"shortDisplayName": "Kings"}},
          {"homeAway": "away", "score": "38", "team": {"abbreviation": "PHX"}}
        ],
        "broadcasts": [{"names": ["NBC Sports California"]}]
      }]
    },
    {
      "id": "401810003",
      "date": "2025-11-05T02:00Z",
      "competitions": [{
        "status": {"type": {"state": "post"}},
        "competitors": [
          {"homeAway": "home", "score": "99", "team": {"abbreviation": "DEN"}},
          {"homeAway": "away", "score": "101", "team": {"abbreviation": "MIN"}}
        ],
        "broadcasts": [{"names": "NBA TV"}]
      }]
    },
    {"id": "no-comp", "competitions": []}
  ]
}`

func newESPNServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/basketball/nba/scoreboard", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("dates") != "20251104" {
			http.Error(w, "bad date", http.StatusBadRequest)
			return
		}
		w.Write([]byte(scoreboardJSON))
	})
	mux.HandleFunc("/basketball/nba/summary", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("event") {
		case "401810001":
			json.NewEncoder(w).Encode(map[string]any{
				"winprobability": []map[string]any{
					{"homeWinPercentage": 0.5},
					{"homeWinPercentage": 0.6},
					{"homeWinPercentage": 0.4},
					{"homeWinPercentage": 0.9},
					{"homeWinPercentage": 0.3},
				},
			})
		case "401810003":
			w.Write([]byte(`{"winprobability": []}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestESPN(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC)

	Convey("Given an ESPN client against a fake site API", t, func() {
		srv := newESPNServer(t)
		espn := source.NewESPN(2*time.Second, source.WithBaseURL(srv.URL+"/"))

		Convey("When the scoreboard is listed", func() {
			events, err := espn.ListEvents(ctx, sport.NBA, day)
			So(err, ShouldBeNil)
			So(len(events), ShouldEqual, 3)

			Convey("Then finals, teams and national broadcasts are parsed", func() {
				g := events[0]
				So(g.ID, ShouldEqual, "401810001")
				So(g.Date, ShouldEqual, "2025-11-04")
				So(g.Final, ShouldBeTrue)
				So(g.Home, ShouldEqual, "BOS")
				So(g.Away, ShouldEqual, "LAL")
				So(g.HomeScore, ShouldEqual, 112)
				So(g.Broadcast, ShouldEqual, "ESPN")
				So(g.StartTime.Equal(time.Date(2025, 11, 5, 0, 30, 0, 0, time.UTC)), ShouldBeTrue)
			})

			Convey("Then regional networks are dropped", func() {
				So(events[1].Final, ShouldBeFalse)
				So(events[1].Home, ShouldEqual, "KINGS")
				So(events[1].Broadcast, ShouldEqual, "")
			})

			Convey("Then a bare string names field is accepted", func() {
				So(events[2].Broadcast, ShouldEqual, "NBA TV")
			})
		})

		Convey("When a summary has win probability", func() {
			raw, err := espn.FetchSeries(ctx, sport.NBA, "401810001")
			So(err, ShouldBeNil)

			Convey("Then it normalizes into the home series", func() {
				series := excite.Normalize(raw)
				So(series, ShouldResemble, []float64{0.5, 0.6, 0.4, 0.9, 0.3})
			})
		})

		Convey("When a summary has no win probability yet", func() {
			_, err := espn.FetchSeries(ctx, sport.NBA, "401810003")
			So(errors.Is(err, source.ErrNoSeries), ShouldBeTrue)
		})

		Convey("When the summary endpoint fails", func() {
			_, err := espn.FetchSeries(ctx, sport.NBA, "missing")
			So(err, ShouldNotBeNil)
			So(errors.Is(err, source.ErrNoSeries), ShouldBeFalse)
		})

		Convey("When the sport is unknown", func() {
			_, err := espn.ListEvents(ctx, sport.Sport("cricket"), day)
			So(errors.Is(err, sport.ErrUnknownSport), ShouldBeTrue)
		})
	})
}

func TestIsNational(t *testing.T) {
	espn := source.NewESPN(0)
	tests := []struct {
		name string
		want bool
	}{
		{"ESPN", true},
		{"espn2", true},
		{"Prime Video", true},
		{"FOX Sports 1", true},
		{"NBC Sports Boston", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		if got := espn.IsNational(tt.name); got != tt.want {
			t.Errorf("IsNational(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}

	custom := source.NewESPN(0, source.WithNationalNetworks([]string{" peacock "}))
	if !custom.IsNational("Peacock") || custom.IsNational("ESPN") {
		t.Error("custom network list not applied")
	}
}
