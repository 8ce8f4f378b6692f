package calibrate

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/elonfeng/rewatch/pkg/scoring"
	"github.com/elonfeng/rewatch/pkg/source"
	"github.com/elonfeng/rewatch/pkg/sport"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{10, 1},
		{50, 5},
		{90, 9},
		{99, 10},
		{100, 10},
	}
	for _, tt := range tests {
		if got := Percentile(sorted, tt.p); got != tt.want {
			t.Errorf("Percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if got := Percentile(nil, 50); got != 0 {
		t.Errorf("Percentile(nil) = %v, want 0", got)
	}
}

func TestAnchors(t *testing.T) {
	Convey("Given one hundred evenly spread games", t, func() {
		vals := make([]float64, 0, 100)
		for i := 100; i >= 1; i-- {
			vals = append(vals, float64(i)/100)
		}
		c, err := Anchors(vals)

		Convey("Then the anchors are nearest-rank percentiles", func() {
			So(err, ShouldBeNil)
			So(c, ShouldResemble, scoring.Curve{Min: 0.01, Median: 0.5, P90: 0.9, P99: 0.99, Max: 1})
		})
	})

	Convey("Given a degenerate dataset", t, func() {
		_, err := Anchors([]float64{0.2, 0.2, 0.2, 0.2, 0.2, 0.2})
		So(errors.Is(err, scoring.ErrInvalidCurve), ShouldBeTrue)

		_, err = Anchors([]float64{0.1, 0, -1, 0.3})
		So(errors.Is(err, ErrTooFewGames), ShouldBeTrue)
	})
}

func TestDatasetRoundTrip(t *testing.T) {
	Convey("Given rows written to a dataset", t, func() {
		var buf bytes.Buffer
		w, err := NewWriter(&buf, true)
		So(err, ShouldBeNil)
		So(w.Write(Row{Sport: sport.NBA, Date: "2024-01-02", EventID: "401", Away: "LAL", Home: "BOS", WPPoints: 412, EI: 0.1234567}), ShouldBeNil)
		So(w.Write(Row{Sport: sport.NCAAB, Date: "2024-01-02", EventID: "402", Away: "DUKE", Home: "UNC", WPPoints: 300, EI: 0.2}), ShouldBeNil)
		So(w.Flush(), ShouldBeNil)

		Convey("Then the file uses the dataset layout", func() {
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			So(lines[0], ShouldEqual, "sport,date,event_id,away_team,home_team,num_wp_points,ei_raw")
			So(lines[1], ShouldEqual, "NBA,2024-01-02,401,LAL,BOS,412,0.123457")
		})

		Convey("Then reading it back resolves the sport", func() {
			rows, err := ReadRows(&buf)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 2)
			So(rows[1].Sport, ShouldEqual, sport.NCAAB)
			So(rows[0].WPPoints, ShouldEqual, 412)
		})
	})

	Convey("Given a wider legacy file", t, func() {
		legacy := "sport,league,season_year,date,event_id,competition_id,away_team,home_team,num_wp_points,ei_raw\n" +
			"NCAAM,NCAAM,2023,2024-01-02,9,9,A,B,120,0.050000\n" +
			"NCAAM,NCAAM,2023,2024-01-02,10,10,C,D,0,n/a\n"
		rows, err := ReadRows(strings.NewReader(legacy))

		So(err, ShouldBeNil)
		So(len(rows), ShouldEqual, 1)
		So(rows[0].Sport, ShouldEqual, sport.NCAAB)
		So(rows[0].EI, ShouldEqual, 0.05)
	})

	Convey("Given a file without EI values", t, func() {
		_, err := ReadRows(strings.NewReader("sport,date\nNBA,2024-01-02\n"))
		So(err, ShouldNotBeNil)
	})

	Convey("Existing ids come from the file, or nothing when it is missing", t, func() {
		path := filepath.Join(t.TempDir(), "ei.csv")
		ids, err := ExistingIDs(path)
		So(err, ShouldBeNil)
		So(ids, ShouldBeEmpty)

		So(os.WriteFile(path, nil, 0o644), ShouldBeNil)
		ids, err = ExistingIDs(path)
		So(err, ShouldBeNil)
		So(ids, ShouldBeEmpty)

		So(os.WriteFile(path, []byte("sport,date,event_id,away_team,home_team,num_wp_points,ei_raw\nNBA,2024-01-02,401,A,B,5,0.1\n"), 0o644), ShouldBeNil)
		ids, err = ExistingIDs(path)
		So(err, ShouldBeNil)
		So(ids["401"], ShouldBeTrue)
	})
}

func TestFromRows(t *testing.T) {
	Convey("Rows are grouped per sport", t, func() {
		var rows []Row
		for i := 1; i <= 200; i++ {
			rows = append(rows, Row{Sport: sport.NFL, EI: float64(i) / 1000})
			rows = append(rows, Row{EI: float64(i) / 10000})
		}
		results, err := FromRows(rows, sport.MLB)

		So(err, ShouldBeNil)
		So(len(results), ShouldEqual, 2)
		So(results[0].Sport, ShouldEqual, sport.NFL)
		So(results[0].Games, ShouldEqual, 200)
		So(results[1].Sport, ShouldEqual, sport.MLB)
		So(results[1].Curve.Max, ShouldEqual, 0.02)
	})
}

type listFunc func(day time.Time) []source.GameEvent

func (f listFunc) ListEvents(_ context.Context, _ sport.Sport, day time.Time) ([]source.GameEvent, error) {
	return f(day), nil
}

type seriesMap map[string][]any

func (m seriesMap) FetchSeries(_ context.Context, _ sport.Sport, id string) ([]any, error) {
	if s, ok := m[id]; ok {
		return s, nil
	}
	return nil, source.ErrNoSeries
}

func TestBuilder(t *testing.T) {
	Convey("Given two days of games", t, func() {
		lister := listFunc(func(day time.Time) []source.GameEvent {
			switch day.Day() {
			case 1:
				return []source.GameEvent{
					{ID: "a", Final: true, Away: "A", Home: "B"},
					{ID: "b", Final: true},
					{ID: "live", Final: false},
				}
			case 2:
				return []source.GameEvent{{ID: "c", Final: true}, {ID: "old", Final: true}}
			}
			return nil
		})
		fetcher := seriesMap{
			"a":   {0.5, 0.8, 0.2},
			"b":   {0.5},
			"c":   {50.0, 40.0},
			"old": {0.1, 0.9},
		}
		b := &Builder{Lister: lister, Fetcher: fetcher}

		var got []Row
		start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		n, err := b.Build(context.Background(), sport.NBA, start, start.AddDate(0, 0, 2), map[string]bool{"old": true}, func(r Row) error {
			got = append(got, r)
			return nil
		})

		Convey("Then only final games with a usable series are emitted", func() {
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)
			So(got[0].EventID, ShouldEqual, "a")
			So(got[0].Date, ShouldEqual, "2024-03-01")
			So(got[0].EI, ShouldAlmostEqual, 0.9, 1e-9)
			So(got[1].EventID, ShouldEqual, "c")
			So(got[1].EI, ShouldAlmostEqual, 0.1, 1e-9)
		})
	})
}

func TestSeason(t *testing.T) {
	start, end := Season(sport.NBA, 2024)
	if start.Format(source.DayLayout) != "2024-10-15" || end.Format(source.DayLayout) != "2025-04-20" {
		t.Errorf("NBA 2024 season = %s..%s", start, end)
	}
	start, end = Season(sport.MLB, 2025)
	if start.Year() != 2025 || end.Year() != 2025 {
		t.Errorf("MLB season should stay within one year, got %s..%s", start, end)
	}
}
