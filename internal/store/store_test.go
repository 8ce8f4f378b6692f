package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/elonfeng/rewatch/internal/store"
	. "github.com/smartystreets/goconvey/convey"
)

func openTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "rewatch.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGames(t *testing.T) {
	ctx := context.Background()
	scoredAt := time.Date(2025, 11, 5, 6, 0, 0, 0, time.UTC)

	Convey("Given an empty store", t, func() {
		s := openTestStore(t)

		Convey("When a game is missing", func() {
			_, err := s.GetGame(ctx, "nope")
			So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)
		})

		Convey("When games are upserted", func() {
			for _, g := range []store.Game{
				{EventID: "1", Sport: "nba", GameDate: "2025-11-04", Away: "LAL", Home: "BOS", EI: 0.3, Score: 91, ScoredAt: scoredAt},
				{EventID: "2", Sport: "nba", GameDate: "2025-11-04", Away: "NYK", Home: "MIA", EI: 0.1, Score: 58, ScoredAt: scoredAt},
				{EventID: "3", Sport: "nfl", GameDate: "2025-11-03", Away: "KC", Home: "BUF", EI: 0.2, Score: 85, ScoredAt: scoredAt},
			} {
				So(s.UpsertGame(ctx, &g), ShouldBeNil)
			}

			Convey("Then they can be listed by sport and date", func() {
				games, err := s.ListGames(ctx, store.GameListOpts{Sport: "nba", Date: "2025-11-04"})
				So(err, ShouldBeNil)
				So(len(games), ShouldEqual, 2)
				So(games[0].EventID, ShouldEqual, "1")
			})

			Convey("Then a minimum score filters the list", func() {
				games, err := s.ListGames(ctx, store.GameListOpts{MinScore: 80})
				So(err, ShouldBeNil)
				So(len(games), ShouldEqual, 2)
			})

			Convey("Then counts are grouped by sport", func() {
				counts, err := s.CountGamesBySport(ctx)
				So(err, ShouldBeNil)
				So(counts, ShouldResemble, map[string]int{"nba": 2, "nfl": 1})
			})

			Convey("Then a rescore keeps the delivered flag", func() {
				So(s.MarkGameDelivered(ctx, "1"), ShouldBeNil)

				again := store.Game{EventID: "1", Sport: "nba", GameDate: "2025-11-04", EI: 0.31, Score: 92, ScoredAt: scoredAt}
				So(s.UpsertGame(ctx, &again), ShouldBeNil)

				g, err := s.GetGame(ctx, "1")
				So(err, ShouldBeNil)
				So(g.Score, ShouldEqual, 92)
				So(g.Delivered, ShouldBeTrue)
				So(g.Away, ShouldEqual, "LAL")
			})
		})
	})
}

func TestSQLiteLedger(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 11, 26, 5, 0, 0, 0, time.UTC)

	Convey("Given the database-backed ledger", t, func() {
		l := openTestStore(t).Ledger()

		So(l.MarkDelivered(ctx, "fresh", now.Add(-time.Hour)), ShouldBeNil)
		So(l.MarkDelivered(ctx, "old", now.Add(-10*24*time.Hour)), ShouldBeNil)

		Convey("Then marked ids are delivered", func() {
			ok, err := l.AlreadyDelivered(ctx, "fresh")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			ok, _ = l.AlreadyDelivered(ctx, "unknown")
			So(ok, ShouldBeFalse)
		})

		Convey("Then marking twice is idempotent", func() {
			So(l.MarkDelivered(ctx, "fresh", now), ShouldBeNil)
			entries, err := l.Entries(ctx)
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 2)
			So(entries["fresh"].Equal(now), ShouldBeTrue)
		})

		Convey("Then prune drops entries past retention", func() {
			removed, err := l.Prune(ctx, now, 7*24*time.Hour)
			So(err, ShouldBeNil)
			So(removed, ShouldEqual, 1)

			ok, _ := l.AlreadyDelivered(ctx, "old")
			So(ok, ShouldBeFalse)
			So(l.Save(ctx), ShouldBeNil)
		})
	})
}
