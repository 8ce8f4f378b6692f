package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetrics(t *testing.T) {
	Convey("Given metrics on a private registry", t, func() {
		registry := prometheus.NewRegistry()
		m := New(WithRegistry(registry), WithNamespace("test"))

		Convey("When games are scored and published", func() {
			m.GameScored("nba", 91)
			m.GameScored("nba", 55)
			m.Published("nba", "auto")
			m.AwaitingData("nfl")
			m.Fallback("nba", "wait_data")

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(m.gamesScored.WithLabelValues("nba")), ShouldEqual, 2)
				So(testutil.ToFloat64(m.published.WithLabelValues("nba", "auto")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.awaitingData.WithLabelValues("nfl")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.fallbacks.WithLabelValues("nba", "wait_data")), ShouldEqual, 1)
			})
		})

		Convey("When the ledger is pruned", func() {
			m.LedgerPruned(3, 12)
			So(testutil.ToFloat64(m.ledgerPruned), ShouldEqual, 3)
			So(testutil.ToFloat64(m.ledgerEntries), ShouldEqual, 12)
		})

		Convey("When HTTP requests are recorded", func() {
			m.HTTPRequest("/api/v1/games", 200, 3*time.Millisecond)
			m.HTTPRequest("/api/v1/score", 400, time.Millisecond)
			So(testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/v1/score", "4xx")), ShouldEqual, 1)
		})

		Convey("Then the collectors are gathered under the namespace", func() {
			m.CycleDone(2 * time.Second)
			families, err := registry.Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
			So(families[0].GetName(), ShouldStartWith, "test_")
		})
	})

	Convey("A nil Metrics records nothing and does not panic", t, func() {
		var m *Metrics
		So(func() {
			m.CycleDone(time.Second)
			m.GameScored("nba", 70)
			m.Published("nba", "fallback")
			m.LedgerPruned(1, 0)
			m.HTTPRequest("/", 200, 0)
		}, ShouldNotPanic)
	})
}
