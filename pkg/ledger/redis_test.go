package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRedisLedger(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 11, 5, 7, 0, 0, 0, time.UTC)

	Convey("Given a Redis ledger", t, func() {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		l := NewRedis(client, 72*time.Hour)

		So(l.MarkDelivered(ctx, "401", now), ShouldBeNil)

		Convey("Then the id is delivered and carries the retention as TTL", func() {
			ok, err := l.AlreadyDelivered(ctx, "401")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(mr.TTL("rewatch:ledger:401"), ShouldEqual, 72*time.Hour)

			ok, _ = l.AlreadyDelivered(ctx, "402")
			So(ok, ShouldBeFalse)
		})

		Convey("Then Redis expiry alone makes it eligible again", func() {
			mr.FastForward(73 * time.Hour)
			ok, _ := l.AlreadyDelivered(ctx, "401")
			So(ok, ShouldBeFalse)
		})

		Convey("Then prune sweeps stale and corrupt values", func() {
			So(l.MarkDelivered(ctx, "old", now.Add(-10*24*time.Hour)), ShouldBeNil)
			So(mr.Set("rewatch:ledger:junk", "yesterday"), ShouldBeNil)

			n, err := l.Prune(ctx, now, 7*24*time.Hour)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			entries, err := l.Entries(ctx)
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 1)
			So(entries["401"].Equal(now), ShouldBeTrue)
		})

		Convey("Then Save is a no-op", func() {
			So(l.Save(ctx), ShouldBeNil)
		})
	})
}
