package source_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/elonfeng/rewatch/pkg/source"
	"github.com/elonfeng/rewatch/pkg/sport"
	. "github.com/smartystreets/goconvey/convey"
)

type scriptedFetcher struct {
	calls   int
	replies []func() ([]any, error)
}

func (f *scriptedFetcher) FetchSeries(_ context.Context, _ sport.Sport, _ string) ([]any, error) {
	i := f.calls
	f.calls++
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	return f.replies[i]()
}

func TestRetryingFetcher(t *testing.T) {
	ctx := context.Background()
	fast := source.RetryPolicy{Attempts: 4, Delay: time.Millisecond}

	Convey("Given a series that publishes on the third try", t, func() {
		f := &scriptedFetcher{replies: []func() ([]any, error){
			func() ([]any, error) { return nil, errors.New("timeout") },
			func() ([]any, error) { return nil, nil },
			func() ([]any, error) { return []any{0.5, 0.7}, nil },
		}}
		raw, err := source.NewRetryingFetcher(f, fast).FetchSeries(ctx, sport.NBA, "1")

		So(err, ShouldBeNil)
		So(raw, ShouldResemble, []any{0.5, 0.7})
		So(f.calls, ShouldEqual, 3)
	})

	Convey("Given a series that never publishes", t, func() {
		f := &scriptedFetcher{replies: []func() ([]any, error){
			func() ([]any, error) { return nil, nil },
		}}
		_, err := source.NewRetryingFetcher(f, fast).FetchSeries(ctx, sport.NBA, "1")

		So(errors.Is(err, source.ErrNoSeries), ShouldBeTrue)
		So(f.calls, ShouldEqual, 4)
	})

	Convey("Given a cancelled context", t, func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		f := &scriptedFetcher{replies: []func() ([]any, error){
			func() ([]any, error) { return nil, errors.New("down") },
		}}
		slow := source.RetryPolicy{Attempts: 4, Delay: time.Hour}
		_, err := source.NewRetryingFetcher(f, slow).FetchSeries(cctx, sport.NBA, "1")

		So(err, ShouldNotBeNil)
		So(f.calls, ShouldEqual, 1)
	})
}

func TestRetryPolicyBackoff(t *testing.T) {
	Convey("The delay doubles up to the cap", t, func() {
		var stamps []time.Time
		p := source.RetryPolicy{Attempts: 4, Delay: 5 * time.Millisecond, MaxDelay: 10 * time.Millisecond}
		err := p.Do(context.Background(), func(int) error {
			stamps = append(stamps, time.Now())
			return errors.New("nope")
		})

		So(err, ShouldNotBeNil)
		So(len(stamps), ShouldEqual, 4)
		So(stamps[1].Sub(stamps[0]), ShouldBeGreaterThanOrEqualTo, 5*time.Millisecond)
		So(stamps[3].Sub(stamps[2]), ShouldBeGreaterThanOrEqualTo, 10*time.Millisecond)
	})
}
