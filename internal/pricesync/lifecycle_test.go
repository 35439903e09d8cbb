package pricesync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"pricesync/internal/feed"
	"pricesync/internal/feed/feedmock"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func seedSeries(from int64, n int) []feed.PricePoint {
	out := make([]feed.PricePoint, 0, n)
	for i := range n {
		out = append(out, feed.PricePoint{Time: from + int64(i)*60_000, Price: decimal.NewFromInt(int64(100 + i))})
	}
	return out
}

func TestStart_SeedThenFirstPoll(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	ctrl := gomock.NewController(t)
	f := feedmock.NewMockFeed(ctrl)
	f.EXPECT().Name().Return("mock").AnyTimes()
	f.EXPECT().FetchHistorySeries(gomock.Any()).Return(seedSeries(1_000, 3), nil).Times(1)
	f.EXPECT().
		FetchCurrentPrice(gomock.Any()).
		DoAndReturn(func(context.Context) (*feed.Snapshot, error) {
			<-release
			return snap("50000", "2.5"), nil
		}).
		Times(1)

	c, _ := newTestController(t, f,
		WithInterval(time.Hour),
		WithClock(func() time.Time { return time.UnixMilli(10_000_000) }),
	)

	require.NoError(t, c.Start(t.Context()))
	require.True(t, c.State().Loading, "session starts in the loading state")

	// The seed does not wait for the first poll.
	require.Eventually(t, func() bool { return len(c.State().History) == 3 }, waitFor, tick)
	require.True(t, c.State().Loading)

	close(release)
	require.Eventually(t, func() bool { return !c.State().Loading }, waitFor, tick)

	st := c.State()
	require.Equal(t, StatusReady, st.Status)
	require.Len(t, st.History, 4)
	require.Equal(t, int64(10_000_000), st.History[3].Time)
}

func TestStart_SeedFailureIsNotSurfaced(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	f := feedmock.NewMockFeed(ctrl)
	f.EXPECT().Name().Return("mock").AnyTimes()
	f.EXPECT().FetchHistorySeries(gomock.Any()).Return(nil, errors.New("history down")).Times(1)
	f.EXPECT().FetchCurrentPrice(gomock.Any()).Return(snap("50000", "2.5"), nil).Times(1)

	c, hook := newTestController(t, f, WithInterval(time.Hour))
	require.NoError(t, c.Start(t.Context()))

	require.Eventually(t, func() bool {
		st := c.State()
		return !st.Loading && st.CurrentPrice.Valid
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "history seed failed" {
				return true
			}
		}
		return false
	}, waitFor, tick)

	st := c.State()
	require.Empty(t, st.Error)
	require.Len(t, st.History, 1)
}

func TestStart_EmptySeedDoesNotEraseLiveSample(t *testing.T) {
	t.Parallel()

	polled := make(chan struct{})
	seeded := make(chan struct{})
	ctrl := gomock.NewController(t)
	f := feedmock.NewMockFeed(ctrl)
	f.EXPECT().Name().Return("mock").AnyTimes()
	f.EXPECT().FetchCurrentPrice(gomock.Any()).Return(snap("50000", "2.5"), nil).Times(1)
	f.EXPECT().
		FetchHistorySeries(gomock.Any()).
		DoAndReturn(func(context.Context) ([]feed.PricePoint, error) {
			<-polled
			defer close(seeded)
			return []feed.PricePoint{}, nil
		}).
		Times(1)

	c, _ := newTestController(t, f, WithInterval(time.Hour))
	require.NoError(t, c.Start(t.Context()))

	require.Eventually(t, func() bool { return len(c.State().History) == 1 && !c.State().Loading }, waitFor, tick)
	close(polled)
	<-seeded
	// Give the seed goroutine time to apply whatever it got.
	time.Sleep(20 * time.Millisecond)

	require.Len(t, c.State().History, 1)
}

func TestStart_TickerPollsRepeatedly(t *testing.T) {
	t.Parallel()

	var polls atomic.Int64
	ctrl := gomock.NewController(t)
	f := feedmock.NewMockFeed(ctrl)
	f.EXPECT().Name().Return("mock").AnyTimes()
	f.EXPECT().FetchHistorySeries(gomock.Any()).Return(nil, nil).AnyTimes()
	f.EXPECT().
		FetchCurrentPrice(gomock.Any()).
		DoAndReturn(func(context.Context) (*feed.Snapshot, error) {
			polls.Add(1)
			return snap("1", "0"), nil
		}).
		AnyTimes()

	c, _ := newTestController(t, f, WithInterval(10*time.Millisecond))
	require.NoError(t, c.Start(t.Context()))

	require.Eventually(t, func() bool { return polls.Load() >= 4 }, waitFor, tick)

	ctx, cancel := context.WithTimeout(t.Context(), waitFor)
	defer cancel()
	require.NoError(t, c.Stop(ctx))

	// The ticker is released: no polls after Stop returns.
	after := polls.Load()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, after, polls.Load())
	require.False(t, c.State().Loading)
}

func TestStop_IsIdempotentAndEndsTheSession(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	f := feedmock.NewMockFeed(ctrl)
	f.EXPECT().Name().Return("mock").AnyTimes()
	f.EXPECT().FetchHistorySeries(gomock.Any()).Return(nil, nil).AnyTimes()
	f.EXPECT().FetchCurrentPrice(gomock.Any()).Return(snap("1", "0"), nil).AnyTimes()

	c, _ := newTestController(t, f, WithInterval(time.Hour))

	require.False(t, c.Refresh(), "refresh before start is rejected")
	require.NoError(t, c.Start(t.Context()))
	require.NoError(t, c.Start(t.Context()), "second start is a no-op")

	ctx, cancel := context.WithTimeout(t.Context(), waitFor)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))

	require.False(t, c.Refresh(), "refresh after stop is rejected")
	require.NoError(t, c.Start(t.Context()), "a stopped session cannot be restarted")
	require.False(t, c.Refresh())
}

func TestStop_CancelsInFlightFetch(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	ctrl := gomock.NewController(t)
	f := feedmock.NewMockFeed(ctrl)
	f.EXPECT().Name().Return("mock").AnyTimes()
	f.EXPECT().FetchHistorySeries(gomock.Any()).Return(nil, nil).AnyTimes()
	f.EXPECT().
		FetchCurrentPrice(gomock.Any()).
		DoAndReturn(func(ctx context.Context) (*feed.Snapshot, error) {
			close(entered)
			<-ctx.Done()
			return nil, ctx.Err()
		}).
		Times(1)

	c, _ := newTestController(t, f, WithInterval(time.Hour), WithPollTimeout(time.Hour))
	require.NoError(t, c.Start(t.Context()))
	<-entered

	ctx, cancel := context.WithTimeout(t.Context(), waitFor)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.False(t, c.State().Loading)
}

// Overlapping polls are not single-flight: both complete, the last
// completion to arrive wins and loading is held until both are done.
func TestRefresh_OverlappingPollsLastWriterWins(t *testing.T) {
	t.Parallel()

	gates := []chan struct{}{make(chan struct{}), make(chan struct{})}
	entered := make(chan int, 2)
	prices := []string{"100", "200"}
	var calls atomic.Int64

	ctrl := gomock.NewController(t)
	f := feedmock.NewMockFeed(ctrl)
	f.EXPECT().Name().Return("mock").AnyTimes()
	f.EXPECT().FetchHistorySeries(gomock.Any()).Return(nil, nil).AnyTimes()
	f.EXPECT().
		FetchCurrentPrice(gomock.Any()).
		DoAndReturn(func(context.Context) (*feed.Snapshot, error) {
			i := int(calls.Add(1) - 1)
			entered <- i
			<-gates[i]
			return snap(prices[i], "0"), nil
		}).
		Times(2)

	c, _ := newTestController(t, f, WithInterval(time.Hour))

	// Scheduled (initial) poll is in flight.
	require.NoError(t, c.Start(t.Context()))
	require.Equal(t, 0, <-entered)

	// Manual refresh while it is still running.
	require.True(t, c.Refresh())
	require.Equal(t, 1, <-entered)
	require.True(t, c.State().Loading)

	// The refresh finishes first.
	close(gates[1])
	require.Eventually(t, func() bool { return c.State().CurrentPrice.Valid }, waitFor, tick)
	st := c.State()
	require.True(t, st.CurrentPrice.Decimal.Equal(decimal.NewFromInt(200)))
	require.True(t, st.Loading, "loading must hold while the scheduled poll is in flight")

	// The older poll arrives last and overwrites.
	close(gates[0])
	require.Eventually(t, func() bool { return !c.State().Loading }, waitFor, tick)

	st = c.State()
	require.True(t, st.CurrentPrice.Decimal.Equal(decimal.NewFromInt(100)))
	require.Len(t, st.History, 2)
	require.True(t, st.History[0].Price.Equal(decimal.NewFromInt(200)))
	require.True(t, st.History[1].Price.Equal(decimal.NewFromInt(100)))
	require.LessOrEqual(t, st.History[0].Time, st.History[1].Time)
}

func TestStop_DeadlineStillClosesSubscribers(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	ctrl := gomock.NewController(t)
	f := feedmock.NewMockFeed(ctrl)
	f.EXPECT().Name().Return("mock").AnyTimes()
	f.EXPECT().FetchHistorySeries(gomock.Any()).Return(nil, nil).AnyTimes()
	f.EXPECT().
		FetchCurrentPrice(gomock.Any()).
		DoAndReturn(func(context.Context) (*feed.Snapshot, error) {
			// Ignores cancellation so Stop runs out of time.
			close(entered)
			<-release
			return snap("1", "0"), nil
		}).
		Times(1)

	c, _ := newTestController(t, f, WithInterval(time.Hour), WithPollTimeout(time.Hour))
	ch, cancel := c.Subscribe()
	defer cancel()
	require.NoError(t, c.Start(t.Context()))
	<-entered

	ctx, stop := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer stop()
	require.ErrorIs(t, c.Stop(ctx), context.DeadlineExceeded)

	require.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, waitFor, tick)

	close(release)
	require.Eventually(t, func() bool { return !c.State().Loading }, waitFor, tick)
	require.NoError(t, c.Stop(t.Context()))
}

func TestStop_StoppedControllerRejectsPollAndSubscribe(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	f := feedmock.NewMockFeed(ctrl)
	f.EXPECT().Name().Return("mock").AnyTimes()
	f.EXPECT().FetchHistorySeries(gomock.Any()).Return(nil, nil).AnyTimes()
	// Only the initial poll reaches the feed.
	f.EXPECT().FetchCurrentPrice(gomock.Any()).Return(snap("50000", "2.5"), nil).Times(1)

	c, _ := newTestController(t, f, WithInterval(time.Hour))
	require.NoError(t, c.Start(t.Context()))
	require.Eventually(t, func() bool {
		st := c.State()
		return !st.Loading && st.CurrentPrice.Valid
	}, waitFor, tick)

	ctx, cancel := context.WithTimeout(t.Context(), waitFor)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	before := c.State()

	require.ErrorIs(t, c.Poll(t.Context()), ErrStopped)
	require.Equal(t, before, c.State())

	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()
	st, open := <-ch
	require.True(t, open)
	require.Equal(t, StatusReady, st.Status)
	_, open = <-ch
	require.False(t, open)
}
