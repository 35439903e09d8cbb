package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"pricesync/internal/feed"
	"pricesync/internal/feed/feedmock"
	"pricesync/internal/feed/ratelimit"
)

func TestFeed_PassesThroughWithinBudget(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inner := feedmock.NewMockFeed(ctrl)
	want := &feed.Snapshot{Price: decimal.NewFromInt(1), Change24h: decimal.Zero}
	inner.EXPECT().Name().Return("inner")
	inner.EXPECT().FetchCurrentPrice(gomock.Any()).Return(want, nil).Times(1)
	inner.EXPECT().FetchHistorySeries(gomock.Any()).Return([]feed.PricePoint{{Time: 1}}, nil).Times(1)

	f := ratelimit.Wrap(inner, ratelimit.PerMinute(60, 2))
	require.Equal(t, "inner", f.Name())

	got, err := f.FetchCurrentPrice(t.Context())
	require.NoError(t, err)
	require.Same(t, want, got)

	points, err := f.FetchHistorySeries(t.Context())
	require.NoError(t, err)
	require.Len(t, points, 1)
}

func TestFeed_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inner := feedmock.NewMockFeed(ctrl)
	// Only the first call reaches the inner feed.
	inner.EXPECT().FetchCurrentPrice(gomock.Any()).Return(nil, nil).Times(1)

	f := ratelimit.Wrap(inner, ratelimit.MinInterval(time.Hour))

	_, err := f.FetchCurrentPrice(t.Context())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, err = f.FetchCurrentPrice(ctx)
	require.Error(t, err)
}

func TestWrap_NilLimiter(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inner := feedmock.NewMockFeed(ctrl)

	require.Same(t, feed.Feed(inner), ratelimit.Wrap(inner, nil))
}

func TestPerMinute_Disabled(t *testing.T) {
	t.Parallel()

	l := ratelimit.PerMinute(0, 0)
	for range 100 {
		require.True(t, l.Allow())
	}
}
