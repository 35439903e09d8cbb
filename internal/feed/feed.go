package feed

import (
	"context"

	"github.com/shopspring/decimal"
)

// PricePoint is a single time-stamped price sample.
// Time is in epoch milliseconds.
type PricePoint struct {
	Time  int64           `json:"time"`
	Price decimal.Decimal `json:"price"`
}

// Snapshot is the current price and 24h percentage change returned by one
// successful poll. Both fields are always set together.
type Snapshot struct {
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change24h"`
}

// Feed is a read-only price source for a single asset.
//
//go:generate mockgen -package=feedmock -destination=feedmock/mock_feed.go -source=feed.go Feed
type Feed interface {
	Name() string
	// FetchCurrentPrice returns (nil, nil) when the upstream answered but the
	// payload carried no usable price. Transport and status failures are
	// returned as errors.
	FetchCurrentPrice(ctx context.Context) (*Snapshot, error)
	// FetchHistorySeries returns recent samples ordered oldest to newest.
	FetchHistorySeries(ctx context.Context) ([]PricePoint, error)
}
