package pricesync

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"pricesync/internal/feed"
)

// Status is the controller state derived from the session fields.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// User-facing messages. Soft and hard failures are deliberately not
// distinguished here; use errors.Is on the Poll result for that.
const (
	MsgFetchFailed = "Failed to fetch price data."
	MsgUnexpected  = "An unexpected error occurred."
)

var (
	// ErrNoData reports a poll whose feed answered without a usable price.
	ErrNoData = errors.New("price feed returned no usable data")
	// ErrTransport wraps network, status and decoding failures of a poll.
	ErrTransport = errors.New("price feed request failed")
	// ErrStopped is returned by Poll once the session has been stopped.
	ErrStopped = errors.New("price sync stopped")
)

// State is an immutable snapshot of the session. Absent values are the zero
// NullDecimal, a nil LastUpdated and an empty Error.
type State struct {
	CurrentPrice decimal.NullDecimal `json:"currentPrice"`
	Change24h    decimal.NullDecimal `json:"change24h"`
	LastUpdated  *time.Time          `json:"lastUpdated"`
	Loading      bool                `json:"loading"`
	Error        string              `json:"error,omitempty"`
	Status       Status              `json:"status"`
	// History is shared with the controller and must not be modified.
	History []feed.PricePoint `json:"history"`
}

// InitialLoad reports whether a poll is running and no price was ever shown.
func (s State) InitialLoad() bool { return s.Loading && !s.CurrentPrice.Valid }

// HistoryReady reports whether there is anything to chart.
func (s State) HistoryReady() bool { return len(s.History) > 0 }

// pollResult is the outcome of one fetch, applied atomically by complete.
type pollResult struct {
	snap *feed.Snapshot
	err  error
}
