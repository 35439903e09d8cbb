// Package pricesync keeps a session's view of the spot price in sync with a
// price feed: the initial load, recurring polling, manual refresh and the
// rolling history used for charting.
//
// Polls are not single-flight. A manual refresh issued while a scheduled
// poll is in flight runs concurrently; completions are applied in arrival
// order (last writer wins) and Loading stays true until every in-flight poll
// has finished.
package pricesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pricesync/internal/feed"
	"pricesync/internal/history"
	"pricesync/internal/metrics"
)

const (
	DefaultInterval    = 30 * time.Second
	DefaultPollTimeout = 10 * time.Second
)

// Controller owns the session state. It is the only writer; consumers read
// immutable snapshots via State or Subscribe.
type Controller struct {
	feed        feed.Feed
	interval    time.Duration
	pollTimeout time.Duration
	capacity    int
	log         logrus.FieldLogger
	now         func() time.Time

	mu          sync.Mutex
	price       decimal.NullDecimal
	change      decimal.NullDecimal
	lastUpdated *time.Time
	errMsg      string
	history     history.Buffer
	inflight    int
	subs        map[int]chan State
	nextSub     int
	subsClosed  bool

	lifeMu  sync.Mutex
	running bool
	stopped bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithInterval sets the recurring poll cadence.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithPollTimeout bounds each individual fetch.
func WithPollTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pollTimeout = d
		}
	}
}

// WithHistoryCapacity sets the maximum number of samples kept for charting.
func WithHistoryCapacity(n int) Option {
	return func(c *Controller) { c.capacity = n }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithClock overrides the time source used for LastUpdated and sample times.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a controller for f. Nothing runs until Start.
func New(f feed.Feed, opts ...Option) *Controller {
	c := &Controller{
		feed:        f,
		interval:    DefaultInterval,
		pollTimeout: DefaultPollTimeout,
		capacity:    history.DefaultCapacity,
		log:         logrus.StandardLogger().WithField("component", "pricesync"),
		now:         time.Now,
		subs:        make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.history = history.New(c.capacity)
	return c
}

// Start begins the session: the history seed fetch and the first poll are
// issued concurrently and the recurring ticker is armed. The controller is
// in the loading state when Start returns. Calling Start on a running or
// stopped controller does nothing.
func (c *Controller) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	if c.running || c.stopped {
		c.lifeMu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.runCtx = runCtx
	c.cancel = cancel
	c.running = true
	c.wg.Add(3)
	c.lifeMu.Unlock()

	c.begin()
	go func() {
		defer c.wg.Done()
		c.seedHistory(runCtx)
	}()
	go func() {
		defer c.wg.Done()
		_ = c.run(runCtx)
	}()
	go func() {
		defer c.wg.Done()
		c.loop(runCtx)
	}()

	c.log.WithFields(logrus.Fields{
		"feed":     c.feed.Name(),
		"interval": c.interval.String(),
	}).Info("price sync started")
	return nil
}

// Stop tears the session down: the ticker is released, in-flight fetches
// are canceled and Stop waits for background work or ctx, whichever ends
// first. Subscriber channels are closed on return either way; a poll still
// running after ctx expired completes without reaching any subscriber.
func (c *Controller) Stop(ctx context.Context) error {
	c.lifeMu.Lock()
	if !c.running {
		c.lifeMu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.running = false
	c.stopped = true
	c.cancel = nil
	c.lifeMu.Unlock()

	cancel()
	defer c.closeSubscribers()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.log.WithError(ctx.Err()).Warn("price sync stopped before background work finished")
		return ctx.Err()
	}

	c.log.Info("price sync stopped")
	return nil
}

// Refresh triggers one poll in the background, exactly like a scheduled
// one. It is neither queued nor coalesced with polls already in flight.
// Loading is asserted before Refresh returns. It reports false when the
// session is not running.
func (c *Controller) Refresh() bool {
	c.lifeMu.Lock()
	if !c.running {
		c.lifeMu.Unlock()
		return false
	}
	ctx := c.runCtx
	c.wg.Add(1)
	c.lifeMu.Unlock()

	c.begin()
	go func() {
		defer c.wg.Done()
		_ = c.run(ctx)
	}()
	return true
}

// Poll runs one poll synchronously and returns its outcome: nil, ErrNoData
// or an error wrapping ErrTransport. The outcome is also applied to the
// session state. A stopped controller returns ErrStopped and is left as is.
func (c *Controller) Poll(ctx context.Context) error {
	c.lifeMu.Lock()
	stopped := c.stopped
	c.lifeMu.Unlock()
	if stopped {
		return ErrStopped
	}
	c.begin()
	return c.run(ctx)
}

// State returns a snapshot of the session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) loop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			c.wg.Add(1)
			c.begin()
			go func() {
				defer c.wg.Done()
				_ = c.run(ctx)
			}()
		}
	}
}

// begin marks the start of a poll attempt: loading on, error cleared.
func (c *Controller) begin() {
	c.mu.Lock()
	c.inflight++
	c.errMsg = ""
	c.publishLocked(c.snapshotLocked())
	c.mu.Unlock()
	metrics.PollStarted()
}

// run performs the fetch of a poll already opened with begin. complete is
// deferred so loading is released on every path, including a panicking feed.
func (c *Controller) run(ctx context.Context) (err error) {
	started := time.Now()
	var res pollResult
	defer func() {
		if rec := recover(); rec != nil {
			res = pollResult{err: fmt.Errorf("%w: panic: %v", ErrTransport, rec)}
		}
		err = res.err
		c.complete(res, time.Since(started))
	}()

	res = c.fetch(ctx)
	return res.err
}

func (c *Controller) fetch(ctx context.Context) pollResult {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	snap, err := c.feed.FetchCurrentPrice(ctx)
	switch {
	case err != nil:
		return pollResult{err: fmt.Errorf("%w: %w", ErrTransport, err)}
	case snap == nil:
		return pollResult{err: ErrNoData}
	}
	return pollResult{snap: snap}
}

// complete applies a poll outcome and ends the attempt in one critical
// section, so price fields and the history append are never seen apart.
func (c *Controller) complete(res pollResult, elapsed time.Duration) {
	outcome := metrics.OutcomeSuccess

	c.mu.Lock()
	c.inflight--
	switch {
	case res.err == nil && res.snap != nil:
		now := c.now()
		c.price = decimal.NewNullDecimal(res.snap.Price)
		c.change = decimal.NewNullDecimal(res.snap.Change24h)
		c.lastUpdated = &now
		c.history = c.history.Append(feed.PricePoint{Time: c.sampleTime(now), Price: res.snap.Price})
		c.errMsg = ""
	case errors.Is(res.err, ErrNoData):
		c.errMsg = MsgFetchFailed
		outcome = metrics.OutcomeNoData
	default:
		c.errMsg = MsgUnexpected
		outcome = metrics.OutcomeError
	}
	st := c.snapshotLocked()
	c.publishLocked(st)
	c.mu.Unlock()

	metrics.PollFinished(outcome, elapsed)
	if outcome == metrics.OutcomeSuccess {
		metrics.PriceApplied(res.snap.Price.InexactFloat64(), *st.LastUpdated, len(st.History))
		c.log.WithFields(logrus.Fields{
			"price":     res.snap.Price.String(),
			"change24h": res.snap.Change24h.String(),
			"samples":   len(st.History),
		}).Debug("price poll applied")
		return
	}
	c.log.WithError(res.err).WithField("outcome", outcome).Warn("price poll failed")
}

// sampleTime keeps history non-decreasing when the clock steps backwards.
// Caller holds c.mu.
func (c *Controller) sampleTime(now time.Time) int64 {
	ts := now.UnixMilli()
	if last, ok := c.history.Last(); ok && ts < last.Time {
		return last.Time
	}
	return ts
}

// seedHistory fills the buffer once at startup. Failures only degrade the
// chart and are never surfaced as session errors.
func (c *Controller) seedHistory(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.Seeded("failed", 0)
			c.log.WithField("panic", rec).Warn("history seed failed")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	points, err := c.feed.FetchHistorySeries(ctx)
	if err != nil {
		metrics.Seeded("failed", 0)
		c.log.WithError(err).Warn("history seed failed")
		return
	}
	if len(points) == 0 {
		metrics.Seeded("empty", 0)
		c.log.Debug("history seed empty")
		return
	}

	c.mu.Lock()
	c.history = c.history.Seed(points)
	n := c.history.Len()
	c.publishLocked(c.snapshotLocked())
	c.mu.Unlock()

	metrics.Seeded("applied", n)
	c.log.WithField("samples", n).Info("history seeded")
}

func (c *Controller) snapshotLocked() State {
	st := State{
		CurrentPrice: c.price,
		Change24h:    c.change,
		Loading:      c.inflight > 0,
		Error:        c.errMsg,
		History:      c.history.Points(),
	}
	if c.lastUpdated != nil {
		t := *c.lastUpdated
		st.LastUpdated = &t
	}
	if st.History == nil {
		st.History = []feed.PricePoint{}
	}
	switch {
	case st.Loading:
		st.Status = StatusLoading
	case st.Error != "":
		st.Status = StatusError
	case st.CurrentPrice.Valid:
		st.Status = StatusReady
	default:
		st.Status = StatusIdle
	}
	return st
}
