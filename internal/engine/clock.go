package engine

import (
	"context"
	"time"
)

// Clock yields the next authoritative timestamp. Returning false ends the
// run: the historical range is exhausted, or a stop was requested. The stop
// signal is honored here and only here — mid-pipeline cancellation could
// leave a submitted atomic group unreconciled.
type Clock interface {
	Next(ctx context.Context) (time.Time, bool)
}

// HistoryClock replays a fixed historical timestamp range for backtests.
type HistoryClock struct {
	timestamps []time.Time
	idx        int
}

// NewHistoryClock creates a clock over the given timestamps.
func NewHistoryClock(timestamps []time.Time) *HistoryClock {
	return &HistoryClock{timestamps: timestamps}
}

// Next returns the next historical timestamp.
func (c *HistoryClock) Next(ctx context.Context) (time.Time, bool) {
	if ctx.Err() != nil {
		return time.Time{}, false
	}
	if c.idx >= len(c.timestamps) {
		return time.Time{}, false
	}
	ts := c.timestamps[c.idx]
	c.idx++
	return ts, true
}

// WallClock ticks at a fixed interval for live runs.
type WallClock struct {
	interval time.Duration
	ticker   *time.Ticker
}

// NewWallClock creates a live clock with the given tick interval.
func NewWallClock(interval time.Duration) *WallClock {
	if interval <= 0 {
		interval = time.Second
	}
	return &WallClock{interval: interval}
}

// Next blocks until the next tick or stop.
func (c *WallClock) Next(ctx context.Context) (time.Time, bool) {
	if c.ticker == nil {
		c.ticker = time.NewTicker(c.interval)
	}
	select {
	case <-ctx.Done():
		c.ticker.Stop()
		return time.Time{}, false
	case ts := <-c.ticker.C:
		return ts.UTC(), true
	}
}
