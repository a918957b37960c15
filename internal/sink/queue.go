// Package sink carries step events to the side channels: the structured
// event logger and the results store. Sinks are fire-and-forget relative to
// the main pipeline; they never gate correctness of subsequent steps.
package sink

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/schema"
	"main/pkg/exception"
)

// StepEvent is the record emitted at the end of each engine timestep.
type StepEvent struct {
	Step       int
	Timestamp  time.Time
	Mode       schema.RunMode
	Orders     int
	Filled     int
	Failed     int
	Rejected   int
	Success    bool
	Aborted    bool
	Health     string
	ErrorCount int
	PnL        decimal.Decimal
	Fees       decimal.Decimal
	Err        string
	Terminal   bool
}

// Handler consumes step events.
type Handler func(StepEvent)

// Queue is a bounded, non-blocking event queue. Publishing never blocks the
// pipeline past enqueue; a full queue drops the event and counts it.
type Queue struct {
	ch     chan StepEvent
	closed uint32
	drops  uint64
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan StepEvent, capacity)}
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(e StepEvent) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return exception.ErrSinkClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		atomic.AddUint64(&q.drops, 1)
		return exception.ErrSinkQueueFull
	}
}

// Close stops the queue from accepting new events.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Drops returns the number of events dropped on a full queue.
func (q *Queue) Drops() uint64 {
	return atomic.LoadUint64(&q.drops)
}

// Run consumes events until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}
