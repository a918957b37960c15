package obs

import (
	"sync/atomic"
	"time"

	"main/internal/health"
	"main/internal/schema"
)

const (
	maxTradeStatus = int(schema.TradeStatusFailed)
	maxFailureKind = int(health.FailureKindData)
)

// Metrics collects lightweight counters and latency stats for the pipeline.
type Metrics struct {
	steps         uint64
	stepsAborted  uint64
	ordersIn      uint64
	tradeCounts   [maxTradeStatus + 1]uint64
	failureCounts [maxFailureKind + 1]uint64
	sinkDrops     uint64

	executeLatency LatencyStats
	settleLatency  LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Steps          uint64
	StepsAborted   uint64
	OrdersIn       uint64
	TradeCounts    map[schema.TradeStatus]uint64
	FailureCounts  map[health.FailureKind]uint64
	SinkDrops      uint64
	ExecuteLatency LatencySnapshot
	SettleLatency  LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveStep counts one completed or aborted timestep.
func (m *Metrics) ObserveStep(aborted bool) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.steps, 1)
	if aborted {
		atomic.AddUint64(&m.stepsAborted, 1)
	}
}

// ObserveBatch counts submitted orders and resulting trade statuses.
func (m *Metrics) ObserveBatch(orders int, trades []schema.Trade) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersIn, uint64(orders))
	for _, trade := range trades {
		idx := int(trade.Status)
		if idx >= 0 && idx < len(m.tradeCounts) {
			atomic.AddUint64(&m.tradeCounts[idx], 1)
		}
	}
}

// IncFailure counts one recorded failure by kind.
func (m *Metrics) IncFailure(kind health.FailureKind) {
	if m == nil {
		return
	}
	idx := int(kind)
	if idx >= 0 && idx < len(m.failureCounts) {
		atomic.AddUint64(&m.failureCounts[idx], 1)
	}
}

// AddSinkDrops records dropped sink events.
func (m *Metrics) AddSinkDrops(n uint64) {
	if m == nil || n == 0 {
		return
	}
	atomic.AddUint64(&m.sinkDrops, n)
}

// ObserveExecute tracks venue execution latency.
func (m *Metrics) ObserveExecute(d time.Duration) {
	if m == nil {
		return
	}
	m.executeLatency.Observe(d)
}

// ObserveSettle tracks reconciliation latency.
func (m *Metrics) ObserveSettle(d time.Duration) {
	if m == nil {
		return
	}
	m.settleLatency.Observe(d)
}

// Snapshot captures the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	snap := Snapshot{
		Steps:          atomic.LoadUint64(&m.steps),
		StepsAborted:   atomic.LoadUint64(&m.stepsAborted),
		OrdersIn:       atomic.LoadUint64(&m.ordersIn),
		TradeCounts:    make(map[schema.TradeStatus]uint64),
		FailureCounts:  make(map[health.FailureKind]uint64),
		SinkDrops:      atomic.LoadUint64(&m.sinkDrops),
		ExecuteLatency: m.executeLatency.Snapshot(),
		SettleLatency:  m.settleLatency.Snapshot(),
	}
	for i := range m.tradeCounts {
		if v := atomic.LoadUint64(&m.tradeCounts[i]); v != 0 {
			snap.TradeCounts[schema.TradeStatus(i)] = v
		}
	}
	for i := range m.failureCounts {
		if v := atomic.LoadUint64(&m.failureCounts[i]); v != 0 {
			snap.FailureCounts[health.FailureKind(i)] = v
		}
	}
	return snap
}

// Observe adds one latency sample.
func (s *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	v := uint64(d)
	atomic.AddUint64(&s.count, 1)
	atomic.AddUint64(&s.sum, v)
	for {
		cur := atomic.LoadUint64(&s.min)
		if cur != 0 && cur <= v {
			break
		}
		if atomic.CompareAndSwapUint64(&s.min, cur, v) {
			break
		}
	}
	for {
		cur := atomic.LoadUint64(&s.max)
		if cur >= v {
			break
		}
		if atomic.CompareAndSwapUint64(&s.max, cur, v) {
			break
		}
	}
}

// Snapshot returns aggregated latency values.
func (s *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&s.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&s.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&s.min)),
		Max:   time.Duration(atomic.LoadUint64(&s.max)),
		Avg:   time.Duration(sum / count),
	}
}
