// Package engine sequences the per-timestep pipeline and owns the
// authoritative clock. The pipeline is synchronous: timestep n+1 never
// begins before timestep n's reconciliation has completed, so financial
// state is never read while a mutation is in flight.
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yanun0323/errors"

	"main/internal/health"
	"main/internal/obs"
	"main/internal/position"
	"main/internal/reconcile"
	"main/internal/schema"
	"main/internal/sink"
	"main/internal/venue"
	"main/pkg/exception"
)

// Deps wires every collaborator into the engine. It is constructed once per
// run and passed explicitly; no component reaches for ambient state.
type Deps struct {
	Mode        schema.RunMode
	Store       *position.Store
	Coordinator *venue.Coordinator
	Handshake   *reconcile.Handshake
	Health      *health.Machine
	Clock       Clock

	Strategy Strategy
	Data     DataProvider
	Exposure ExposureCalculator
	Risk     RiskCalculator
	PnL      PnLCalculator
	Accrual  AccrualCalculator

	Sinks   []*sink.Queue
	Metrics *obs.Metrics
	Logger  *logrus.Entry

	// AccrualEverySteps applies SeasonalRewards and M2MPnL every N steps in
	// backtest mode. Zero disables accrual.
	AccrualEverySteps int
	// RefreshInterval is the live-mode PositionRefresh cadence, distinct
	// from the strategy cadence.
	RefreshInterval time.Duration
}

func (d Deps) validate() error {
	switch {
	case d.Mode != schema.RunModeBacktest && d.Mode != schema.RunModeLive:
		return errors.New("engine: run mode must be backtest or live")
	case d.Store == nil:
		return errors.New("engine: nil position store")
	case d.Coordinator == nil:
		return errors.New("engine: nil venue coordinator")
	case d.Handshake == nil:
		return errors.New("engine: nil reconciliation handshake")
	case d.Health == nil:
		return errors.New("engine: nil health machine")
	case d.Clock == nil:
		return errors.New("engine: nil clock")
	case d.Strategy == nil:
		return errors.New("engine: nil strategy")
	case d.Data == nil:
		return errors.New("engine: nil data provider")
	case d.Exposure == nil:
		return errors.New("engine: nil exposure calculator")
	case d.Risk == nil:
		return errors.New("engine: nil risk calculator")
	case d.PnL == nil:
		return errors.New("engine: nil pnl calculator")
	case d.Metrics == nil:
		return errors.New("engine: nil metrics")
	}
	if d.AccrualEverySteps > 0 && d.Accrual == nil {
		return errors.New("engine: accrual cadence set without accrual calculator")
	}
	if d.Mode == schema.RunModeLive && d.RefreshInterval <= 0 {
		return errors.New("engine: live mode requires a refresh interval")
	}
	return nil
}

// Engine drives the tight loop.
type Engine struct {
	deps Deps
	log  *logrus.Entry

	step        int
	lastRefresh time.Time

	latestExposure Exposure
	latestRisk     RiskAssessment
	latestPnL      PnL
}

// New constructs an engine from its dependencies.
func New(deps Deps) (*Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	log := deps.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		deps: deps,
		log:  log.WithField("component", "engine"),
	}, nil
}

// LatestExposure returns the most recent exposure result for display.
func (e *Engine) LatestExposure() Exposure { return e.latestExposure }

// LatestRisk returns the most recent risk result for display.
func (e *Engine) LatestRisk() RiskAssessment { return e.latestRisk }

// LatestPnL returns the most recent P&L result for display.
func (e *Engine) LatestPnL() PnL { return e.latestPnL }

// Run executes the per-timestep pipeline until the clock ends or the health
// machine reaches SystemFailure. Initial capital is seeded exactly once
// before the first step.
func (e *Engine) Run(ctx context.Context) error {
	first := true
	for {
		ts, ok := e.deps.Clock.Next(ctx)
		if !ok {
			e.log.WithField("steps", e.step).Info("run complete")
			return nil
		}
		if first {
			if _, err := e.deps.Store.Apply(schema.TriggerInitialCapital, ts, nil); err != nil {
				return errors.Wrap(err, "seed initial capital")
			}
			e.lastRefresh = ts
			first = false
		}
		e.step++

		if err := e.runStep(ctx, ts); err != nil {
			return err
		}
		if e.deps.Health.Terminal() {
			return e.terminate(ts)
		}
	}
}

// runStep runs one iteration of the pipeline. Recoverable failures abort
// the step without advancing derived state; only SystemFailure stops the
// clock.
func (e *Engine) runStep(ctx context.Context, ts time.Time) error {
	if e.deps.Mode == schema.RunModeLive && ts.Sub(e.lastRefresh) >= e.deps.RefreshInterval {
		e.refresh(ctx, ts)
		if e.deps.Health.Terminal() {
			return nil
		}
	}

	snap := e.deps.Store.Current(ts)

	md, err := e.deps.Data.Get(ts)
	if err != nil {
		e.recordFailure(health.FailureKindData, ts, err)
		e.emitAborted(ts, 0, err)
		return nil
	}

	if e.deps.Mode == schema.RunModeBacktest && e.deps.AccrualEverySteps > 0 && e.step%e.deps.AccrualEverySteps == 0 {
		if err := e.accrue(ts, snap, md); err != nil {
			e.recordFailure(health.FailureKindReconciliation, ts, err)
			e.emitAborted(ts, 0, err)
			return nil
		}
		snap = e.deps.Store.Current(ts)
	}

	exposure, err := e.deps.Exposure.Exposure(snap, md)
	if err != nil {
		e.recordFailure(health.FailureKindData, ts, err)
		e.emitAborted(ts, 0, err)
		return nil
	}
	risk, err := e.deps.Risk.Assess(snap, md, exposure)
	if err != nil {
		e.recordFailure(health.FailureKindData, ts, err)
		e.emitAborted(ts, 0, err)
		return nil
	}
	e.latestExposure = exposure
	e.latestRisk = risk

	orders, err := e.deps.Strategy.Decide(ts, exposure, risk, md)
	if err != nil {
		e.recordFailure(health.FailureKindStrategy, ts, err)
		e.emitAborted(ts, 0, err)
		return nil
	}

	var result *schema.ExecutionResult
	if len(orders) > 0 {
		started := time.Now()
		res := e.deps.Coordinator.Execute(ctx, orders)
		e.deps.Metrics.ObserveExecute(time.Since(started))
		e.deps.Metrics.ObserveBatch(len(orders), res.Trades)
		result = &res

		e.countTradeFailures(res, ts)
		if e.deps.Health.Terminal() {
			return nil
		}
		if !res.Success && !hasSettledTrades(res) {
			// nothing executed, nothing to reconcile
			e.emitAborted(ts, len(orders), errors.New("execution batch failed"))
			return nil
		}

		started = time.Now()
		snap, err = e.deps.Handshake.Settle(res)
		e.deps.Metrics.ObserveSettle(time.Since(started))
		if err != nil {
			e.recordFailure(health.FailureKindReconciliation, ts, err)
			e.emitAborted(ts, len(orders), err)
			return nil
		}

		if e.deps.Mode == schema.RunModeLive {
			e.refresh(ctx, ts)
			if e.deps.Health.Terminal() {
				return nil
			}
		}
	}

	pnl, err := e.deps.PnL.Compute(snap, md, result)
	if err != nil {
		e.recordFailure(health.FailureKindData, ts, err)
		e.emitAborted(ts, len(orders), err)
		return nil
	}
	e.latestPnL = pnl

	e.emitStep(ts, orders, result, pnl)
	e.deps.Metrics.ObserveStep(false)
	return nil
}

// refresh re-queries venue truth in live mode and escalates drift.
func (e *Engine) refresh(ctx context.Context, ts time.Time) {
	e.lastRefresh = ts
	if _, err := e.deps.Handshake.Refresh(ctx, ts); err != nil {
		e.recordFailure(health.FailureKindReconciliation, ts, err)
	}
}

// accrue applies the periodic backtest accrual triggers one at a time.
func (e *Engine) accrue(ts time.Time, snap schema.Snapshot, md MarketData) error {
	for _, trigger := range []schema.Trigger{schema.TriggerSeasonalRewards, schema.TriggerM2MPnL} {
		deltas, err := e.deps.Accrual.Accrue(trigger, ts, snap, md)
		if err != nil {
			return errors.Wrap(err, "compute accrual "+trigger.String())
		}
		if len(deltas) == 0 {
			continue
		}
		if _, err := e.deps.Store.Apply(trigger, ts, deltas); err != nil {
			return errors.Wrap(err, "apply accrual "+trigger.String())
		}
	}
	return nil
}

// countTradeFailures feeds the error budget: one validation error per
// rejected trade, one execution error per failed trade. A failed atomic
// group is a single failed trade, so it counts exactly once.
func (e *Engine) countTradeFailures(res schema.ExecutionResult, ts time.Time) {
	for _, trade := range res.Trades {
		switch trade.Status {
		case schema.TradeStatusRejected:
			e.recordFailure(health.FailureKindValidation, ts, errors.New(trade.Err))
		case schema.TradeStatusFailed:
			e.recordFailure(health.FailureKindExecution, ts, errors.New(trade.Err))
		}
		if e.deps.Health.Terminal() {
			return
		}
	}
}

func (e *Engine) recordFailure(kind health.FailureKind, ts time.Time, err error) {
	state := e.deps.Health.Record(kind, ts, err.Error())
	e.deps.Metrics.IncFailure(kind)
	e.log.WithError(err).WithFields(logrus.Fields{
		"kind":        kind.String(),
		"health":      state.String(),
		"error_count": e.deps.Health.ErrorCount(),
	}).Warn("failure recorded")
}

// terminate writes the terminal record and stops the run. The process must
// signal its host for a fresh instance; there is no self-repair.
func (e *Engine) terminate(ts time.Time) error {
	rec := e.deps.Health.TerminalRecord()
	cause := "system failure"
	if rec != nil {
		cause = rec.Cause
	}
	e.emit(sink.StepEvent{
		Step:       e.step,
		Timestamp:  ts,
		Mode:       e.deps.Mode,
		Health:     e.deps.Health.State().String(),
		ErrorCount: e.deps.Health.ErrorCount(),
		Err:        cause,
		Terminal:   true,
	})
	e.log.WithFields(logrus.Fields{
		"cause":       cause,
		"error_count": e.deps.Health.ErrorCount(),
	}).Error("system failure, halting clock")
	return exception.ErrSystemFailure
}

func (e *Engine) emitStep(ts time.Time, orders []schema.Order, result *schema.ExecutionResult, pnl PnL) {
	event := sink.StepEvent{
		Step:       e.step,
		Timestamp:  ts,
		Mode:       e.deps.Mode,
		Orders:     len(orders),
		Success:    true,
		Health:     e.deps.Health.State().String(),
		ErrorCount: e.deps.Health.ErrorCount(),
		PnL:        pnl.Realized,
		Fees:       pnl.Fees,
	}
	if result != nil {
		event.Success = result.Success
		for _, trade := range result.Trades {
			switch trade.Status {
			case schema.TradeStatusFilled, schema.TradeStatusPartiallyFilled:
				event.Filled++
			case schema.TradeStatusFailed:
				event.Failed++
			case schema.TradeStatusRejected:
				event.Rejected++
			}
		}
	}
	e.emit(event)
}

func (e *Engine) emitAborted(ts time.Time, orders int, cause error) {
	e.deps.Metrics.ObserveStep(true)
	e.emit(sink.StepEvent{
		Step:       e.step,
		Timestamp:  ts,
		Mode:       e.deps.Mode,
		Orders:     orders,
		Aborted:    true,
		Health:     e.deps.Health.State().String(),
		ErrorCount: e.deps.Health.ErrorCount(),
		PnL:        decimal.Zero,
		Err:        cause.Error(),
	})
}

// emit fans the event out to every sink without blocking the pipeline.
func (e *Engine) emit(event sink.StepEvent) {
	for _, queue := range e.deps.Sinks {
		if err := queue.TryPublish(event); err != nil {
			e.deps.Metrics.AddSinkDrops(1)
		}
	}
}

func hasSettledTrades(res schema.ExecutionResult) bool {
	failedGroups := schema.FailedGroups(res.Trades)
	for _, trade := range res.Trades {
		if !trade.Status.Settled() {
			continue
		}
		if trade.GroupID != "" && failedGroups[trade.GroupID] {
			continue
		}
		return true
	}
	return false
}
