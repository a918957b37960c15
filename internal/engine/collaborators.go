package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"main/internal/schema"
)

// MarketData is the per-timestep market view. The engine passes it through
// untouched; only the external collaborators interpret its keys.
type MarketData map[string]decimal.Decimal

// Exposure is the structured exposure result computed outside the core.
type Exposure map[schema.AssetKey]decimal.Decimal

// RiskAssessment is the structured risk result computed outside the core.
type RiskAssessment struct {
	Score   decimal.Decimal
	Metrics map[string]decimal.Decimal
}

// PnL is the per-step profit-and-loss result, computed once per step after
// execution so it reflects realized costs and fees.
type PnL struct {
	Realized   decimal.Decimal
	Unrealized decimal.Decimal
	Fees       decimal.Decimal
}

// Strategy turns the step's inputs into zero or more orders. It must be
// side-effect-free; an error is a recoverable failure for that timestep
// only.
type Strategy interface {
	Decide(ts time.Time, exposure Exposure, risk RiskAssessment, md MarketData) ([]schema.Order, error)
}

// DataProvider serves market data for a timestamp. Backtest implementations
// serve pre-loaded history, live implementations query external feeds; the
// engine treats both identically.
type DataProvider interface {
	Get(ts time.Time) (MarketData, error)
}

// ExposureCalculator is a pure function over snapshot and market data.
type ExposureCalculator interface {
	Exposure(snap schema.Snapshot, md MarketData) (Exposure, error)
}

// RiskCalculator is a pure function over snapshot, market data and exposure.
type RiskCalculator interface {
	Assess(snap schema.Snapshot, md MarketData, exposure Exposure) (RiskAssessment, error)
}

// PnLCalculator is a pure function over the post-execution snapshot, market
// data and the step's execution result (nil when no orders ran).
type PnLCalculator interface {
	Compute(snap schema.Snapshot, md MarketData, result *schema.ExecutionResult) (PnL, error)
}

// AccrualCalculator supplies accrual deltas for the SeasonalRewards and
// M2MPnL triggers in backtest mode (staking yield, funding settlement).
type AccrualCalculator interface {
	Accrue(trigger schema.Trigger, ts time.Time, snap schema.Snapshot, md MarketData) (map[schema.AssetKey]decimal.Decimal, error)
}
