package schema

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExecutionResult aggregates the trades produced from one batch of orders
// submitted in a single timestep.
type ExecutionResult struct {
	ID        string
	Timestamp time.Time
	Trades    []Trade
	Success   bool
}

// NewExecutionResult computes the overall success flag: true iff every
// standalone trade filled and every atomic group fully settled. One failed
// member fails its whole group.
func NewExecutionResult(ts time.Time, trades []Trade) ExecutionResult {
	success := true
	failedGroups := FailedGroups(trades)
	for _, trade := range trades {
		if trade.GroupID != "" {
			if failedGroups[trade.GroupID] {
				success = false
			}
			continue
		}
		if trade.Status != TradeStatusFilled {
			success = false
		}
	}
	return ExecutionResult{
		ID:        uuid.NewString(),
		Timestamp: ts,
		Trades:    trades,
		Success:   success,
	}
}

// FailedGroups returns the set of atomic group ids with at least one
// rejected or failed member.
func FailedGroups(trades []Trade) map[string]bool {
	failed := make(map[string]bool)
	for _, trade := range trades {
		if trade.GroupID == "" {
			continue
		}
		if !trade.Status.Settled() {
			failed[trade.GroupID] = true
		}
	}
	return failed
}

// NetDelta nets the position deltas of every settled trade, skipping all
// members of failed atomic groups so a broken group contributes nothing.
func (r ExecutionResult) NetDelta() map[AssetKey]decimal.Decimal {
	failedGroups := FailedGroups(r.Trades)
	net := make(map[AssetKey]decimal.Decimal)
	for _, trade := range r.Trades {
		if !trade.Status.Settled() {
			continue
		}
		if trade.GroupID != "" && failedGroups[trade.GroupID] {
			continue
		}
		for key, qty := range trade.PositionDelta {
			net[key] = net[key].Add(qty)
		}
	}
	return net
}
