package schema

import (
	"github.com/shopspring/decimal"

	"main/pkg/exception"
)

// Order is a validated command to act on a venue. Orders are immutable once
// constructed and flow through the pipeline by value.
type Order struct {
	ID            string
	Operation     Operation
	Tier          ExecutionTier
	AtomicGroupID string
	Venue         string
	TokenIn       string
	TokenOut      string
	Amount        decimal.Decimal
	Side          Side
	TakeProfit    *decimal.Decimal
	StopLoss      *decimal.Decimal

	// Provenance tags, opaque to the engine.
	StrategyIntent string
	StrategyID     string
}

// Validate rejects malformed orders before dispatch.
func (o Order) Validate() error {
	if o.ID == "" {
		return exception.ErrOrderMissingID
	}
	if _, ok := operationNames[o.Operation]; !ok {
		return exception.ErrOrderUnknownOperation
	}
	if o.Venue == "" {
		return exception.ErrOrderMissingVenue
	}
	if o.Amount.IsNegative() {
		return exception.ErrOrderNegativeAmount
	}
	switch o.Tier {
	case ExecutionTierSequential:
		if o.AtomicGroupID != "" {
			return exception.ErrOrderSequentialWithGroup
		}
	case ExecutionTierAtomic:
		if o.AtomicGroupID == "" {
			return exception.ErrOrderAtomicWithoutGroup
		}
	default:
		return exception.ErrOrderUnknownTier
	}
	return nil
}

// Atomic reports whether the order belongs to an atomic group.
func (o Order) Atomic() bool {
	return o.Tier == ExecutionTierAtomic && o.AtomicGroupID != ""
}
