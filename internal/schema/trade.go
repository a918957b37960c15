package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus describes the outcome of one execution attempt.
type TradeStatus uint16

const (
	TradeStatusUnknown TradeStatus = iota
	TradeStatusFilled
	TradeStatusPartiallyFilled
	TradeStatusRejected
	TradeStatusFailed
)

func (s TradeStatus) String() string {
	switch s {
	case TradeStatusFilled:
		return "FILLED"
	case TradeStatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case TradeStatusRejected:
		return "REJECTED"
	case TradeStatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Settled reports whether the trade carries position deltas to reconcile.
func (s TradeStatus) Settled() bool {
	return s == TradeStatusFilled || s == TradeStatusPartiallyFilled
}

// Trade is the result of attempting to execute one order, or one whole atomic
// group. A rejected or failed trade never carries position deltas.
type Trade struct {
	OrderID        string
	GroupID        string
	Status         TradeStatus
	PositionDelta  map[AssetKey]decimal.Decimal
	Fees           decimal.Decimal
	RealizedCost   decimal.Decimal
	VenueTimestamp time.Time
	Err            string
}

// NewSettledTrade builds a filled or partially filled trade with deltas.
func NewSettledTrade(orderID, groupID string, status TradeStatus, delta map[AssetKey]decimal.Decimal, fees, cost decimal.Decimal, ts time.Time) Trade {
	if !status.Settled() {
		status = TradeStatusFilled
	}
	return Trade{
		OrderID:        orderID,
		GroupID:        groupID,
		Status:         status,
		PositionDelta:  delta,
		Fees:           fees,
		RealizedCost:   cost,
		VenueTimestamp: ts,
	}
}

// NewRejectedTrade builds a rejection outcome without deltas.
func NewRejectedTrade(orderID, groupID string, err error, ts time.Time) Trade {
	return Trade{
		OrderID:        orderID,
		GroupID:        groupID,
		Status:         TradeStatusRejected,
		VenueTimestamp: ts,
		Err:            errString(err),
	}
}

// NewFailedTrade builds a venue failure outcome without deltas.
func NewFailedTrade(orderID, groupID string, err error, ts time.Time) Trade {
	return Trade{
		OrderID:        orderID,
		GroupID:        groupID,
		Status:         TradeStatusFailed,
		VenueTimestamp: ts,
		Err:            errString(err),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
