package schema

// Operation defines what an order asks a venue to do.
type Operation uint16

const (
	OperationUnknown Operation = iota
	OperationSpotTrade
	OperationPerpTrade
	OperationSupply
	OperationWithdraw
	OperationBorrow
	OperationRepay
	OperationStake
	OperationUnstake
	OperationSwap
	OperationTransfer
	OperationFlashBorrow
	OperationFlashRepay
)

var operationNames = map[Operation]string{
	OperationSpotTrade:   "SPOT_TRADE",
	OperationPerpTrade:   "PERP_TRADE",
	OperationSupply:      "SUPPLY",
	OperationWithdraw:    "WITHDRAW",
	OperationBorrow:      "BORROW",
	OperationRepay:       "REPAY",
	OperationStake:       "STAKE",
	OperationUnstake:     "UNSTAKE",
	OperationSwap:        "SWAP",
	OperationTransfer:    "TRANSFER",
	OperationFlashBorrow: "FLASH_BORROW",
	OperationFlashRepay:  "FLASH_REPAY",
}

func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// ExecutionTier describes how an order is executed relative to its batch.
type ExecutionTier uint16

const (
	ExecutionTierUnknown ExecutionTier = iota
	ExecutionTierSequential
	ExecutionTierAtomic
)

func (t ExecutionTier) String() string {
	switch t {
	case ExecutionTierSequential:
		return "SEQUENTIAL"
	case ExecutionTierAtomic:
		return "ATOMIC"
	default:
		return "UNKNOWN"
	}
}

// Side describes trade direction for spot and perp operations.
type Side uint16

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// VenueKind separates centralized exchanges from on-chain protocols.
type VenueKind uint16

const (
	VenueKindUnknown VenueKind = iota
	VenueKindCEX
	VenueKindOnChain
)

func (k VenueKind) String() string {
	switch k {
	case VenueKindCEX:
		return "CEX"
	case VenueKindOnChain:
		return "ONCHAIN"
	default:
		return "UNKNOWN"
	}
}

// RunMode selects the authoritative position source.
type RunMode uint16

const (
	RunModeUnknown RunMode = iota
	RunModeBacktest
	RunModeLive
)

func (m RunMode) String() string {
	switch m {
	case RunModeBacktest:
		return "BACKTEST"
	case RunModeLive:
		return "LIVE"
	default:
		return "UNKNOWN"
	}
}

// Trigger enumerates why the position store was mutated. A trigger is created
// by the engine at the start of a mutation, consumed synchronously by the
// store, and discarded afterwards. It is never persisted as standalone state.
type Trigger uint16

const (
	TriggerUnknown Trigger = iota
	TriggerInitialCapital
	TriggerVenueManager
	TriggerPositionRefresh
	TriggerSeasonalRewards
	TriggerM2MPnL
)

var triggerNames = map[Trigger]string{
	TriggerInitialCapital:  "INITIAL_CAPITAL",
	TriggerVenueManager:    "VENUE_MANAGER",
	TriggerPositionRefresh: "POSITION_REFRESH",
	TriggerSeasonalRewards: "SEASONAL_REWARDS",
	TriggerM2MPnL:          "M2M_PNL",
}

func (t Trigger) String() string {
	if name, ok := triggerNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}
