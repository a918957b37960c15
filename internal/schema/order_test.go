package schema

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"main/pkg/exception"
)

func TestOrderValidate(t *testing.T) {
	base := Order{
		ID:        "ord-1",
		Operation: OperationSpotTrade,
		Tier:      ExecutionTierSequential,
		Venue:     "binance",
		TokenIn:   "USDT",
		TokenOut:  "BTC",
		Amount:    decimal.NewFromInt(1),
		Side:      SideBuy,
	}

	testCases := []struct {
		desc     string
		mutate   func(o *Order)
		expected error
	}{
		{
			"valid sequential",
			func(o *Order) {},
			nil,
		},
		{
			"valid atomic",
			func(o *Order) {
				o.Tier = ExecutionTierAtomic
				o.AtomicGroupID = "grp-1"
			},
			nil,
		},
		{
			"missing id",
			func(o *Order) { o.ID = "" },
			exception.ErrOrderMissingID,
		},
		{
			"unknown operation",
			func(o *Order) { o.Operation = Operation(999) },
			exception.ErrOrderUnknownOperation,
		},
		{
			"missing venue",
			func(o *Order) { o.Venue = "" },
			exception.ErrOrderMissingVenue,
		},
		{
			"negative amount",
			func(o *Order) { o.Amount = decimal.NewFromInt(-1) },
			exception.ErrOrderNegativeAmount,
		},
		{
			"sequential with group id",
			func(o *Order) { o.AtomicGroupID = "grp-1" },
			exception.ErrOrderSequentialWithGroup,
		},
		{
			"atomic without group id",
			func(o *Order) { o.Tier = ExecutionTierAtomic },
			exception.ErrOrderAtomicWithoutGroup,
		},
		{
			"unknown tier",
			func(o *Order) { o.Tier = ExecutionTierUnknown },
			exception.ErrOrderUnknownTier,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			order := base
			tc.mutate(&order)
			if err := order.Validate(); !errors.Is(err, tc.expected) {
				t.Fatalf("validate mismatch! should be %v but got %v", tc.expected, err)
			}
		})
	}
}

func TestOrderAtomic(t *testing.T) {
	order := Order{Tier: ExecutionTierAtomic, AtomicGroupID: "grp-1"}
	if !order.Atomic() {
		t.Fatal("atomic order should report atomic")
	}
	order = Order{Tier: ExecutionTierSequential}
	if order.Atomic() {
		t.Fatal("sequential order should not report atomic")
	}
}
