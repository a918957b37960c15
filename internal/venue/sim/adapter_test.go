package sim

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"main/internal/schema"
)

func fixedQuote(price string) QuoteFunc {
	p, err := decimal.NewFromString(price)
	if err != nil {
		panic(err)
	}
	return func(venue, tokenIn, tokenOut string) (decimal.Decimal, bool) {
		return p, true
	}
}

func newTestAdapter(t *testing.T, cfg Config, quote QuoteFunc) *Adapter {
	t.Helper()
	a, err := NewAdapter(cfg, quote)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return a
}

func TestSpotBuyDeltasAndFees(t *testing.T) {
	a := newTestAdapter(t, Config{Name: "binance", Kind: schema.VenueKindCEX, FeeBps: 10}, fixedQuote("50000"))

	trade, err := a.Submit(context.Background(), schema.Order{
		ID:        "buy-1",
		Operation: schema.OperationSpotTrade,
		Tier:      schema.ExecutionTierSequential,
		Venue:     "binance",
		TokenIn:   "USDT",
		TokenOut:  "BTC",
		Amount:    decimal.NewFromFloat(0.5),
		Side:      schema.SideBuy,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if trade.Status != schema.TradeStatusFilled {
		t.Fatalf("status mismatch! should be FILLED but got %s", trade.Status)
	}

	// notional 25000, fee 10bps = 25
	if got := trade.PositionDelta[schema.NewAssetKey("binance", "BTC")]; !got.Equal(decimal.NewFromFloat(0.5)) {
		t.Fatalf("btc delta mismatch! should be 0.5 but got %s", got)
	}
	if got := trade.PositionDelta[schema.NewAssetKey("binance", "USDT")]; !got.Equal(decimal.NewFromInt(-25025)) {
		t.Fatalf("usdt delta mismatch! should be -25025 but got %s", got)
	}
	if !trade.Fees.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("fee mismatch! should be 25 but got %s", trade.Fees)
	}
}

func TestPerpShortDelta(t *testing.T) {
	a := newTestAdapter(t, Config{Name: "hyperliquid", Kind: schema.VenueKindCEX, FeeBps: 5}, fixedQuote("50000"))

	trade, err := a.Submit(context.Background(), schema.Order{
		ID:        "short-1",
		Operation: schema.OperationPerpTrade,
		Tier:      schema.ExecutionTierSequential,
		Venue:     "hyperliquid",
		TokenIn:   "USDT",
		TokenOut:  "BTC",
		Amount:    decimal.NewFromFloat(0.5),
		Side:      schema.SideSell,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := trade.PositionDelta[schema.NewAssetKey("hyperliquid", "BTC_PERP_SHORT")]; !got.Equal(decimal.NewFromFloat(0.5)) {
		t.Fatalf("perp delta mismatch! should be 0.5 but got %s", got)
	}
	// fee 5bps on 25000 notional = 12.5, paid in margin currency
	if got := trade.PositionDelta[schema.NewAssetKey("hyperliquid", "USDT")]; !got.Equal(decimal.NewFromFloat(-12.5)) {
		t.Fatalf("margin delta mismatch! should be -12.5 but got %s", got)
	}
}

func TestLendingAndStakingDeltas(t *testing.T) {
	a := newTestAdapter(t, Config{Name: "aave", Kind: schema.VenueKindOnChain, ChainContext: "arbitrum-one"}, fixedQuote("1"))
	amount := decimal.NewFromInt(1000)

	testCases := []struct {
		desc     string
		order    schema.Order
		expected map[schema.AssetKey]string
	}{
		{
			"supply",
			schema.Order{ID: "s", Operation: schema.OperationSupply, Tier: schema.ExecutionTierSequential, Venue: "aave", TokenIn: "USDC", Amount: amount},
			map[schema.AssetKey]string{
				schema.NewAssetKey("aave", "USDC"):          "-1000",
				schema.NewAssetKey("aave", "USDC_SUPPLIED"): "1000",
			},
		},
		{
			"borrow",
			schema.Order{ID: "b", Operation: schema.OperationBorrow, Tier: schema.ExecutionTierSequential, Venue: "aave", TokenOut: "DAI", Amount: amount},
			map[schema.AssetKey]string{
				schema.NewAssetKey("aave", "DAI"):      "1000",
				schema.NewAssetKey("aave", "DAI_DEBT"): "1000",
			},
		},
		{
			"stake",
			schema.Order{ID: "k", Operation: schema.OperationStake, Tier: schema.ExecutionTierSequential, Venue: "aave", TokenIn: "ETH", Amount: amount},
			map[schema.AssetKey]string{
				schema.NewAssetKey("aave", "ETH"):        "-1000",
				schema.NewAssetKey("aave", "ETH_STAKED"): "1000",
			},
		},
		{
			"repay",
			schema.Order{ID: "r", Operation: schema.OperationRepay, Tier: schema.ExecutionTierSequential, Venue: "aave", TokenIn: "DAI", Amount: amount},
			map[schema.AssetKey]string{
				schema.NewAssetKey("aave", "DAI"):      "-1000",
				schema.NewAssetKey("aave", "DAI_DEBT"): "-1000",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			trade, err := a.Submit(context.Background(), tc.order)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if len(trade.PositionDelta) != len(tc.expected) {
				t.Fatalf("delta size mismatch! should be %d but got %d", len(tc.expected), len(trade.PositionDelta))
			}
			for key, raw := range tc.expected {
				want, _ := decimal.NewFromString(raw)
				if got := trade.PositionDelta[key]; !got.Equal(want) {
					t.Fatalf("%s delta mismatch! should be %s but got %s", key, want, got)
				}
			}
		})
	}
}

func TestGroupNetsMemberDeltas(t *testing.T) {
	a := newTestAdapter(t, Config{Name: "arbitrum", Kind: schema.VenueKindOnChain, ChainContext: "arbitrum-one"}, fixedQuote("1"))
	amount := decimal.NewFromInt(10000)

	group := []schema.Order{
		{ID: "fb", Operation: schema.OperationFlashBorrow, Tier: schema.ExecutionTierAtomic, AtomicGroupID: "flash", Venue: "arbitrum", TokenOut: "USDC", Amount: amount},
		{ID: "fr", Operation: schema.OperationFlashRepay, Tier: schema.ExecutionTierAtomic, AtomicGroupID: "flash", Venue: "arbitrum", TokenIn: "USDC", Amount: amount},
	}

	trade, err := a.SubmitGroup(context.Background(), group)
	if err != nil {
		t.Fatalf("submit group: %v", err)
	}
	if trade.GroupID != "flash" {
		t.Fatalf("group id mismatch! got %s", trade.GroupID)
	}
	// borrow and repay cancel exactly
	for key, qty := range trade.PositionDelta {
		if !qty.IsZero() {
			t.Fatalf("netted delta for %s should be zero, got %s", key, qty)
		}
	}
}

func TestGroupFailsWhole(t *testing.T) {
	quote := func(venue, tokenIn, tokenOut string) (decimal.Decimal, bool) {
		return decimal.Decimal{}, false // no market
	}
	a := newTestAdapter(t, Config{Name: "arbitrum", Kind: schema.VenueKindOnChain, ChainContext: "arbitrum-one"}, quote)

	group := []schema.Order{
		{ID: "ok", Operation: schema.OperationSupply, Tier: schema.ExecutionTierAtomic, AtomicGroupID: "g", Venue: "arbitrum", TokenIn: "USDC", Amount: decimal.NewFromInt(1)},
		{ID: "bad", Operation: schema.OperationSwap, Tier: schema.ExecutionTierAtomic, AtomicGroupID: "g", Venue: "arbitrum", TokenIn: "USDC", TokenOut: "WETH", Amount: decimal.NewFromInt(1)},
	}

	if _, err := a.SubmitGroup(context.Background(), group); err == nil {
		t.Fatal("group with an unfillable member should fail whole")
	}
}

func TestGroupOnCEXUnsupported(t *testing.T) {
	a := newTestAdapter(t, Config{Name: "binance", Kind: schema.VenueKindCEX}, fixedQuote("1"))
	group := []schema.Order{
		{ID: "a", Operation: schema.OperationSpotTrade, Tier: schema.ExecutionTierAtomic, AtomicGroupID: "g", Venue: "binance", TokenIn: "USDT", TokenOut: "BTC", Amount: decimal.NewFromInt(1)},
	}
	if _, err := a.SubmitGroup(context.Background(), group); err == nil {
		t.Fatal("cex adapter should refuse atomic groups")
	}
}
