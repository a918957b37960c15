package position

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/schema"
	"main/pkg/exception"
)

func newBacktestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(Config{
		Mode: schema.RunModeBacktest,
		InitialCapital: map[schema.AssetKey]decimal.Decimal{
			schema.NewAssetKey("binance", "USDT"):  decimal.NewFromInt(100000),
			schema.NewAssetKey("arbitrum", "USDC"): decimal.NewFromInt(25000),
		},
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func newLiveStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(Config{
		Mode: schema.RunModeLive,
		InitialCapital: map[schema.AssetKey]decimal.Decimal{
			schema.NewAssetKey("binance", "USDT"): decimal.NewFromInt(100000),
		},
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestInitialCapitalSeedsOnce(t *testing.T) {
	store := newBacktestStore(t)
	ts := time.Now()

	snap, err := store.Apply(schema.TriggerInitialCapital, ts, nil)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if got := snap.Simulated[schema.NewAssetKey("binance", "USDT")]; !got.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("seeded balance mismatch! should be 100000 but got %s", got)
	}
	if !store.Seeded() {
		t.Fatal("store should report seeded")
	}

	if _, err := store.Apply(schema.TriggerInitialCapital, ts, nil); !errors.Is(err, exception.ErrCapitalAlreadySeeded) {
		t.Fatalf("second seed should fail with ErrCapitalAlreadySeeded, got %v", err)
	}
}

func TestVenueManagerAppliesAdditively(t *testing.T) {
	store := newBacktestStore(t)
	ts := time.Now()
	usdt := schema.NewAssetKey("binance", "USDT")
	btc := schema.NewAssetKey("binance", "BTC")

	if _, err := store.Apply(schema.TriggerInitialCapital, ts, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	snap, err := store.Apply(schema.TriggerVenueManager, ts, map[schema.AssetKey]decimal.Decimal{
		usdt: decimal.NewFromInt(-30000),
		btc:  decimal.NewFromFloat(0.5),
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := snap.Simulated[usdt]; !got.Equal(decimal.NewFromInt(70000)) {
		t.Fatalf("usdt mismatch! should be 70000 but got %s", got)
	}
	if got := snap.Simulated[btc]; !got.Equal(decimal.NewFromFloat(0.5)) {
		t.Fatalf("btc mismatch! should be 0.5 but got %s", got)
	}
	// untouched assets survive
	if got := snap.Simulated[schema.NewAssetKey("arbitrum", "USDC")]; !got.Equal(decimal.NewFromInt(25000)) {
		t.Fatalf("usdc mismatch! should be 25000 but got %s", got)
	}
}

func TestApplyBeforeSeedFails(t *testing.T) {
	store := newBacktestStore(t)
	_, err := store.Apply(schema.TriggerVenueManager, time.Now(), map[schema.AssetKey]decimal.Decimal{
		schema.NewAssetKey("binance", "BTC"): decimal.NewFromInt(1),
	})
	if !errors.Is(err, exception.ErrCapitalNotSeeded) {
		t.Fatalf("should fail with ErrCapitalNotSeeded, got %v", err)
	}
}

func TestTriggerModeMismatch(t *testing.T) {
	ts := time.Now()
	deltas := map[schema.AssetKey]decimal.Decimal{
		schema.NewAssetKey("binance", "USDT"): decimal.NewFromInt(1),
	}

	backtest := newBacktestStore(t)
	if _, err := backtest.Apply(schema.TriggerInitialCapital, ts, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := backtest.Apply(schema.TriggerPositionRefresh, ts, deltas); !errors.Is(err, exception.ErrTriggerModeMismatch) {
		t.Fatalf("refresh in backtest should fail with ErrTriggerModeMismatch, got %v", err)
	}

	live := newLiveStore(t)
	if _, err := live.Apply(schema.TriggerInitialCapital, ts, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	for _, trigger := range []schema.Trigger{schema.TriggerSeasonalRewards, schema.TriggerM2MPnL} {
		if _, err := live.Apply(trigger, ts, deltas); !errors.Is(err, exception.ErrTriggerModeMismatch) {
			t.Fatalf("%s in live should fail with ErrTriggerModeMismatch, got %v", trigger, err)
		}
	}
}

func TestPositionRefreshReplacesRealView(t *testing.T) {
	store := newLiveStore(t)
	ts := time.Now()
	usdt := schema.NewAssetKey("binance", "USDT")
	eth := schema.NewAssetKey("binance", "ETH")

	if _, err := store.Apply(schema.TriggerInitialCapital, ts, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	snap, err := store.Apply(schema.TriggerPositionRefresh, ts, map[schema.AssetKey]decimal.Decimal{
		eth: decimal.NewFromInt(3),
	})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	// wholesale replacement: the seeded USDT entry is gone from the real view
	if _, ok := snap.Real[usdt]; ok {
		t.Fatal("refresh should replace the real view wholesale")
	}
	if got := snap.Real[eth]; !got.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("eth mismatch! should be 3 but got %s", got)
	}
	// the simulated view is untouched
	if got := snap.Simulated[usdt]; !got.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("simulated usdt mismatch! should be 100000 but got %s", got)
	}
}

func TestAccrualTriggersApplyToSimulated(t *testing.T) {
	store := newBacktestStore(t)
	ts := time.Now()
	staked := schema.NewAssetKey("lido", "ETH_STAKED")

	if _, err := store.Apply(schema.TriggerInitialCapital, ts, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	snap, err := store.Apply(schema.TriggerSeasonalRewards, ts, map[schema.AssetKey]decimal.Decimal{
		staked: decimal.NewFromFloat(0.01),
	})
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if got := snap.Simulated[staked]; !got.Equal(decimal.NewFromFloat(0.01)) {
		t.Fatalf("staked mismatch! should be 0.01 but got %s", got)
	}
	if snap.Trigger != schema.TriggerSeasonalRewards {
		t.Fatalf("trigger mismatch! got %s", snap.Trigger)
	}
}

func TestMissingDeltasRejected(t *testing.T) {
	store := newBacktestStore(t)
	ts := time.Now()
	if _, err := store.Apply(schema.TriggerInitialCapital, ts, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Apply(schema.TriggerVenueManager, ts, nil); !errors.Is(err, exception.ErrTriggerMissingDeltas) {
		t.Fatalf("should fail with ErrTriggerMissingDeltas, got %v", err)
	}
	if _, err := store.Apply(schema.TriggerUnknown, ts, nil); !errors.Is(err, exception.ErrTriggerUnknown) {
		t.Fatalf("should fail with ErrTriggerUnknown, got %v", err)
	}
}

func TestSnapshotIsIsolatedCopy(t *testing.T) {
	store := newBacktestStore(t)
	ts := time.Now()
	usdt := schema.NewAssetKey("binance", "USDT")

	if _, err := store.Apply(schema.TriggerInitialCapital, ts, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	snap := store.Current(ts)
	snap.Simulated[usdt] = decimal.Zero

	fresh := store.Current(ts)
	if got := fresh.Simulated[usdt]; !got.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("snapshot mutation leaked into store! got %s", got)
	}
}

func TestAuthoritativeLedgerPerMode(t *testing.T) {
	live := newLiveStore(t)
	ts := time.Now()
	if _, err := live.Apply(schema.TriggerInitialCapital, ts, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	snap := live.Current(ts)
	if snap.Authoritative(schema.RunModeLive) == nil {
		t.Fatal("live mode should expose the real ledger")
	}

	backtest := newBacktestStore(t)
	if _, err := backtest.Apply(schema.TriggerInitialCapital, ts, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	snap = backtest.Current(ts)
	if snap.Authoritative(schema.RunModeBacktest) == nil {
		t.Fatal("backtest mode should expose the simulated ledger")
	}
	if snap.Real != nil {
		t.Fatal("backtest snapshots should not carry a real view")
	}
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		desc    string
		cfg     Config
		wantErr bool
	}{
		{
			"valid",
			Config{Mode: schema.RunModeBacktest, InitialCapital: map[schema.AssetKey]decimal.Decimal{"binance:USDT": decimal.NewFromInt(1)}},
			false,
		},
		{
			"unknown mode",
			Config{InitialCapital: map[schema.AssetKey]decimal.Decimal{"binance:USDT": decimal.NewFromInt(1)}},
			true,
		},
		{
			"empty capital",
			Config{Mode: schema.RunModeBacktest},
			true,
		},
		{
			"negative capital",
			Config{Mode: schema.RunModeBacktest, InitialCapital: map[schema.AssetKey]decimal.Decimal{"binance:USDT": decimal.NewFromInt(-1)}},
			true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("validate mismatch! wantErr=%v got %v", tc.wantErr, err)
			}
		})
	}
}
