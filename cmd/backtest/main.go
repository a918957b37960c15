package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"main/internal/chaos"
	"main/internal/engine"
	"main/internal/health"
	"main/internal/mdg"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/position"
	"main/internal/reconcile"
	"main/internal/results"
	"main/internal/schema"
	"main/internal/sink"
	"main/internal/venue"
	"main/internal/venue/sim"
	"main/pkg/conn"
	"main/pkg/exception"
)

func main() {
	configPath := flag.String("config", "config/backtest.yaml", "Path to YAML config")
	logLevel := flag.String("log-level", "info", "Log level")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disabled)")
	chaosFailRate := flag.Float64("chaos-fail-rate", 0, "Inject venue failures at this rate")
	chaosSeed := flag.Int64("chaos-seed", 0, "Seed for chaos injection (0=time-based)")
	flag.Parse()

	log := newLogger(*logLevel)

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "execcore/backtest",
			ServerAddress:   *pyroscopeAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.WithError(err).Fatal("pyroscope start failed")
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("config load failed")
	}
	if loaded.Mode != schema.RunModeBacktest {
		log.Fatal("backtest binary requires mode: backtest")
	}

	if err := run(loaded, log, *chaosFailRate, *chaosSeed); err != nil {
		if errors.Is(err, exception.ErrSystemFailure) {
			// non-zero exit tells the supervisor to restart a fresh instance
			os.Exit(1)
		}
		log.WithError(err).Fatal("backtest failed")
	}
}

func run(loaded ops.Loaded, log *logrus.Entry, chaosFailRate float64, chaosSeed int64) error {
	generator, err := mdg.NewGenerator(loaded.ClockStart, []mdg.SymbolSpec{
		{Symbol: "BTCUSDT", BasePrice: 65000, Amplitude: 1500, Period: 6 * time.Hour},
		{Symbol: "ETHUSDT", BasePrice: 3200, Amplitude: 90, Period: 4 * time.Hour},
	})
	if err != nil {
		return err
	}
	quote := func(_, tokenIn, tokenOut string) (decimal.Decimal, bool) {
		return generator.Price(tokenOut+tokenIn, time.Now().UTC())
	}

	adapters := make([]venue.Adapter, 0, len(loaded.Venues))
	adapterOpts := make(map[string]venue.Options, len(loaded.Venues))
	for _, vc := range loaded.Venues {
		adapter, err := sim.NewAdapter(sim.Config{
			Name:         vc.Name,
			Kind:         vc.Kind,
			ChainContext: vc.ChainContext,
			FeeBps:       vc.FeeBps,
		}, quote)
		if err != nil {
			return err
		}
		var wired venue.Adapter = adapter
		if chaosFailRate > 0 {
			wired, err = chaos.Wrap(adapter, chaos.Config{Seed: chaosSeed, FailRate: chaosFailRate})
			if err != nil {
				return err
			}
		}
		adapters = append(adapters, wired)
		adapterOpts[vc.Name] = venue.Options{Timeout: vc.Timeout, RetryAttempts: vc.RetryAttempts}
	}

	store, err := position.NewStore(position.Config{
		Mode:           loaded.Mode,
		InitialCapital: loaded.InitialCapital,
	})
	if err != nil {
		return err
	}
	coordinator, err := venue.NewCoordinator(adapters, adapterOpts, log)
	if err != nil {
		return err
	}
	handshake, err := reconcile.NewHandshake(reconcile.Config{
		Mode:           loaded.Mode,
		DriftTolerance: loaded.DriftTolerance,
	}, store, nil, log)
	if err != nil {
		return err
	}
	machine, err := health.NewMachine(loaded.Health)
	if err != nil {
		return err
	}

	resultsStore, err := newResultsStore(loaded)
	if err != nil {
		return err
	}
	defer resultsStore.Close()

	metrics := obs.NewMetrics()
	logQueue := sink.NewQueue(loaded.SinkCapacity)
	resultQueue := sink.NewQueue(loaded.SinkCapacity)
	sinkCtx, stopSinks := context.WithCancel(context.Background())
	defer stopSinks()
	go logQueue.Run(sinkCtx, sink.LogHandler(log))
	go resultQueue.Run(sinkCtx, func(e sink.StepEvent) {
		if err := resultsStore.SaveStep(e); err != nil {
			log.WithError(err).Warn("save step record failed")
		}
	})

	timestamps := make([]time.Time, 0)
	for ts := loaded.ClockStart; ts.Before(loaded.ClockEnd); ts = ts.Add(loaded.ClockStep) {
		timestamps = append(timestamps, ts)
	}

	spotVenue, perpVenue := pickTradingVenues(loaded)
	eng, err := engine.New(engine.Deps{
		Mode:              loaded.Mode,
		Store:             store,
		Coordinator:       coordinator,
		Handshake:         handshake,
		Health:            machine,
		Clock:             engine.NewHistoryClock(timestamps),
		Strategy:          &basisStrategy{spotVenue: spotVenue, perpVenue: perpVenue},
		Data:              generator,
		Exposure:          exposureCalc{},
		Risk:              riskCalc{},
		PnL:               &pnlCalc{initial: loaded.InitialCapital},
		Accrual:           accrualCalc{},
		Sinks:             []*sink.Queue{logQueue, resultQueue},
		Metrics:           metrics,
		Logger:            log,
		AccrualEverySteps: loaded.AccrualSteps,
	})
	if err != nil {
		return err
	}

	runErr := eng.Run(context.Background())
	if runErr != nil && errors.Is(runErr, exception.ErrSystemFailure) {
		if rec := machine.TerminalRecord(); rec != nil {
			if err := resultsStore.SaveTerminal(*rec); err != nil {
				log.WithError(err).Warn("save terminal record failed")
			}
		}
	}

	// drain side channels before reporting
	time.Sleep(50 * time.Millisecond)
	stopSinks()
	logQueue.Close()
	resultQueue.Close()

	snap := metrics.Snapshot()
	log.WithFields(logrus.Fields{
		"steps":         snap.Steps,
		"steps_aborted": snap.StepsAborted,
		"orders":        snap.OrdersIn,
		"sink_drops":    snap.SinkDrops + logQueue.Drops() + resultQueue.Drops(),
		"pnl":           eng.LatestPnL().Realized.String(),
	}).Info("backtest summary")

	return runErr
}

func newResultsStore(loaded ops.Loaded) (results.Store, error) {
	if loaded.ResultsBackend != "postgres" {
		return results.NewMemory(), nil
	}
	db, err := conn.Open(loaded.ResultsConn)
	if err != nil {
		return nil, err
	}
	return results.NewPostgres(db, uuid.NewString())
}

func pickTradingVenues(loaded ops.Loaded) (spot, perp string) {
	for _, vc := range loaded.Venues {
		if vc.Kind == schema.VenueKindCEX {
			if spot == "" {
				spot = vc.Name
			} else if perp == "" {
				perp = vc.Name
			}
		}
	}
	if perp == "" {
		perp = spot
	}
	return spot, perp
}

func newLogger(level string) *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logrus.NewEntry(logger)
}

// basisStrategy opens one long-spot/short-perp BTC basis position on its
// first decision and then holds. It stands in for the external strategy
// collaborator in the demo wiring.
type basisStrategy struct {
	spotVenue string
	perpVenue string
	opened    bool
}

func (s *basisStrategy) Decide(_ time.Time, _ engine.Exposure, _ engine.RiskAssessment, _ engine.MarketData) ([]schema.Order, error) {
	if s.opened || s.spotVenue == "" {
		return nil, nil
	}
	s.opened = true
	size := decimal.NewFromFloat(0.5)
	return []schema.Order{
		{
			ID:             uuid.NewString(),
			Operation:      schema.OperationSpotTrade,
			Tier:           schema.ExecutionTierSequential,
			Venue:          s.spotVenue,
			TokenIn:        "USDT",
			TokenOut:       "BTC",
			Amount:         size,
			Side:           schema.SideBuy,
			StrategyIntent: "basis_entry_spot",
			StrategyID:     "btc_basis",
		},
		{
			ID:             uuid.NewString(),
			Operation:      schema.OperationPerpTrade,
			Tier:           schema.ExecutionTierSequential,
			Venue:          s.perpVenue,
			TokenIn:        "USDT",
			TokenOut:       "BTC",
			Amount:         size,
			Side:           schema.SideSell,
			StrategyIntent: "basis_entry_perp",
			StrategyID:     "btc_basis",
		},
	}, nil
}

type exposureCalc struct{}

func (exposureCalc) Exposure(snap schema.Snapshot, _ engine.MarketData) (engine.Exposure, error) {
	exposure := make(engine.Exposure, len(snap.Simulated))
	for key, qty := range snap.Simulated {
		exposure[key] = qty
	}
	return exposure, nil
}

type riskCalc struct{}

func (riskCalc) Assess(_ schema.Snapshot, _ engine.MarketData, exposure engine.Exposure) (engine.RiskAssessment, error) {
	gross := decimal.Zero
	for _, qty := range exposure {
		gross = gross.Add(qty.Abs())
	}
	return engine.RiskAssessment{Score: gross}, nil
}

// pnlCalc values plain token balances against market data and reports the
// change in USDT-denominated equity since run start.
type pnlCalc struct {
	initial map[schema.AssetKey]decimal.Decimal
}

func (p *pnlCalc) Compute(snap schema.Snapshot, md engine.MarketData, result *schema.ExecutionResult) (engine.PnL, error) {
	fees := decimal.Zero
	if result != nil {
		for _, trade := range result.Trades {
			fees = fees.Add(trade.Fees)
		}
	}
	equity := valueLedger(snap.Simulated, md)
	initial := decimal.Zero
	for key, qty := range p.initial {
		initial = initial.Add(tokenValue(key.Token(), qty, md))
	}
	return engine.PnL{Realized: equity.Sub(initial), Fees: fees}, nil
}

func valueLedger(ledger schema.Ledger, md engine.MarketData) decimal.Decimal {
	total := decimal.Zero
	for key, qty := range ledger {
		total = total.Add(tokenValue(key.Token(), qty, md))
	}
	return total
}

func tokenValue(token string, qty decimal.Decimal, md engine.MarketData) decimal.Decimal {
	if token == "USDT" {
		return qty
	}
	if price, ok := md[token+"USDT"]; ok {
		return qty.Mul(price)
	}
	return decimal.Zero
}

// accrualCalc pays a small staking yield on staked balances and settles perp
// funding against USDT.
type accrualCalc struct{}

func (accrualCalc) Accrue(trigger schema.Trigger, _ time.Time, snap schema.Snapshot, md engine.MarketData) (map[schema.AssetKey]decimal.Decimal, error) {
	deltas := make(map[schema.AssetKey]decimal.Decimal)
	switch trigger {
	case schema.TriggerSeasonalRewards:
		yield := decimal.New(5, -6) // per accrual window
		for key, qty := range snap.Simulated {
			token := key.Token()
			if len(token) > 7 && token[len(token)-7:] == "_STAKED" {
				deltas[schema.NewAssetKey(key.Venue(), token[:len(token)-7])] = qty.Mul(yield)
			}
		}
	case schema.TriggerM2MPnL:
		funding := decimal.New(1, -5)
		for key, qty := range snap.Simulated {
			token := key.Token()
			if len(token) > 11 && token[len(token)-11:] == "_PERP_SHORT" {
				base := token[:len(token)-11]
				if price, ok := md[base+"USDT"]; ok {
					deltas[schema.NewAssetKey(key.Venue(), "USDT")] = qty.Mul(price).Mul(funding)
				}
			}
		}
	}
	if len(deltas) == 0 {
		return nil, nil
	}
	return deltas, nil
}
