package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"main/internal/engine"
	"main/internal/health"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/position"
	"main/internal/reconcile"
	"main/internal/results"
	"main/internal/schema"
	"main/internal/sink"
	"main/internal/venue"
	"main/internal/venue/cex"
	"main/internal/venue/chain"
	"main/pkg/conn"
	"main/pkg/exception"
)

func main() {
	configPath := flag.String("config", "config/trader.yaml", "Path to YAML config")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	if lvl, err := logrus.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(lvl)
	}
	log := logrus.NewEntry(logger)

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("config load failed")
	}
	if loaded.Mode != schema.RunModeLive {
		log.Fatal("trader binary requires mode: live")
	}

	// stop signal is honored at the clock advance only: a mid-pipeline stop
	// could leave a submitted atomic group unreconciled
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, loaded, log); err != nil {
		if errors.Is(err, exception.ErrSystemFailure) {
			os.Exit(1)
		}
		log.WithError(err).Fatal("trader failed")
	}
}

func run(ctx context.Context, loaded ops.Loaded, log *logrus.Entry) error {
	client := &http.Client{Timeout: 30 * time.Second}

	adapters := make([]venue.Adapter, 0, len(loaded.Venues))
	adapterOpts := make(map[string]venue.Options, len(loaded.Venues))
	queriers := make([]*balanceClient, 0, len(loaded.Venues))
	for _, vc := range loaded.Venues {
		var (
			adapter venue.Adapter
			err     error
		)
		switch vc.Kind {
		case schema.VenueKindCEX:
			adapter, err = cex.NewAdapter(cex.Config{
				Name:       vc.Name,
				BaseURL:    vc.BaseURL,
				APIKey:     vc.APIKey,
				APISecret:  vc.APISecret,
				RatePerSec: vc.RatePerSec,
			}, client)
			if err == nil {
				queriers = append(queriers, &balanceClient{venue: vc.Name, baseURL: vc.BaseURL, apiKey: vc.APIKey, client: client})
			}
		default:
			adapter, err = chain.NewAdapter(chain.Config{
				Name:         vc.Name,
				RPCEndpoint:  vc.RPCEndpoint,
				ChainContext: vc.ChainContext,
			}, client)
		}
		if err != nil {
			return err
		}
		adapters = append(adapters, adapter)
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
	}, store, multiQuerier(queriers), log)
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

	eng, err := engine.New(engine.Deps{
		Mode:            loaded.Mode,
		Store:           store,
		Coordinator:     coordinator,
		Handshake:       handshake,
		Health:          machine,
		Clock:           engine.NewWallClock(loaded.LiveTick),
		Strategy:        flatStrategy{},
		Data:            liveDataStub{},
		Exposure:        exposureCalc{},
		Risk:            riskCalc{},
		PnL:             pnlCalc{},
		Sinks:           []*sink.Queue{logQueue, resultQueue},
		Metrics:         metrics,
		Logger:          log,
		RefreshInterval: loaded.RefreshEvery,
	})
	if err != nil {
		return err
	}

	runErr := eng.Run(ctx)
	if runErr != nil && errors.Is(runErr, exception.ErrSystemFailure) {
		if rec := machine.TerminalRecord(); rec != nil {
			if err := resultsStore.SaveTerminal(*rec); err != nil {
				log.WithError(err).Warn("save terminal record failed")
			}
		}
	}
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

// balanceClient queries one venue's balances for position refresh.
type balanceClient struct {
	venue   string
	baseURL string
	apiKey  string
	client  *http.Client
}

func (b *balanceClient) query(ctx context.Context) (map[schema.AssetKey]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/v1/balances", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Balances map[string]string `json:"balances"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, err
	}
	out := make(map[schema.AssetKey]decimal.Decimal, len(decoded.Balances))
	for token, raw := range decoded.Balances {
		qty, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, err
		}
		out[schema.NewAssetKey(b.venue, token)] = qty
	}
	return out, nil
}

// multiQuerier merges every venue's balances into one view.
type multiQuerier []*balanceClient

func (m multiQuerier) QueryBalances(ctx context.Context) (map[schema.AssetKey]decimal.Decimal, error) {
	merged := make(map[schema.AssetKey]decimal.Decimal)
	for _, q := range m {
		balances, err := q.query(ctx)
		if err != nil {
			return nil, err
		}
		for key, qty := range balances {
			merged[key] = qty
		}
	}
	return merged, nil
}

// flatStrategy is the plug point for a real strategy; it holds flat.
type flatStrategy struct{}

func (flatStrategy) Decide(time.Time, engine.Exposure, engine.RiskAssessment, engine.MarketData) ([]schema.Order, error) {
	return nil, nil
}

// liveDataStub is the plug point for a real market data feed.
type liveDataStub struct{}

func (liveDataStub) Get(time.Time) (engine.MarketData, error) {
	return engine.MarketData{}, nil
}

type exposureCalc struct{}

func (exposureCalc) Exposure(snap schema.Snapshot, _ engine.MarketData) (engine.Exposure, error) {
	exposure := make(engine.Exposure, len(snap.Real))
	for key, qty := range snap.Real {
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

type pnlCalc struct{}

func (pnlCalc) Compute(_ schema.Snapshot, _ engine.MarketData, result *schema.ExecutionResult) (engine.PnL, error) {
	fees := decimal.Zero
	if result != nil {
		for _, trade := range result.Trades {
			fees = fees.Add(trade.Fees)
		}
	}
	return engine.PnL{Fees: fees}, nil
}
