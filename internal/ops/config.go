// Package ops loads the run configuration. Everything is decoded into typed
// structs and validated eagerly at startup: a missing required field fails
// Load, it never defaults silently inside a component.
package ops

import (
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"

	"main/internal/health"
	"main/internal/schema"
	"main/pkg/conn"
)

// FileConfig mirrors the YAML config layout.
type FileConfig struct {
	Mode           string            `yaml:"mode"`
	InitialCapital map[string]string `yaml:"initialCapital"`
	Venues         []VenueConfig     `yaml:"venues"`
	Health         HealthConfig      `yaml:"health"`
	Reconcile      ReconcileConfig   `yaml:"reconcile"`
	Clock          ClockConfig       `yaml:"clock"`
	AccrualSteps   int               `yaml:"accrualEverySteps"`
	SinkCapacity   int               `yaml:"sinkCapacity"`
	Results        ResultsConfig     `yaml:"results"`
}

// VenueConfig describes one venue entry.
type VenueConfig struct {
	Name          string  `yaml:"name"`
	Kind          string  `yaml:"kind"`
	ChainContext  string  `yaml:"chainContext"`
	FeeBps        int64   `yaml:"feeBps"`
	Timeout       string  `yaml:"timeout"`
	RetryAttempts int     `yaml:"retryAttempts"`
	RatePerSec    float64 `yaml:"ratePerSec"`
	BaseURL       string  `yaml:"baseUrl"`
	RPCEndpoint   string  `yaml:"rpcEndpoint"`
	APIKeyEnv     string  `yaml:"apiKeyEnv"`
	APISecretEnv  string  `yaml:"apiSecretEnv"`
}

// HealthConfig describes escalation thresholds.
type HealthConfig struct {
	DegradedThreshold int `yaml:"degradedThreshold"`
	CriticalThreshold int `yaml:"criticalThreshold"`
}

// ReconcileConfig bounds live-mode drift detection.
type ReconcileConfig struct {
	DriftTolerance  string `yaml:"driftTolerance"`
	RefreshInterval string `yaml:"refreshInterval"`
}

// ClockConfig describes the run's timestamp source.
type ClockConfig struct {
	// Backtest range, inclusive start, exclusive end.
	Start string `yaml:"start"`
	End   string `yaml:"end"`
	Step  string `yaml:"step"`
	// Live tick interval.
	Tick string `yaml:"tick"`
}

// ResultsConfig selects the results store backend.
type ResultsConfig struct {
	Backend  string `yaml:"backend"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// ResolvedVenue is a validated venue definition.
type ResolvedVenue struct {
	Name          string
	Kind          schema.VenueKind
	ChainContext  string
	FeeBps        int64
	Timeout       time.Duration
	RetryAttempts int
	RatePerSec    float64
	BaseURL       string
	RPCEndpoint   string
	APIKey        string
	APISecret     string
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Mode           schema.RunMode
	InitialCapital map[schema.AssetKey]decimal.Decimal
	Venues         []ResolvedVenue
	Health         health.Config
	DriftTolerance decimal.Decimal
	RefreshEvery   time.Duration
	AccrualSteps   int
	SinkCapacity   int
	ResultsBackend string
	ResultsConn    conn.Option
	ClockStart     time.Time
	ClockEnd       time.Time
	ClockStep      time.Duration
	LiveTick       time.Duration
}

// Load reads a YAML config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "parse config yaml")
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	loaded := Loaded{
		AccrualSteps:   cfg.AccrualSteps,
		SinkCapacity:   cfg.SinkCapacity,
		ResultsBackend: cfg.Results.Backend,
	}

	switch cfg.Mode {
	case "backtest":
		loaded.Mode = schema.RunModeBacktest
	case "live":
		loaded.Mode = schema.RunModeLive
	default:
		return Loaded{}, errors.Errorf("ops: mode must be backtest or live, got %q", cfg.Mode)
	}

	if len(cfg.InitialCapital) == 0 {
		return Loaded{}, errors.New("ops: initialCapital is required")
	}
	loaded.InitialCapital = make(map[schema.AssetKey]decimal.Decimal, len(cfg.InitialCapital))
	for key, raw := range cfg.InitialCapital {
		qty, err := decimal.NewFromString(raw)
		if err != nil {
			return Loaded{}, errors.Wrap(err, "parse initial capital "+key)
		}
		if qty.IsNegative() {
			return Loaded{}, errors.Errorf("ops: negative initial capital for %s", key)
		}
		loaded.InitialCapital[schema.AssetKey(key)] = qty
	}

	if len(cfg.Venues) == 0 {
		return Loaded{}, errors.New("ops: at least one venue is required")
	}
	for _, vc := range cfg.Venues {
		resolved, err := resolveVenue(vc, loaded.Mode)
		if err != nil {
			return Loaded{}, err
		}
		loaded.Venues = append(loaded.Venues, resolved)
	}

	loaded.Health = health.Config{
		DegradedThreshold: cfg.Health.DegradedThreshold,
		CriticalThreshold: cfg.Health.CriticalThreshold,
	}
	if loaded.Health.DegradedThreshold == 0 && loaded.Health.CriticalThreshold == 0 {
		loaded.Health = health.DefaultConfig()
	}
	if err := loaded.Health.Validate(); err != nil {
		return Loaded{}, err
	}

	tolerance := cfg.Reconcile.DriftTolerance
	if tolerance == "" {
		tolerance = "0"
	}
	drift, err := decimal.NewFromString(tolerance)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "parse drift tolerance")
	}
	if drift.IsNegative() {
		return Loaded{}, errors.New("ops: drift tolerance must be >= 0")
	}
	loaded.DriftTolerance = drift

	if loaded.Mode == schema.RunModeLive {
		if cfg.Reconcile.RefreshInterval == "" {
			return Loaded{}, errors.New("ops: live mode requires reconcile.refreshInterval")
		}
		loaded.RefreshEvery, err = time.ParseDuration(cfg.Reconcile.RefreshInterval)
		if err != nil {
			return Loaded{}, errors.Wrap(err, "parse refresh interval")
		}
		if cfg.Clock.Tick == "" {
			return Loaded{}, errors.New("ops: live mode requires clock.tick")
		}
		loaded.LiveTick, err = time.ParseDuration(cfg.Clock.Tick)
		if err != nil {
			return Loaded{}, errors.Wrap(err, "parse live tick")
		}
	} else {
		if cfg.Clock.Start == "" || cfg.Clock.End == "" || cfg.Clock.Step == "" {
			return Loaded{}, errors.New("ops: backtest requires clock.start, clock.end and clock.step")
		}
		loaded.ClockStart, err = time.Parse(time.RFC3339, cfg.Clock.Start)
		if err != nil {
			return Loaded{}, errors.Wrap(err, "parse clock start")
		}
		loaded.ClockEnd, err = time.Parse(time.RFC3339, cfg.Clock.End)
		if err != nil {
			return Loaded{}, errors.Wrap(err, "parse clock end")
		}
		loaded.ClockStep, err = time.ParseDuration(cfg.Clock.Step)
		if err != nil {
			return Loaded{}, errors.Wrap(err, "parse clock step")
		}
		if !loaded.ClockEnd.After(loaded.ClockStart) {
			return Loaded{}, errors.New("ops: clock end must be after start")
		}
		if loaded.ClockStep <= 0 {
			return Loaded{}, errors.New("ops: clock step must be positive")
		}
	}

	if loaded.SinkCapacity <= 0 {
		loaded.SinkCapacity = 1024
	}

	switch loaded.ResultsBackend {
	case "", "memory":
		loaded.ResultsBackend = "memory"
	case "postgres":
		if cfg.Results.Database == "" {
			return Loaded{}, errors.New("ops: postgres results backend requires a database")
		}
		loaded.ResultsConn = conn.Option{
			Host:     cfg.Results.Host,
			Port:     cfg.Results.Port,
			User:     cfg.Results.User,
			Password: cfg.Results.Password,
			Database: cfg.Results.Database,
		}
	default:
		return Loaded{}, errors.Errorf("ops: unknown results backend %q", loaded.ResultsBackend)
	}

	return loaded, nil
}

func resolveVenue(vc VenueConfig, mode schema.RunMode) (ResolvedVenue, error) {
	if vc.Name == "" {
		return ResolvedVenue{}, errors.New("ops: venue with empty name")
	}

	resolved := ResolvedVenue{
		Name:          vc.Name,
		ChainContext:  vc.ChainContext,
		FeeBps:        vc.FeeBps,
		RetryAttempts: vc.RetryAttempts,
		RatePerSec:    vc.RatePerSec,
		BaseURL:       vc.BaseURL,
		RPCEndpoint:   vc.RPCEndpoint,
	}

	switch vc.Kind {
	case "cex":
		resolved.Kind = schema.VenueKindCEX
	case "defi":
		resolved.Kind = schema.VenueKindOnChain
		if vc.ChainContext == "" {
			return ResolvedVenue{}, errors.Errorf("ops: defi venue %s requires chainContext", vc.Name)
		}
	default:
		return ResolvedVenue{}, errors.Errorf("ops: venue %s kind must be cex or defi, got %q", vc.Name, vc.Kind)
	}

	if vc.Timeout != "" {
		timeout, err := time.ParseDuration(vc.Timeout)
		if err != nil {
			return ResolvedVenue{}, errors.Wrap(err, "parse timeout for venue "+vc.Name)
		}
		resolved.Timeout = timeout
	}

	if mode == schema.RunModeLive {
		switch resolved.Kind {
		case schema.VenueKindCEX:
			if vc.BaseURL == "" || vc.APIKeyEnv == "" || vc.APISecretEnv == "" {
				return ResolvedVenue{}, errors.Errorf("ops: live cex venue %s requires baseUrl, apiKeyEnv and apiSecretEnv", vc.Name)
			}
			resolved.APIKey = os.Getenv(vc.APIKeyEnv)
			resolved.APISecret = os.Getenv(vc.APISecretEnv)
			if resolved.APIKey == "" || resolved.APISecret == "" {
				return ResolvedVenue{}, errors.Errorf("ops: missing credentials in env for venue %s", vc.Name)
			}
		case schema.VenueKindOnChain:
			if vc.RPCEndpoint == "" {
				return ResolvedVenue{}, errors.Errorf("ops: live defi venue %s requires rpcEndpoint", vc.Name)
			}
		}
	}

	return resolved, nil
}
