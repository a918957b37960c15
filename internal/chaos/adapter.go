// Package chaos wraps a venue adapter with seeded fault injection for
// resilience testing: random failures, timeouts and extra latency. Runs are
// reproducible from the seed.
package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/schema"
	"main/internal/venue"
	"main/pkg/exception"
)

// Config controls fault injection behavior.
type Config struct {
	Seed        int64
	FailRate    float64
	TimeoutRate float64
	MaxDelay    time.Duration
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.FailRate < 0 || c.FailRate > 1 {
		return errors.New("chaos: fail rate must be between 0 and 1")
	}
	if c.TimeoutRate < 0 || c.TimeoutRate > 1 {
		return errors.New("chaos: timeout rate must be between 0 and 1")
	}
	if c.MaxDelay < 0 {
		return errors.New("chaos: max delay must be >= 0")
	}
	return nil
}

// Adapter injects faults in front of an inner venue adapter.
type Adapter struct {
	cfg   Config
	inner venue.Adapter
	rng   *rand.Rand
}

// Wrap creates a chaos adapter around an inner adapter.
func Wrap(inner venue.Adapter, cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Adapter{
		cfg:   cfg,
		inner: inner,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (a *Adapter) Name() string           { return a.inner.Name() }
func (a *Adapter) Kind() schema.VenueKind { return a.inner.Kind() }
func (a *Adapter) ChainContext() string   { return a.inner.ChainContext() }

// Submit forwards the order unless a fault fires first.
func (a *Adapter) Submit(ctx context.Context, order schema.Order) (schema.Trade, error) {
	if err := a.fault(ctx); err != nil {
		return schema.Trade{}, err
	}
	return a.inner.Submit(ctx, order)
}

// SubmitGroup forwards the group unless a fault fires first.
func (a *Adapter) SubmitGroup(ctx context.Context, group []schema.Order) (schema.Trade, error) {
	if err := a.fault(ctx); err != nil {
		return schema.Trade{}, err
	}
	return a.inner.SubmitGroup(ctx, group)
}

func (a *Adapter) fault(ctx context.Context) error {
	if a.cfg.MaxDelay > 0 {
		delay := time.Duration(a.rng.Int63n(a.cfg.MaxDelay.Nanoseconds() + 1))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return exception.ErrVenueTimeout
		}
	}
	if a.cfg.TimeoutRate > 0 && a.rng.Float64() < a.cfg.TimeoutRate {
		return exception.ErrVenueTimeout
	}
	if a.cfg.FailRate > 0 && a.rng.Float64() < a.cfg.FailRate {
		return exception.ErrVenueExecution
	}
	return nil
}
