package position

import (
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
	"main/pkg/exception"
)

// Config defines the store's run mode and seed balances.
type Config struct {
	Mode           schema.RunMode
	InitialCapital map[schema.AssetKey]decimal.Decimal
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Mode != schema.RunModeBacktest && c.Mode != schema.RunModeLive {
		return errors.New("position: run mode must be backtest or live")
	}
	if len(c.InitialCapital) == 0 {
		return errors.New("position: initial capital is empty")
	}
	for key, qty := range c.InitialCapital {
		if qty.IsNegative() {
			return errors.Errorf("position: negative initial capital for %s", key)
		}
	}
	return nil
}

// Store owns the simulated and real views of every tracked balance. It is the
// single mutable resource in the core: the engine/handshake pair is its only
// writer, and Apply enforces that no two mutations overlap.
type Store struct {
	cfg Config

	simulated schema.Ledger
	real      schema.Ledger
	asOf      time.Time
	trigger   schema.Trigger

	seeded   uint32
	applying uint32
}

// NewStore creates an empty store for the given mode.
func NewStore(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		cfg:       cfg,
		simulated: make(schema.Ledger),
		real:      make(schema.Ledger),
	}, nil
}

// Mode returns the store's run mode.
func (s *Store) Mode() schema.RunMode {
	return s.cfg.Mode
}

// Apply performs exactly one mutation for the given trigger and returns the
// resulting snapshot.
//
// Trigger semantics:
//   - InitialCapital: accepted at most once per run, seeds all balances.
//   - VenueManager: requires deltas, applied additively to the simulated view.
//   - PositionRefresh: live mode only, replaces the real view wholesale with
//     the provided balances.
//   - SeasonalRewards / M2MPnL: backtest only, accrual deltas applied
//     additively to the simulated view. In live mode these arrive through
//     PositionRefresh instead.
func (s *Store) Apply(trigger schema.Trigger, ts time.Time, deltas map[schema.AssetKey]decimal.Decimal) (schema.Snapshot, error) {
	if !atomic.CompareAndSwapUint32(&s.applying, 0, 1) {
		return schema.Snapshot{}, exception.ErrConcurrentApply
	}
	defer atomic.StoreUint32(&s.applying, 0)

	switch trigger {
	case schema.TriggerInitialCapital:
		if !atomic.CompareAndSwapUint32(&s.seeded, 0, 1) {
			return schema.Snapshot{}, exception.ErrCapitalAlreadySeeded
		}
		for key, qty := range s.cfg.InitialCapital {
			s.simulated[key] = qty
			if s.cfg.Mode == schema.RunModeLive {
				s.real[key] = qty
			}
		}

	case schema.TriggerVenueManager:
		if err := s.requireSeeded(); err != nil {
			return schema.Snapshot{}, err
		}
		if deltas == nil {
			return schema.Snapshot{}, exception.ErrTriggerMissingDeltas
		}
		s.simulated.AddInto(deltas)

	case schema.TriggerPositionRefresh:
		if s.cfg.Mode != schema.RunModeLive {
			return schema.Snapshot{}, errors.Wrap(exception.ErrTriggerModeMismatch, "position refresh in backtest")
		}
		if err := s.requireSeeded(); err != nil {
			return schema.Snapshot{}, err
		}
		if deltas == nil {
			return schema.Snapshot{}, exception.ErrTriggerMissingDeltas
		}
		s.real = make(schema.Ledger, len(deltas))
		for key, qty := range deltas {
			s.real[key] = qty
		}

	case schema.TriggerSeasonalRewards, schema.TriggerM2MPnL:
		if s.cfg.Mode != schema.RunModeBacktest {
			return schema.Snapshot{}, errors.Wrap(exception.ErrTriggerModeMismatch, "accrual trigger in live mode")
		}
		if err := s.requireSeeded(); err != nil {
			return schema.Snapshot{}, err
		}
		if deltas == nil {
			return schema.Snapshot{}, exception.ErrTriggerMissingDeltas
		}
		s.simulated.AddInto(deltas)

	default:
		return schema.Snapshot{}, exception.ErrTriggerUnknown
	}

	s.asOf = ts
	s.trigger = trigger
	return s.snapshot(ts, trigger), nil
}

// Current returns a read-only snapshot without advancing trigger state.
func (s *Store) Current(ts time.Time) schema.Snapshot {
	return s.snapshot(ts, s.trigger)
}

// Seeded reports whether initial capital has been applied.
func (s *Store) Seeded() bool {
	return atomic.LoadUint32(&s.seeded) != 0
}

func (s *Store) requireSeeded() error {
	if atomic.LoadUint32(&s.seeded) == 0 {
		return exception.ErrCapitalNotSeeded
	}
	return nil
}

func (s *Store) snapshot(ts time.Time, trigger schema.Trigger) schema.Snapshot {
	snap := schema.Snapshot{
		Simulated: s.simulated.Clone(),
		AsOf:      ts,
		Trigger:   trigger,
	}
	if s.cfg.Mode == schema.RunModeLive {
		snap.Real = s.real.Clone()
	}
	return snap
}
