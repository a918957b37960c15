package reconcile

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yanun0323/errors"

	"main/internal/position"
	"main/internal/schema"
	"main/pkg/exception"
)

// BalanceQuerier queries actual venue balances in live mode.
type BalanceQuerier interface {
	QueryBalances(ctx context.Context) (map[schema.AssetKey]decimal.Decimal, error)
}

// Config bounds drift detection.
type Config struct {
	Mode           schema.RunMode
	DriftTolerance decimal.Decimal
}

// Handshake serializes position mutation with execution: the engine may not
// start the next timestep until Settle has confirmed every executed delta
// against the position store. Each execution result settles at most once.
type Handshake struct {
	cfg     Config
	store   *position.Store
	querier BalanceQuerier
	settled map[string]struct{}
	log     *logrus.Entry
}

// NewHandshake wires the handshake to its store. The querier is required in
// live mode only.
func NewHandshake(cfg Config, store *position.Store, querier BalanceQuerier, log *logrus.Entry) (*Handshake, error) {
	if store == nil {
		return nil, errors.New("reconcile: nil position store")
	}
	if cfg.Mode == schema.RunModeLive && querier == nil {
		return nil, errors.New("reconcile: live mode requires a balance querier")
	}
	if cfg.DriftTolerance.IsNegative() {
		return nil, errors.New("reconcile: negative drift tolerance")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handshake{
		cfg:     cfg,
		store:   store,
		querier: querier,
		settled: make(map[string]struct{}),
		log:     log.WithField("component", "reconcile"),
	}, nil
}

// Settle nets the deltas of every settled trade in the result and applies
// them to the position store in a single call. Members of failed atomic
// groups contribute zero. Calling Settle twice with the same result instance
// is an error, never a double-apply.
func (h *Handshake) Settle(result schema.ExecutionResult) (schema.Snapshot, error) {
	if _, done := h.settled[result.ID]; done {
		return schema.Snapshot{}, exception.ErrResultAlreadySettled
	}

	net := result.NetDelta()
	snap, err := h.store.Apply(schema.TriggerVenueManager, result.Timestamp, net)
	if err != nil {
		return schema.Snapshot{}, errors.Wrap(err, "apply venue manager deltas")
	}
	h.settled[result.ID] = struct{}{}
	h.log.WithFields(logrus.Fields{
		"result_id": result.ID,
		"trades":    len(result.Trades),
		"assets":    len(net),
	}).Debug("execution result settled")
	return snap, nil
}

// Refresh re-queries venue truth and replaces the real view, then surfaces
// drift between expected and actual balances beyond tolerance. Drift is
// reported, never silently corrected. Live mode only.
func (h *Handshake) Refresh(ctx context.Context, ts time.Time) (schema.Snapshot, error) {
	balances, err := h.querier.QueryBalances(ctx)
	if err != nil {
		return schema.Snapshot{}, errors.Wrap(err, "query venue balances")
	}
	snap, err := h.store.Apply(schema.TriggerPositionRefresh, ts, balances)
	if err != nil {
		return schema.Snapshot{}, errors.Wrap(err, "apply position refresh")
	}
	if err := h.checkDrift(snap); err != nil {
		return snap, err
	}
	return snap, nil
}

// checkDrift compares the expected (simulated) view against the actual
// (real) view asset by asset.
func (h *Handshake) checkDrift(snap schema.Snapshot) error {
	for key, expected := range snap.Simulated {
		actual := snap.Real[key]
		drift := expected.Sub(actual).Abs()
		if drift.Cmp(h.cfg.DriftTolerance) > 0 {
			h.log.WithFields(logrus.Fields{
				"asset":    string(key),
				"expected": expected.String(),
				"actual":   actual.String(),
				"drift":    drift.String(),
			}).Error("balance drift beyond tolerance")
			return errors.Wrap(exception.ErrReconciliationMismatch, string(key))
		}
	}
	return nil
}
