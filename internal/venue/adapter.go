package venue

import (
	"context"
	"time"

	"main/internal/schema"
)

// Adapter is the per-venue execution collaborator. It submits one order (or
// one atomic group) and returns one trade, assuming no side effects beyond
// the returned delta. Group submission must honor the all-or-nothing
// contract: either every sub-operation settles in one underlying transaction
// or none do, and a failed group never returns partial deltas.
type Adapter interface {
	Name() string
	Kind() schema.VenueKind
	// ChainContext identifies the atomic composition context for on-chain
	// venues (e.g. the chain id). Empty for CEX adapters.
	ChainContext() string
	Submit(ctx context.Context, order schema.Order) (schema.Trade, error)
	SubmitGroup(ctx context.Context, group []schema.Order) (schema.Trade, error)
}

// Options bound a single adapter's call behavior.
type Options struct {
	Timeout       time.Duration
	RetryAttempts int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 1
	}
	return o
}
