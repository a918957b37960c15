// Package sim provides the backtest venue adapter. It fills every order
// instantly against quoted prices, models fees in basis points, and composes
// atomic groups by netting member deltas in one step.
package sim

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
	"main/pkg/exception"
)

// QuoteFunc resolves the price of tokenOut denominated in tokenIn.
type QuoteFunc func(venue, tokenIn, tokenOut string) (decimal.Decimal, bool)

// Config defines one simulated venue.
type Config struct {
	Name         string
	Kind         schema.VenueKind
	ChainContext string
	FeeBps       int64
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("sim: venue name is empty")
	}
	if c.Kind == schema.VenueKindUnknown {
		return errors.New("sim: venue kind is unknown")
	}
	if c.Kind == schema.VenueKindOnChain && c.ChainContext == "" {
		return errors.New("sim: on-chain venue without chain context")
	}
	if c.FeeBps < 0 {
		return errors.New("sim: negative fee bps")
	}
	return nil
}

// Adapter simulates fills for one venue.
type Adapter struct {
	cfg   Config
	quote QuoteFunc
	now   func() time.Time
}

// NewAdapter creates a simulated venue adapter.
func NewAdapter(cfg Config, quote QuoteFunc) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, errors.New("sim: nil quote func")
	}
	return &Adapter{cfg: cfg, quote: quote, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (a *Adapter) Name() string              { return a.cfg.Name }
func (a *Adapter) Kind() schema.VenueKind    { return a.cfg.Kind }
func (a *Adapter) ChainContext() string      { return a.cfg.ChainContext }

// Submit fills a single order.
func (a *Adapter) Submit(_ context.Context, order schema.Order) (schema.Trade, error) {
	delta, fees, cost, err := a.fill(order)
	if err != nil {
		return schema.Trade{}, err
	}
	return schema.NewSettledTrade(order.ID, "", schema.TradeStatusFilled, delta, fees, cost, a.now()), nil
}

// SubmitGroup settles a whole atomic group in one step. Any member that
// cannot fill fails the entire group with no partial effects.
func (a *Adapter) SubmitGroup(_ context.Context, group []schema.Order) (schema.Trade, error) {
	if len(group) == 0 {
		return schema.Trade{}, exception.ErrVenueEmptyGroup
	}
	if a.cfg.Kind != schema.VenueKindOnChain {
		return schema.Trade{}, exception.ErrVenueAtomicUnsupported
	}

	net := make(map[schema.AssetKey]decimal.Decimal)
	fees := decimal.Zero
	cost := decimal.Zero
	for _, member := range group {
		delta, memberFees, memberCost, err := a.fill(member)
		if err != nil {
			return schema.Trade{}, errors.Wrap(err, "group member "+member.ID)
		}
		for key, qty := range delta {
			net[key] = net[key].Add(qty)
		}
		fees = fees.Add(memberFees)
		cost = cost.Add(memberCost)
	}
	return schema.NewSettledTrade("", group[0].AtomicGroupID, schema.TradeStatusFilled, net, fees, cost, a.now()), nil
}

// fill computes the position delta of one order. Amount is the quantity of
// the primary asset acted on: tokenOut for trades and borrows, tokenIn for
// supply, stake and repay operations.
func (a *Adapter) fill(order schema.Order) (map[schema.AssetKey]decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	venue := a.cfg.Name
	delta := make(map[schema.AssetKey]decimal.Decimal)
	fees := decimal.Zero
	cost := decimal.Zero

	switch order.Operation {
	case schema.OperationSpotTrade, schema.OperationSwap:
		price, ok := a.quote(venue, order.TokenIn, order.TokenOut)
		if !ok {
			return nil, fees, cost, errors.Errorf("sim: no quote for %s/%s on %s", order.TokenIn, order.TokenOut, venue)
		}
		notional := order.Amount.Mul(price)
		fees = a.fee(notional)
		if order.Side == schema.SideSell {
			delta[schema.NewAssetKey(venue, order.TokenOut)] = order.Amount.Neg()
			delta[schema.NewAssetKey(venue, order.TokenIn)] = notional.Sub(fees)
		} else {
			delta[schema.NewAssetKey(venue, order.TokenOut)] = order.Amount
			delta[schema.NewAssetKey(venue, order.TokenIn)] = notional.Add(fees).Neg()
			cost = notional
		}

	case schema.OperationPerpTrade:
		price, ok := a.quote(venue, order.TokenIn, order.TokenOut)
		if !ok {
			return nil, fees, cost, errors.Errorf("sim: no perp quote for %s on %s", order.TokenOut, venue)
		}
		fees = a.fee(order.Amount.Mul(price))
		key := order.TokenOut + "_PERP_LONG"
		if order.Side == schema.SideSell {
			key = order.TokenOut + "_PERP_SHORT"
		}
		delta[schema.NewAssetKey(venue, key)] = order.Amount
		delta[schema.NewAssetKey(venue, order.TokenIn)] = fees.Neg()

	case schema.OperationSupply:
		delta[schema.NewAssetKey(venue, order.TokenIn)] = order.Amount.Neg()
		delta[schema.NewAssetKey(venue, order.TokenIn+"_SUPPLIED")] = order.Amount

	case schema.OperationWithdraw:
		delta[schema.NewAssetKey(venue, order.TokenOut+"_SUPPLIED")] = order.Amount.Neg()
		delta[schema.NewAssetKey(venue, order.TokenOut)] = order.Amount

	case schema.OperationBorrow:
		delta[schema.NewAssetKey(venue, order.TokenOut)] = order.Amount
		delta[schema.NewAssetKey(venue, order.TokenOut+"_DEBT")] = order.Amount

	case schema.OperationRepay:
		delta[schema.NewAssetKey(venue, order.TokenIn)] = order.Amount.Neg()
		delta[schema.NewAssetKey(venue, order.TokenIn+"_DEBT")] = order.Amount.Neg()

	case schema.OperationStake:
		delta[schema.NewAssetKey(venue, order.TokenIn)] = order.Amount.Neg()
		delta[schema.NewAssetKey(venue, order.TokenIn+"_STAKED")] = order.Amount

	case schema.OperationUnstake:
		delta[schema.NewAssetKey(venue, order.TokenOut+"_STAKED")] = order.Amount.Neg()
		delta[schema.NewAssetKey(venue, order.TokenOut)] = order.Amount

	case schema.OperationTransfer:
		delta[schema.NewAssetKey(venue, order.TokenIn)] = order.Amount.Neg()
		delta[schema.NewAssetKey(venue, order.TokenOut)] = order.Amount

	case schema.OperationFlashBorrow:
		delta[schema.NewAssetKey(venue, order.TokenOut)] = order.Amount
		delta[schema.NewAssetKey(venue, order.TokenOut+"_FLASH_DEBT")] = order.Amount

	case schema.OperationFlashRepay:
		delta[schema.NewAssetKey(venue, order.TokenIn)] = order.Amount.Neg()
		delta[schema.NewAssetKey(venue, order.TokenIn+"_FLASH_DEBT")] = order.Amount.Neg()

	default:
		return nil, fees, cost, errors.Errorf("sim: unsupported operation %s", order.Operation)
	}

	return delta, fees, cost, nil
}

func (a *Adapter) fee(notional decimal.Decimal) decimal.Decimal {
	if a.cfg.FeeBps == 0 {
		return decimal.Zero
	}
	return notional.Abs().Mul(decimal.New(a.cfg.FeeBps, -4))
}
