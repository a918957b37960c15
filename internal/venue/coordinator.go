package venue

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yanun0323/errors"

	"main/internal/schema"
	"main/pkg/exception"
)

// Coordinator turns a batch of orders into a batch of trades. Sequential
// orders execute in input order and fail independently; orders sharing an
// atomic group id are delegated whole to a single adapter and settle
// all-or-nothing. The coordinator never synthesizes partial deltas for a
// group.
type Coordinator struct {
	adapters map[string]Adapter
	opts     map[string]Options
	log      *logrus.Entry
}

// NewCoordinator wires the coordinator with its venue adapters.
func NewCoordinator(adapters []Adapter, opts map[string]Options, log *logrus.Entry) (*Coordinator, error) {
	if len(adapters) == 0 {
		return nil, errors.New("venue: no adapters configured")
	}
	byName := make(map[string]Adapter, len(adapters))
	resolved := make(map[string]Options, len(adapters))
	for _, adapter := range adapters {
		if adapter.Name() == "" {
			return nil, errors.New("venue: adapter with empty name")
		}
		if _, ok := byName[adapter.Name()]; ok {
			return nil, errors.Errorf("venue: duplicate adapter %s", adapter.Name())
		}
		byName[adapter.Name()] = adapter
		resolved[adapter.Name()] = opts[adapter.Name()].withDefaults()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Coordinator{
		adapters: byName,
		opts:     resolved,
		log:      log.WithField("component", "venue_coordinator"),
	}, nil
}

// executionUnit is one dispatchable item: a single order or a whole group.
type executionUnit struct {
	index int
	order schema.Order
	group []schema.Order
	lane  string
}

// Execute runs the batch and returns one ExecutionResult. Validation happens
// before any dispatch: malformed orders and broken groups become rejected
// trades that never reach a venue. Independent non-atomic orders on
// different venues dispatch concurrently; all results join before return.
func (c *Coordinator) Execute(ctx context.Context, orders []schema.Order) schema.ExecutionResult {
	now := time.Now().UTC()
	units, rejected := c.prepare(orders, now)

	trades := make([]schema.Trade, len(units)+len(rejected))
	for i, trade := range rejected {
		trades[len(units)+i] = trade
	}

	lanes := make(map[string][]executionUnit)
	laneOrder := make([]string, 0, len(units))
	for _, unit := range units {
		if _, ok := lanes[unit.lane]; !ok {
			laneOrder = append(laneOrder, unit.lane)
		}
		lanes[unit.lane] = append(lanes[unit.lane], unit)
	}

	var wg sync.WaitGroup
	for _, lane := range laneOrder {
		wg.Add(1)
		go func(units []executionUnit) {
			defer wg.Done()
			for _, unit := range units {
				trades[unit.index] = c.dispatch(ctx, unit, now)
			}
		}(lanes[lane])
	}
	wg.Wait()

	return schema.NewExecutionResult(now, trades)
}

// prepare validates the batch and splits it into execution units. Rejected
// orders and groups come back as ready-made trades. One invalid member
// poisons its whole group: none of the group's orders are dispatched.
func (c *Coordinator) prepare(orders []schema.Order, now time.Time) ([]executionUnit, []schema.Trade) {
	groups := make(map[string][]schema.Order)
	groupErr := make(map[string]error)
	groupSeq := make([]string, 0)
	orderErr := make([]error, len(orders))

	for i, order := range orders {
		err := c.validate(order)
		orderErr[i] = err
		if order.AtomicGroupID == "" {
			continue
		}
		if _, seen := groups[order.AtomicGroupID]; !seen {
			groupSeq = append(groupSeq, order.AtomicGroupID)
		}
		groups[order.AtomicGroupID] = append(groups[order.AtomicGroupID], order)
		if err != nil && groupErr[order.AtomicGroupID] == nil {
			groupErr[order.AtomicGroupID] = err
		}
	}
	for _, groupID := range groupSeq {
		if groupErr[groupID] != nil {
			continue
		}
		groupErr[groupID] = c.validateGroup(groups[groupID])
	}

	var (
		units    []executionUnit
		rejected []schema.Trade
		index    int
	)
	for i, order := range orders {
		if order.AtomicGroupID != "" {
			continue
		}
		if err := orderErr[i]; err != nil {
			c.log.WithError(err).WithField("order_id", order.ID).Warn("order rejected before dispatch")
			rejected = append(rejected, schema.NewRejectedTrade(order.ID, "", err, now))
			continue
		}
		units = append(units, executionUnit{
			index: index,
			order: order,
			lane:  order.Venue,
		})
		index++
	}
	for _, groupID := range groupSeq {
		if err := groupErr[groupID]; err != nil {
			c.log.WithError(err).WithField("group_id", groupID).Warn("atomic group rejected before dispatch")
			rejected = append(rejected, schema.NewRejectedTrade("", groupID, err, now))
			continue
		}
		members := groups[groupID]
		units = append(units, executionUnit{
			index: index,
			group: members,
			lane:  "atomic:" + c.adapters[members[0].Venue].ChainContext(),
		})
		index++
	}

	return units, rejected
}

func (c *Coordinator) validate(order schema.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	adapter, ok := c.adapters[order.Venue]
	if !ok {
		return exception.ErrOrderUnknownVenue
	}
	if order.Atomic() && adapter.Kind() == schema.VenueKindCEX {
		return exception.ErrOrderGroupOnCEX
	}
	return nil
}

// validateGroup enforces that every member of an atomic group shares one
// on-chain composition context. Cross CEX/DeFi grouping is invalid.
func (c *Coordinator) validateGroup(members []schema.Order) error {
	chainCtx := ""
	for i, member := range members {
		adapter := c.adapters[member.Venue]
		if adapter.Kind() != schema.VenueKindOnChain {
			return exception.ErrOrderGroupOnCEX
		}
		if i == 0 {
			chainCtx = adapter.ChainContext()
			continue
		}
		if adapter.ChainContext() != chainCtx {
			return exception.ErrOrderGroupCrossContext
		}
	}
	return nil
}

func (c *Coordinator) dispatch(ctx context.Context, unit executionUnit, now time.Time) schema.Trade {
	if len(unit.group) > 0 {
		return c.dispatchGroup(ctx, unit.group, now)
	}
	return c.dispatchOrder(ctx, unit.order, now)
}

// dispatchOrder submits one order with a bounded timeout and bounded
// transient retries. Exactly one trade is recorded regardless of attempts.
func (c *Coordinator) dispatchOrder(ctx context.Context, order schema.Order, now time.Time) schema.Trade {
	adapter := c.adapters[order.Venue]
	opts := c.opts[order.Venue]

	trade, err := c.submitWithRetry(ctx, opts, func(callCtx context.Context) (schema.Trade, error) {
		return adapter.Submit(callCtx, order)
	})
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"order_id": order.ID,
			"venue":    order.Venue,
		}).Error("venue execution failed")
		return schema.NewFailedTrade(order.ID, "", errors.Wrap(exception.ErrVenueExecution, err.Error()), now)
	}
	trade.OrderID = order.ID
	return trade
}

// dispatchGroup delegates a whole atomic group to the first member's
// adapter, which composes it into one underlying transaction.
func (c *Coordinator) dispatchGroup(ctx context.Context, group []schema.Order, now time.Time) schema.Trade {
	groupID := group[0].AtomicGroupID
	adapter := c.adapters[group[0].Venue]
	opts := c.opts[group[0].Venue]

	trade, err := c.submitWithRetry(ctx, opts, func(callCtx context.Context) (schema.Trade, error) {
		return adapter.SubmitGroup(callCtx, group)
	})
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"group_id": groupID,
			"venue":    adapter.Name(),
			"members":  len(group),
		}).Error("atomic group failed")
		return schema.NewFailedTrade("", groupID, errors.Wrap(exception.ErrVenueExecution, err.Error()), now)
	}
	trade.GroupID = groupID
	return trade
}

// submitWithRetry runs one venue call with a deadline, retrying transient
// failures up to the configured attempt count.
func (c *Coordinator) submitWithRetry(ctx context.Context, opts Options, call func(context.Context) (schema.Trade, error)) (schema.Trade, error) {
	var lastErr error
	for attempt := 0; attempt < opts.RetryAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		trade, err := call(callCtx)
		cancel()
		if err == nil {
			return trade, nil
		}
		lastErr = err
		if !exception.IsTransient(err) {
			break
		}
	}
	return schema.Trade{}, lastErr
}
