// Package chain provides the live on-chain adapter. Single orders and atomic
// groups are sent to an execution relay as one JSON-RPC call; the relay
// bundles a group into one transaction so it settles all-or-nothing.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
	"main/pkg/exception"
)

// Config defines one on-chain execution context.
type Config struct {
	Name         string
	RPCEndpoint  string
	ChainContext string
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("chain: venue name is empty")
	}
	if c.RPCEndpoint == "" {
		return errors.New("chain: rpc endpoint is empty")
	}
	if c.ChainContext == "" {
		return errors.New("chain: chain context is empty")
	}
	return nil
}

// Adapter submits orders and atomic bundles to an on-chain relay.
type Adapter struct {
	cfg    Config
	client *http.Client
	seq    int64
}

// NewAdapter creates a live on-chain adapter.
func NewAdapter(cfg Config, client *http.Client) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{cfg: cfg, client: client}, nil
}

func (a *Adapter) Name() string           { return a.cfg.Name }
func (a *Adapter) Kind() schema.VenueKind { return schema.VenueKindOnChain }
func (a *Adapter) ChainContext() string   { return a.cfg.ChainContext }

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      int64           `json:"id"`
}

type rpcResponse struct {
	Result *bundleResult `json:"result"`
	Error  *rpcError     `json:"error"`
	ID     int64         `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type bundleOp struct {
	Operation string `json:"operation"`
	Venue     string `json:"venue"`
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	Amount    string `json:"amount"`
}

type bundleResult struct {
	TxHash   string            `json:"txHash"`
	Reverted bool              `json:"reverted"`
	Deltas   map[string]string `json:"deltas"`
	GasFee   string            `json:"gasFee"`
	BlockTs  int64             `json:"blockTs"`
}

// Submit sends one order as a single-operation bundle.
func (a *Adapter) Submit(ctx context.Context, order schema.Order) (schema.Trade, error) {
	result, err := a.sendBundle(ctx, []schema.Order{order})
	if err != nil {
		return schema.Trade{}, err
	}
	return a.toTrade(order.ID, "", result)
}

// SubmitGroup sends the whole group as one bundle. A reverted bundle means
// no member had any effect.
func (a *Adapter) SubmitGroup(ctx context.Context, group []schema.Order) (schema.Trade, error) {
	if len(group) == 0 {
		return schema.Trade{}, exception.ErrVenueEmptyGroup
	}
	result, err := a.sendBundle(ctx, group)
	if err != nil {
		return schema.Trade{}, err
	}
	return a.toTrade("", group[0].AtomicGroupID, result)
}

func (a *Adapter) sendBundle(ctx context.Context, orders []schema.Order) (*bundleResult, error) {
	ops := make([]bundleOp, 0, len(orders))
	for _, order := range orders {
		ops = append(ops, bundleOp{
			Operation: order.Operation.String(),
			Venue:     order.Venue,
			TokenIn:   order.TokenIn,
			TokenOut:  order.TokenOut,
			Amount:    order.Amount.String(),
		})
	}
	params, err := json.Marshal([]any{map[string]any{
		"chain": a.cfg.ChainContext,
		"ops":   ops,
	}})
	if err != nil {
		return nil, err
	}

	a.seq++
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "relay_sendBundle",
		Params:  params,
		ID:      a.seq,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.RPCEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, exception.ErrVenueTimeout
		}
		return nil, errors.Wrap(exception.ErrVenueUnavailable, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, errors.Wrap(exception.ErrVenueUnavailable, "status "+strconv.Itoa(resp.StatusCode))
	}

	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, errors.Wrap(err, "decode rpc response")
	}
	if decoded.Error != nil {
		return nil, errors.Errorf("chain: rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	if decoded.Result == nil {
		return nil, errors.New("chain: empty rpc result")
	}
	return decoded.Result, nil
}

func (a *Adapter) toTrade(orderID, groupID string, result *bundleResult) (schema.Trade, error) {
	ts := timeFromUnix(result.BlockTs)
	if result.Reverted {
		return schema.NewFailedTrade(orderID, groupID, errors.Errorf("chain: bundle reverted, tx %s", result.TxHash), ts), nil
	}

	delta := make(map[schema.AssetKey]decimal.Decimal, len(result.Deltas))
	for key, raw := range result.Deltas {
		qty, err := decimal.NewFromString(raw)
		if err != nil {
			return schema.Trade{}, errors.Wrap(err, "parse delta "+key)
		}
		delta[schema.AssetKey(key)] = qty
	}
	fees, err := parseOptional(result.GasFee)
	if err != nil {
		return schema.Trade{}, errors.Wrap(err, "parse gas fee")
	}
	return schema.NewSettledTrade(orderID, groupID, schema.TradeStatusFilled, delta, fees, decimal.Zero, ts), nil
}

func timeFromUnix(ts int64) time.Time {
	if ts == 0 {
		return time.Now().UTC()
	}
	return time.Unix(ts, 0).UTC()
}

func parseOptional(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
