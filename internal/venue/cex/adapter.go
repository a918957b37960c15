// Package cex provides the live centralized-exchange adapter. Orders are
// signed and posted over HTTP; atomic composition is not available on a CEX.
package cex

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"golang.org/x/time/rate"

	"main/internal/schema"
	"main/pkg/exception"
)

// Config defines one live CEX connection.
type Config struct {
	Name      string
	BaseURL   string
	APIKey    string
	APISecret string
	// RatePerSec bounds outbound order calls; burst defaults to the rate.
	RatePerSec float64
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("cex: venue name is empty")
	}
	if c.BaseURL == "" {
		return errors.New("cex: base url is empty")
	}
	if c.APIKey == "" || c.APISecret == "" {
		return errors.New("cex: missing credentials")
	}
	return nil
}

// Adapter submits orders to a centralized exchange over HTTP.
type Adapter struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

// NewAdapter creates a live CEX adapter.
func NewAdapter(cfg Config, client *http.Client) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 5
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	return &Adapter{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
	}, nil
}

func (a *Adapter) Name() string           { return a.cfg.Name }
func (a *Adapter) Kind() schema.VenueKind { return schema.VenueKindCEX }
func (a *Adapter) ChainContext() string   { return "" }

type orderRequest struct {
	Operation string `json:"operation"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"tm"`
	ClientID  string `json:"client_id"`
}

type orderResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Status  string            `json:"status"`
	Fills   map[string]string `json:"fills"`
	Fee     string            `json:"fee"`
	Cost    string            `json:"cost"`
	VenueTs int64             `json:"venue_ts"`
}

// Submit posts one order and maps the venue response to a trade.
func (a *Adapter) Submit(ctx context.Context, order schema.Order) (schema.Trade, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return schema.Trade{}, errors.Wrap(exception.ErrVenueTimeout, err.Error())
	}

	payload, err := json.Marshal(orderRequest{
		Operation: order.Operation.String(),
		Symbol:    order.TokenOut + order.TokenIn,
		Side:      order.Side.String(),
		Amount:    order.Amount.String(),
		Timestamp: time.Now().Unix(),
		ClientID:  order.ID,
	})
	if err != nil {
		return schema.Trade{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/v1/order", bytes.NewReader(payload))
	if err != nil {
		return schema.Trade{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", a.cfg.APIKey)
	req.Header.Set("X-SIGNATURE", a.sign(payload))

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return schema.Trade{}, exception.ErrVenueTimeout
		}
		return schema.Trade{}, errors.Wrap(exception.ErrVenueUnavailable, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return schema.Trade{}, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return schema.Trade{}, errors.Wrap(exception.ErrVenueUnavailable, "status "+strconv.Itoa(resp.StatusCode))
	}

	var decoded orderResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return schema.Trade{}, errors.Wrap(err, "decode order response")
	}
	return a.toTrade(order, decoded)
}

// SubmitGroup always fails: a CEX cannot compose atomically.
func (a *Adapter) SubmitGroup(context.Context, []schema.Order) (schema.Trade, error) {
	return schema.Trade{}, exception.ErrVenueAtomicUnsupported
}

func (a *Adapter) toTrade(order schema.Order, resp orderResponse) (schema.Trade, error) {
	ts := time.Unix(0, resp.VenueTs)
	if resp.Code != 0 {
		return schema.NewRejectedTrade(order.ID, "", errors.Errorf("cex: venue code %d: %s", resp.Code, resp.Message), ts), nil
	}

	status := schema.TradeStatusFilled
	if resp.Status == "PARTIALLY_FILLED" {
		status = schema.TradeStatusPartiallyFilled
	}
	delta := make(map[schema.AssetKey]decimal.Decimal, len(resp.Fills))
	for token, raw := range resp.Fills {
		qty, err := decimal.NewFromString(raw)
		if err != nil {
			return schema.Trade{}, errors.Wrap(err, "parse fill quantity "+token)
		}
		delta[schema.NewAssetKey(a.cfg.Name, token)] = qty
	}
	fees, err := parseOptional(resp.Fee)
	if err != nil {
		return schema.Trade{}, errors.Wrap(err, "parse fee")
	}
	cost, err := parseOptional(resp.Cost)
	if err != nil {
		return schema.Trade{}, errors.Wrap(err, "parse cost")
	}
	return schema.NewSettledTrade(order.ID, "", status, delta, fees, cost, ts), nil
}

func (a *Adapter) sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(a.cfg.APISecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseOptional(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
