package schema

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AssetKey identifies a tracked balance as "venue:token".
type AssetKey string

// NewAssetKey builds an asset key from its venue and token parts.
func NewAssetKey(venue, token string) AssetKey {
	return AssetKey(venue + ":" + token)
}

// Venue returns the venue part of the key.
func (k AssetKey) Venue() string {
	if i := strings.IndexByte(string(k), ':'); i >= 0 {
		return string(k)[:i]
	}
	return string(k)
}

// Token returns the token part of the key.
func (k AssetKey) Token() string {
	if i := strings.IndexByte(string(k), ':'); i >= 0 {
		return string(k)[i+1:]
	}
	return ""
}

// Ledger maps asset keys to signed quantities.
type Ledger map[AssetKey]decimal.Decimal

// Clone returns a deep copy of the ledger.
func (l Ledger) Clone() Ledger {
	if l == nil {
		return nil
	}
	out := make(Ledger, len(l))
	for key, qty := range l {
		out[key] = qty
	}
	return out
}

// AddInto accumulates deltas into the ledger.
func (l Ledger) AddInto(deltas map[AssetKey]decimal.Decimal) {
	for key, qty := range deltas {
		l[key] = l[key].Add(qty)
	}
}

// Snapshot is the position view handed to downstream consumers each timestep.
// Exactly one of Simulated/Real is authoritative per run mode; both may be
// populated in live mode for drift detection.
type Snapshot struct {
	Simulated Ledger
	Real      Ledger
	AsOf      time.Time
	Trigger   Trigger
}

// Authoritative returns the ledger that is the source of truth for the mode.
func (s Snapshot) Authoritative(mode RunMode) Ledger {
	if mode == RunModeLive {
		return s.Real
	}
	return s.Simulated
}
