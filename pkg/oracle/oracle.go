// Package oracle defines the narrow external price-aggregation collaborator
// (§4.5, §6) that the feed depends on, plus an in-memory reference
// implementation used by the CLI demo (pkg/feed's tests use their own
// fixed-price stub instead). A
// production price-fetch pipeline is out of scope (spec.md §1 excludes
// HTTP adapters to external venues) — MemOracle exists only so the
// interface has something concrete to drive.
package oracle

import (
	"time"

	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/x18"
)

// AssetConfig is the registration payload for register_asset (§4.5):
// MaxStaleness bounds how old the newest sample may be before GetPrice
// reports the asset stale; MinSources is the fewest distinct sources that
// must have reported before an aggregate is returned.
type AssetConfig struct {
	Method       types.AggregationMethod
	MaxStaleness time.Duration
	MinSources   int
}

// Oracle is the collaborator interface the feed consumes (§6). Implementors
// own however they source and aggregate raw price observations; the feed
// only ever sees the narrow surface below.
type Oracle interface {
	RegisterAsset(symbolID string, cfg AssetConfig) error
	UpdatePrice(symbolID, source string, price x18.Num, confidence x18.Num) error
	GetPrice(symbolID string) (x18.Num, error)
	GetTWAP(symbolID string, window time.Duration) (x18.Num, error)
	IsPriceFresh(symbolID string) (bool, error)
	PriceAge(symbolID string) (time.Duration, error)
}
