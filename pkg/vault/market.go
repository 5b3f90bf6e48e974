package vault

import (
	"sync"

	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/x18"
)

// MarketConfig is one market's risk parameters, set at admin
// initialisation and mutated only via UpdateMarket (§3 lifecycle note,
// §4.4 create_market/update_market).
type MarketConfig struct {
	SymbolID              string
	Currency              string // quote currency this market settles in
	InitialMarginFrac     x18.Num
	MaintenanceMarginFrac x18.Num
	PenaltyRate           x18.Num // liquidation penalty, split liquidator/insurance
	LiquidatorShare       x18.Num // fraction of the penalty paid to the liquidator
	FundingInterval       int64   // nanoseconds
}

// Validate enforces §4.4's "0 < maintenance <= initial < 1" invariant.
func (c MarketConfig) Validate() error {
	if !c.MaintenanceMarginFrac.IsPos() {
		return types.Err(types.CodeInvalidTickRange, "maintenance margin fraction must be positive")
	}
	if c.MaintenanceMarginFrac.Gt(c.InitialMarginFrac) {
		return types.Err(types.CodeInvalidTickRange, "maintenance margin fraction must be <= initial")
	}
	if !c.InitialMarginFrac.Lt(x18.One()) {
		return types.Err(types.CodeInvalidTickRange, "initial margin fraction must be < 1")
	}
	return nil
}

// MarketRegistry is the admin-facing CRUD surface over MarketConfig,
// mirroring the teacher's market registry but keyed by symbol id and
// guarded by its own lock (§5 generalizes the teacher's single
// AccountManager.mu into one lock per concern).
type MarketRegistry struct {
	mu      sync.RWMutex
	markets map[string]MarketConfig
}

// NewMarketRegistry creates an empty registry.
func NewMarketRegistry() *MarketRegistry {
	return &MarketRegistry{markets: make(map[string]MarketConfig)}
}

// CreateMarket registers a new market; duplicate symbol ids are rejected
// (§4.4: "enforces unique market_id").
func (r *MarketRegistry) CreateMarket(cfg MarketConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.markets[cfg.SymbolID]; exists {
		return types.Err(types.CodeInvalidTickRange, "market %s already exists", cfg.SymbolID)
	}
	r.markets[cfg.SymbolID] = cfg
	return nil
}

// UpdateMarket replaces an existing market's config.
func (r *MarketRegistry) UpdateMarket(cfg MarketConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.markets[cfg.SymbolID]; !exists {
		return types.Err(types.CodeMarketNotFound, "market %s not found", cfg.SymbolID)
	}
	r.markets[cfg.SymbolID] = cfg
	return nil
}

// Get returns a market's config by symbol id.
func (r *MarketRegistry) Get(symbolID string) (MarketConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.markets[symbolID]
	if !ok {
		return MarketConfig{}, types.Err(types.CodeMarketNotFound, "market %s not found", symbolID)
	}
	return cfg, nil
}
