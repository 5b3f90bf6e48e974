// Package config loads the exchange's runtime configuration: market risk
// parameters, vault/insurance settings, and feed tuning. Config is read
// from a YAML file with environment-variable overrides (mirroring the
// pack's viper+godotenv convention), then converted into the x18 fixed-
// point types the engine, vault, and feed packages operate on.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/luxdex/core/pkg/feed"
	"github.com/luxdex/core/pkg/oracle"
	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/vault"
	"github.com/luxdex/core/pkg/x18"
)

// MarketSpec is one market's YAML-facing configuration, expressed in plain
// float64/duration fields before conversion to x18.Num.
type MarketSpec struct {
	SymbolID              string        `mapstructure:"symbol_id"`
	Currency              string        `mapstructure:"currency"`
	InitialMarginFrac     float64       `mapstructure:"initial_margin_frac"`
	MaintenanceMarginFrac float64       `mapstructure:"maintenance_margin_frac"`
	PenaltyRate           float64       `mapstructure:"penalty_rate"`
	LiquidatorShare       float64       `mapstructure:"liquidator_share"`
	FundingInterval       time.Duration `mapstructure:"funding_interval"`

	PremiumWindow     time.Duration `mapstructure:"premium_window"`
	MinPremium        float64       `mapstructure:"min_premium"`
	MaxPremium        float64       `mapstructure:"max_premium"`
	UseTWAPPremium    bool          `mapstructure:"use_twap_premium"`
	CapToOracle       bool          `mapstructure:"cap_to_oracle"`
	PremiumFraction   float64       `mapstructure:"premium_fraction"`
	InterestRate      float64       `mapstructure:"interest_rate"`
	MaxFundingRate    float64       `mapstructure:"max_funding_rate"`
	TriggerUseMarkRef bool          `mapstructure:"trigger_use_mark_ref"`

	OracleMethod       string        `mapstructure:"oracle_method"`
	OracleMaxStaleness time.Duration `mapstructure:"oracle_max_staleness"`
	OracleMinSources   int           `mapstructure:"oracle_min_sources"`
}

// Config is the top-level configuration, maps directly onto the YAML file.
type Config struct {
	Insurance struct {
		SeedBalance float64 `mapstructure:"seed_balance"`
	} `mapstructure:"insurance"`

	Logging struct {
		Level string `mapstructure:"level"` // zap level: debug/info/warn/error
	} `mapstructure:"logging"`

	Markets []MarketSpec `mapstructure:"markets"`
}

// Load reads config from a YAML file at path, applying LUXDEX_-prefixed
// environment variable overrides (LUXDEX_LOGGING_LEVEL etc.), after first
// loading a .env file from the current directory if one exists.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("LUXDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges across every market.
func (c *Config) Validate() error {
	if len(c.Markets) == 0 {
		return fmt.Errorf("at least one market must be configured")
	}
	seen := make(map[string]bool, len(c.Markets))
	for _, m := range c.Markets {
		if m.SymbolID == "" {
			return fmt.Errorf("market: symbol_id is required")
		}
		if seen[m.SymbolID] {
			return fmt.Errorf("market %s: duplicate symbol_id", m.SymbolID)
		}
		seen[m.SymbolID] = true
		if m.MaintenanceMarginFrac <= 0 || m.MaintenanceMarginFrac > m.InitialMarginFrac {
			return fmt.Errorf("market %s: maintenance_margin_frac must be > 0 and <= initial_margin_frac", m.SymbolID)
		}
		if m.InitialMarginFrac >= 1 {
			return fmt.Errorf("market %s: initial_margin_frac must be < 1", m.SymbolID)
		}
		if m.FundingInterval <= 0 {
			return fmt.Errorf("market %s: funding_interval must be > 0", m.SymbolID)
		}
		if m.OracleMinSources <= 0 {
			return fmt.Errorf("market %s: oracle_min_sources must be > 0", m.SymbolID)
		}
	}
	return nil
}

// MarketConfig converts a YAML market spec into the vault's fixed-point
// MarketConfig.
func (m MarketSpec) MarketConfig() vault.MarketConfig {
	return vault.MarketConfig{
		SymbolID:              m.SymbolID,
		Currency:              m.Currency,
		InitialMarginFrac:     x18.FromFloat64(m.InitialMarginFrac),
		MaintenanceMarginFrac: x18.FromFloat64(m.MaintenanceMarginFrac),
		PenaltyRate:           x18.FromFloat64(m.PenaltyRate),
		LiquidatorShare:       x18.FromFloat64(m.LiquidatorShare),
		FundingInterval:       int64(m.FundingInterval),
	}
}

// aggregationMethods maps the YAML oracle_method string onto the oracle
// package's enum, defaulting to median for an unrecognised or empty value.
var aggregationMethods = map[string]types.AggregationMethod{
	"median":   types.Median,
	"mean":     types.Mean,
	"weighted": types.Weighted,
	"twap":     types.TWAP,
}

// OracleAssetConfig converts a YAML market spec into the oracle's
// AssetConfig.
func (m MarketSpec) OracleAssetConfig() oracle.AssetConfig {
	method, ok := aggregationMethods[strings.ToLower(m.OracleMethod)]
	if !ok {
		method = types.Median
	}
	return oracle.AssetConfig{
		Method:       method,
		MaxStaleness: m.OracleMaxStaleness,
		MinSources:   m.OracleMinSources,
	}
}

// FeedConfig converts a YAML market spec into the feed's fixed-point
// Config.
func (m MarketSpec) FeedConfig() feed.Config {
	return feed.Config{
		PremiumWindow:     m.PremiumWindow,
		MinPremium:        x18.FromFloat64(m.MinPremium),
		MaxPremium:        x18.FromFloat64(m.MaxPremium),
		UseTWAPPremium:    m.UseTWAPPremium,
		CapToOracle:       m.CapToOracle,
		FundingInterval:   m.FundingInterval,
		PremiumFraction:   x18.FromFloat64(m.PremiumFraction),
		InterestRate:      x18.FromFloat64(m.InterestRate),
		MaxFundingRate:    x18.FromFloat64(m.MaxFundingRate),
		TriggerUseMarkRef: m.TriggerUseMarkRef,
	}
}
