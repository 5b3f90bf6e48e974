// Command luxdexd boots the exchange's core: markets, oracle, feed, vault,
// and matching engine, wired from a YAML config file, and runs a scripted
// demo scenario to exercise the whole stack end to end.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxdex/core/pkg/config"
	"github.com/luxdex/core/pkg/engine"
	"github.com/luxdex/core/pkg/feed"
	"github.com/luxdex/core/pkg/oracle"
	"github.com/luxdex/core/pkg/risk"
	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/util"
	"github.com/luxdex/core/pkg/vault"
	"github.com/luxdex/core/pkg/x18"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "luxdexd",
		Short: "luxdexd runs the matching engine, vault, and mark-price feed",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to config.yaml")
	root.AddCommand(demoCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "run a scripted scenario against a freshly wired stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo()
		},
	}
}

func runDemo() error {
	log, err := util.NewLogger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	orc := oracle.NewMemOracle(util.RealClock{})
	fd := feed.New(orc)
	vlt := vault.New(fd, log)
	eng := engine.New(log, nil)
	eng.SetRiskChecker(risk.New(vlt))

	for _, m := range cfg.Markets {
		if err := orc.RegisterAsset(m.SymbolID, m.OracleAssetConfig()); err != nil {
			return err
		}
		fd.RegisterMarket(m.SymbolID, m.FeedConfig())
		if err := vlt.Markets.CreateMarket(m.MarketConfig()); err != nil {
			return err
		}
		eng.AddSymbol(m.SymbolID)
		log.Info("market registered",
			zap.String("symbol_id", m.SymbolID),
			zap.String("currency", m.Currency),
		)
	}
	vlt.Insurance.Contribute(x18.FromFloat64(cfg.Insurance.SeedBalance))

	alice := types.MainAccount(randomAddress())
	bob := types.MainAccount(randomAddress())
	if err := vlt.Deposit(alice, cfg.Markets[0].Currency, x18.FromInt64(100000)); err != nil {
		return err
	}
	if err := vlt.Deposit(bob, cfg.Markets[0].Currency, x18.FromInt64(100000)); err != nil {
		return err
	}

	symbolID := cfg.Markets[0].SymbolID
	if err := orc.UpdatePrice(symbolID, "demo-source", x18.FromInt64(100), x18.One()); err != nil {
		return err
	}

	bidID := eng.NextOrderID()
	bid := &types.Order{
		ID: bidID, SymbolID: symbolID, Account: bob,
		Side: types.Buy, Type: types.Limit, TIF: types.GTC,
		Price: x18.FromInt64(100), Quantity: x18.FromInt64(10),
	}
	if _, err := eng.PlaceOrder(bid); err != nil {
		return err
	}

	askID := eng.NextOrderID()
	ask := &types.Order{
		ID: askID, SymbolID: symbolID, Account: alice,
		Side: types.Sell, Type: types.Limit, TIF: types.GTC,
		Price: x18.FromInt64(100), Quantity: x18.FromInt64(10),
	}
	trades, err := eng.PlaceOrder(ask)
	if err != nil {
		return err
	}

	for _, t := range trades {
		log.Info("trade",
			zap.Uint64("trade_id", t.ID),
			zap.String("price", decimal.NewFromBigInt(t.Price.Raw(), -18).String()),
			zap.String("quantity", decimal.NewFromBigInt(t.Quantity.Raw(), -18).String()),
		)
		err := vlt.ApplyFills([]vault.Settlement{{
			Maker: t.SellAccount, Taker: t.BuyAccount, SymbolID: symbolID,
			TakerIsBuy: true, Size: t.Quantity, Price: t.Price,
			Timestamp: t.Timestamp,
		}})[0]
		if err != nil {
			return err
		}
	}

	stats := eng.GetStats()
	log.Info("demo complete",
		zap.Uint64("orders_placed", stats.OrdersPlaced),
		zap.Uint64("trades", stats.Trades),
	)
	return nil
}

func randomAddress() types.Address {
	id := uuid.New()
	var addr types.Address
	copy(addr[:], id[:])
	return addr
}
