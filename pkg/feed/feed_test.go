package feed

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/luxdex/core/pkg/oracle"
	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/x18"
)

// fixedOracle is a minimal oracle.Oracle stub returning a constant index
// price, enough to drive the feed's own logic independent of any
// particular oracle implementation.
type fixedOracle struct {
	price x18.Num
}

func (o *fixedOracle) RegisterAsset(string, oracle.AssetConfig) error { return nil }

func (o *fixedOracle) UpdatePrice(string, string, x18.Num, x18.Num) error { return nil }

func (o *fixedOracle) GetPrice(string) (x18.Num, error) { return o.price, nil }

func (o *fixedOracle) GetTWAP(string, time.Duration) (x18.Num, error) { return o.price, nil }

func (o *fixedOracle) IsPriceFresh(string) (bool, error) { return true, nil }

func (o *fixedOracle) PriceAge(string) (time.Duration, error) { return 0, nil }

var _ = Describe("Feed", func() {
	var (
		idx x18.Num
		ora *fixedOracle
		f   *Feed
		cfg Config
	)

	BeforeEach(func() {
		idx = x18.FromInt64(100)
		ora = &fixedOracle{price: idx}
		f = New(ora)
		cfg = Config{
			PremiumWindow:   10 * time.Second,
			MinPremium:      x18.MustFromString("-0.05"),
			MaxPremium:      x18.MustFromString("0.05"),
			FundingInterval: time.Hour,
			PremiumFraction: x18.MustFromString("0.33"),
			InterestRate:    x18.MustFromString("0.0001"),
			MaxFundingRate:  x18.MustFromString("0.0075"),
		}
		f.RegisterMarket("BTC-USD", cfg)
	})

	Describe("mark construction", func() {
		It("tracks index when mid equals index", func() {
			now := time.Unix(1000, 0)
			Expect(f.OnBBO("BTC-USD", x18.FromInt64(99), x18.FromInt64(101), true, true, now)).To(Succeed())

			snap, err := f.GetSnapshot("BTC-USD")
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Index.Cmp(idx)).To(Equal(0))
			Expect(snap.Mark.Cmp(idx)).To(Equal(0))
		})

		It("clamps the premium to the configured bounds", func() {
			now := time.Unix(1000, 0)
			// mid way above index: premium would be 0.5, clamped to 0.05
			Expect(f.OnBBO("BTC-USD", x18.FromInt64(149), x18.FromInt64(151), true, true, now)).To(Succeed())

			snap, err := f.GetSnapshot("BTC-USD")
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Premium.Cmp(cfg.MaxPremium)).To(Equal(0))
			Expect(snap.Mark.Cmp(idx.Mul(x18.One().Add(cfg.MaxPremium)))).To(Equal(0))
		})

		It("requires both sides of the book before computing a premium", func() {
			now := time.Unix(1000, 0)
			Expect(f.OnBBO("BTC-USD", x18.FromInt64(100), x18.Zero(), true, false, now)).To(Succeed())

			snap, err := f.GetSnapshot("BTC-USD")
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Timestamp.IsZero()).To(BeTrue(), "no snapshot should exist with only one side quoted")
		})
	})

	Describe("trigger evaluation", func() {
		It("fires a buy trigger when last price crosses up through the trigger", func() {
			Expect(f.OnTrade("BTC-USD", x18.FromInt64(110), time.Unix(1000, 0))).To(Succeed())
			fired, err := f.EvaluateTrigger("BTC-USD", types.Buy, x18.FromInt64(105))
			Expect(err).NotTo(HaveOccurred())
			Expect(fired).To(BeTrue())
		})

		It("does not fire a sell trigger while price stays above it", func() {
			Expect(f.OnTrade("BTC-USD", x18.FromInt64(110), time.Unix(1000, 0))).To(Succeed())
			fired, err := f.EvaluateTrigger("BTC-USD", types.Sell, x18.FromInt64(105))
			Expect(err).NotTo(HaveOccurred())
			Expect(fired).To(BeFalse())
		})

		It("uses the mark price as reference when configured to", func() {
			markCfg := cfg
			markCfg.TriggerUseMarkRef = true
			f.RegisterMarket("ETH-USD", markCfg)

			now := time.Unix(1000, 0)
			Expect(f.OnBBO("ETH-USD", x18.FromInt64(99), x18.FromInt64(101), true, true, now)).To(Succeed())
			// last trade left at zero, so only the mark-referenced evaluation should fire
			fired, err := f.EvaluateTrigger("ETH-USD", types.Buy, x18.FromInt64(99))
			Expect(err).NotTo(HaveOccurred())
			Expect(fired).To(BeTrue())
		})
	})

	Describe("funding", func() {
		It("seeds the schedule on the first call without computing a rate", func() {
			res, err := f.ComputeFunding("BTC-USD", time.Unix(0, 0))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Rate.IsZero()).To(BeTrue())
			Expect(res.NextFundingAt).To(Equal(time.Unix(0, 0).Add(cfg.FundingInterval)))
		})

		It("does not recompute before the interval elapses", func() {
			start := time.Unix(0, 0)
			f.ComputeFunding("BTC-USD", start)
			res, err := f.ComputeFunding("BTC-USD", start.Add(time.Minute))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.NextFundingAt).To(Equal(start.Add(cfg.FundingInterval)))
		})

		It("clamps the computed rate to max_funding_rate", func() {
			extreme := cfg
			extreme.MaxFundingRate = x18.MustFromString("0.001")
			extreme.PremiumFraction = x18.One()
			f.RegisterMarket("XRP-USD", extreme)

			now := time.Unix(1000, 0)
			f.OnBBO("XRP-USD", x18.FromInt64(149), x18.FromInt64(151), true, true, now)
			f.ComputeFunding("XRP-USD", now)
			res, err := f.ComputeFunding("XRP-USD", now.Add(extreme.FundingInterval))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Rate.Abs().Lte(extreme.MaxFundingRate)).To(BeTrue())
		})
	})

	Describe("liquidation price", func() {
		It("is below entry for a long position", func() {
			entry := x18.FromInt64(100)
			mm := x18.FromInt64(5)
			size := x18.FromInt64(10)
			liq, ok := LiquidationPrice(entry, mm, size, true)
			Expect(ok).To(BeTrue())
			Expect(liq.Lt(entry)).To(BeTrue())
		})

		It("is above entry for a short position", func() {
			entry := x18.FromInt64(100)
			mm := x18.FromInt64(5)
			size := x18.FromInt64(10)
			liq, ok := LiquidationPrice(entry, mm, size, false)
			Expect(ok).To(BeTrue())
			Expect(liq.Gt(entry)).To(BeTrue())
		})

		It("returns not-ok for a flat position", func() {
			_, ok := LiquidationPrice(x18.FromInt64(100), x18.FromInt64(5), x18.Zero(), true)
			Expect(ok).To(BeFalse())
		})
	})
})
