// Package feed implements the mark-price / funding engine (§4.6): premium
// EWMA, a time-weighted premium buffer, mark-price construction from index
// plus capped premium, funding-rate derivation, conditional-order trigger
// evaluation, and liquidation-price computation.
package feed

import (
	"sync"
	"time"

	"github.com/luxdex/core/pkg/oracle"
	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/x18"
)

// Config holds one market's feed parameters (§4.6).
type Config struct {
	PremiumWindow     time.Duration // EWMA and TWAP decay/retention window
	MinPremium        x18.Num
	MaxPremium        x18.Num
	UseTWAPPremium    bool // use the TWAP buffer instead of the EWMA for mark construction
	CapToOracle       bool // additionally bound mark within ±MaxPremium of index
	FundingInterval   time.Duration
	PremiumFraction   x18.Num
	InterestRate      x18.Num
	MaxFundingRate    x18.Num
	TriggerUseMarkRef bool // trigger reference: mark price instead of last trade
}

// Snapshot is the latest computed state for a market (§4.6: "the latest
// computed {index, mark, premium, timestamp}").
type Snapshot struct {
	Index     x18.Num
	Mark      x18.Num
	Premium   x18.Num
	Timestamp time.Time
}

type premiumPoint struct {
	at    time.Time
	value x18.Num
}

type marketState struct {
	cfg Config

	lastTrade x18.Num
	bestBid   x18.Num
	bestAsk   x18.Num
	haveBid   bool
	haveAsk   bool

	ewma       x18.Num
	haveEWMA   bool
	lastSample time.Time

	twapBuf []premiumPoint

	latest Snapshot

	fundingRate    x18.Num
	nextFundingAt  time.Time
	haveFunding    bool
}

// Feed tracks mark/funding state for every registered market, sourcing the
// index price from an injected Oracle (§4.5's "supplied to the feed by
// reference" note — the feed owns no raw sample storage of its own).
type Feed struct {
	mu      sync.RWMutex
	oracle  oracle.Oracle
	markets map[string]*marketState
}

// New creates a feed reading index prices from o.
func New(o oracle.Oracle) *Feed {
	return &Feed{oracle: o, markets: make(map[string]*marketState)}
}

// RegisterMarket initialises per-market feed state under cfg.
func (f *Feed) RegisterMarket(symbolID string, cfg Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets[symbolID] = &marketState{cfg: cfg}
}

func (f *Feed) mustMarket(symbolID string) (*marketState, error) {
	m, ok := f.markets[symbolID]
	if !ok {
		return nil, types.Err(types.CodeMarketNotFound, "feed: market %s not registered", symbolID)
	}
	return m, nil
}

// OnTrade records the latest trade price for symbolID (used as the default
// trigger reference and surfaced in snapshots).
func (f *Feed) OnTrade(symbolID string, price x18.Num, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.mustMarket(symbolID)
	if err != nil {
		return err
	}
	m.lastTrade = price
	return nil
}

// OnBBO records a best-bid/best-ask update and, once both sides exist,
// recomputes mid-price and records a new premium sample against the
// oracle's current index (§4.6: "typically called on BBO update when both
// sides exist").
func (f *Feed) OnBBO(symbolID string, bid, ask x18.Num, haveBid, haveAsk bool, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.mustMarket(symbolID)
	if err != nil {
		return err
	}
	if haveBid {
		m.bestBid, m.haveBid = bid, true
	}
	if haveAsk {
		m.bestAsk, m.haveAsk = ask, true
	}
	if !m.haveBid || !m.haveAsk {
		return nil
	}
	mid := m.bestBid.Add(m.bestAsk).Div(x18.FromInt64(2))

	index, err := f.oracle.GetPrice(symbolID)
	if err != nil {
		return err
	}
	f.recordPremium(m, mid, index, at)
	return nil
}

// recordPremium ingests one (mid, index) sample: updates the EWMA with
// decay alpha = 1 - exp(-deltaT/window), appends to the TWAP buffer, drops
// stale buffer entries, and recomputes the mark snapshot. Caller must hold
// f.mu.
func (f *Feed) recordPremium(m *marketState, mid, index x18.Num, at time.Time) {
	premium := x18.Zero()
	if !index.IsZero() {
		premium = mid.Sub(index).Div(index)
	}

	if !m.haveEWMA {
		m.ewma = premium
		m.haveEWMA = true
	} else {
		dt := at.Sub(m.lastSample)
		alpha := ewmaAlpha(dt, m.cfg.PremiumWindow)
		m.ewma = m.ewma.Mul(x18.One().Sub(alpha)).Add(premium.Mul(alpha))
	}
	m.lastSample = at

	m.twapBuf = append(m.twapBuf, premiumPoint{at: at, value: premium})
	cutoff := at.Add(-m.cfg.PremiumWindow)
	i := 0
	for i < len(m.twapBuf) && m.twapBuf[i].at.Before(cutoff) {
		i++
	}
	m.twapBuf = m.twapBuf[i:]

	estimate := m.ewma
	if m.cfg.UseTWAPPremium {
		estimate = twapOf(m.twapBuf)
	}
	bounded := x18.Clamp(estimate, m.cfg.MinPremium, m.cfg.MaxPremium)
	mark := index.Mul(x18.One().Add(bounded))
	if m.cfg.CapToOracle {
		lo := index.Mul(x18.One().Sub(m.cfg.MaxPremium.Abs()))
		hi := index.Mul(x18.One().Add(m.cfg.MaxPremium.Abs()))
		mark = x18.Clamp(mark, lo, hi)
	}

	m.latest = Snapshot{Index: index, Mark: mark, Premium: bounded, Timestamp: at}
}

// ewmaAlpha computes 1 - exp(-dt/window) via a Taylor-series approximation
// (e^-x ~= 1/(1+x+x^2/2!+...+x^8/8!) for x >= 0), avoiding a dependency on
// math.Exp's float64 path for a value that feeds settlement-adjacent state.
func ewmaAlpha(dt, window time.Duration) x18.Num {
	if window <= 0 || dt <= 0 {
		return x18.One()
	}
	x := x18.FromFloat64(float64(dt) / float64(window))
	one := x18.One()
	term := one
	sum := one
	for k := int64(1); k <= 8; k++ {
		term = term.Mul(x).Div(x18.FromInt64(k))
		sum = sum.Add(term)
	}
	expNegX := one.Div(sum)
	return one.Sub(expNegX)
}

func twapOf(buf []premiumPoint) x18.Num {
	if len(buf) == 0 {
		return x18.Zero()
	}
	if len(buf) == 1 {
		return buf[0].value
	}
	sumWeighted, sumDuration := x18.Zero(), x18.Zero()
	for i := 0; i < len(buf)-1; i++ {
		d := buf[i+1].at.Sub(buf[i].at)
		if d <= 0 {
			continue
		}
		w := x18.FromInt64(int64(d))
		sumWeighted = sumWeighted.Add(buf[i].value.Mul(w))
		sumDuration = sumDuration.Add(w)
	}
	if sumDuration.IsZero() {
		return buf[len(buf)-1].value
	}
	return sumWeighted.Div(sumDuration)
}

// GetSnapshot returns the latest computed {index, mark, premium, timestamp}
// for symbolID.
func (f *Feed) GetSnapshot(symbolID string) (Snapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	m, err := f.mustMarket(symbolID)
	if err != nil {
		return Snapshot{}, err
	}
	return m.latest, nil
}

// Mark returns the latest mark price for symbolID, satisfying the narrow
// vault.MarkSource interface (§9: "dependency injection with a narrow pure
// interface for each" — the vault never imports this package directly).
func (f *Feed) Mark(symbolID string) (x18.Num, error) {
	snap, err := f.GetSnapshot(symbolID)
	if err != nil {
		return x18.Zero(), err
	}
	return snap.Mark, nil
}

// TriggerReference returns the price used to evaluate conditional-order
// triggers for symbolID: last trade by default, or mark price if the
// market's config sets TriggerUseMarkRef.
func (f *Feed) TriggerReference(symbolID string) (x18.Num, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	m, err := f.mustMarket(symbolID)
	if err != nil {
		return x18.Zero(), err
	}
	if m.cfg.TriggerUseMarkRef {
		return m.latest.Mark, nil
	}
	return m.lastTrade, nil
}

// EvaluateTrigger reports whether a pending conditional order on side with
// triggerPx should fire against symbolID's current trigger reference
// (§4.6: buy fires when reference >= trigger; sell when reference <=
// trigger — same geometry for stop-loss and take-profit, the distinction
// is purely semantic).
func (f *Feed) EvaluateTrigger(symbolID string, side types.Side, triggerPx x18.Num) (bool, error) {
	ref, err := f.TriggerReference(symbolID)
	if err != nil {
		return false, err
	}
	if side == types.Buy {
		return ref.Gte(triggerPx), nil
	}
	return ref.Lte(triggerPx), nil
}

// LiquidationPrice computes the price at which a position reaches its
// maintenance margin threshold (§4.6). size is the position's unsigned
// magnitude and isLong gives its direction: the result is entry - mm/size
// for a long and entry + mm/size for a short. Returns false if size is zero.
func LiquidationPrice(entry, maintenanceMargin, size x18.Num, isLong bool) (x18.Num, bool) {
	if size.IsZero() {
		return x18.Zero(), false
	}
	ratio := maintenanceMargin.Div(size)
	if isLong {
		return entry.Sub(ratio), true
	}
	return entry.Add(ratio), true
}
