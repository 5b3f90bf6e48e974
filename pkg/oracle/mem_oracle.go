package oracle

import (
	"sort"
	"sync"
	"time"

	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/util"
	"github.com/luxdex/core/pkg/x18"
)

// maxObservations bounds each source's retained sample history; older
// points are evicted FIFO as new ones arrive.
const maxObservations = 256

// outlierDeviation rejects a sample whose distance from the cross-source
// median exceeds this fraction of the median (0.10 == 10%), once at least
// 3 sources have reported (§4.5: "rejected if beyond reasonable multiplier
// of median").
var outlierDeviation = x18.MustFromString("0.10")

type sample struct {
	price      x18.Num
	confidence x18.Num
	at         time.Time
}

type sourceHistory struct {
	samples []sample
}

type assetState struct {
	cfg     AssetConfig
	bySrc   map[string]*sourceHistory
	sources []string // insertion order, for deterministic iteration
}

func newAssetState(cfg AssetConfig) *assetState {
	return &assetState{cfg: cfg, bySrc: make(map[string]*sourceHistory)}
}

func (a *assetState) latestPerSource() []sample {
	out := make([]sample, 0, len(a.sources))
	for _, src := range a.sources {
		h := a.bySrc[src]
		if len(h.samples) == 0 {
			continue
		}
		out = append(out, h.samples[len(h.samples)-1])
	}
	return out
}

func (a *assetState) newestTimestamp() (time.Time, bool) {
	var latest time.Time
	found := false
	for _, src := range a.sources {
		h := a.bySrc[src]
		if len(h.samples) == 0 {
			continue
		}
		t := h.samples[len(h.samples)-1].at
		if !found || t.After(latest) {
			latest, found = t, true
		}
	}
	return latest, found
}

// MemOracle is an in-memory reference Oracle: per-asset, per-source bounded
// sample history with median/mean/weighted cross-source aggregation, TWAP
// over a trailing window, outlier rejection, and staleness queries driven
// by an injected util.Clock.
type MemOracle struct {
	mu     sync.RWMutex
	clock  util.Clock
	assets map[string]*assetState
}

// NewMemOracle creates an oracle with no registered assets, using clock for
// all freshness/age queries. A nil clock defaults to util.RealClock{}.
func NewMemOracle(clock util.Clock) *MemOracle {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &MemOracle{clock: clock, assets: make(map[string]*assetState)}
}

// RegisterAsset is idempotent: re-registering resets the asset's history
// under the new configuration (§4.5).
func (m *MemOracle) RegisterAsset(symbolID string, cfg AssetConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.MinSources <= 0 {
		cfg.MinSources = 1
	}
	m.assets[symbolID] = newAssetState(cfg)
	return nil
}

func (m *MemOracle) mustAsset(symbolID string) (*assetState, error) {
	a, ok := m.assets[symbolID]
	if !ok {
		return nil, types.Err(types.CodeInvalidCurrency, "asset %s not registered", symbolID)
	}
	return a, nil
}

// UpdatePrice records a new sample from source for symbolID, rejecting it
// if it deviates from the current cross-source median by more than
// outlierDeviation once enough sources are already reporting.
func (m *MemOracle) UpdatePrice(symbolID, source string, price x18.Num, confidence x18.Num) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.mustAsset(symbolID)
	if err != nil {
		return err
	}

	if latest := a.latestPerSource(); len(latest) >= 3 {
		prices := make([]x18.Num, len(latest))
		for i, s := range latest {
			prices[i] = s.price
		}
		med := median(prices)
		threshold := med.Mul(outlierDeviation).Abs()
		if price.Sub(med).Abs().Gt(threshold) {
			return types.Err(types.CodePriceLimitExceeded, "sample for %s from %s deviates from median beyond tolerance", symbolID, source)
		}
	}

	h, ok := a.bySrc[source]
	if !ok {
		h = &sourceHistory{}
		a.bySrc[source] = h
		a.sources = append(a.sources, source)
	}
	h.samples = append(h.samples, sample{price: price, confidence: confidence, at: m.clock.Now()})
	if len(h.samples) > maxObservations {
		h.samples = h.samples[len(h.samples)-maxObservations:]
	}
	return nil
}

// GetPrice aggregates symbolID's latest per-source samples using its
// configured method. Returns CodePriceStale if the newest sample is older
// than MaxStaleness or fewer than MinSources have reported (§4.5).
func (m *MemOracle) GetPrice(symbolID string) (x18.Num, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, err := m.mustAsset(symbolID)
	if err != nil {
		return x18.Zero(), err
	}
	latest := a.latestPerSource()
	if len(latest) < a.cfg.MinSources {
		return x18.Zero(), types.Err(types.CodePriceStale, "insufficient sources for %s: have %d, need %d", symbolID, len(latest), a.cfg.MinSources)
	}
	newest, ok := a.newestTimestamp()
	if !ok || (a.cfg.MaxStaleness > 0 && m.clock.Now().Sub(newest) > a.cfg.MaxStaleness) {
		return x18.Zero(), types.Err(types.CodePriceStale, "price for %s is stale", symbolID)
	}
	return aggregate(latest, a.cfg.Method), nil
}

// GetTWAP computes the time-weighted average price over window, ending now,
// across all sources' samples pooled together and sorted by time.
func (m *MemOracle) GetTWAP(symbolID string, window time.Duration) (x18.Num, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, err := m.mustAsset(symbolID)
	if err != nil {
		return x18.Zero(), err
	}
	var pool []sample
	cutoff := m.clock.Now().Add(-window)
	for _, src := range a.sources {
		for _, s := range a.bySrc[src].samples {
			if !s.at.Before(cutoff) {
				pool = append(pool, s)
			}
		}
	}
	if len(pool) == 0 {
		return x18.Zero(), types.Err(types.CodePriceStale, "no samples in window for %s", symbolID)
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].at.Before(pool[j].at) })

	sumWeighted, sumDuration := x18.Zero(), x18.Zero()
	now := m.clock.Now()
	for i, s := range pool {
		var end time.Time
		if i+1 < len(pool) {
			end = pool[i+1].at
		} else {
			end = now
		}
		d := end.Sub(s.at)
		if d <= 0 {
			continue
		}
		weight := x18.FromInt64(int64(d))
		sumWeighted = sumWeighted.Add(s.price.Mul(weight))
		sumDuration = sumDuration.Add(weight)
	}
	if sumDuration.IsZero() {
		return pool[len(pool)-1].price, nil
	}
	return sumWeighted.Div(sumDuration), nil
}

// IsPriceFresh reports whether symbolID's newest sample is within its
// registered MaxStaleness of now.
func (m *MemOracle) IsPriceFresh(symbolID string) (bool, error) {
	age, err := m.PriceAge(symbolID)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	a, _ := m.mustAsset(symbolID)
	m.mu.RUnlock()
	if a.cfg.MaxStaleness <= 0 {
		return true, nil
	}
	return age <= a.cfg.MaxStaleness, nil
}

// PriceAge returns now minus the timestamp of the newest sample across all
// sources.
func (m *MemOracle) PriceAge(symbolID string) (time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, err := m.mustAsset(symbolID)
	if err != nil {
		return 0, err
	}
	newest, ok := a.newestTimestamp()
	if !ok {
		return 0, types.Err(types.CodePriceStale, "no samples for %s", symbolID)
	}
	return m.clock.Now().Sub(newest), nil
}

func aggregate(samples []sample, method types.AggregationMethod) x18.Num {
	prices := make([]x18.Num, len(samples))
	for i, s := range samples {
		prices[i] = s.price
	}
	switch method {
	case types.Median:
		return median(prices)
	case types.Weighted:
		return weightedMean(samples)
	default: // Mean, TWAP (TWAP proper needs GetTWAP's window; this is its plain-GetPrice fallback)
		return mean(prices)
	}
}

func median(prices []x18.Num) x18.Num {
	sorted := make([]x18.Num, len(prices))
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Lt(sorted[j]) })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(x18.FromInt64(2))
}

func mean(prices []x18.Num) x18.Num {
	sum := x18.Zero()
	for _, p := range prices {
		sum = sum.Add(p)
	}
	return sum.Div(x18.FromInt64(int64(len(prices))))
}

func weightedMean(samples []sample) x18.Num {
	sumW, sumWP := x18.Zero(), x18.Zero()
	for _, s := range samples {
		w := s.confidence
		if w.IsZero() {
			w = x18.One()
		}
		sumW = sumW.Add(w)
		sumWP = sumWP.Add(s.price.Mul(w))
	}
	if sumW.IsZero() {
		prices := make([]x18.Num, len(samples))
		for i, s := range samples {
			prices[i] = s.price
		}
		return mean(prices)
	}
	return sumWP.Div(sumW)
}
