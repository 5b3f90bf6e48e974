package feed

import (
	"time"

	"github.com/luxdex/core/pkg/x18"
)

// FundingResult is the outcome of a ComputeFunding call.
type FundingResult struct {
	Rate          x18.Num
	NextFundingAt time.Time
}

// ComputeFunding computes and records the funding rate for symbolID if due
// (§4.6: "computed once per funding_interval"):
// rate = clamp(premium_fraction * avg_premium + interest_rate, ±max_funding_rate).
// avg_premium is the TWAP-buffer average over the configured premium window.
// If funding is not yet due, the previously computed rate is returned
// unchanged. now advances the schedule; the first call seeds NextFundingAt
// at now+FundingInterval without computing a rate.
func (f *Feed) ComputeFunding(symbolID string, now time.Time) (FundingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.mustMarket(symbolID)
	if err != nil {
		return FundingResult{}, err
	}

	if !m.haveFunding {
		m.nextFundingAt = now.Add(m.cfg.FundingInterval)
		m.haveFunding = true
		return FundingResult{Rate: m.fundingRate, NextFundingAt: m.nextFundingAt}, nil
	}
	if now.Before(m.nextFundingAt) {
		return FundingResult{Rate: m.fundingRate, NextFundingAt: m.nextFundingAt}, nil
	}

	avgPremium := twapOf(m.twapBuf)
	rate := m.cfg.PremiumFraction.Mul(avgPremium).Add(m.cfg.InterestRate)
	rate = x18.Clamp(rate, m.cfg.MaxFundingRate.Abs().Neg(), m.cfg.MaxFundingRate.Abs())

	m.fundingRate = rate
	m.nextFundingAt = now.Add(m.cfg.FundingInterval)
	return FundingResult{Rate: rate, NextFundingAt: m.nextFundingAt}, nil
}
