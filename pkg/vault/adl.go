package vault

import (
	"sort"

	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/x18"
)

// ADLCandidate is one ranked counterparty for auto-deleverage (§4.4: when a
// bankrupt account's loss exceeds what liquidation plus the insurance fund
// can cover, the opposite side of the market is ranked by profitability *
// leverage and the top-ranked positions are force-closed against the
// bankrupt account at mark price).
type ADLCandidate struct {
	Account  types.AccountID
	Size     x18.Num // signed
	Rank     x18.Num // profitability * leverage, descending
}

// RankForADL ranks every account holding a position opposite to isLong in
// symbolID by unrealized-PnL-fraction * leverage, highest first. Accounts
// with non-positive unrealized P&L are excluded — ADL only socializes
// losses against counterparties who are currently profiting from the
// position.
func (v *Vault) RankForADL(symbolID string, isLong bool) ([]ADLCandidate, error) {
	if _, err := v.Markets.Get(symbolID); err != nil {
		return nil, err
	}
	mark, err := v.Mark.Mark(symbolID)
	if err != nil {
		return nil, err
	}

	v.mu.RLock()
	accounts := make([]*Account, 0, len(v.accounts))
	for _, a := range v.accounts {
		accounts = append(accounts, a)
	}
	v.mu.RUnlock()

	var candidates []ADLCandidate
	for _, a := range accounts {
		a.mu.Lock()
		p, ok := a.Positions[symbolID]
		if ok && !p.IsFlat() {
			wantLong := !isLong
			holdsLong := p.Size.IsPos()
			if holdsLong == wantLong {
				pnl := p.UnrealizedPnL(mark)
				if pnl.IsPos() {
					notional := p.Notional(mark)
					equity := x18.Zero()
					for _, bal := range a.Balances {
						equity = equity.Add(bal)
					}
					equity = equity.Add(pnl)
					leverage := x18.Zero()
					if !equity.IsZero() {
						leverage = notional.Div(equity)
					}
					pnlFrac := x18.Zero()
					if !notional.IsZero() {
						pnlFrac = pnl.Div(notional)
					}
					candidates = append(candidates, ADLCandidate{
						Account: a.ID,
						Size:    p.Size,
						Rank:    pnlFrac.Mul(leverage),
					})
				}
			}
		}
		a.mu.Unlock()
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Rank.Gt(candidates[j].Rank)
	})
	return candidates, nil
}
