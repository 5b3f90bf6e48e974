package vault

import (
	"go.uber.org/zap"

	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/x18"
)

// ApplyFills settles a batch of matched fills against accounts' positions
// and balances (§4.4 apply_fills): for each settlement, update the maker's
// and taker's position with a signed size delta, realize P&L on any
// crossing through zero, recompute the size-weighted entry price on
// same-sign additions, and charge fees. One settlement is applied
// atomically per account pair; a failure on one settlement does not unwind
// settlements already applied earlier in the batch (callers that need
// batch-wide atomicity should pre-check with GetMarginInfo before
// submitting).
func (v *Vault) ApplyFills(fills []Settlement) []error {
	errs := make([]error, len(fills))
	for i, f := range fills {
		errs[i] = v.applyFill(f)
	}
	return errs
}

func (v *Vault) applyFill(f Settlement) error {
	cfg, err := v.Markets.Get(f.SymbolID)
	if err != nil {
		return err
	}

	taker := v.accountFor(f.Taker)
	maker := v.accountFor(f.Maker)

	// Lock order: lower account ordinal first, to avoid deadlocking against
	// the reverse fill of the same pair settling concurrently on another
	// goroutine.
	first, second := taker, maker
	if accountLess(maker.ID, taker.ID) {
		first, second = maker, taker
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	if second != first {
		second.mu.Lock()
		defer second.mu.Unlock()
	}

	takerDelta := f.Size
	if !f.TakerIsBuy {
		takerDelta = f.Size.Neg()
	}

	if err := v.checkPreTradeMargin(taker, f.SymbolID, takerDelta, f.Price); err != nil {
		return err
	}
	if err := v.checkPreTradeMargin(maker, f.SymbolID, takerDelta.Neg(), f.Price); err != nil {
		return err
	}

	settlePosition(taker.positionFor(f.SymbolID), takerDelta, f.Price)
	settlePosition(maker.positionFor(f.SymbolID), takerDelta.Neg(), f.Price)

	taker.addBalance(cfg.Currency, f.TakerFee.Neg())
	maker.addBalance(cfg.Currency, f.MakerFee.Neg())
	return nil
}

// checkPreTradeMargin rejects a fill before any state mutation if applying
// delta at fillPrice would leave a's free margin negative (§4.4 apply_fills
// step 1: "both parties have enough free margin to accommodate the
// resulting position delta"). Reducing or closing fills never fail this
// check — shrinking exposure cannot violate the initial-margin rule, only
// growing or flipping it can. The caller must already hold a.mu.
func (v *Vault) checkPreTradeMargin(a *Account, symbolID string, delta, fillPrice x18.Num) error {
	existing, hadOrig := a.Positions[symbolID]
	before := Position{SymbolID: symbolID}
	if hadOrig {
		before = *existing
	}
	projected := before
	settlePosition(&projected, delta, fillPrice)

	if projected.Size.Abs().Lte(before.Size.Abs()) {
		return nil
	}

	a.Positions[symbolID] = &projected
	info, err := v.marginInfoLocked(a)
	if hadOrig {
		a.Positions[symbolID] = existing
	} else {
		delete(a.Positions, symbolID)
	}
	if err != nil {
		return err
	}
	if info.FreeMargin.IsNeg() {
		return types.Err(types.CodeInsufficientMargin, "fill would violate initial margin requirement for account in %s", symbolID)
	}
	return nil
}

func accountLess(a, b types.AccountID) bool {
	if a.Main != b.Main {
		return a.Main.Hex() < b.Main.Hex()
	}
	return a.Sub < b.Sub
}

// settlePosition applies a signed size delta at fillPrice to p, realizing
// P&L on any reduction and recomputing the size-weighted entry price on any
// same-sign addition (§4.4: "entry price is recomputed as a size-weighted
// average when a fill adds to an existing same-sign position; P&L realizes
// immediately on any fill that reduces or flips a position").
func settlePosition(p *Position, delta, fillPrice x18.Num) {
	if p.Size.IsZero() {
		p.Size = delta
		p.EntryPrice = fillPrice
		return
	}

	sameSign := (p.Size.IsPos() && delta.IsPos()) || (p.Size.IsNeg() && delta.IsNeg())
	if sameSign {
		oldNotional := p.Size.Abs().Mul(p.EntryPrice)
		addNotional := delta.Abs().Mul(fillPrice)
		newSize := p.Size.Add(delta)
		p.EntryPrice = oldNotional.Add(addNotional).Div(newSize.Abs())
		p.Size = newSize
		return
	}

	// Opposing delta: reduces, closes, or flips the position. The portion
	// up to min(|size|,|delta|) realizes P&L at the entry price; any excess
	// flips the position at fillPrice becoming the new entry.
	newSize := p.Size.Add(delta)
	if newSize.IsZero() {
		p.Size = x18.Zero()
		p.EntryPrice = x18.Zero()
		return
	}
	flipped := (p.Size.IsPos() && newSize.IsNeg()) || (p.Size.IsNeg() && newSize.IsPos())
	p.Size = newSize
	if flipped {
		p.EntryPrice = fillPrice
	}
	// partial reduction without flip keeps the existing entry price
}

// GetMarginInfo computes an account's current margin state across all its
// positions, marked at the feed's current mark price per market (§4.4):
// total_collateral is the sum of balances; used_margin is the sum of each
// position's notional*initial_margin_frac; maintenance_margin is the sum of
// each position's notional*maintenance_margin_frac; free_margin is collateral
// plus unrealized P&L minus used_margin; margin_ratio is equity/notional;
// liquidatable iff equity < maintenance_margin.
func (v *Vault) GetMarginInfo(id types.AccountID) (MarginInfo, error) {
	a := v.accountFor(id)
	a.mu.Lock()
	defer a.mu.Unlock()
	return v.marginInfoLocked(a)
}

func (v *Vault) marginInfoLocked(a *Account) (MarginInfo, error) {
	totalCollateral := x18.Zero()
	for _, bal := range a.Balances {
		totalCollateral = totalCollateral.Add(bal)
	}

	usedMargin := x18.Zero()
	maintenanceMargin := x18.Zero()
	unrealized := x18.Zero()
	totalNotional := x18.Zero()

	for symbolID, p := range a.Positions {
		if p.IsFlat() {
			continue
		}
		cfg, err := v.Markets.Get(symbolID)
		if err != nil {
			return MarginInfo{}, err
		}
		mark, err := v.Mark.Mark(symbolID)
		if err != nil {
			return MarginInfo{}, err
		}
		notional := p.Notional(mark)
		usedMargin = usedMargin.Add(notional.Mul(cfg.InitialMarginFrac))
		maintenanceMargin = maintenanceMargin.Add(notional.Mul(cfg.MaintenanceMarginFrac))
		unrealized = unrealized.Add(p.UnrealizedPnL(mark))
		totalNotional = totalNotional.Add(notional)
	}

	equity := totalCollateral.Add(unrealized)
	freeMargin := equity.Sub(usedMargin)

	marginRatio := x18.Zero()
	if !totalNotional.IsZero() {
		marginRatio = equity.Div(totalNotional)
	}

	return MarginInfo{
		TotalCollateral:   totalCollateral,
		UsedMargin:        usedMargin,
		FreeMargin:        freeMargin,
		MarginRatio:       marginRatio,
		MaintenanceMargin: maintenanceMargin,
		Liquidatable:      !totalNotional.IsZero() && equity.Lt(maintenanceMargin),
	}, nil
}

// IsLiquidatable reports whether account's equity has fallen below its
// aggregate maintenance margin.
func (v *Vault) IsLiquidatable(id types.AccountID) (bool, error) {
	info, err := v.GetMarginInfo(id)
	if err != nil {
		return false, err
	}
	return info.Liquidatable, nil
}

// Liquidate closes up to size of account's position in market_id at the
// current mark price on behalf of liquidator, charging a penalty split
// between the liquidator and the insurance fund (§4.4 liquidate). If the
// account's balance is still negative after the penalty, the residual is
// covered first from the insurance fund and then, if that can't cover it,
// by auto-deleveraging ranked counterparties (RankForADL) — never left
// for a separate caller to route manually.
func (v *Vault) Liquidate(liquidator, account types.AccountID, symbolID string, size x18.Num) error {
	info, err := v.GetMarginInfo(account)
	if err != nil {
		return err
	}
	if !info.Liquidatable {
		return types.Err(types.CodeNotLiquidatable, "account is not liquidatable")
	}
	cfg, err := v.Markets.Get(symbolID)
	if err != nil {
		return err
	}
	mark, err := v.Mark.Mark(symbolID)
	if err != nil {
		return err
	}

	a := v.accountFor(account)
	a.mu.Lock()
	p, ok := a.Positions[symbolID]
	if !ok || p.IsFlat() {
		a.mu.Unlock()
		return types.Err(types.CodePositionNotFound, "no open position in %s", symbolID)
	}
	wasLong := p.Size.IsPos()
	closeSize := x18.Min(size, p.Size.Abs())
	delta := closeSize
	if p.Size.IsPos() {
		delta = closeSize.Neg()
	}
	settlePosition(p, delta, mark)

	penalty := closeSize.Mul(mark).Mul(cfg.PenaltyRate)
	a.addBalance(cfg.Currency, penalty.Neg())

	shortfall := x18.Zero()
	if bal := a.balance(cfg.Currency); bal.IsNeg() {
		shortfall = bal.Neg()
	}
	a.mu.Unlock()

	liquidatorCut := penalty.Mul(cfg.LiquidatorShare)
	insuranceCut := penalty.Sub(liquidatorCut)

	lAcct := v.accountFor(liquidator)
	lAcct.mu.Lock()
	lAcct.addBalance(cfg.Currency, liquidatorCut)
	lAcct.mu.Unlock()

	v.Insurance.Contribute(insuranceCut)

	if shortfall.IsPos() {
		if err := v.socializeShortfall(account, symbolID, wasLong, cfg.Currency, shortfall, mark); err != nil {
			return err
		}
	}
	return nil
}

// socializeShortfall covers a just-liquidated account's residual negative
// balance, first by drawing down the insurance fund and then, if that
// isn't enough, by auto-deleveraging: RankForADL's highest profitability *
// leverage counterparties on the opposite side of symbolID have their
// positions force-closed at bankruptcyPrice, one by one, until the
// shortfall is covered or the ranked list is exhausted. Liquidate passes
// the mark price it closed the liquidated position at as bankruptcyPrice;
// no separate bankruptcy price is computed. Any remainder after exhausting
// candidates is unrecoverable bad debt.
func (v *Vault) socializeShortfall(account types.AccountID, symbolID string, bankruptWasLong bool, currency string, shortfall, bankruptcyPrice x18.Num) error {
	drawn := v.Insurance.Withdraw(shortfall)
	a := v.accountFor(account)
	a.mu.Lock()
	a.addBalance(currency, drawn)
	a.mu.Unlock()

	remaining := shortfall.Sub(drawn)
	if !remaining.IsPos() {
		return nil
	}

	candidates, err := v.RankForADL(symbolID, bankruptWasLong)
	if err != nil {
		return err
	}

	socialized := x18.Zero()
	for _, c := range candidates {
		if !remaining.IsPos() {
			break
		}
		ca := v.accountFor(c.Account)
		ca.mu.Lock()
		cp, ok := ca.Positions[symbolID]
		if ok && !cp.IsFlat() {
			take := x18.Min(remaining, cp.Size.Abs().Mul(bankruptcyPrice))
			if take.IsPos() {
				closeQty := take.Div(bankruptcyPrice)
				closeDelta := closeQty
				if cp.Size.IsPos() {
					closeDelta = closeQty.Neg()
				}
				settlePosition(cp, closeDelta, bankruptcyPrice)
				ca.addBalance(currency, take.Neg())
				remaining = remaining.Sub(take)
				socialized = socialized.Add(take)
			}
		}
		ca.mu.Unlock()
	}

	if socialized.IsPos() {
		a.mu.Lock()
		a.addBalance(currency, socialized)
		a.mu.Unlock()
	}

	if remaining.IsPos() && v.log != nil {
		v.log.Warn("adl exhausted ranked counterparties with shortfall remaining",
			zap.String("symbol_id", symbolID),
			zap.String("remaining", remaining.String()),
		)
	}
	return nil
}

// AccrueFunding applies one funding payment to every open position in
// market_id: each position pays or receives size*mark*rate*(elapsed /
// funding_interval) (§4.4 accrue_funding), debited/credited against the
// market's settlement currency and tracked cumulatively on the position.
func (v *Vault) AccrueFunding(symbolID string, rate x18.Num, now int64) error {
	cfg, err := v.Markets.Get(symbolID)
	if err != nil {
		return err
	}
	mark, err := v.Mark.Mark(symbolID)
	if err != nil {
		return err
	}

	v.mu.RLock()
	accounts := make([]*Account, 0, len(v.accounts))
	for _, a := range v.accounts {
		accounts = append(accounts, a)
	}
	v.mu.RUnlock()

	interval := cfg.FundingInterval
	if interval <= 0 {
		interval = 1
	}

	for _, a := range accounts {
		a.mu.Lock()
		p, ok := a.Positions[symbolID]
		if ok && !p.IsFlat() {
			elapsed := now - p.LastFundingAt
			if p.LastFundingAt == 0 {
				elapsed = interval
			}
			frac := x18.FromInt64(elapsed).Div(x18.FromInt64(interval))
			payment := p.Size.Mul(mark).Mul(rate).Mul(frac)
			p.AccumulatedFunding = p.AccumulatedFunding.Add(payment)
			p.LastFundingAt = now
			a.addBalance(cfg.Currency, payment.Neg())
		}
		a.mu.Unlock()
	}
	return nil
}
