// Package risk implements the pre-trade risk checks that sit in front of
// the vault (§4.7): hypothetical post-trade margin validation, reduce-only
// enforcement, maximum order sizing, and bankruptcy detection.
package risk

import (
	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/vault"
	"github.com/luxdex/core/pkg/x18"
)

// Engine evaluates orders against a vault's account and market state before
// they reach the book.
type Engine struct {
	v *vault.Vault
}

// New creates a risk engine bound to v.
func New(v *vault.Vault) *Engine {
	return &Engine{v: v}
}

// PreTradeCheck computes the hypothetical post-trade margin for order and
// rejects it if the fill would violate the initial-margin rule, or if
// order.ReduceOnly would grow the position past zero (§4.7).
func (e *Engine) PreTradeCheck(order *types.Order) error {
	cfg, err := e.v.Markets.Get(order.SymbolID)
	if err != nil {
		return err
	}

	acct := e.v.GetAccount(order.Account)
	current := acct.Position(order.SymbolID)

	delta := order.Remaining()
	if !order.IsBuy() {
		delta = delta.Neg()
	}
	newSize := current.Size.Add(delta)

	if order.ReduceOnly {
		growsPastZero := current.Size.IsZero() ||
			(current.Size.IsPos() && (newSize.Gt(current.Size) || newSize.IsNeg())) ||
			(current.Size.IsNeg() && (newSize.Lt(current.Size) || newSize.IsPos()))
		if growsPastZero {
			return types.Err(types.CodeInvalidTickRange, "reduce_only order would grow position past zero")
		}
	}

	mark, err := e.v.Mark.Mark(order.SymbolID)
	if err != nil {
		return err
	}

	info, err := e.v.GetMarginInfo(order.Account)
	if err != nil {
		return err
	}

	oldNotional := current.Size.Abs().Mul(mark)
	newNotional := newSize.Abs().Mul(mark)
	deltaUsedMargin := newNotional.Sub(oldNotional).Mul(cfg.InitialMarginFrac)

	projectedFreeMargin := info.FreeMargin.Sub(deltaUsedMargin)
	if projectedFreeMargin.IsNeg() {
		return types.Err(types.CodeInsufficientMargin, "order would violate initial margin requirement")
	}
	return nil
}

// MaxOrderSize returns the largest size that keeps free margin >= 0 at the
// current mark for a new order on the given side (§4.7). It solves
// free_margin - |newNotional - oldNotional| * initial_margin_frac >= 0 for
// the worst case (position growing away from flat).
func (e *Engine) MaxOrderSize(accountID types.AccountID, symbolID string, isBuy bool) (x18.Num, error) {
	cfg, err := e.v.Markets.Get(symbolID)
	if err != nil {
		return x18.Zero(), err
	}
	mark, err := e.v.Mark.Mark(symbolID)
	if err != nil {
		return x18.Zero(), err
	}
	info, err := e.v.GetMarginInfo(accountID)
	if err != nil {
		return x18.Zero(), err
	}
	if !info.FreeMargin.IsPos() || cfg.InitialMarginFrac.IsZero() || mark.IsZero() {
		return x18.Zero(), nil
	}
	marginPerUnit := mark.Mul(cfg.InitialMarginFrac)
	return info.FreeMargin.Div(marginPerUnit), nil
}

// IsBankrupt reports whether account's total collateral has gone negative
// (§4.7: "total_collateral < 0").
func (e *Engine) IsBankrupt(accountID types.AccountID) (bool, error) {
	info, err := e.v.GetMarginInfo(accountID)
	if err != nil {
		return false, err
	}
	return info.TotalCollateral.IsNeg(), nil
}
