// Package x18 implements signed fixed-point arithmetic at scale 10^18
// ("X18"), the scale used throughout the book, the vault, and the feed for
// prices, quantities, and balances.
//
// Go has no native 128-bit integer and no compiler __int128 extension, so
// the arithmetic is carried on math/big.Int, which gives the arbitrary
// intermediate precision the spec's mul() needs (256-bit headroom) without
// a hand-rolled uint128 type. Callers are still expected to respect the
// documented safe operand range; this package does not saturate.
package x18

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Scale is 10^18, the fixed-point denominator. One whole unit (1.0) is Scale.
var Scale = big.NewInt(0).Exp(big.NewInt(10), big.NewInt(18), nil)

// Num is a signed X18 fixed-point number. The zero value is a valid
// representation of 0, the same way math/big.Int's zero value is valid —
// callers get a usable Num out of a bare Order{} or Account{} literal
// without routing every field through Zero().
type Num struct {
	v *big.Int
}

func wrap(v *big.Int) Num { return Num{v: v} }

// val returns n's backing big.Int, substituting 0 for a nil zero value.
func (n Num) val() *big.Int {
	if n.v == nil {
		return big.NewInt(0)
	}
	return n.v
}

// Zero is the additive identity.
func Zero() Num { return Num{v: big.NewInt(0)} }

// One is 1.0 in X18.
func One() Num { return Num{v: new(big.Int).Set(Scale)} }

// FromInt64 builds an X18 value from an integer count of whole units.
func FromInt64(i int64) Num {
	return Num{v: new(big.Int).Mul(big.NewInt(i), Scale)}
}

// FromRaw builds an X18 value from its already-scaled integer representation
// (i.e. raw = value * 10^18).
func FromRaw(raw int64) Num {
	return Num{v: big.NewInt(raw)}
}

// FromBigRaw builds an X18 value from an arbitrary-precision raw integer.
func FromBigRaw(raw *big.Int) Num {
	return Num{v: new(big.Int).Set(raw)}
}

// FromFloat64 builds an X18 value from a float64, via decimal to avoid
// binary-float rounding surprises at common human-entered scales.
func FromFloat64(f float64) Num {
	d := decimal.NewFromFloat(f).Shift(18)
	return Num{v: d.BigInt()}
}

// FromString parses a decimal string ("123.456") into X18.
func FromString(s string) (Num, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero(), fmt.Errorf("x18: invalid decimal %q: %w", s, err)
	}
	return Num{v: d.Shift(18).BigInt()}, nil
}

// MustFromString is FromString but panics on error; for constants.
func MustFromString(s string) Num {
	n, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return n
}

// Raw returns the underlying scaled integer (value * 10^18).
func (n Num) Raw() *big.Int {
	return new(big.Int).Set(n.val())
}

// Add returns n + m.
func (n Num) Add(m Num) Num {
	return wrap(new(big.Int).Add(n.val(), m.val()))
}

// Sub returns n - m.
func (n Num) Sub(m Num) Num {
	return wrap(new(big.Int).Sub(n.val(), m.val()))
}

// Neg returns -n.
func (n Num) Neg() Num {
	return wrap(new(big.Int).Neg(n.val()))
}

// Abs returns |n|.
func (n Num) Abs() Num {
	return wrap(new(big.Int).Abs(n.val()))
}

// Mul returns n * m, computed as (n.v * m.v) / Scale with a wide
// intermediate (big.Int has no fixed width, so no overflow is possible
// here; the spec's headroom precondition bounds the *meaningful* range of
// the result, not this implementation's correctness).
func (n Num) Mul(m Num) Num {
	wide := new(big.Int).Mul(n.val(), m.val())
	return wrap(wide.Quo(wide, Scale))
}

// Div returns n / m, computed as (n.v * Scale) / m.v. Division by zero
// returns zero, matching the documented contract (not an error).
func (n Num) Div(m Num) Num {
	mv := m.val()
	if mv.Sign() == 0 {
		return Zero()
	}
	wide := new(big.Int).Mul(n.val(), Scale)
	return wrap(wide.Quo(wide, mv))
}

// Cmp returns -1, 0, or 1 as n is less than, equal to, or greater than m.
func (n Num) Cmp(m Num) int {
	return n.val().Cmp(m.val())
}

func (n Num) Lt(m Num) bool  { return n.Cmp(m) < 0 }
func (n Num) Lte(m Num) bool { return n.Cmp(m) <= 0 }
func (n Num) Gt(m Num) bool  { return n.Cmp(m) > 0 }
func (n Num) Gte(m Num) bool { return n.Cmp(m) >= 0 }
func (n Num) IsZero() bool   { return n.val().Sign() == 0 }
func (n Num) IsNeg() bool    { return n.val().Sign() < 0 }
func (n Num) IsPos() bool    { return n.val().Sign() > 0 }
func (n Num) Sign() int      { return n.val().Sign() }

// Min returns the lesser of n and m.
func Min(n, m Num) Num {
	if n.Lte(m) {
		return n
	}
	return m
}

// Max returns the greater of n and m.
func Max(n, m Num) Num {
	if n.Gte(m) {
		return n
	}
	return m
}

// Clamp bounds n to [lo, hi].
func Clamp(n, lo, hi Num) Num {
	if n.Lt(lo) {
		return lo
	}
	if n.Gt(hi) {
		return hi
	}
	return n
}

// decimalValue converts the raw X18 integer to a shopspring/decimal.Decimal
// for display purposes only; arithmetic never routes through this.
func (n Num) decimalValue() decimal.Decimal {
	return decimal.NewFromBigInt(n.val(), -18)
}

// String renders n as a plain decimal string with trailing zeros trimmed,
// e.g. "1234.5".
func (n Num) String() string {
	return n.decimalValue().String()
}

// Float64 converts n to a float64 for display/logging; never use for
// settlement math.
func (n Num) Float64() float64 {
	f, _ := n.decimalValue().Float64()
	return f
}
