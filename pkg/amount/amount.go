// Package amount provides a 256-bit unsigned integer value type for reward
// amounts and voter weights. Every arithmetic operation reports overflow,
// underflow and division by zero instead of wrapping around.
package amount

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow       = errors.New("amount overflow")
	ErrUnderflow      = errors.New("amount underflow")
	ErrDivisionByZero = errors.New("amount division by zero")
	ErrNegative       = errors.New("amount cannot be negative")
)

// Amount is comparable and safe to copy.
type Amount struct {
	v uint256.Int
}

func New(v uint64) Amount {
	var a Amount
	a.v.SetUint64(v)
	return a
}

func Zero() Amount {
	return Amount{}
}

func FromBig(b *big.Int) (Amount, error) {
	if b == nil {
		return Zero(), nil
	}
	if b.Sign() < 0 {
		return Zero(), ErrNegative
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Zero(), ErrOverflow
	}
	return Amount{*v}, nil
}

func FromDecimal(s string) (Amount, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Zero(), fmt.Errorf("invalid amount %s: %w", s, err)
	}
	return Amount{*v}, nil
}

func MustFromDecimal(s string) Amount {
	a, err := FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return a
}

func FromBytes32(b [32]byte) Amount {
	var a Amount
	a.v.SetBytes32(b[:])
	return a
}

func (a Amount) Add(b Amount) (Amount, error) {
	var z Amount
	if _, overflow := z.v.AddOverflow(&a.v, &b.v); overflow {
		return Zero(), ErrOverflow
	}
	return z, nil
}

func (a Amount) Sub(b Amount) (Amount, error) {
	var z Amount
	if _, underflow := z.v.SubOverflow(&a.v, &b.v); underflow {
		return Zero(), ErrUnderflow
	}
	return z, nil
}

func (a Amount) Mul(b Amount) (Amount, error) {
	var z Amount
	if _, overflow := z.v.MulOverflow(&a.v, &b.v); overflow {
		return Zero(), ErrOverflow
	}
	return z, nil
}

// Div truncates.
func (a Amount) Div(b Amount) (Amount, error) {
	if b.IsZero() {
		return Zero(), ErrDivisionByZero
	}
	var z Amount
	z.v.Div(&a.v, &b.v)
	return z, nil
}

func (a Amount) Mod(b Amount) (Amount, error) {
	if b.IsZero() {
		return Zero(), ErrDivisionByZero
	}
	var z Amount
	z.v.Mod(&a.v, &b.v)
	return z, nil
}

// MulDiv computes a*b/c with a checked intermediate product.
func (a Amount) MulDiv(b, c Amount) (Amount, error) {
	p, err := a.Mul(b)
	if err != nil {
		return Zero(), err
	}
	return p.Div(c)
}

// WrappingAdd adds modulo 2^256. Only meant for combining random values.
func (a Amount) WrappingAdd(b Amount) Amount {
	var z Amount
	z.v.Add(&a.v, &b.v)
	return z
}

func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

func (a Amount) Lt(b Amount) bool { return a.v.Lt(&b.v) }
func (a Amount) Gt(b Amount) bool { return a.v.Gt(&b.v) }
func (a Amount) IsZero() bool     { return a.v.IsZero() }

func Min(a, b Amount) Amount {
	if a.Lt(b) {
		return a
	}
	return b
}

func Sum(amounts ...Amount) (Amount, error) {
	tot := Zero()
	for _, a := range amounts {
		var err error
		if tot, err = tot.Add(a); err != nil {
			return Zero(), err
		}
	}
	return tot, nil
}

// Uint64 returns false if the amount does not fit.
func (a Amount) Uint64() (uint64, bool) {
	return a.v.Uint64(), a.v.IsUint64()
}

func (a Amount) Big() *big.Int {
	return a.v.ToBig()
}

func (a Amount) Bytes32() [32]byte {
	return a.v.Bytes32()
}

func (a Amount) String() string {
	return a.v.Dec()
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(buf []byte) error {
	var s string
	if err := json.Unmarshal(buf, &s); err != nil {
		return err
	}
	v, err := FromDecimal(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// GobEncode lets badgerhold persist amounts with its default encoder.
func (a Amount) GobEncode() ([]byte, error) {
	b := a.Bytes32()
	return b[:], nil
}

func (a *Amount) GobDecode(buf []byte) error {
	if len(buf) != 32 {
		return fmt.Errorf("invalid gob amount length %d", len(buf))
	}
	var b [32]byte
	copy(b[:], buf)
	*a = FromBytes32(b)
	return nil
}
