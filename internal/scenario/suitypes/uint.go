// Package suitypes holds the value types the scenario host shares with the
// scripting layer: the arbitrary-precision unsigned integer and the
// discriminated unions describing objects and ownership.
package suitypes

import (
	"fmt"
	"math/big"
)

// UInt is an arbitrary-precision unsigned integer. Width-sensitive
// arithmetic takes an explicit bit width; operations that can overflow
// return explicit results instead of panicking.
type UInt struct {
	value *big.Int
}

// NewUInt wraps a non-negative big integer.
func NewUInt(v *big.Int) (*UInt, error) {
	if v.Sign() < 0 {
		return nil, fmt.Errorf("cannot represent negative value")
	}
	return &UInt{value: new(big.Int).Set(v)}, nil
}

// UIntFromUint64 lifts a machine word.
func UIntFromUint64(v uint64) *UInt {
	return &UInt{value: new(big.Int).SetUint64(v)}
}

// UIntFromString parses a decimal literal.
func UIntFromString(s string) (*UInt, error) {
	return UIntFromStringRadix(s, 10)
}

// UIntFromStringRadix parses a literal in the given radix (2..36).
func UIntFromStringRadix(s string, radix int) (*UInt, error) {
	if radix < 2 || radix > 36 {
		return nil, fmt.Errorf("radix %d out of range", radix)
	}
	v, ok := new(big.Int).SetString(s, radix)
	if !ok {
		return nil, fmt.Errorf("invalid integer literal %q", s)
	}
	return NewUInt(v)
}

// Zero is the additive identity.
func Zero() *UInt { return UIntFromUint64(0) }

// One is the multiplicative identity.
func One() *UInt { return UIntFromUint64(1) }

// MaxValue is the largest value of the given bit width.
func MaxValue(bits int) *UInt {
	return &UInt{value: mask(bits)}
}

func mask(bits int) *big.Int {
	if bits <= 0 {
		return new(big.Int)
	}
	m := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	return m.Sub(m, big.NewInt(1))
}

func (u *UInt) String() string { return u.value.String() }

// Big returns a copy of the underlying integer.
func (u *UInt) Big() *big.Int { return new(big.Int).Set(u.value) }

// Bits returns the minimal bit length of the value.
func (u *UInt) Bits() int { return u.value.BitLen() }

// Cmp compares two values: -1, 0, or 1.
func (u *UInt) Cmp(o *UInt) int { return u.value.Cmp(o.value) }

// Eq reports value equality.
func (u *UInt) Eq(o *UInt) bool { return u.Cmp(o) == 0 }

// Add returns u+o without width bounds.
func (u *UInt) Add(o *UInt) *UInt {
	return &UInt{value: new(big.Int).Add(u.value, o.value)}
}

// Sub returns u-o, failing on underflow.
func (u *UInt) Sub(o *UInt) (*UInt, error) {
	if u.value.Cmp(o.value) < 0 {
		return nil, fmt.Errorf("underflow")
	}
	return &UInt{value: new(big.Int).Sub(u.value, o.value)}, nil
}

// Mul returns u*o without width bounds.
func (u *UInt) Mul(o *UInt) *UInt {
	return &UInt{value: new(big.Int).Mul(u.value, o.value)}
}

// Div returns u/o, failing on a zero divisor.
func (u *UInt) Div(o *UInt) (*UInt, error) {
	if o.value.Sign() == 0 {
		return nil, fmt.Errorf("division by zero")
	}
	return &UInt{value: new(big.Int).Quo(u.value, o.value)}, nil
}

// Rem returns u%o, failing on a zero divisor.
func (u *UInt) Rem(o *UInt) (*UInt, error) {
	if o.value.Sign() == 0 {
		return nil, fmt.Errorf("division by zero")
	}
	return &UInt{value: new(big.Int).Rem(u.value, o.value)}, nil
}

// Pow raises u to a machine-word exponent.
func (u *UInt) Pow(exp uint) *UInt {
	return &UInt{value: new(big.Int).Exp(u.value, new(big.Int).SetUint64(uint64(exp)), nil)}
}

// And, Or, Xor are the bitwise operations.
func (u *UInt) And(o *UInt) *UInt {
	return &UInt{value: new(big.Int).And(u.value, o.value)}
}

func (u *UInt) Or(o *UInt) *UInt {
	return &UInt{value: new(big.Int).Or(u.value, o.value)}
}

func (u *UInt) Xor(o *UInt) *UInt {
	return &UInt{value: new(big.Int).Xor(u.value, o.value)}
}

// Shl shifts left; Shr shifts right.
func (u *UInt) Shl(n uint) *UInt {
	return &UInt{value: new(big.Int).Lsh(u.value, n)}
}

func (u *UInt) Shr(n uint) *UInt {
	return &UInt{value: new(big.Int).Rsh(u.value, n)}
}

// CheckedAdd returns u+o if it fits the width, else nil.
func (u *UInt) CheckedAdd(o *UInt, bits int) *UInt {
	sum := u.Add(o)
	if sum.value.BitLen() > bits {
		return nil
	}
	return sum
}

// WrappingAdd returns u+o reduced modulo 2^bits.
func (u *UInt) WrappingAdd(o *UInt, bits int) *UInt {
	sum := new(big.Int).Add(u.value, o.value)
	return &UInt{value: sum.And(sum, mask(bits))}
}

// WrappingMul returns u*o reduced modulo 2^bits.
func (u *UInt) WrappingMul(o *UInt, bits int) *UInt {
	prod := new(big.Int).Mul(u.value, o.value)
	return &UInt{value: prod.And(prod, mask(bits))}
}

// OverflowingAdd returns the wrapped sum and whether it overflowed.
func (u *UInt) OverflowingAdd(o *UInt, bits int) (*UInt, bool) {
	sum := new(big.Int).Add(u.value, o.value)
	overflow := sum.BitLen() > bits
	return &UInt{value: sum.And(sum, mask(bits))}, overflow
}

// SaturatingAdd returns u+o clamped to the width's maximum.
func (u *UInt) SaturatingAdd(o *UInt, bits int) *UInt {
	sum := u.Add(o)
	if sum.value.BitLen() > bits {
		return MaxValue(bits)
	}
	return sum
}

// TryIntoUint64 converts, failing when the value exceeds 64 bits.
func (u *UInt) TryIntoUint64() (uint64, error) {
	if !u.value.IsUint64() {
		return 0, fmt.Errorf("value is too large for u64")
	}
	return u.value.Uint64(), nil
}

// TryIntoWidth converts to the little-endian byte encoding of the given
// width, failing when the value does not fit. Widths are 8..256 in byte
// multiples.
func (u *UInt) TryIntoWidth(bits int) ([]byte, error) {
	if bits%8 != 0 || bits <= 0 || bits > 256 {
		return nil, fmt.Errorf("unsupported width %d", bits)
	}
	if u.value.BitLen() > bits {
		return nil, fmt.Errorf("value is too large for u%d", bits)
	}
	be := u.value.Bytes()
	out := make([]byte, bits/8)
	for i, b := range be {
		out[len(be)-1-i] = b
	}
	return out, nil
}
