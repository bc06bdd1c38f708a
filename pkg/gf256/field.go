// Package gf256 implements arithmetic over GF(256) with the primitive
// polynomial x^8 + x^4 + x^3 + x^2 + 1 (0x11D) and generator α = 2, the
// field used by the Reed-Solomon codec.
package gf256

import "errors"

const (
	// Poly is the primitive polynomial x^8 + x^4 + x^3 + x^2 + 1
	Poly = 0x11D

	// Order is the number of nonzero field elements
	Order = 255
)

// ErrDomain is returned for operations undefined in the field, such as the
// inverse of zero.
var ErrDomain = errors.New("gf256: operation undefined for zero")

// exp and log tables; exp is doubled so that Mul never needs a modulo.
// Both are written once in init and only read afterwards.
var (
	gfExp [2 * Order]byte
	gfLog [256]byte
)

func init() {
	x := 1
	for i := 0; i < Order; i++ {
		gfExp[i] = byte(x)
		gfExp[i+Order] = byte(x)
		gfLog[x] = byte(i)

		x <<= 1
		if x&0x100 != 0 {
			x ^= Poly
		}
	}
	// log(0) is undefined; callers check for zero before using it
	gfLog[0] = 0
}

// Add returns a + b, which in characteristic 2 is XOR
func Add(a, b byte) byte {
	return a ^ b
}

// Sub returns a - b, identical to Add
func Sub(a, b byte) byte {
	return a ^ b
}

// Mul returns a * b
func Mul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExp[int(gfLog[a])+int(gfLog[b])]
}

// Div returns a / b. Division by zero returns ErrDomain.
func Div(a, b byte) (byte, error) {
	if b == 0 {
		return 0, ErrDomain
	}
	if a == 0 {
		return 0, nil
	}
	return gfExp[(int(gfLog[a])-int(gfLog[b])+Order)%Order], nil
}

// Inv returns the multiplicative inverse of a. Inv(0) returns ErrDomain.
func Inv(a byte) (byte, error) {
	if a == 0 {
		return 0, ErrDomain
	}
	return gfExp[Order-int(gfLog[a])], nil
}

// Pow returns a raised to the n-th power
func Pow(a byte, n int) byte {
	if n == 0 {
		return 1
	}
	if a == 0 {
		return 0
	}
	e := (int(gfLog[a]) * n) % Order
	if e < 0 {
		e += Order
	}
	return gfExp[e]
}

// Exp returns α^e
func Exp(e int) byte {
	e %= Order
	if e < 0 {
		e += Order
	}
	return gfExp[e]
}

// Log returns the discrete logarithm of a to base α. Log(0) returns ErrDomain.
func Log(a byte) (int, error) {
	if a == 0 {
		return 0, ErrDomain
	}
	return int(gfLog[a]), nil
}
