// Package reedsolomon implements a systematic RS(n,k) code over GF(256).
//
// The decoder only checks syndromes. A codeword with any symbol error is
// reported as ErrChecksumMismatch and left to the caller to recover from
// another copy; no error location is attempted.
package reedsolomon

import (
	"errors"
	"fmt"

	"github.com/Davincible/siliconsig/pkg/gf256"
)

const (
	// DefaultParity is the number of parity symbols appended to each codeword
	DefaultParity = 32

	// MaxCodewordLen is the longest codeword GF(256) supports
	MaxCodewordLen = gf256.Order
)

var (
	// ErrChecksumMismatch is returned when a codeword has a nonzero syndrome
	ErrChecksumMismatch = errors.New("reedsolomon: checksum mismatch")

	// ErrInvalidLength is returned when a codeword is not exactly n bytes
	ErrInvalidLength = errors.New("reedsolomon: invalid codeword length")

	// ErrDataTooLong is returned when Encode receives more than k bytes
	ErrDataTooLong = errors.New("reedsolomon: data longer than block size")
)

// Codec encodes k data symbols into n = k + parity symbols
type Codec struct {
	dataLen   int
	parity    int
	generator []byte
}

// New creates a codec for k data symbols and the given parity count
func New(dataLen, parity int) (*Codec, error) {
	if parity < 1 {
		return nil, fmt.Errorf("reedsolomon: parity must be positive, got %d", parity)
	}
	if dataLen < 1 {
		return nil, fmt.Errorf("reedsolomon: data length must be positive, got %d", dataLen)
	}
	if dataLen+parity > MaxCodewordLen {
		return nil, fmt.Errorf("reedsolomon: codeword length %d exceeds %d", dataLen+parity, MaxCodewordLen)
	}

	return &Codec{
		dataLen:   dataLen,
		parity:    parity,
		generator: Generator(parity),
	}, nil
}

// Generator returns ∏ (x - α^i) for i in [0, parity)
func Generator(parity int) []byte {
	g := []byte{1}
	for i := 0; i < parity; i++ {
		g = gf256.PolyMul(g, []byte{1, gf256.Exp(i)})
	}
	return g
}

// DataLen returns k
func (c *Codec) DataLen() int { return c.dataLen }

// Parity returns n - k
func (c *Codec) Parity() int { return c.parity }

// CodewordLen returns n
func (c *Codec) CodewordLen() int { return c.dataLen + c.parity }

// Encode returns data followed by its parity symbols. Data shorter than k is
// zero padded first, so the returned codeword is always n bytes.
func (c *Codec) Encode(data []byte) ([]byte, error) {
	if len(data) > c.dataLen {
		return nil, fmt.Errorf("%w: %d > %d", ErrDataTooLong, len(data), c.dataLen)
	}

	out := make([]byte, c.CodewordLen())
	copy(out, data)

	// Synthetic division of data·x^parity by the monic generator; the
	// remainder lands in the last parity bytes.
	rem := make([]byte, c.CodewordLen())
	copy(rem, out[:c.dataLen])
	for i := 0; i < c.dataLen; i++ {
		coef := rem[i]
		if coef == 0 {
			continue
		}
		for j := 1; j < len(c.generator); j++ {
			rem[i+j] ^= gf256.Mul(c.generator[j], coef)
		}
	}
	copy(out[c.dataLen:], rem[c.dataLen:])

	return out, nil
}

// Syndromes evaluates the codeword at α^0 .. α^(parity-1)
func (c *Codec) Syndromes(codeword []byte) []byte {
	synd := make([]byte, c.parity)
	for i := range synd {
		synd[i] = gf256.PolyEval(codeword, gf256.Exp(i))
	}
	return synd
}

// Check reports whether codeword has the right length and a zero syndrome
func (c *Codec) Check(codeword []byte) bool {
	if len(codeword) != c.CodewordLen() {
		return false
	}
	for i := 0; i < c.parity; i++ {
		if gf256.PolyEval(codeword, gf256.Exp(i)) != 0 {
			return false
		}
	}
	return true
}

// Decode returns the k data bytes of a valid codeword. Any nonzero syndrome
// yields ErrChecksumMismatch.
func (c *Codec) Decode(codeword []byte) ([]byte, error) {
	if len(codeword) != c.CodewordLen() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidLength, len(codeword), c.CodewordLen())
	}
	if !c.Check(codeword) {
		return nil, ErrChecksumMismatch
	}

	data := make([]byte, c.dataLen)
	copy(data, codeword[:c.dataLen])
	return data, nil
}
