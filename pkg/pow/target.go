package pow

import (
	"errors"
	"fmt"
	"math/big"
)

// DefaultBits is difficulty 1 in compact form
const DefaultBits uint32 = 0x1d00ffff

// ErrInvalidBits is returned for compact targets that are zero or negative
var ErrInvalidBits = errors.New("pow: invalid compact target")

// TargetFromBits expands a compact target: mantissa * 256^(exponent-3)
func TargetFromBits(bits uint32) (*big.Int, error) {
	if bits&0x00800000 != 0 {
		return nil, fmt.Errorf("%w: %08x has the sign bit set", ErrInvalidBits, bits)
	}

	exp := uint(bits >> 24)
	mant := big.NewInt(int64(bits & 0x007fffff))
	if mant.Sign() == 0 {
		return nil, fmt.Errorf("%w: %08x is zero", ErrInvalidBits, bits)
	}

	if exp <= 3 {
		mant.Rsh(mant, 8*(3-exp))
	} else {
		mant.Lsh(mant, 8*(exp-3))
	}

	if mant.Sign() == 0 || mant.BitLen() > 256 {
		return nil, fmt.Errorf("%w: %08x out of range", ErrInvalidBits, bits)
	}
	return mant, nil
}

// BitsFromTarget compresses target into compact form, truncating the
// mantissa to three bytes
func BitsFromTarget(target *big.Int) uint32 {
	if target.Sign() <= 0 {
		return 0
	}

	size := uint32((target.BitLen() + 7) / 8)
	var mant uint32
	if size <= 3 {
		mant = uint32(target.Uint64()) << (8 * (3 - size))
	} else {
		mant = uint32(new(big.Int).Rsh(target, uint(8*(size-3))).Uint64())
	}

	// keep the sign bit clear
	if mant&0x00800000 != 0 {
		mant >>= 8
		size++
	}
	return size<<24 | mant
}

// Difficulty returns how many times harder bits is than difficulty 1
func Difficulty(bits uint32) (float64, error) {
	target, err := TargetFromBits(bits)
	if err != nil {
		return 0, err
	}
	one, _ := TargetFromBits(DefaultBits)
	d, _ := new(big.Float).Quo(new(big.Float).SetInt(one), new(big.Float).SetInt(target)).Float64()
	return d, nil
}

// Meets reports whether digest, read in display order as a big-endian
// integer, is below target
func Meets(digest [32]byte, target *big.Int) bool {
	return new(big.Int).SetBytes(digest[:]).Cmp(target) < 0
}
