package pow

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"math/big"
)

// ErrNonceSpaceExhausted is returned when every 32-bit nonce was tried
var ErrNonceSpaceExhausted = errors.New("pow: nonce space exhausted")

// ctxCheckInterval is how many nonces are tried between context checks
const ctxCheckInterval = 1 << 12

// Mine searches nonces upward from start (wrapping) until the header built
// from t under profile meets target. Only the nonce bytes change per try.
func Mine(ctx context.Context, t Template, h Hasher, profile Profile, target *big.Int, start uint32) (uint32, [32]byte, error) {
	t.Nonce = start
	hdr := t.Header(h, profile)

	nonce := start
	for i := uint64(0); i <= math.MaxUint32; i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, [32]byte{}, err
			}
		}

		if profile.Nonce == LittleEndian {
			binary.LittleEndian.PutUint32(hdr[76:80], nonce)
		} else {
			binary.BigEndian.PutUint32(hdr[76:80], nonce)
		}

		digest := displayOrder(h.Double(hdr[:]))
		if Meets(digest, target) {
			return nonce, digest, nil
		}
		nonce++
	}
	return 0, [32]byte{}, ErrNonceSpaceExhausted
}
