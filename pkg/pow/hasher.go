package pow

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Hasher names the hash function applied twice to the header
type Hasher string

const (
	// SHA256 is the function the mining hardware implements
	SHA256 Hasher = "sha256"

	// BLAKE2b is BLAKE2b-256, available to simulated sources
	BLAKE2b Hasher = "blake2b"
)

// ParseHasher accepts the config spelling of a hasher
func ParseHasher(s string) (Hasher, error) {
	switch h := Hasher(strings.ToLower(strings.TrimSpace(s))); h {
	case "", SHA256:
		return SHA256, nil
	case BLAKE2b, "blake2b-256":
		return BLAKE2b, nil
	default:
		return "", fmt.Errorf("unsupported hasher %q", s)
	}
}

// Sum hashes data once
func (h Hasher) Sum(data []byte) [32]byte {
	if h == BLAKE2b {
		return blake2b.Sum256(data)
	}
	return sha256.Sum256(data)
}

// Double hashes data twice
func (h Hasher) Double(data []byte) [32]byte {
	first := h.Sum(data)
	return h.Sum(first[:])
}
