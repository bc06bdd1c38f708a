// Package fingerprint renders a 32-byte image hash as a 24-word BIP-39
// phrase so a signed image can be identified by reading words aloud.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

const (
	WordCount = 24

	// DefaultShortWords is the length of the abbreviated form
	DefaultShortWords = 4
)

type Fingerprint struct {
	words []string
}

// FromHash encodes the 256-bit hash as the BIP-39 entropy
func FromHash(hash [32]byte) (*Fingerprint, error) {
	phrase, err := bip39.NewMnemonic(hash[:])
	if err != nil {
		return nil, fmt.Errorf("failed to build fingerprint: %w", err)
	}
	return &Fingerprint{words: strings.Split(phrase, " ")}, nil
}

// FromWords parses a full 24-word fingerprint and checks its checksum
func FromWords(words string) (*Fingerprint, error) {
	fields := strings.Fields(strings.ToLower(words))
	if len(fields) != WordCount {
		return nil, fmt.Errorf("fingerprint must have %d words, got %d", WordCount, len(fields))
	}

	phrase := strings.Join(fields, " ")
	if !bip39.IsMnemonicValid(phrase) {
		return nil, fmt.Errorf("invalid fingerprint phrase")
	}
	return &Fingerprint{words: fields}, nil
}

func (f *Fingerprint) Words() string {
	return strings.Join(f.words, " ")
}

func (f *Fingerprint) WordList() []string {
	out := make([]string, len(f.words))
	copy(out, f.words)
	return out
}

// Short returns the first n words joined with dashes
func (f *Fingerprint) Short(n int) string {
	if n <= 0 || n > len(f.words) {
		n = len(f.words)
	}
	return strings.Join(f.words[:n], "-")
}

// Hash decodes the phrase back to the hash it was built from
func (f *Fingerprint) Hash() ([32]byte, error) {
	var out [32]byte
	entropy, err := bip39.EntropyFromMnemonic(f.Words())
	if err != nil {
		return out, fmt.Errorf("failed to decode fingerprint: %w", err)
	}
	if len(entropy) != len(out) {
		return out, fmt.Errorf("fingerprint decodes to %d bytes", len(entropy))
	}
	copy(out[:], entropy)
	return out, nil
}

// Tag is a short hex identifier derived from the hash
func (f *Fingerprint) Tag() (string, error) {
	hash, err := f.Hash()
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(hash[:])
	return hex.EncodeToString(h[:4]), nil
}

// Matches compares two phrases word by word, ignoring spacing and case
func Matches(a, b string) bool {
	aWords := strings.Fields(strings.ToLower(a))
	bWords := strings.Fields(strings.ToLower(b))

	if len(aWords) != len(bWords) {
		return false
	}

	match := true
	for i := range aWords {
		if aWords[i] != bWords[i] {
			match = false
		}
	}
	return match
}
