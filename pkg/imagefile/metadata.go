package imagefile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Davincible/siliconsig/pkg/signature"
)

// Text keys written alongside the embedded signature. They are advisory:
// the LSB copies are authoritative.
const (
	KeyHash        = "Silicon-Auth-Hash"
	KeyNonce       = "Silicon-Auth-Nonce"
	KeyExtranonce2 = "Silicon-Auth-Extranonce2"
	KeyNTime       = "Silicon-Auth-Ntime"
	KeyVersion     = "Silicon-Auth-Version"
	KeyStatus      = "Silicon-Auth-Status"
	KeyOffsets     = "Silicon-Auth-Offsets"
)

// Metadata is the advisory copy of the signature stored in PNG text chunks
type Metadata struct {
	Hash        string
	Nonce       string
	Extranonce2 string
	NTime       string
	Version     string
	Status      string
	Offsets     []int
}

// TextEntry is one keyword/value pair
type TextEntry struct {
	Key   string
	Value string
}

// MetadataFor fills metadata from a payload, its extranonce2 and the
// offsets the copies were written at
func MetadataFor(p signature.Payload, extranonce2 string, offsets []int) Metadata {
	return Metadata{
		Hash:        p.HashHex(),
		Nonce:       p.NonceHex(),
		Extranonce2: extranonce2,
		NTime:       p.NTimeHex(),
		Version:     p.VersionHex(),
		Status:      p.Status,
		Offsets:     offsets,
	}
}

// IsEmpty reports whether no signature key was present
func (m Metadata) IsEmpty() bool {
	return m.Hash == "" && m.Nonce == "" && m.NTime == "" && m.Version == "" && len(m.Offsets) == 0
}

// Entries returns the non-empty fields in a stable order
func (m Metadata) Entries() []TextEntry {
	var out []TextEntry
	add := func(k, v string) {
		if v != "" {
			out = append(out, TextEntry{Key: k, Value: v})
		}
	}
	add(KeyHash, m.Hash)
	add(KeyNonce, m.Nonce)
	add(KeyExtranonce2, m.Extranonce2)
	add(KeyNTime, m.NTime)
	add(KeyVersion, m.Version)
	add(KeyStatus, m.Status)
	add(KeyOffsets, FormatOffsets(m.Offsets))
	return out
}

// MetadataFromText picks the signature keys out of a text chunk map.
// Malformed offsets are dropped rather than failing the read.
func MetadataFromText(text map[string]string) Metadata {
	m := Metadata{
		Hash:        text[KeyHash],
		Nonce:       text[KeyNonce],
		Extranonce2: text[KeyExtranonce2],
		NTime:       text[KeyNTime],
		Version:     text[KeyVersion],
		Status:      text[KeyStatus],
	}
	if s, ok := text[KeyOffsets]; ok {
		if offs, err := ParseOffsets(s); err == nil {
			m.Offsets = offs
		}
	}
	return m
}

// Payload rebuilds a payload from the metadata fields
func (m Metadata) Payload() (signature.Payload, error) {
	hash, err := signature.ParseHash(m.Hash)
	if err != nil {
		return signature.Payload{}, fmt.Errorf("metadata hash: %w", err)
	}
	nonce, err := signature.ParseWord(m.Nonce)
	if err != nil {
		return signature.Payload{}, fmt.Errorf("metadata nonce: %w", err)
	}
	ntime, err := signature.ParseWord(m.NTime)
	if err != nil {
		return signature.Payload{}, fmt.Errorf("metadata ntime: %w", err)
	}
	version, err := signature.ParseWord(m.Version)
	if err != nil {
		return signature.Payload{}, fmt.Errorf("metadata version: %w", err)
	}
	return signature.New(hash, nonce, ntime, version, m.Status)
}

// FormatOffsets joins bit offsets with commas
func FormatOffsets(offsets []int) string {
	parts := make([]string, len(offsets))
	for i, o := range offsets {
		parts[i] = strconv.Itoa(o)
	}
	return strings.Join(parts, ",")
}

// ParseOffsets reads a comma separated offset list
func ParseOffsets(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid offset %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}
