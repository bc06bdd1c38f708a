// Package signature defines the fixed-layout payload that binds an image
// hash to the proof-of-work found for it.
package signature

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// ProtocolVersion identifies the serialized layout below
	ProtocolVersion = 1

	// MaxStatusLen is the width of the space-padded status field
	MaxStatusLen = 24

	// DefaultStatus is written when the signer does not override it
	DefaultStatus = "AUTHENTICATED_BY_BM1387"

	// Prefix is the first bytes of every serialized payload
	Prefix = `{"hash":"`

	// Size is the serialized length of a payload, and so the RS block size
	Size = len(Prefix) + 64 +
		len(`","nonce":"`) + 8 +
		len(`","ntime":"`) + 8 +
		len(`","version":"`) + 8 +
		len(`","status":"`) + MaxStatusLen +
		len(`"}`)
)

var (
	// ErrMalformed is returned when bytes do not hold a v1 payload
	ErrMalformed = errors.New("signature: malformed payload")

	// ErrInvalidStatus is returned for status strings that cannot be serialized
	ErrInvalidStatus = errors.New("signature: invalid status")
)

// Payload is the signed claim embedded into an image. It is treated as a
// value; nothing mutates a Payload after New returns it.
type Payload struct {
	Hash    [32]byte
	Nonce   uint32
	NTime   uint32
	Version uint32
	Status  string
}

// New builds a payload after validating the status field
func New(hash [32]byte, nonce, ntime, version uint32, status string) (Payload, error) {
	if err := ValidateStatus(status); err != nil {
		return Payload{}, err
	}
	return Payload{
		Hash:    hash,
		Nonce:   nonce,
		NTime:   ntime,
		Version: version,
		Status:  status,
	}, nil
}

// ValidateStatus checks that status fits the fixed-width field and needs no
// JSON escaping
func ValidateStatus(status string) error {
	if len(status) > MaxStatusLen {
		return fmt.Errorf("%w: %d characters exceeds %d", ErrInvalidStatus, len(status), MaxStatusLen)
	}
	if strings.HasSuffix(status, " ") {
		return fmt.Errorf("%w: trailing space", ErrInvalidStatus)
	}
	for i := 0; i < len(status); i++ {
		ch := status[i]
		if ch < 0x20 || ch > 0x7E || ch == '"' || ch == '\\' {
			return fmt.Errorf("%w: character %q at position %d", ErrInvalidStatus, ch, i)
		}
	}
	return nil
}

// Marshal serializes the payload into exactly Size bytes
func (p Payload) Marshal() ([]byte, error) {
	if err := ValidateStatus(p.Status); err != nil {
		return nil, err
	}

	var b bytes.Buffer
	b.Grow(Size)
	b.WriteString(Prefix)
	b.WriteString(hex.EncodeToString(p.Hash[:]))
	b.WriteString(`","nonce":"`)
	b.WriteString(word(p.Nonce))
	b.WriteString(`","ntime":"`)
	b.WriteString(word(p.NTime))
	b.WriteString(`","version":"`)
	b.WriteString(word(p.Version))
	b.WriteString(`","status":"`)
	b.WriteString(p.Status)
	b.WriteString(strings.Repeat(" ", MaxStatusLen-len(p.Status)))
	b.WriteString(`"}`)

	return b.Bytes(), nil
}

// Unmarshal parses bytes produced by Marshal. Trailing zero padding added by
// the block codec is ignored.
func Unmarshal(data []byte) (Payload, error) {
	if len(data) < Size {
		return Payload{}, fmt.Errorf("%w: %d bytes, want %d", ErrMalformed, len(data), Size)
	}
	for _, b := range data[Size:] {
		if b != 0 {
			return Payload{}, fmt.Errorf("%w: nonzero padding", ErrMalformed)
		}
	}
	s := string(data[:Size])

	var p Payload
	rest, ok := strings.CutPrefix(s, Prefix)
	if !ok {
		return Payload{}, fmt.Errorf("%w: missing prefix", ErrMalformed)
	}

	hashHex, rest, err := field(rest, 64, `","nonce":"`)
	if err != nil {
		return Payload{}, err
	}
	h, err := decodeHex(hashHex)
	if err != nil {
		return Payload{}, err
	}
	copy(p.Hash[:], h)

	var w string
	if w, rest, err = field(rest, 8, `","ntime":"`); err != nil {
		return Payload{}, err
	}
	if p.Nonce, err = parseWord(w); err != nil {
		return Payload{}, err
	}
	if w, rest, err = field(rest, 8, `","version":"`); err != nil {
		return Payload{}, err
	}
	if p.NTime, err = parseWord(w); err != nil {
		return Payload{}, err
	}
	if w, rest, err = field(rest, 8, `","status":"`); err != nil {
		return Payload{}, err
	}
	if p.Version, err = parseWord(w); err != nil {
		return Payload{}, err
	}

	status, _, err := field(rest, MaxStatusLen, `"}`)
	if err != nil {
		return Payload{}, err
	}
	p.Status = strings.TrimRight(status, " ")
	if err := ValidateStatus(p.Status); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return p, nil
}

// HashHex returns the image hash as 64 lower-case hex characters
func (p Payload) HashHex() string {
	return hex.EncodeToString(p.Hash[:])
}

// NonceHex returns the nonce as 8 hex characters
func (p Payload) NonceHex() string { return word(p.Nonce) }

// NTimeHex returns ntime as 8 hex characters
func (p Payload) NTimeHex() string { return word(p.NTime) }

// VersionHex returns the version as 8 hex characters
func (p Payload) VersionHex() string { return word(p.Version) }

func (p Payload) String() string {
	return fmt.Sprintf("hash=%s nonce=%s ntime=%s version=%s status=%q",
		p.HashHex(), p.NonceHex(), p.NTimeHex(), p.VersionHex(), p.Status)
}

// ContentHash returns SHA-256 over the pixel bytes with bit 0 cleared, so
// the hash is unchanged by LSB embedding.
func ContentHash(pix []byte) [32]byte {
	h := sha256.New()
	buf := make([]byte, 4096)
	for off := 0; off < len(pix); off += len(buf) {
		chunk := pix[off:min(off+len(buf), len(pix))]
		for i, b := range chunk {
			buf[i] = b &^ 1
		}
		h.Write(buf[:len(chunk)])
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ParseHash decodes a 64 character hex digest
func ParseHash(s string) ([32]byte, error) {
	var out [32]byte
	b, err := decodeHex(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("%w: hash must be 32 bytes, got %d", ErrMalformed, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// ParseWord decodes an 8 character hex word such as a Stratum nonce. A 0x
// prefix is accepted.
func ParseWord(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if len(s) == 0 || len(s) > 8 {
		return 0, fmt.Errorf("%w: word %q", ErrMalformed, s)
	}
	return parseWord(strings.Repeat("0", 8-len(s)) + s)
}

func word(v uint32) string {
	return fmt.Sprintf("%08x", v)
}

func parseWord(s string) (uint32, error) {
	if _, err := decodeHex(s); err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return uint32(v), nil
}

// field splits off n characters that must be followed by sep
func field(s string, n int, sep string) (string, string, error) {
	if len(s) < n+len(sep) || s[n:n+len(sep)] != sep {
		return "", "", fmt.Errorf("%w: expected %q after %d characters", ErrMalformed, sep, n)
	}
	return s[:n], s[n+len(sep):], nil
}

// decodeHex accepts lower-case hex only, the form Marshal writes
func decodeHex(s string) ([]byte, error) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return nil, fmt.Errorf("%w: non-hex character %q", ErrMalformed, c)
		}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return b, nil
}
