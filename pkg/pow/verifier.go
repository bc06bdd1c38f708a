package pow

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/Davincible/siliconsig/pkg/signature"
)

// ErrNoValidByteOrder is matched by every *NoValidByteOrderError
var ErrNoValidByteOrder = errors.New("pow: no byte-order profile meets the target")

// NoValidByteOrderError lists the profiles calibration tried
type NoValidByteOrderError struct {
	Tried []Profile
	Bits  uint32
}

func (e *NoValidByteOrderError) Error() string {
	names := make([]string, len(e.Tried))
	for i, p := range e.Tried {
		names[i] = p.String()
	}
	return fmt.Sprintf("%v (bits %08x, tried %d: %s)",
		ErrNoValidByteOrder, e.Bits, len(e.Tried), strings.Join(names, "; "))
}

func (e *NoValidByteOrderError) Is(target error) bool {
	return target == ErrNoValidByteOrder
}

// Result describes a successful proof-of-work check
type Result struct {
	Profile  Profile
	Digest   [32]byte
	Attempts int
}

// DigestHex returns the winning digest in display order
func (r Result) DigestHex() string {
	return hex.EncodeToString(r.Digest[:])
}

// Verifier checks payloads against a fixed difficulty
type Verifier struct {
	Bits        uint32
	Hasher      Hasher
	Extranonce2 []byte
	Logger      *slog.Logger
}

// NewVerifier returns a SHA-256 verifier at difficulty 1
func NewVerifier() *Verifier {
	return &Verifier{Bits: DefaultBits, Hasher: SHA256}
}

// Template assembles the header fields for p
func (v *Verifier) Template(p signature.Payload) Template {
	return Template{
		PrevHash:    p.Hash,
		Version:     p.Version,
		NTime:       p.NTime,
		Bits:        v.bits(),
		Nonce:       p.Nonce,
		Extranonce2: v.Extranonce2,
	}
}

// Target returns the expanded difficulty target
func (v *Verifier) Target() (*big.Int, error) {
	return TargetFromBits(v.bits())
}

// Verify checks p under a single profile
func (v *Verifier) Verify(p signature.Payload, profile Profile) (Result, bool, error) {
	target, err := v.Target()
	if err != nil {
		return Result{}, false, err
	}
	digest := v.Template(p).Digest(v.hasher(), profile)
	return Result{Profile: profile, Digest: digest, Attempts: 1}, Meets(digest, target), nil
}

// Calibrate tries every profile in order and returns the first whose
// digest meets the target
func (v *Verifier) Calibrate(p signature.Payload) (Result, error) {
	target, err := v.Target()
	if err != nil {
		return Result{}, err
	}

	t := v.Template(p)
	h := v.hasher()
	profiles := Profiles()

	for i, profile := range profiles {
		digest := t.Digest(h, profile)
		if Meets(digest, target) {
			v.logger().Debug("pow calibrated",
				"profile", profile.String(),
				"attempts", i+1,
				"digest", hex.EncodeToString(digest[:]))
			return Result{Profile: profile, Digest: digest, Attempts: i + 1}, nil
		}
	}

	v.logger().Debug("pow calibration exhausted", "profiles", len(profiles), "bits", fmt.Sprintf("%08x", v.bits()))
	return Result{}, &NoValidByteOrderError{Tried: profiles, Bits: v.bits()}
}

func (v *Verifier) bits() uint32 {
	if v.Bits == 0 {
		return DefaultBits
	}
	return v.Bits
}

func (v *Verifier) hasher() Hasher {
	if v.Hasher == "" {
		return SHA256
	}
	return v.Hasher
}

func (v *Verifier) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}
