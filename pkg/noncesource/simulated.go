package noncesource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Davincible/siliconsig/pkg/pow"
	"github.com/google/uuid"
)

// Simulated mines nonces on the CPU with the same header rules the
// verifier applies
type Simulated struct {
	Hasher  pow.Hasher
	Profile pow.Profile

	// Start is the first nonce tried
	Start uint32

	// Now stamps jobs that carry no ntime; nil uses the wall clock
	Now func() time.Time

	Logger *slog.Logger
}

// NewSimulated returns a SHA-256 simulator using the canonical profile
func NewSimulated() *Simulated {
	return &Simulated{Hasher: pow.SHA256, Profile: pow.Canonical}
}

// Name identifies the source in reports
func (s *Simulated) Name() string {
	return "simulated"
}

// Acquire searches for a nonce meeting job.Bits
func (s *Simulated) Acquire(ctx context.Context, job Job) (*Solution, error) {
	if job.Bits == 0 {
		job.Bits = pow.DefaultBits
	}
	if job.NTime == 0 {
		job.NTime = uint32(s.now().Unix())
	}
	if job.Extranonce2 == nil {
		job.Extranonce2 = pow.DefaultExtranonce2
	}

	target, err := pow.TargetFromBits(job.Bits)
	if err != nil {
		return nil, err
	}

	hasher := s.Hasher
	if hasher == "" {
		hasher = pow.SHA256
	}

	started := time.Now()
	nonce, digest, err := pow.Mine(ctx, job.template(), hasher, s.Profile, target, s.Start)
	if err != nil {
		return nil, fmt.Errorf("simulated mining failed: %w", err)
	}

	s.logger().Debug("simulated nonce found",
		"nonce", fmt.Sprintf("%08x", nonce),
		"profile", s.Profile.String(),
		"digest", fmt.Sprintf("%x", digest),
		"elapsed", time.Since(started))

	return &Solution{
		JobID:       uuid.NewString(),
		Worker:      "simulator",
		Nonce:       nonce,
		NTime:       job.NTime,
		Version:     job.Version,
		Extranonce2: append([]byte(nil), job.Extranonce2...),
		Source:      s.Name(),
	}, nil
}

func (s *Simulated) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Simulated) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
