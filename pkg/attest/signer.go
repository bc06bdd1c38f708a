// Package attest ties the codec together: Signer binds an image to a
// proof-of-work nonce and embeds it, Verifier recovers the signature and
// checks the proof.
package attest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Davincible/siliconsig/pkg/fingerprint"
	"github.com/Davincible/siliconsig/pkg/imagefile"
	"github.com/Davincible/siliconsig/pkg/lsb"
	"github.com/Davincible/siliconsig/pkg/metrics"
	"github.com/Davincible/siliconsig/pkg/noncesource"
	"github.com/Davincible/siliconsig/pkg/pow"
	"github.com/Davincible/siliconsig/pkg/signature"
)

// ErrUnprovenSolution is returned when a source's nonce fails the local
// proof-of-work check
var ErrUnprovenSolution = errors.New("attest: nonce source returned a solution that does not meet the target")

// Signer produces signed pixel buffers
type Signer struct {
	Source   noncesource.Source
	Embedder *lsb.Embedder

	Status      string
	Version     uint32
	Bits        uint32
	Extranonce2 []byte

	// Check, when set, verifies every solution before embedding it
	Check *pow.Verifier

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Signed is the result of a signing
type Signed struct {
	Pixels      *lsb.PixelBuffer
	Payload     signature.Payload
	Solution    *noncesource.Solution
	Layout      lsb.Layout
	Metadata    imagefile.Metadata
	PoW         *pow.Result
	Fingerprint *fingerprint.Fingerprint
}

// Sign hashes buf, acquires a nonce for the hash and embeds the signature
// into a copy of buf. Nonce source failures are returned unchanged so
// callers can tell them apart with noncesource.IsHardwareError.
func (s *Signer) Sign(ctx context.Context, buf *lsb.PixelBuffer) (*Signed, error) {
	started := time.Now()
	signed, err := s.sign(ctx, buf)
	s.Metrics.RecordOperation(metrics.OpSign, err, time.Since(started).Seconds())
	return signed, err
}

func (s *Signer) sign(ctx context.Context, buf *lsb.PixelBuffer) (*Signed, error) {
	if s.Source == nil || s.Embedder == nil {
		return nil, errors.New("attest: signer needs a nonce source and an embedder")
	}
	if err := buf.Validate(); err != nil {
		return nil, err
	}

	status := s.Status
	if status == "" {
		status = signature.DefaultStatus
	}
	if err := signature.ValidateStatus(status); err != nil {
		return nil, err
	}

	// fail on capacity before spending work on a nonce
	if end := s.Embedder.Layout().End(); end > buf.Capacity() {
		return nil, fmt.Errorf("%w: need %d bits, have %d", lsb.ErrInsufficientCapacity, end, buf.Capacity())
	}

	hash := signature.ContentHash(buf.Pix)
	s.logger().Debug("content hashed", "hash", hex.EncodeToString(hash[:]), "source", s.Source.Name())

	job := noncesource.Job{
		PrevHash:    hash,
		Version:     s.Version,
		Bits:        s.Bits,
		Extranonce2: s.Extranonce2,
	}
	if job.Bits == 0 {
		job.Bits = pow.DefaultBits
	}

	acquireStart := time.Now()
	sol, err := s.Source.Acquire(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire nonce from %s: %w", s.Source.Name(), err)
	}
	s.Metrics.RecordNonce(s.Source.Name(), time.Since(acquireStart).Seconds())

	p, err := signature.New(hash, sol.Nonce, sol.NTime, sol.Version, status)
	if err != nil {
		return nil, err
	}

	var proof *pow.Result
	if s.Check != nil {
		check := *s.Check
		check.Bits = job.Bits
		check.Extranonce2 = sol.Extranonce2
		res, err := check.Calibrate(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnprovenSolution, err)
		}
		proof = &res
	}

	out := buf.Clone()
	layout, err := s.Embedder.Embed(out, p)
	if err != nil {
		return nil, fmt.Errorf("failed to embed signature: %w", err)
	}

	fp, err := fingerprint.FromHash(hash)
	if err != nil {
		return nil, err
	}

	s.logger().Info("image signed",
		"hash", p.HashHex(),
		"nonce", p.NonceHex(),
		"source", sol.Source,
		"copies", layout.Repeats)

	return &Signed{
		Pixels:      out,
		Payload:     p,
		Solution:    sol,
		Layout:      layout,
		Metadata:    imagefile.MetadataFor(p, sol.Extranonce2Hex(), layout.Offsets()),
		PoW:         proof,
		Fingerprint: fp,
	}, nil
}

func (s *Signer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
