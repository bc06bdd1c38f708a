// Package damage corrupts pixel buffers in controlled patterns and measures
// how many signature copies the extractor still recovers.
package damage

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/Davincible/siliconsig/pkg/lsb"
)

// Pattern selects which bytes are corrupted
type Pattern string

const (
	// Edges overpaints fraction/2 of the span from each end inward
	Edges Pattern = "edges"
	// Band corrupts one contiguous block starting at Options.Offset
	Band Pattern = "band"
	// Noise corrupts each byte of the span independently with probability
	// fraction
	Noise Pattern = "noise"
)

// ErrInvalidFraction is returned for fractions outside [0, 1]
var ErrInvalidFraction = errors.New("damage: fraction must be within [0, 1]")

// ParsePattern accepts the CLI spelling of a pattern
func ParsePattern(s string) (Pattern, error) {
	switch p := Pattern(strings.ToLower(strings.TrimSpace(s))); p {
	case "", Edges:
		return Edges, nil
	case Band, Noise:
		return p, nil
	default:
		return "", fmt.Errorf("unknown damage pattern %q", s)
	}
}

// Span is a byte range of the pixel buffer
type Span struct {
	Start  int
	Length int
}

// End returns the first byte after the span
func (s Span) End() int {
	return s.Start + s.Length
}

// SignatureSpan covers exactly the bytes a layout writes
func SignatureSpan(l lsb.Layout) Span {
	return Span{Start: l.Base, Length: l.Span()}
}

// Options controls a simulation. The zero value damages the whole buffer
// with the Edges pattern and seed 0.
type Options struct {
	Pattern Pattern

	// Span limits damage to a byte range; zero Length means the whole buffer
	Span Span

	// Offset is the start of the Band pattern relative to Span.Start
	Offset int

	Seed uint64

	Logger *slog.Logger
}

// Report describes what Simulate did
type Report struct {
	Pattern   Pattern
	Fraction  float64
	Span      Span
	Corrupted int
	Seed      uint64
}

// Simulate returns a damaged copy of buf; buf itself is never modified.
// Damaged bytes receive random values, so roughly half of their low bits
// flip.
func Simulate(buf *lsb.PixelBuffer, fraction float64, opts Options) (*lsb.PixelBuffer, Report, error) {
	if err := buf.Validate(); err != nil {
		return nil, Report{}, err
	}
	if math.IsNaN(fraction) || fraction < 0 || fraction > 1 {
		return nil, Report{}, fmt.Errorf("%w: %v", ErrInvalidFraction, fraction)
	}

	pattern := opts.Pattern
	if pattern == "" {
		pattern = Edges
	}

	span := opts.Span
	if span.Length == 0 {
		span = Span{Start: 0, Length: len(buf.Pix)}
	}
	if span.Start < 0 || span.Length < 0 || span.End() > len(buf.Pix) {
		return nil, Report{}, fmt.Errorf("damage: span [%d,%d) outside buffer of %d bytes",
			span.Start, span.End(), len(buf.Pix))
	}

	out := buf.Clone()
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x5bd1e995))
	rep := Report{Pattern: pattern, Fraction: fraction, Span: span, Seed: opts.Seed}

	corrupt := func(from, to int) {
		for i := from; i < to; i++ {
			out.Pix[i] = byte(rng.IntN(256))
			rep.Corrupted++
		}
	}

	switch pattern {
	case Edges:
		n := int(math.Round(fraction * float64(span.Length) / 2))
		corrupt(span.Start, span.Start+n)
		corrupt(max(span.End()-n, span.Start+n), span.End())

	case Band:
		n := int(math.Round(fraction * float64(span.Length)))
		start := span.Start + min(max(opts.Offset, 0), span.Length-n)
		corrupt(start, start+n)

	case Noise:
		for i := span.Start; i < span.End(); i++ {
			if rng.Float64() < fraction {
				out.Pix[i] = byte(rng.IntN(256))
				rep.Corrupted++
			}
		}

	default:
		return nil, Report{}, fmt.Errorf("unknown damage pattern %q", pattern)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("damage simulated",
		"pattern", pattern,
		"fraction", fraction,
		"span_start", span.Start,
		"span_length", span.Length,
		"corrupted", rep.Corrupted)

	return out, rep, nil
}
