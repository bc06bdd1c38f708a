package lsb

import (
	"fmt"
	"log/slog"

	"github.com/Davincible/siliconsig/pkg/reedsolomon"
	"github.com/Davincible/siliconsig/pkg/signature"
)

const (
	// DefaultRepeats is the number of copies written per image
	DefaultRepeats = 5

	// DefaultScanStep checks every bit alignment during a deep scan
	DefaultScanStep = 1
)

// Options configures both the embedder and the extractor. The two sides
// must agree on Parity; Repeats and Base only matter to the extractor when
// no offsets are supplied.
type Options struct {
	// Repeats is the number of independent copies
	Repeats int

	// Parity is the RS parity symbol count
	Parity int

	// Base is the bit offset of the first copy
	Base int

	// Parallel decodes the copy regions concurrently
	Parallel bool

	// ScanStep is the alignment stride of the deep scan, in bits
	ScanStep int

	// ScanLimit caps the highest alignment the deep scan tries; 0 scans the
	// whole plane
	ScanLimit int

	Logger *slog.Logger
}

// DefaultOptions returns five copies with 32 parity symbols at offset 0
func DefaultOptions() Options {
	return Options{
		Repeats:  DefaultRepeats,
		Parity:   reedsolomon.DefaultParity,
		Base:     0,
		Parallel: true,
		ScanStep: DefaultScanStep,
	}
}

// Validate checks option ranges
func (o Options) Validate() error {
	if o.Repeats < 1 {
		return fmt.Errorf("lsb: repeats must be at least 1, got %d", o.Repeats)
	}
	if o.Parity < 1 || signature.Size+o.Parity > reedsolomon.MaxCodewordLen {
		return fmt.Errorf("lsb: parity %d out of range", o.Parity)
	}
	if o.Base < 0 {
		return fmt.Errorf("lsb: negative base offset %d", o.Base)
	}
	if o.ScanStep < 0 || o.ScanLimit < 0 {
		return fmt.Errorf("lsb: negative scan parameters")
	}
	return nil
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) codec() (*reedsolomon.Codec, error) {
	return reedsolomon.New(signature.Size, o.Parity)
}

// Layout places Repeats non-overlapping copies back to back from Base
type Layout struct {
	Base         int
	CodewordBits int
	Repeats      int
}

// Offsets returns the starting bit of every copy
func (l Layout) Offsets() []int {
	out := make([]int, l.Repeats)
	for i := range out {
		out[i] = l.Base + i*l.CodewordBits
	}
	return out
}

// Span returns the number of bits all copies occupy
func (l Layout) Span() int {
	return l.Repeats * l.CodewordBits
}

// End returns the first bit after the last copy
func (l Layout) End() int {
	return l.Base + l.Span()
}

// CodewordBits returns the size of one embedded copy for the given parity
func CodewordBits(parity int) int {
	return (signature.Size + parity) * 8
}
