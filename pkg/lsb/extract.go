package lsb

import (
	"errors"
	"fmt"
	"runtime"
	"slices"

	"github.com/Davincible/siliconsig/pkg/reedsolomon"
	"github.com/Davincible/siliconsig/pkg/signature"
	"golang.org/x/sync/errgroup"
)

// Copy is the outcome of decoding one region
type Copy struct {
	Offset    int
	Recovered bool
	Err       error
	Payload   signature.Payload

	data []byte
}

// Extractor reads signature copies back out of pixel buffers
type Extractor struct {
	opts Options
	rs   *reedsolomon.Codec
}

// NewExtractor validates opts and prepares the RS codec
func NewExtractor(opts Options) (*Extractor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	rs, err := opts.codec()
	if err != nil {
		return nil, err
	}
	return &Extractor{opts: opts, rs: rs}, nil
}

// CodewordBits returns the size of one copy in bits
func (x *Extractor) CodewordBits() int {
	return x.rs.CodewordLen() * 8
}

// Extract decodes the regions at offsets and votes on the result. With no
// offsets the extractor deep scans the LSB plane for the first valid copy
// and reads the remaining copies on the same grid.
//
// Damage never produces an error; it is reported through the verdict.
// Errors are reserved for unusable input.
func (x *Extractor) Extract(buf *PixelBuffer, offsets []int) (*Result, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}

	cwBits := x.CodewordBits()
	total := x.opts.Repeats
	scanned := false

	if len(offsets) > 0 {
		var err error
		if offsets, err = x.normalizeOffsets(offsets); err != nil {
			return nil, err
		}
	} else {
		scanned = true

		anchor, ok := x.Scan(buf)
		if !ok {
			x.opts.logger().Debug("deep scan found no aligned copy", "capacity", buf.Capacity())
			return &Result{
				Verdict: Failed,
				Reason:  ReasonNoAlignment,
				Total:   total,
				Scanned: true,
			}, nil
		}
		offsets = x.grid(anchor, buf.Capacity())
	}

	for _, off := range offsets {
		if off < 0 || off+cwBits > buf.Capacity() {
			return nil, fmt.Errorf("%w: %d", ErrInvalidOffset, off)
		}
	}

	copies := x.decodeRegions(buf, offsets)
	res := vote(copies, total)
	res.Scanned = scanned

	x.opts.logger().Debug("extraction finished",
		"verdict", res.Verdict,
		"reason", res.Reason,
		"recovered", res.Recovered,
		"total", res.Total,
		"scanned", scanned)

	return res, nil
}

// normalizeOffsets sorts and deduplicates caller-supplied offsets and
// checks they fit one layout: at most Repeats regions, all on the codeword
// grid of the lowest one. The vote is always taken over Repeats copies, so
// a short list can lower the verdict but never raise it.
func (x *Extractor) normalizeOffsets(offsets []int) ([]int, error) {
	out := slices.Clone(offsets)
	slices.Sort(out)
	out = slices.Compact(out)

	cwBits := x.CodewordBits()
	if len(out) > x.opts.Repeats {
		return nil, fmt.Errorf("%w: %d regions for %d copies", ErrInvalidOffset, len(out), x.opts.Repeats)
	}
	for _, off := range out[1:] {
		if (off-out[0])%cwBits != 0 {
			return nil, fmt.Errorf("%w: %d is not on the grid of %d", ErrInvalidOffset, off, out[0])
		}
	}
	if span := out[len(out)-1] - out[0]; span > (x.opts.Repeats-1)*cwBits {
		return nil, fmt.Errorf("%w: regions span %d bits", ErrInvalidOffset, span)
	}
	return out, nil
}

// Scan returns the lowest bit alignment holding a syndrome-valid payload
func (x *Extractor) Scan(buf *PixelBuffer) (int, bool) {
	cwBits := x.CodewordBits()
	last := buf.Capacity() - cwBits
	if x.opts.ScanLimit > 0 && x.opts.ScanLimit < last {
		last = x.opts.ScanLimit
	}
	step := x.opts.ScanStep
	if step <= 0 {
		step = DefaultScanStep
	}

	prefix := []byte(signature.Prefix)
	for a := 0; a <= last; a += step {
		if !hasPrefix(buf.Pix, a, prefix) {
			continue
		}
		if c := x.decodeAt(buf, a); c.Recovered {
			x.opts.logger().Debug("deep scan aligned", "offset", a)
			return a, true
		}
	}
	return 0, false
}

// grid lists the regions that can hold a copy given one known copy at
// anchor: every codeword-sized step within Repeats-1 copies either side.
func (x *Extractor) grid(anchor, capacity int) []int {
	cwBits := x.CodewordBits()
	reach := (x.opts.Repeats - 1) * cwBits

	start := anchor - reach
	if start < 0 {
		start = anchor % cwBits
	}

	var out []int
	for off := start; off <= anchor+reach && off+cwBits <= capacity; off += cwBits {
		out = append(out, off)
	}
	return out
}

func (x *Extractor) decodeRegions(buf *PixelBuffer, offsets []int) []Copy {
	copies := make([]Copy, len(offsets))

	if !x.opts.Parallel || len(offsets) < 2 {
		for i, off := range offsets {
			copies[i] = x.decodeAt(buf, off)
		}
		return copies
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, off := range offsets {
		g.Go(func() error {
			copies[i] = x.decodeAt(buf, off)
			return nil
		})
	}
	_ = g.Wait()

	return copies
}

func (x *Extractor) decodeAt(buf *PixelBuffer, off int) Copy {
	c := Copy{Offset: off}

	cw := readBits(buf.Pix, off, x.rs.CodewordLen())
	data, err := x.rs.Decode(cw)
	if err != nil {
		c.Err = err
		return c
	}

	p, err := signature.Unmarshal(data)
	if err != nil {
		c.Err = err
		return c
	}

	c.Recovered = true
	c.Payload = p
	c.data = data
	return c
}

// IsChecksumMismatch reports whether a copy failed its RS syndrome check
func (c Copy) IsChecksumMismatch() bool {
	return errors.Is(c.Err, reedsolomon.ErrChecksumMismatch)
}
