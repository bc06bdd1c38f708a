package lsb

import (
	"fmt"

	"github.com/Davincible/siliconsig/pkg/reedsolomon"
	"github.com/Davincible/siliconsig/pkg/signature"
)

// Embedder writes signature copies into pixel buffers
type Embedder struct {
	opts Options
	rs   *reedsolomon.Codec
}

// NewEmbedder validates opts and prepares the RS codec
func NewEmbedder(opts Options) (*Embedder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	rs, err := opts.codec()
	if err != nil {
		return nil, err
	}
	return &Embedder{opts: opts, rs: rs}, nil
}

// Layout returns where copies are written
func (e *Embedder) Layout() Layout {
	return Layout{
		Base:         e.opts.Base,
		CodewordBits: e.rs.CodewordLen() * 8,
		Repeats:      e.opts.Repeats,
	}
}

// Embed writes every copy of p into buf in place and returns the layout
// used. Each channel byte changes by at most one.
func (e *Embedder) Embed(buf *PixelBuffer, p signature.Payload) (Layout, error) {
	if err := buf.Validate(); err != nil {
		return Layout{}, err
	}

	layout := e.Layout()
	if layout.End() > buf.Capacity() {
		return Layout{}, fmt.Errorf("%w: need %d bits, have %d",
			ErrInsufficientCapacity, layout.End(), buf.Capacity())
	}

	data, err := p.Marshal()
	if err != nil {
		return Layout{}, fmt.Errorf("failed to serialize payload: %w", err)
	}

	for i, off := range layout.Offsets() {
		cw, err := e.rs.Encode(data)
		if err != nil {
			return Layout{}, fmt.Errorf("failed to encode copy %d: %w", i, err)
		}
		writeBits(buf.Pix, off, cw)
	}

	e.opts.logger().Debug("signature embedded",
		"repeats", layout.Repeats,
		"codeword_bits", layout.CodewordBits,
		"base", layout.Base,
		"capacity_used", float64(layout.Span())/float64(buf.Capacity()))

	return layout, nil
}
