// Package lsb writes RS-protected signature copies into the least
// significant bit plane of an RGB pixel buffer and recovers them by
// majority vote.
package lsb

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/icza/bitio"
)

// Channels is the number of bytes per pixel (R, G, B)
const Channels = 3

var (
	// ErrInvalidBuffer is returned for buffers whose size does not match
	// their dimensions
	ErrInvalidBuffer = errors.New("lsb: invalid pixel buffer")

	// ErrInsufficientCapacity is returned when the copies do not fit
	ErrInsufficientCapacity = errors.New("lsb: image too small for signature")

	// ErrInvalidOffset is returned for region offsets outside the bit plane
	// or that do not describe one copy layout
	ErrInvalidOffset = errors.New("lsb: invalid region offsets")
)

// PixelBuffer is a row-major RGB image, three bytes per pixel
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewPixelBuffer allocates an all-zero buffer
func NewPixelBuffer(width, height int) *PixelBuffer {
	return &PixelBuffer{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*Channels),
	}
}

// Validate checks the buffer dimensions against its byte count
func (b *PixelBuffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidBuffer)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidBuffer, b.Width, b.Height)
	}
	if len(b.Pix) != b.Width*b.Height*Channels {
		return fmt.Errorf("%w: %d bytes for %dx%d", ErrInvalidBuffer, len(b.Pix), b.Width, b.Height)
	}
	return nil
}

// Capacity returns the number of bits the LSB plane holds
func (b *PixelBuffer) Capacity() int {
	return len(b.Pix)
}

// Clone returns a deep copy
func (b *PixelBuffer) Clone() *PixelBuffer {
	pix := make([]byte, len(b.Pix))
	copy(pix, b.Pix)
	return &PixelBuffer{Width: b.Width, Height: b.Height, Pix: pix}
}

// writeBits stores data MSB-first into bit 0 of pix[start:]. Only bit 0 of
// each byte is touched.
func writeBits(pix []byte, start int, data []byte) {
	r := bitio.NewReader(bytes.NewReader(data))
	for i := start; i < start+len(data)*8; i++ {
		pix[i] &= 0xFE
		if r.TryReadBool() {
			pix[i] |= 1
		}
	}
}

// readBits assembles n bytes from bit 0 of pix[start:]
func readBits(pix []byte, start, n int) []byte {
	var out bytes.Buffer
	out.Grow(n)
	w := bitio.NewWriter(&out)
	for i := start; i < start+n*8; i++ {
		w.TryWriteBool(pix[i]&1 == 1)
	}
	// whole bytes only, nothing is left to pad
	_ = w.Close()
	return out.Bytes()
}

// hasPrefix reports whether the bytes at start begin with prefix
func hasPrefix(pix []byte, start int, prefix []byte) bool {
	return bytes.Equal(readBits(pix, start, len(prefix)), prefix)
}
