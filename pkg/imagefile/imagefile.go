// Package imagefile converts between image files and RGB pixel buffers and
// carries the advisory signature metadata in PNG text chunks. Output is
// always PNG; JPEG input is accepted but its low bits cannot hold a
// signature through re-encoding.
package imagefile

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Davincible/siliconsig/pkg/lsb"
)

// ErrUnsupportedOutput is returned when asked to write a lossy format
var ErrUnsupportedOutput = errors.New("imagefile: only PNG output preserves the signature")

// Image is a decoded file
type Image struct {
	Pixels   *lsb.PixelBuffer
	Format   string
	Metadata Metadata
	Text     map[string]string
	Chunks   []Chunk
}

// Load reads and decodes the image at path
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	img, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// Decode reads a PNG or JPEG stream. For PNG the raw chunks and text
// metadata are collected too.
func Decode(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	out := &Image{
		Pixels: ToPixelBuffer(src),
		Format: format,
		Text:   map[string]string{},
	}

	if format == "png" {
		chunks, err := ReadChunks(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to read PNG chunks: %w", err)
		}
		out.Chunks = chunks
		out.Text = TextChunks(chunks)
		out.Metadata = MetadataFromText(out.Text)
	}
	return out, nil
}

// ToPixelBuffer flattens any image to row-major RGB, dropping alpha
func ToPixelBuffer(src image.Image) *lsb.PixelBuffer {
	b := src.Bounds()
	nrgba, ok := src.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), src, b.Min, draw.Src)
	}

	buf := lsb.NewPixelBuffer(b.Dx(), b.Dy())
	i := 0
	for y := 0; y < b.Dy(); y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < b.Dx(); x++ {
			buf.Pix[i] = row[4*x]
			buf.Pix[i+1] = row[4*x+1]
			buf.Pix[i+2] = row[4*x+2]
			i += lsb.Channels
		}
	}
	return buf
}

// FromPixelBuffer builds an opaque image from an RGB buffer
func FromPixelBuffer(buf *lsb.PixelBuffer) (*image.NRGBA, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, buf.Width, buf.Height))
	for i, j := 0, 0; i < len(buf.Pix); i, j = i+lsb.Channels, j+4 {
		img.Pix[j] = buf.Pix[i]
		img.Pix[j+1] = buf.Pix[i+1]
		img.Pix[j+2] = buf.Pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

// Encode writes buf as a PNG with meta in tEXt chunks
func Encode(w io.Writer, buf *lsb.PixelBuffer, meta Metadata) error {
	img, err := FromPixelBuffer(buf)
	if err != nil {
		return err
	}

	var raw bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&raw, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}

	out, err := insertText(raw.Bytes(), meta.Entries())
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// Save writes buf to path as PNG. Paths with a JPEG extension are refused.
func Save(path string, buf *lsb.PixelBuffer, meta Metadata) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return fmt.Errorf("%w: %s", ErrUnsupportedOutput, path)
	}

	var out bytes.Buffer
	if err := Encode(&out, buf, meta); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Clean(path), out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}
