package imagefile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ErrNotPNG is returned when chunk parsing is attempted on other formats
var ErrNotPNG = errors.New("imagefile: not a PNG stream")

// Chunk is one raw PNG chunk as found on disk
type Chunk struct {
	Type   string
	Length int
	CRCOK  bool
	Data   []byte
}

// ReadChunks walks every chunk of a PNG stream and checks its CRC. It does
// not decode pixels.
func ReadChunks(r io.Reader) ([]Chunk, error) {
	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(r, sig); err != nil || !bytes.Equal(sig, pngSignature) {
		return nil, ErrNotPNG
	}

	var chunks []Chunk
	var head [8]byte
	for {
		if _, err := io.ReadFull(r, head[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return chunks, nil
			}
			return chunks, fmt.Errorf("truncated chunk header: %w", err)
		}

		n := binary.BigEndian.Uint32(head[:4])
		if n > 1<<30 {
			return chunks, fmt.Errorf("chunk %q claims %d bytes", head[4:8], n)
		}
		body := make([]byte, n+4)
		if _, err := io.ReadFull(r, body); err != nil {
			return chunks, fmt.Errorf("truncated chunk %q: %w", head[4:8], err)
		}

		crc := crc32.NewIEEE()
		crc.Write(head[4:8])
		crc.Write(body[:n])

		c := Chunk{
			Type:   string(head[4:8]),
			Length: int(n),
			CRCOK:  crc.Sum32() == binary.BigEndian.Uint32(body[n:]),
			Data:   body[:n],
		}
		chunks = append(chunks, c)
		if c.Type == "IEND" {
			return chunks, nil
		}
	}
}

// TextChunks collects tEXt keyword/value pairs; later duplicates win
func TextChunks(chunks []Chunk) map[string]string {
	out := make(map[string]string)
	for _, c := range chunks {
		if c.Type != "tEXt" || !c.CRCOK {
			continue
		}
		key, val, ok := bytes.Cut(c.Data, []byte{0})
		if !ok {
			continue
		}
		out[string(key)] = latin1(val)
	}
	return out
}

// insertText places tEXt chunks right after IHDR
func insertText(encoded []byte, entries []TextEntry) ([]byte, error) {
	const ihdrEnd = 8 + 8 + 13 + 4
	if len(encoded) < ihdrEnd || !bytes.Equal(encoded[:8], pngSignature) || string(encoded[12:16]) != "IHDR" {
		return nil, ErrNotPNG
	}

	var out bytes.Buffer
	out.Grow(len(encoded) + 64*len(entries))
	out.Write(encoded[:ihdrEnd])
	for _, e := range entries {
		if err := validKeyword(e.Key); err != nil {
			return nil, err
		}
		data := make([]byte, 0, len(e.Key)+1+len(e.Value))
		data = append(data, e.Key...)
		data = append(data, 0)
		data = append(data, e.Value...)
		writeChunk(&out, "tEXt", data)
	}
	out.Write(encoded[ihdrEnd:])
	return out.Bytes(), nil
}

func writeChunk(w *bytes.Buffer, typ string, data []byte) {
	var head [8]byte
	binary.BigEndian.PutUint32(head[:4], uint32(len(data)))
	copy(head[4:], typ)
	w.Write(head[:])
	w.Write(data)

	crc := crc32.NewIEEE()
	crc.Write(head[4:])
	crc.Write(data)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	w.Write(sum[:])
}

// validKeyword enforces the PNG keyword rules: 1-79 printable Latin-1
// characters without leading, trailing or doubled spaces
func validKeyword(k string) error {
	if len(k) == 0 || len(k) > 79 {
		return fmt.Errorf("invalid text keyword length %d", len(k))
	}
	for i := 0; i < len(k); i++ {
		if c := k[i]; c < 0x20 || c > 0x7e {
			return fmt.Errorf("invalid character in text keyword %q", k)
		}
	}
	if k[0] == ' ' || k[len(k)-1] == ' ' || bytes.Contains([]byte(k), []byte("  ")) {
		return fmt.Errorf("invalid spacing in text keyword %q", k)
	}
	return nil
}

func latin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}
