package pow

import (
	"encoding/binary"
)

// HeaderSize is the length of a serialized mining header
const HeaderSize = 80

// DefaultExtranonce2 is used when no extranonce2 was recorded
var DefaultExtranonce2 = []byte{0, 0, 0, 0}

// Template holds the header fields before serialization
type Template struct {
	PrevHash    [32]byte
	Version     uint32
	NTime       uint32
	Bits        uint32
	Nonce       uint32
	Extranonce2 []byte
}

// MerkleRoot hashes the single-transaction coinbase built around
// extranonce2: 32 zero bytes, a zero extranonce1, extranonce2, 32 zero bytes
func MerkleRoot(h Hasher, extranonce2 []byte) [32]byte {
	if extranonce2 == nil {
		extranonce2 = DefaultExtranonce2
	}
	cb := make([]byte, 0, 32+4+len(extranonce2)+32)
	cb = append(cb, make([]byte, 36)...)
	cb = append(cb, extranonce2...)
	cb = append(cb, make([]byte, 32)...)
	return h.Double(cb)
}

// Header serializes t under profile:
// version(4) | prevhash(32) | merkle(32) | ntime(4) | bits(4) | nonce(4)
func (t Template) Header(h Hasher, p Profile) [HeaderSize]byte {
	var hdr [HeaderSize]byte
	putWord(hdr[0:4], t.Version, p.Version)
	putHash(hdr[4:36], t.PrevHash, p.PrevHash)
	merkle := MerkleRoot(h, t.Extranonce2)
	copy(hdr[36:68], merkle[:])
	putWord(hdr[68:72], t.NTime, p.NTime)
	binary.BigEndian.PutUint32(hdr[72:76], t.Bits)
	putWord(hdr[76:80], t.Nonce, p.Nonce)
	return hdr
}

// Digest returns the double hash of the header in display order
func (t Template) Digest(h Hasher, p Profile) [32]byte {
	hdr := t.Header(h, p)
	return displayOrder(h.Double(hdr[:]))
}

func putWord(dst []byte, v uint32, o ByteOrder) {
	if o == LittleEndian {
		binary.LittleEndian.PutUint32(dst, v)
		return
	}
	binary.BigEndian.PutUint32(dst, v)
}

func putHash(dst []byte, src [32]byte, o HashOrder) {
	switch o {
	case Reversed:
		for i := range src {
			dst[i] = src[31-i]
		}
	case WordSwapped:
		for w := 0; w < 32; w += 4 {
			dst[w], dst[w+1], dst[w+2], dst[w+3] = src[w+3], src[w+2], src[w+1], src[w]
		}
	default:
		copy(dst, src[:])
	}
}

func displayOrder(d [32]byte) [32]byte {
	for i, j := 0, 31; i < j; i, j = i+1, j-1 {
		d[i], d[j] = d[j], d[i]
	}
	return d
}
