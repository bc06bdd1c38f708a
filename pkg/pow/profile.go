// Package pow rebuilds the 80-byte mining header for a signature payload,
// checks its double hash against a compact difficulty target and searches
// the closed set of byte-order profiles a producer may have used.
package pow

import (
	"fmt"
	"strings"
)

// ByteOrder is the serialization of a 4-byte header word
type ByteOrder uint8

const (
	BigEndian ByteOrder = iota
	LittleEndian
)

func (o ByteOrder) String() string {
	if o == LittleEndian {
		return "le"
	}
	return "be"
}

// HashOrder is the serialization of the 32-byte previous-hash field
type HashOrder uint8

const (
	// Raw keeps the digest bytes as they were produced
	Raw HashOrder = iota
	// Reversed flips all 32 bytes (Bitcoin display order)
	Reversed
	// WordSwapped reverses each 4-byte word in place (Stratum swab32)
	WordSwapped
)

func (o HashOrder) String() string {
	switch o {
	case Reversed:
		return "reversed"
	case WordSwapped:
		return "swab32"
	default:
		return "raw"
	}
}

// Profile is one complete byte-order assignment for the header fields
type Profile struct {
	Version  ByteOrder
	NTime    ByteOrder
	Nonce    ByteOrder
	PrevHash HashOrder
}

// Canonical is the profile the hardware bridge reports in
var Canonical = Profile{}

func (p Profile) String() string {
	return fmt.Sprintf("version=%s,ntime=%s,nonce=%s,prevhash=%s",
		p.Version, p.NTime, p.Nonce, p.PrevHash)
}

// Profiles returns every profile the verifier tries, canonical first. The
// set is closed: 2 version x 2 ntime x 2 nonce x 3 prevhash orders.
func Profiles() []Profile {
	out := make([]Profile, 0, 24)
	for _, ph := range []HashOrder{Raw, Reversed, WordSwapped} {
		for _, v := range []ByteOrder{BigEndian, LittleEndian} {
			for _, nt := range []ByteOrder{BigEndian, LittleEndian} {
				for _, n := range []ByteOrder{BigEndian, LittleEndian} {
					out = append(out, Profile{Version: v, NTime: nt, Nonce: n, PrevHash: ph})
				}
			}
		}
	}
	return out
}

// ParseProfile reads the String form back. Omitted fields keep their
// canonical value, so "nonce=le" is a valid profile.
func ParseProfile(s string) (Profile, error) {
	var p Profile
	s = strings.TrimSpace(s)
	if s == "" || s == "canonical" {
		return p, nil
	}

	for _, part := range strings.Split(s, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return Profile{}, fmt.Errorf("invalid profile element %q", part)
		}
		key, val = strings.ToLower(key), strings.ToLower(val)

		if key == "prevhash" {
			switch val {
			case "raw":
				p.PrevHash = Raw
			case "reversed":
				p.PrevHash = Reversed
			case "swab32":
				p.PrevHash = WordSwapped
			default:
				return Profile{}, fmt.Errorf("invalid prevhash order %q", val)
			}
			continue
		}

		var order ByteOrder
		switch val {
		case "be":
			order = BigEndian
		case "le":
			order = LittleEndian
		default:
			return Profile{}, fmt.Errorf("invalid byte order %q for %s", val, key)
		}

		switch key {
		case "version":
			p.Version = order
		case "ntime":
			p.NTime = order
		case "nonce":
			p.Nonce = order
		default:
			return Profile{}, fmt.Errorf("unknown profile field %q", key)
		}
	}
	return p, nil
}
