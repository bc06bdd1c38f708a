package pow

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Davincible/siliconsig/pkg/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// easyBits needs roughly 65k hashes per solution
const easyBits uint32 = 0x1f00ffff

func testPayload(t *testing.T, nonce uint32) signature.Payload {
	t.Helper()
	hash, err := signature.ParseHash(strings.Repeat("ab", 16) + strings.Repeat("01", 16))
	require.NoError(t, err)
	p, err := signature.New(hash, nonce, 0x5F000000, 0x20000000, signature.DefaultStatus)
	require.NoError(t, err)
	return p
}

func TestProfiles(t *testing.T) {
	profiles := Profiles()
	require.Len(t, profiles, 24)
	assert.Equal(t, Canonical, profiles[0])

	seen := make(map[Profile]bool)
	for _, p := range profiles {
		assert.False(t, seen[p], "duplicate %s", p)
		seen[p] = true

		parsed, err := ParseProfile(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
}

func TestParseProfile(t *testing.T) {
	tests := []struct {
		in      string
		want    Profile
		wantErr bool
	}{
		{"", Canonical, false},
		{"canonical", Canonical, false},
		{"nonce=le", Profile{Nonce: LittleEndian}, false},
		{"prevhash=swab32, version=LE", Profile{Version: LittleEndian, PrevHash: WordSwapped}, false},
		{"nonce", Profile{}, true},
		{"nonce=middle", Profile{}, true},
		{"bits=le", Profile{}, true},
		{"prevhash=sideways", Profile{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProfile(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTargetFromBits(t *testing.T) {
	target, err := TargetFromBits(DefaultBits)
	require.NoError(t, err)
	assert.Equal(t, "00000000ffff"+strings.Repeat("0", 52), fmt.Sprintf("%064x", target))

	for _, bits := range []uint32{DefaultBits, easyBits, 0x207fffff, 0x1b0404cb, 0x03123456} {
		target, err := TargetFromBits(bits)
		require.NoError(t, err)
		assert.Equal(t, bits, BitsFromTarget(target), "bits %08x", bits)
	}

	for _, bits := range []uint32{0x1d800000, 0x1d000000, 0x01000001, 0x2200ffff} {
		_, err := TargetFromBits(bits)
		assert.ErrorIs(t, err, ErrInvalidBits, "bits %08x", bits)
	}
}

func TestDifficulty(t *testing.T) {
	d, err := Difficulty(DefaultBits)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-9)

	d, err = Difficulty(0x1c00ffff)
	require.NoError(t, err)
	assert.InDelta(t, 256.0, d, 1e-6)

	_, err = Difficulty(0)
	assert.Error(t, err)
}

func TestHeaderLayout(t *testing.T) {
	var prev [32]byte
	for i := range prev {
		prev[i] = byte(i)
	}
	tmpl := Template{
		PrevHash: prev,
		Version:  0x20000000,
		NTime:    0x5F000000,
		Bits:     DefaultBits,
		Nonce:    0x01020304,
	}

	hdr := tmpl.Header(SHA256, Canonical)
	assert.Equal(t, uint32(0x20000000), binary.BigEndian.Uint32(hdr[0:4]))
	assert.Equal(t, prev[:], hdr[4:36])
	merkle := MerkleRoot(SHA256, nil)
	assert.Equal(t, merkle[:], hdr[36:68])
	assert.Equal(t, uint32(0x5F000000), binary.BigEndian.Uint32(hdr[68:72]))
	assert.Equal(t, []byte{0x1d, 0x00, 0xff, 0xff}, hdr[72:76])
	assert.Equal(t, []byte{1, 2, 3, 4}, hdr[76:80])

	hdr = tmpl.Header(SHA256, Profile{Version: LittleEndian, Nonce: LittleEndian, PrevHash: WordSwapped})
	assert.Equal(t, []byte{0, 0, 0, 0x20}, hdr[0:4])
	assert.Equal(t, []byte{3, 2, 1, 0, 7, 6, 5, 4}, hdr[4:12])
	assert.Equal(t, []byte{4, 3, 2, 1}, hdr[76:80])

	hdr = tmpl.Header(SHA256, Profile{PrevHash: Reversed})
	assert.Equal(t, byte(31), hdr[4])
	assert.Equal(t, byte(0), hdr[35])
}

func TestMerkleRoot(t *testing.T) {
	cb := make([]byte, 72)
	first := sha256.Sum256(cb)
	want := sha256.Sum256(first[:])
	assert.Equal(t, want, MerkleRoot(SHA256, nil))
	assert.Equal(t, want, MerkleRoot(SHA256, []byte{0, 0, 0, 0}))
	assert.NotEqual(t, want, MerkleRoot(SHA256, []byte{0, 0, 0, 1}))
}

func TestHashers(t *testing.T) {
	data := []byte("silicon")
	first := sha256.Sum256(data)
	assert.Equal(t, sha256.Sum256(first[:]), SHA256.Double(data))
	assert.NotEqual(t, SHA256.Double(data), BLAKE2b.Double(data))

	h, err := ParseHasher("BLAKE2B")
	require.NoError(t, err)
	assert.Equal(t, BLAKE2b, h)
	h, err = ParseHasher("")
	require.NoError(t, err)
	assert.Equal(t, SHA256, h)
	_, err = ParseHasher("md5")
	assert.Error(t, err)
}

func TestMineVerifyAndCalibrate(t *testing.T) {
	tests := []struct {
		name    string
		hasher  Hasher
		profile Profile
	}{
		{"Canonical SHA256", SHA256, Canonical},
		{"Little endian nonce", SHA256, Profile{Nonce: LittleEndian}},
		{"Swapped prevhash", SHA256, Profile{Version: LittleEndian, NTime: LittleEndian, PrevHash: WordSwapped}},
		{"Reversed BLAKE2b", BLAKE2b, Profile{PrevHash: Reversed, Nonce: LittleEndian}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &Verifier{Bits: easyBits, Hasher: tt.hasher}
			target, err := v.Target()
			require.NoError(t, err)

			p := testPayload(t, 0)
			nonce, digest, err := Mine(context.Background(), v.Template(p), tt.hasher, tt.profile, target, 0)
			require.NoError(t, err)
			assert.True(t, Meets(digest, target))

			p.Nonce = nonce
			res, ok, err := v.Verify(p, tt.profile)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, digest, res.Digest)

			cal, err := v.Calibrate(p)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, cal.Attempts, 1)
			_, ok, err = v.Verify(p, cal.Profile)
			require.NoError(t, err)
			assert.True(t, ok, "calibrated profile %s must verify", cal.Profile)
		})
	}
}

func TestCalibrateExhaustion(t *testing.T) {
	v := &Verifier{Bits: easyBits, Hasher: SHA256}

	// find a nonce no profile accepts
	var err error
	for nonce := uint32(0); nonce < 64; nonce++ {
		if _, err = v.Calibrate(testPayload(t, nonce)); err != nil {
			break
		}
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoValidByteOrder)

	var nvb *NoValidByteOrderError
	require.True(t, errors.As(err, &nvb))
	assert.Len(t, nvb.Tried, 24)
	assert.Equal(t, easyBits, nvb.Bits)
	assert.Contains(t, err.Error(), "prevhash=swab32")
}

func TestDefaultDifficultyRejects(t *testing.T) {
	v := NewVerifier()
	_, ok, err := v.Verify(testPayload(t, 1), Canonical)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = v.Calibrate(testPayload(t, 1))
	assert.ErrorIs(t, err, ErrNoValidByteOrder)
}

func TestMineHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	target, err := TargetFromBits(DefaultBits)
	require.NoError(t, err)
	_, _, err = Mine(ctx, Template{Bits: DefaultBits}, SHA256, Canonical, target, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvalidVerifierBits(t *testing.T) {
	v := &Verifier{Bits: 0x1d800000}
	_, _, err := v.Verify(testPayload(t, 0), Canonical)
	assert.ErrorIs(t, err, ErrInvalidBits)
	_, err = v.Calibrate(testPayload(t, 0))
	assert.ErrorIs(t, err, ErrInvalidBits)
}
