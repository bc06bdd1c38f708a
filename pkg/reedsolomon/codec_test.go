package reedsolomon

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/Davincible/siliconsig/pkg/gf256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name      string
		dataLen   int
		parity    int
		wantError bool
	}{
		{"Default block", 170, DefaultParity, false},
		{"Maximum length", 223, 32, false},
		{"Too long", 224, 32, true},
		{"Zero parity", 10, 0, true},
		{"Zero data", 0, 32, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.dataLen, tt.parity)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dataLen+tt.parity, c.CodewordLen())
		})
	}
}

func TestGenerator(t *testing.T) {
	g := Generator(DefaultParity)
	require.Len(t, g, DefaultParity+1)
	assert.Equal(t, byte(1), g[0], "generator must be monic")

	// every α^i for i < parity is a root
	for i := 0; i < DefaultParity; i++ {
		assert.Equal(t, byte(0), gf256.PolyEval(g, gf256.Exp(i)), "α^%d", i)
	}
	assert.NotEqual(t, byte(0), gf256.PolyEval(g, gf256.Exp(DefaultParity)))
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	c, err := New(170, DefaultParity)
	require.NoError(t, err)

	for trial := 0; trial < 50; trial++ {
		data := make([]byte, 170)
		for i := range data {
			data[i] = byte(rng.IntN(256))
		}

		cw, err := c.Encode(data)
		require.NoError(t, err)
		require.Len(t, cw, 202)
		assert.Equal(t, data, cw[:170], "encoding must be systematic")
		assert.True(t, c.Check(cw))
		assert.Equal(t, make([]byte, DefaultParity), c.Syndromes(cw))

		got, err := c.Decode(cw)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestSingleSymbolErrorDetected(t *testing.T) {
	c, err := New(40, DefaultParity)
	require.NoError(t, err)

	data := bytes.Repeat([]byte("silicon!"), 5)
	cw, err := c.Encode(data)
	require.NoError(t, err)

	for pos := 0; pos < len(cw); pos++ {
		for _, delta := range []byte{0x01, 0x80, 0xFF} {
			bad := append([]byte(nil), cw...)
			bad[pos] ^= delta

			_, err := c.Decode(bad)
			assert.ErrorIs(t, err, ErrChecksumMismatch, "pos=%d delta=%#x", pos, delta)
		}
	}
}

func TestMultiSymbolErrorsDetected(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	c, err := New(100, DefaultParity)
	require.NoError(t, err)

	cw, err := c.Encode(bytes.Repeat([]byte{0xA5}, 100))
	require.NoError(t, err)

	for errs := 2; errs <= DefaultParity; errs++ {
		bad := append([]byte(nil), cw...)
		for _, pos := range rng.Perm(len(bad))[:errs] {
			bad[pos] ^= byte(1 + rng.IntN(255))
		}
		assert.False(t, c.Check(bad), "%d symbol errors", errs)
	}
}

func TestZeroPadding(t *testing.T) {
	c, err := New(16, 8)
	require.NoError(t, err)

	short := []byte("abc")
	cw, err := c.Encode(short)
	require.NoError(t, err)
	require.Len(t, cw, 24)

	padded := append([]byte("abc"), make([]byte, 13)...)
	want, err := c.Encode(padded)
	require.NoError(t, err)
	assert.Equal(t, want, cw)

	got, err := c.Decode(cw)
	require.NoError(t, err)
	assert.Equal(t, padded, got)
	assert.Equal(t, short, got[:len(short)])
}

func TestEncodeDecodeErrors(t *testing.T) {
	c, err := New(4, 4)
	require.NoError(t, err)

	_, err = c.Encode([]byte("too long"))
	assert.ErrorIs(t, err, ErrDataTooLong)

	_, err = c.Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidLength)
	assert.False(t, c.Check([]byte{1, 2, 3}))
}
