package gf256

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTables(t *testing.T) {
	// α^0..α^7 are plain powers of two before the first reduction
	for i := 0; i < 8; i++ {
		assert.Equal(t, byte(1<<i), Exp(i))
	}
	// α^8 = x^4 + x^3 + x^2 + 1
	assert.Equal(t, byte(0x1D), Exp(8))
	assert.Equal(t, byte(1), Exp(255))

	seen := make(map[byte]bool)
	for i := 0; i < Order; i++ {
		v := Exp(i)
		assert.False(t, seen[v], "α^%d repeats", i)
		seen[v] = true

		l, err := Log(v)
		require.NoError(t, err)
		assert.Equal(t, i, l)
	}
	assert.Len(t, seen, 255)
}

func TestMul(t *testing.T) {
	tests := []struct {
		name string
		a, b byte
		want byte
	}{
		{"zero left", 0, 0x53, 0},
		{"zero right", 0xCA, 0, 0},
		{"identity", 0x57, 1, 0x57},
		{"two times 0x80 reduces", 2, 0x80, 0x1D},
		{"known product", 0x02, 0x8E, 0x01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Mul(tt.a, tt.b))
			assert.Equal(t, tt.want, Mul(tt.b, tt.a))
		})
	}
}

func TestMulMatchesCarrylessReference(t *testing.T) {
	ref := func(a, b int) byte {
		z := 0
		for a > 0 {
			if a&1 != 0 {
				z ^= b
			}
			a >>= 1
			b <<= 1
			if b&0x100 != 0 {
				b ^= Poly
			}
		}
		return byte(z)
	}

	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			if Mul(byte(a), byte(b)) != ref(a, b) {
				t.Fatalf("Mul(%d, %d) mismatch", a, b)
			}
		}
	}
}

func TestInverse(t *testing.T) {
	for a := 1; a < 256; a++ {
		inv, err := Inv(byte(a))
		require.NoError(t, err)
		assert.Equal(t, byte(1), Mul(byte(a), inv), "a=%d", a)

		q, err := Div(1, byte(a))
		require.NoError(t, err)
		assert.Equal(t, inv, q)
	}

	_, err := Inv(0)
	assert.ErrorIs(t, err, ErrDomain)

	_, err = Div(7, 0)
	assert.ErrorIs(t, err, ErrDomain)

	_, err = Log(0)
	assert.ErrorIs(t, err, ErrDomain)

	q, err := Div(0, 9)
	require.NoError(t, err)
	assert.Equal(t, byte(0), q)
}

func TestPow(t *testing.T) {
	assert.Equal(t, byte(1), Pow(0, 0))
	assert.Equal(t, byte(0), Pow(0, 5))
	assert.Equal(t, Exp(10), Pow(2, 10))
	assert.Equal(t, Mul(Mul(0x35, 0x35), 0x35), Pow(0x35, 3))
}

func TestPolynomials(t *testing.T) {
	// (x + 1)(x + 1) = x^2 + 1 in characteristic 2
	assert.Equal(t, []byte{1, 0, 1}, PolyMul([]byte{1, 1}, []byte{1, 1}))
	assert.Nil(t, PolyMul(nil, []byte{1}))

	// p(x) = x^2 + 2x + 3 at x = 1 is 1 ^ 2 ^ 3 = 0
	assert.Equal(t, byte(0), PolyEval([]byte{1, 2, 3}, 1))
	assert.Equal(t, byte(3), PolyEval([]byte{1, 2, 3}, 0))
	assert.Equal(t, byte(0), PolyEval(nil, 5))
}
