package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload(t *testing.T) Payload {
	t.Helper()
	hash, err := ParseHash("65501a37b306f5ac183848bab643350219c18111bfa97c706856b668d3bd5996")
	require.NoError(t, err)

	p, err := New(hash, 0xf16823b5, 0x6964c85e, 0x20000000, DefaultStatus)
	require.NoError(t, err)
	return p
}

func TestSize(t *testing.T) {
	assert.Equal(t, 170, Size)
}

func TestMarshalLayout(t *testing.T) {
	p := testPayload(t)

	data, err := p.Marshal()
	require.NoError(t, err)
	require.Len(t, data, Size)

	want := `{"hash":"65501a37b306f5ac183848bab643350219c18111bfa97c706856b668d3bd5996",` +
		`"nonce":"f16823b5","ntime":"6964c85e","version":"20000000",` +
		`"status":"AUTHENTICATED_BY_BM1387 "}`
	assert.Equal(t, want, string(data))
	assert.True(t, strings.HasPrefix(string(data), Prefix))
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		status string
	}{
		{"Default status", DefaultStatus},
		{"Empty status", ""},
		{"Full width status", strings.Repeat("X", MaxStatusLen)},
		{"Inner spaces", "A B C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPayload(t)
			p.Status = tt.status

			data, err := p.Marshal()
			require.NoError(t, err)
			assert.Len(t, data, Size)

			got, err := Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, p, got)
		})
	}
}

func TestUnmarshalIgnoresZeroPadding(t *testing.T) {
	p := testPayload(t)
	data, err := p.Marshal()
	require.NoError(t, err)

	padded := append(data, make([]byte, 12)...)
	got, err := Unmarshal(padded)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	padded[len(padded)-1] = 1
	_, err = Unmarshal(padded)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	p := testPayload(t)
	good, err := p.Marshal()
	require.NoError(t, err)

	mutate := func(i int, c byte) []byte {
		b := append([]byte(nil), good...)
		b[i] = c
		return b
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"Short", good[:Size-1]},
		{"All zero", make([]byte, Size)},
		{"Broken prefix", mutate(0, '[')},
		{"Upper-case hex", mutate(len(Prefix), 'A')},
		{"Non-hex nonce", mutate(len(Prefix)+64+len(`","nonce":"`), 'z')},
		{"Broken separator", mutate(len(Prefix)+64, ';')},
		{"Quote in status", mutate(Size-4, '"')},
		{"Broken suffix", mutate(Size-1, ']')},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.data)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestValidateStatus(t *testing.T) {
	assert.NoError(t, ValidateStatus("VERIFIED"))
	assert.NoError(t, ValidateStatus(""))
	assert.ErrorIs(t, ValidateStatus(strings.Repeat("a", 25)), ErrInvalidStatus)
	assert.ErrorIs(t, ValidateStatus("bad\"quote"), ErrInvalidStatus)
	assert.ErrorIs(t, ValidateStatus(`back\slash`), ErrInvalidStatus)
	assert.ErrorIs(t, ValidateStatus("tab\there"), ErrInvalidStatus)
	assert.ErrorIs(t, ValidateStatus("trailing "), ErrInvalidStatus)
	assert.ErrorIs(t, ValidateStatus("naïve"), ErrInvalidStatus)

	_, err := New([32]byte{}, 1, 2, 3, "bad\"")
	assert.Error(t, err)
}

func TestParseWord(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"20000000", 0x20000000, false},
		{"0x1", 1, false},
		{"F16823B5", 0xf16823b5, false},
		{" 5f000000 ", 0x5f000000, false},
		{"", 0, true},
		{"123456789", 0, true},
		{"xyz", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWord(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseHash(t *testing.T) {
	h, err := ParseHash(strings.Repeat("00", 32))
	require.NoError(t, err)
	assert.Equal(t, [32]byte{}, h)

	_, err = ParseHash("abcd")
	assert.Error(t, err)

	_, err = ParseHash(strings.Repeat("zz", 32))
	assert.Error(t, err)
}

func TestContentHashIgnoresLSB(t *testing.T) {
	pix := make([]byte, 10000)
	for i := range pix {
		pix[i] = byte(i * 7)
	}
	base := ContentHash(pix)

	flipped := append([]byte(nil), pix...)
	for i := range flipped {
		flipped[i] ^= byte(i & 1)
	}
	assert.Equal(t, base, ContentHash(flipped))

	flipped[5000] ^= 0x02
	assert.NotEqual(t, base, ContentHash(flipped))
}
