package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"
)

func TestFromHash(t *testing.T) {
	tests := []struct {
		name string
		hash [32]byte
	}{
		{"Zero hash", [32]byte{}},
		{"Ones", [32]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{"Counting", func() (h [32]byte) {
			for i := range h {
				h[i] = byte(i)
			}
			return h
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := FromHash(tt.hash)
			require.NoError(t, err)
			assert.Len(t, f.WordList(), WordCount)
			assert.True(t, bip39.IsMnemonicValid(f.Words()))

			back, err := f.Hash()
			require.NoError(t, err)
			assert.Equal(t, tt.hash, back)

			parsed, err := FromWords(strings.ToUpper(f.Words()))
			require.NoError(t, err)
			assert.Equal(t, f.Words(), parsed.Words())
		})
	}
}

func TestZeroHashVector(t *testing.T) {
	f, err := FromHash([32]byte{})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("abandon ", 23)+"art", f.Words())
	assert.Equal(t, "abandon-abandon-abandon-abandon", f.Short(DefaultShortWords))
	assert.Equal(t, f.Words(), strings.ReplaceAll(f.Short(0), "-", " "))
}

func TestFromWordsRejects(t *testing.T) {
	_, err := FromWords("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about")
	assert.Error(t, err, "12 words are not a fingerprint")

	_, err = FromWords(strings.Repeat("abandon ", 24))
	assert.Error(t, err, "bad checksum")
}

func TestTag(t *testing.T) {
	a, err := FromHash([32]byte{1})
	require.NoError(t, err)
	b, err := FromHash([32]byte{2})
	require.NoError(t, err)

	ta, err := a.Tag()
	require.NoError(t, err)
	tb, err := b.Tag()
	require.NoError(t, err)
	assert.Len(t, ta, 8)
	assert.NotEqual(t, ta, tb)
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("alpha  beta", " ALPHA beta "))
	assert.False(t, Matches("alpha beta", "alpha"))
	assert.False(t, Matches("alpha beta", "alpha gamma"))
}
