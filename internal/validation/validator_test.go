package validation

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateHex(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"00ff", true},
		{" ABcd ", true},
		{"", false},
		{"abc", false},
		{"zz", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateHex(tt.input)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateHash(t *testing.T) {
	assert.NoError(t, ValidateHash(strings.Repeat("ab", 32)))
	assert.Error(t, ValidateHash(strings.Repeat("ab", 31)))
	assert.Error(t, ValidateHash(strings.Repeat("g", 64)))
	assert.Error(t, ValidateHash(""))
}

func TestValidateWord(t *testing.T) {
	tests := []struct {
		word string
		ok   bool
	}{
		{"1d00ffff", true},
		{"0x20000000", true},
		{"7", true},
		{"", false},
		{"0x", false},
		{"123456789", false},
		{"xyz", false},
	}

	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			err := ValidateWord("nonce", tt.word)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "nonce")
			}
		})
	}
}

func TestValidateStatus(t *testing.T) {
	assert.NoError(t, ValidateStatus("AUTHENTICATED_BY_BM1387"))
	assert.NoError(t, ValidateStatus(""))
	assert.Error(t, ValidateStatus(strings.Repeat("A", 25)))
	assert.Error(t, ValidateStatus(`quote"d`))
}

func TestValidateFraction(t *testing.T) {
	for _, f := range []float64{0, 0.4, 1} {
		assert.NoError(t, ValidateFraction(f))
	}
	for _, f := range []float64{-0.1, 1.01, math.NaN()} {
		assert.Error(t, ValidateFraction(f))
	}
}

func TestValidateRepeats(t *testing.T) {
	assert.NoError(t, ValidateRepeats(1))
	assert.NoError(t, ValidateRepeats(5))
	assert.NoError(t, ValidateRepeats(MaxRepeats))
	assert.Error(t, ValidateRepeats(0))
	assert.Error(t, ValidateRepeats(MaxRepeats+1))
}

func TestValidateBits(t *testing.T) {
	assert.NoError(t, ValidateBits("1d00ffff"))
	assert.NoError(t, ValidateBits("0x1f00ffff"))
	assert.Error(t, ValidateBits("1d000000"), "zero target")
	assert.Error(t, ValidateBits("1d800000"), "negative target")
	assert.Error(t, ValidateBits("bits"))

	if err := ValidateBits("1d0000ff"); assert.Error(t, err, "same target as 1c00ff00") {
		assert.Contains(t, err.Error(), "1c00ff00")
	}
}

func TestValidateFingerprint(t *testing.T) {
	valid := strings.Repeat("abandon ", 23) + "art"
	assert.NoError(t, ValidateFingerprint(valid))
	assert.Error(t, ValidateFingerprint(""))
	assert.Error(t, ValidateFingerprint("abandon abandon"))
	assert.Error(t, ValidateFingerprint(strings.Repeat("abandon ", 24)), "bad checksum")
}

func TestValidateKeyword(t *testing.T) {
	assert.NoError(t, ValidateKeyword("Silicon-Auth-Hash"))
	assert.Error(t, ValidateKeyword(""))
	assert.Error(t, ValidateKeyword(" leading"))
	assert.Error(t, ValidateKeyword("double  space"))
	assert.Error(t, ValidateKeyword(strings.Repeat("k", 80)))
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "a\nb\nc", SanitizeInput("  a \r\n b\r c  "))
	assert.Equal(t, "", SanitizeInput(" \t "))
}
