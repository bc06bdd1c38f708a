package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/Davincible/siliconsig/pkg/fingerprint"
	"github.com/Davincible/siliconsig/pkg/pow"
	"github.com/Davincible/siliconsig/pkg/signature"
)

var (
	hexPattern     = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	keywordPattern = regexp.MustCompile(`^[\x20-\x7e]{1,79}$`)
)

const MaxRepeats = 16

func ValidateHex(input string) error {
	input = strings.TrimSpace(input)
	if len(input) == 0 {
		return fmt.Errorf("hex string cannot be empty")
	}

	if len(input)%2 != 0 {
		return fmt.Errorf("hex string must have even length")
	}

	if !hexPattern.MatchString(input) {
		return fmt.Errorf("invalid hex characters")
	}

	return nil
}

// ValidateHash checks a 64 character content hash
func ValidateHash(hash string) error {
	hash = strings.TrimSpace(hash)
	if err := ValidateHex(hash); err != nil {
		return fmt.Errorf("invalid hash: %w", err)
	}

	if len(hash) != 64 {
		return fmt.Errorf("hash must be 64 hex characters (got %d)", len(hash))
	}

	return nil
}

// ValidateWord checks a 32-bit header word written as 8 hex characters,
// optionally prefixed with 0x
func ValidateWord(name, word string) error {
	word = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(word)), "0x")
	if word == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}

	if len(word) > 8 {
		return fmt.Errorf("%s must be at most 8 hex characters (got %d)", name, len(word))
	}

	if !hexPattern.MatchString(word) {
		return fmt.Errorf("%s contains invalid hex characters", name)
	}

	return nil
}

func ValidateStatus(status string) error {
	if err := signature.ValidateStatus(status); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}
	return nil
}

// ValidateFraction checks a damage fraction
func ValidateFraction(fraction float64) error {
	if math.IsNaN(fraction) || fraction < 0 || fraction > 1 {
		return fmt.Errorf("fraction must be between 0 and 1 (got %v)", fraction)
	}
	return nil
}

func ValidateRepeats(repeats int) error {
	if repeats < 1 || repeats > MaxRepeats {
		return fmt.Errorf("repeats must be between 1 and %d (got %d)", MaxRepeats, repeats)
	}
	return nil
}

// ValidateBits checks a compact target given as a hex word
func ValidateBits(bits string) error {
	if err := ValidateWord("bits", bits); err != nil {
		return err
	}

	v, err := signature.ParseWord(bits)
	if err != nil {
		return fmt.Errorf("invalid bits: %w", err)
	}

	target, err := pow.TargetFromBits(v)
	if err != nil {
		return fmt.Errorf("invalid bits: %w", err)
	}
	if norm := pow.BitsFromTarget(target); norm != v {
		return fmt.Errorf("invalid bits: %08x is not in normalized compact form (use %08x)", v, norm)
	}

	return nil
}

// ValidateFingerprint checks a 24 word proof fingerprint
func ValidateFingerprint(words string) error {
	words = strings.TrimSpace(words)
	if words == "" {
		return fmt.Errorf("fingerprint cannot be empty")
	}

	wordList := strings.Fields(words)
	if len(wordList) != fingerprint.WordCount {
		return fmt.Errorf("fingerprint must have %d words (got %d)", fingerprint.WordCount, len(wordList))
	}

	if _, err := fingerprint.FromWords(words); err != nil {
		return fmt.Errorf("invalid fingerprint: %w", err)
	}

	return nil
}

// ValidateKeyword checks a PNG text chunk keyword
func ValidateKeyword(key string) error {
	if !keywordPattern.MatchString(key) {
		return fmt.Errorf("keyword must be 1-79 printable characters")
	}

	if strings.HasPrefix(key, " ") || strings.HasSuffix(key, " ") || strings.Contains(key, "  ") {
		return fmt.Errorf("keyword has leading, trailing or repeated spaces")
	}

	return nil
}

func SanitizeInput(input string) string {
	input = strings.TrimSpace(input)

	input = strings.ReplaceAll(input, "\r\n", "\n")
	input = strings.ReplaceAll(input, "\r", "\n")

	lines := strings.Split(input, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}

	return strings.Join(lines, "\n")
}
