package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"hello   world", "hello world"},
		{"\thello\n\nworld \r\n", "hello world"},
		{"Keep Case", "Keep Case"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "input %q", tt.in)
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("Quick question", "Hi Andrew,\n\nSaw your team is hiring.")
	b := Fingerprint("Quick question", "Hi Andrew,\n\nSaw your team is hiring.")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprint_WhitespaceInsensitive(t *testing.T) {
	a := Fingerprint("Quick  question ", "Hi Andrew,\n\nSaw your team   is hiring.")
	b := Fingerprint("Quick question", "Hi Andrew, Saw your team is hiring.")
	assert.Equal(t, a, b)
}

func TestFingerprint_CaseSensitive(t *testing.T) {
	a := Fingerprint("Quick question", "Hi Andrew")
	b := Fingerprint("Quick question", "hi andrew")
	assert.NotEqual(t, a, b)
}

func TestFingerprint_OneCharacterDiffers(t *testing.T) {
	a := Fingerprint("Quick question", "Saw your team is hiring.")
	b := Fingerprint("Quick question", "Saw your team is hiring!")
	assert.NotEqual(t, a, b)
}

func TestFingerprint_OnlyBodyPrefixCounts(t *testing.T) {
	prefix := strings.Repeat("a", BodyPrefixChars)
	a := Fingerprint("s", prefix+"tail one")
	b := Fingerprint("s", prefix+"tail two")
	assert.Equal(t, a, b)

	// Runes, not bytes, bound the prefix.
	multi := strings.Repeat("é", BodyPrefixChars)
	assert.Equal(t, Fingerprint("s", multi+"x"), Fingerprint("s", multi+"y"))
	assert.NotEqual(t, Fingerprint("s", multi[:len(multi)-2]+"x"), Fingerprint("s", multi[:len(multi)-2]+"y"))
}

func TestFingerprint_SubjectParticipates(t *testing.T) {
	assert.NotEqual(t, Fingerprint("one", "body"), Fingerprint("two", "body"))
}

func TestFingerprint_EmptyInput(t *testing.T) {
	// sha256("")
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Fingerprint("", ""))
	assert.Equal(t, Fingerprint("", ""), Fingerprint("  ", "\n\t"))
}

func TestRecipientKey_NormalizesEmail(t *testing.T) {
	assert.Equal(t, RecipientKey("andrew@example.com"), RecipientKey("  Andrew@Example.COM "))
	assert.NotEqual(t, RecipientKey("andrew@example.com"), RecipientKey("celia@example.com"))
	assert.NotContains(t, RecipientKey("andrew@example.com"), "andrew")
}
