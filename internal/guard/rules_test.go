package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Hi Andrew,\n\nSaw v2.1 shipped! Nice work. Worth a chat?\n--\nSam")
	assert.Equal(t, []string{"Hi Andrew,", "Saw v2.1 shipped!", "Nice work.", "Worth a chat?", "Sam"}, got)

	assert.Empty(t, splitSentences(""))
	assert.Empty(t, splitSentences("  \n ... \n"))
}

func TestGenericDensity(t *testing.T) {
	d, generic, total := genericDensity("We are a game-changer. Truly holistic. Carriers love it.", defaultGenericPhrases)
	assert.Equal(t, 2, generic)
	assert.Equal(t, 3, total)
	assert.InDelta(t, 2.0/3.0, d, 1e-9)

	d, _, total = genericDensity("", defaultGenericPhrases)
	assert.Zero(t, d)
	assert.Zero(t, total)

	_, generic, _ = genericDensity("Let me know if you’re interested.", defaultGenericPhrases)
	assert.Equal(t, 1, generic, "curly apostrophes match the lexicon")
}

func TestOpenerPattern(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"greeting line skipped", "Hi Andrew,\nLove what you are building at Acme.", `love what you are building at`},
		{"inline greeting stripped", "Hey Andrew, big fan of the (new) launch.", `big fan of the \(new\) launch\.`},
		{"short opener ignored", "Hi Andrew,\nQuick one.", ""},
		{"no greeting", "Your Q3 numbers were impressive", `your q3 numbers were impressive`},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, openerPattern(tt.body))
		})
	}
}

func TestCompileOpener_CaseInsensitive(t *testing.T) {
	re, err := compileOpener(`given your role as`)
	assert.NoError(t, err)
	assert.True(t, re.MatchString("GIVEN YOUR ROLE AS cto"))

	re, err = compileOpener(`(?i)already flagged`)
	assert.NoError(t, err)
	assert.Equal(t, `(?i)already flagged`, re.String())
}
