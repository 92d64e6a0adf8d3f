package guard

import (
	"regexp"
	"strings"
	"unicode"
)

// defaultBannedOpeners are matched case-insensitively against the
// whitespace-normalized body.
var defaultBannedOpeners = []string{
	`given your role as`,
	`i hope (this|my|the) (email |message |note )?finds you`,
	`hope you['’]?re (doing )?well`,
	`i['’]?m reaching out`,
	`i am reaching out`,
	`i wanted to reach out`,
	`i came across your (profile|company|website)`,
	`as an? (leader|expert|professional|executive) in`,
	`in today['’]?s (fast-paced|competitive|ever-changing|digital)`,
	`i noticed (that )?you['’]?re the`,
}

// defaultGenericPhrases is the lexicon GUARD-005 counts against. Entries are
// lowercase substrings.
var defaultGenericPhrases = []string{
	"game-changer", "game changer", "cutting-edge", "cutting edge",
	"revolutionize", "seamlessly", "streamline your", "unlock the power",
	"unlock your", "next level", "elevate your", "ever-evolving",
	"ever-changing", "fast-paced", "delve into", "dive deep", "synergy",
	"synergies", "best-in-class", "world-class", "innovative solution",
	"drive growth", "boost your", "empower your", "robust solution",
	"holistic", "paradigm", "win-win", "touch base", "circle back",
	"love to connect", "hop on a call", "quick call",
	"let me know if you're interested", "let me know if you are interested",
	"we can help", "companies like yours", "value proposition",
	"pain points", "at the end of the day", "thought leader",
	"i hope this finds you", "hope this email finds you", "reaching out",
}

var greetingRe = regexp.MustCompile(`(?i)^(hi|hello|hey|dear|greetings|good (morning|afternoon|evening))\b`)

// compileOpener compiles a banned-opener pattern case-insensitively.
func compileOpener(pattern string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

// splitSentences splits on line breaks and on sentence terminators followed
// by whitespace. Fragments without any letter or digit are dropped.
func splitSentences(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		start := 0
		runes := []rune(line)
		for i, r := range runes {
			if r != '.' && r != '!' && r != '?' {
				continue
			}
			if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
				continue
			}
			out = appendSentence(out, string(runes[start:i+1]))
			start = i + 1
		}
		out = appendSentence(out, string(runes[start:]))
	}
	return out
}

func appendSentence(out []string, s string) []string {
	s = strings.Join(strings.Fields(s), " ")
	if strings.IndexFunc(s, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) < 0 {
		return out
	}
	return append(out, s)
}

// genericDensity returns the fraction of sentences containing at least one
// lexicon phrase.
func genericDensity(body string, phrases []string) (density float64, generic, total int) {
	sentences := splitSentences(body)
	total = len(sentences)
	if total == 0 {
		return 0, 0, 0
	}
	for _, s := range sentences {
		lower := strings.ToLower(strings.ReplaceAll(s, "’", "'"))
		for _, p := range phrases {
			if strings.Contains(lower, p) {
				generic++
				break
			}
		}
	}
	return float64(generic) / float64(total), generic, total
}

// openerPattern derives a literal pattern from the first non-greeting
// sentence of a rejected body: its first learnedOpenerWords words, quoted.
// It returns "" when the opener is too short to be distinctive.
func openerPattern(body string) string {
	for _, s := range splitSentences(body) {
		if greetingRe.MatchString(s) {
			// "Hi Andrew," alone, or "Hi Andrew, I hope..." inline.
			i := strings.Index(s, ",")
			if i < 0 || strings.TrimSpace(s[i+1:]) == "" {
				continue
			}
			s = s[i+1:]
		}
		words := strings.Fields(strings.ToLower(s))
		if len(words) < minLearnedOpenerWords {
			return ""
		}
		if len(words) > learnedOpenerWords {
			words = words[:learnedOpenerWords]
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		return strings.Join(words, " ")
	}
	return ""
}

const (
	learnedOpenerWords    = 6
	minLearnedOpenerWords = 3
)
