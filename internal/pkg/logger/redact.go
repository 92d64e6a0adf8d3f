package logger

import (
	"fmt"
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// Draft text never reaches the log verbatim; only its length does.
var contentKeys = []string{"body", "subject", "feedback"}

// RedactEmail keeps the first two characters of the local part:
// "andrew@example.com" becomes "an***@example.com".
// Local parts of two characters or fewer are masked entirely.
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***@***"
	}
	local, domain := email[:at], email[at+1:]
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}

// RedactContent replaces free text with a length marker.
func RedactContent(text string) string {
	return fmt.Sprintf("[redacted %d chars]", len(text))
}

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	for _, k := range contentKeys {
		if strings.Contains(key, k) {
			return RedactContent(val)
		}
	}
	if strings.Contains(key, "email") || strings.Contains(key, "recipient") {
		return RedactEmail(val)
	}
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
