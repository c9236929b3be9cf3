package ingest

import (
	"regexp"
	"strings"
	"unicode"
)

// sirenPattern finds the first 9-digit run, optionally prefixed by "SIREN".
var sirenPattern = regexp.MustCompile(`(?:SIREN\s+)?(\d{9})`)

// ExtractRegistration returns the first 9-digit registration number in text.
func ExtractRegistration(text string) (string, bool) {
	m := sirenPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ResolveName returns the run of upper-case tokens right before "(SIREN",
// e.g. "SOCIETE DURAND SAS" in "... pour SOCIETE DURAND SAS (SIREN 512345678)".
func ResolveName(text string) (string, bool) {
	idx := strings.Index(text, "(SIREN")
	if idx <= 0 {
		return "", false
	}
	tokens := strings.Fields(text[:idx])
	start := len(tokens)
	for start > 0 && isUpperToken(tokens[start-1]) {
		start--
	}
	if start == len(tokens) {
		return "", false
	}
	return strings.Join(tokens[start:], " "), true
}

func isUpperToken(tok string) bool {
	hasLetter := false
	for _, r := range tok {
		switch {
		case unicode.IsLetter(r):
			if !unicode.IsUpper(r) {
				return false
			}
			hasLetter = true
		case unicode.IsDigit(r), r == '-', r == '&', r == '.', r == '\'':
		default:
			return false
		}
	}
	return hasLetter
}
