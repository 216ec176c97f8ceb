package patterns

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	phoneSep      = regexp.MustCompile(`[\s-]+`)
	refSep        = regexp.MustCompile(`[\s:#]+`)
	hyphenRun     = regexp.MustCompile(`-{2,}`)
)

// DefaultCountryCode is prefixed to bare 10-digit mobile numbers.
const DefaultCountryCode = "91"

// Normalize collapses whitespace and lower-cases text for matching purposes.
// Canonical extracted values are normalized per-field instead (NormalizePhone,
// CleanURL, CanonicalRef).
func Normalize(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(strings.ToLower(text), " "))
}

// CleanURL strips the trailing punctuation that typically clings to links
// pasted into chat ("check http://x.test/a.").
func CleanURL(u string) string {
	return strings.TrimRight(u, `).,;!?:"'`)
}

// NormalizePhone canonicalizes a matched phone to +<countrycode><digits>.
// Bare 10-digit forms get the default country code; 12-digit forms already
// carrying it just gain the plus.
func NormalizePhone(p string) string {
	x := phoneSep.ReplaceAllString(p, "")
	switch {
	case strings.HasPrefix(x, "+"):
		return x
	case strings.HasPrefix(x, DefaultCountryCode) && len(x) == 12:
		return "+" + x
	case len(x) == 10:
		return "+" + DefaultCountryCode + x
	}
	return x
}

// CanonicalRef upper-cases a reference token and collapses separator noise
// ("case : 1234", "TICKET#9931") into the single-hyphen canonical form
// ("CASE-1234", "TICKET-9931").
func CanonicalRef(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = refSep.ReplaceAllString(s, "-")
	s = hyphenRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// HasDigit reports whether s contains at least one ASCII digit.
func HasDigit(s string) bool {
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			return true
		}
	}
	return false
}
