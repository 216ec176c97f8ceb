package patterns

import "regexp"

// phoneCandidate matches region-biased 10-digit mobiles with an optional
// country-code prefix. Digit flanking (the original lookaround rules) is
// verified by FindPhones, since RE2 has no lookbehind/lookahead.
var phoneCandidate = regexp.MustCompile(`\+?(?:91[\s-]?)?[6-9][0-9]{9}`)

// FindPhones returns every phone match in text that is not embedded in a
// longer digit run. Matches are returned raw; callers normalize with
// NormalizePhone.
func FindPhones(text string) []string {
	var out []string
	offset := 0
	for offset < len(text) {
		loc := phoneCandidate.FindStringIndex(text[offset:])
		if loc == nil {
			break
		}
		start, end := offset+loc[0], offset+loc[1]
		if !digitAt(text, start-1) && !digitAt(text, end) {
			out = append(out, text[start:end])
			offset = end
			continue
		}
		// Flanked by digits: this is a slice of a longer number, not a
		// phone. Resume one rune past the failed start so shorter
		// alternatives still get a chance.
		offset = start + 1
	}
	return out
}

// FindNumericIDs returns every maximal contiguous digit run of length 9-18.
// Runs outside that band are discarded entirely, matching the original
// "not flanked by other digits" rule: a 19-digit run is no account number.
func FindNumericIDs(text string) []string {
	var out []string
	i := 0
	for i < len(text) {
		if !digitAt(text, i) {
			i++
			continue
		}
		j := i
		for j < len(text) && digitAt(text, j) {
			j++
		}
		if n := j - i; n >= 9 && n <= 18 {
			out = append(out, text[i:j])
		}
		i = j
	}
	return out
}

func digitAt(s string, i int) bool {
	return i >= 0 && i < len(s) && s[i] >= '0' && s[i] <= '9'
}
