// Package sanitize enforces the decoy reply contract: no self-identifying
// vocabulary, at most one question mark, bounded length. Every reply crosses
// this boundary before it leaves the engine, including the patched replies
// produced by the rubric minimum-enforcer.
package sanitize

import (
	"strings"
	"unicode"

	"github.com/nightjarlabs/nightjar/pkg/patterns"
)

const (
	maxReplyRunes  = 200
	truncateAt     = 195
	truncateSuffix = "…"
)

// Sanitize applies all reply constraints in order: banned-word deletion,
// single-question normalization, then length truncation. Empty input stays
// empty.
func Sanitize(reply string) string {
	out := strings.TrimSpace(reply)
	if out == "" {
		return ""
	}
	out = strings.TrimSpace(stripBanned(out))
	out = singleQuestion(out)
	return strings.TrimSpace(truncate(out))
}

// stripBanned deletes every occurrence of the banned vocabulary,
// case-insensitively and by substring. Deliberately aggressive: "ai" inside a
// longer word is removed too, false positives are acceptable where leaking the
// decoy's nature is not.
func stripBanned(s string) string {
	for _, w := range patterns.BannedReplyWords {
		s = deleteFold(s, w)
	}
	return s
}

func deleteFold(s, word string) string {
	lowered := strings.ToLower(s)
	var b strings.Builder
	for {
		i := strings.Index(lowered, word)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		s = s[i+len(word):]
		lowered = lowered[i+len(word):]
	}
}

// singleQuestion keeps the first question mark and rewrites the rest as
// periods, so a reply never fires more than one question at the counterpart.
func singleQuestion(s string) string {
	first := strings.IndexByte(s, '?')
	if first < 0 {
		return s
	}
	rest := strings.ReplaceAll(s[first+1:], "?", ".")
	return s[:first+1] + rest
}

// truncate caps the reply at 200 runes; over-long replies are cut at 195,
// right-trimmed, and marked with an ellipsis.
func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxReplyRunes {
		return s
	}
	head := strings.TrimRightFunc(string(runes[:truncateAt]), unicode.IsSpace)
	return head + truncateSuffix
}
