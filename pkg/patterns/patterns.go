// Package patterns is the single source of truth for every text matcher the
// honeypot engine uses: artifact recognizers (URLs, emails, phones, payment
// handles, reference tokens), behavioral phrase detectors (secret requests,
// link-click and payment imperatives), and the fixed vocabularies consumed by
// the scorer and the rubric engine.
//
// Design principles:
// - COMPILE ONCE: all regexes are compiled at package init, not per-request
// - DRY: scorer, extractor and rubric all match through this package
// - RE2-SAFE: digit-flank rules the original recognizers expressed with
//   lookarounds are implemented as explicit index scans (see digits.go)
package patterns

import (
	"regexp"
	"strings"
)

// Recognizers for harvestable artifacts.
var (
	// URL captures scheme://-prefixed tokens; trailing punctuation is
	// stripped later by CleanURL.
	URL = regexp.MustCompile(`(?i)\bhttps?://[^\s<>()]+\b`)

	// Email requires at least one dot in the domain, which is what keeps
	// payment handles (local@psp, no dot) out of this bucket.
	Email = regexp.MustCompile(`\b[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+\b`)

	// PaymentHandle is the UPI-shaped local@psp token. The PSP segment is
	// letters only, so any dotted domain is structurally an email instead.
	PaymentHandle = regexp.MustCompile(`\b[a-zA-Z0-9.\-_]{2,64}@[a-zA-Z]{2,64}\b`)

	// RefToken matches a reference keyword followed by optional separators
	// and an alphanumeric code. Canonicalized by CanonicalRef.
	RefToken = regexp.MustCompile(`(?i)\b(?:REF|REFERENCE|TICKET|CASE|COMPLAINT|ORDER|ORD|POLICY|AWB|APP|BILL|KYC|TXN|TRANSACTION)[-\s:#]*[A-Z0-9][A-Z0-9\-]{3,24}\b`)

	// RefOnly is the narrow bare-REF form (REF1234, REF-2234) that is kept
	// even when the wider token rules would drop it.
	RefOnly = regexp.MustCompile(`(?i)\bREF[-\s:#]*\d{4,10}\b`)
)

// Behavioral phrase detectors feeding the scam scorer.
var (
	OTPRequest = regexp.MustCompile(`(?i)\b(?:share|send|tell|provide|enter)\s+otp\b`)
	PINRequest = regexp.MustCompile(`(?i)\b(?:share|send|tell|provide|enter)\s+(?:pin|cvv|password)\b`)

	// Warning phrases are the negated twins of the request phrases. A decoy
	// (or a cautious counterpart) warning about secrets must not score as a
	// secret request.
	OTPWarning = regexp.MustCompile(`(?i)\b(?:do\s*not|don't|never)\s+(?:share\s+)?otp\b`)
	PINWarning = regexp.MustCompile(`(?i)\b(?:do\s*not|don't|never)\s+(?:share\s+)?(?:pin|cvv|password)\b`)

	ClickLink = regexp.MustCompile(`(?i)\b(?:click|open|login|verify)\s+(?:the\s+)?(?:link|url|website)\b`)
	PayWord   = regexp.MustCompile(`(?i)\b(?:pay|transfer|send)\b`)

	// PayContext recognizes "to upi / to account / to a/c / to bank" phrasing
	// that marks a payment imperative even without a concrete destination.
	PayContext = regexp.MustCompile(`\bto\s+(?:upi|account|a/c|bank)\b`)
)

// UrgencyWords is the pressure vocabulary; each distinct word present in a
// message contributes one point to its scam score.
var UrgencyWords = []string{
	"urgent", "immediately", "asap", "final warning", "within",
	"blocked", "suspended", "disconnect", "penalty", "frozen",
}

// BannedReplyWords must never appear in a decoy reply; the sanitizer deletes
// them outright. Matching is by substring, deliberately aggressive.
var BannedReplyWords = []string{"honeypot", "bot", "ai", "fraud", "scam"}

// Rubric vocabularies. Presence of any word flags the corresponding reply
// feature for the session's rubric counters.
var (
	InvestigativeWords = []string{"verify", "official", "confirm", "reference", "ticket", "case"}
	RedFlagWords       = []string{"urgent", "otp", "blocked", "link", "transfer", "upi", "fee", "suspended", "frozen", "disconnect"}
	ElicitationWords   = []string{"account", "number", "email", "upi", "link", "send", "share", "id", "phone", "call"}
)

// ContainsAny reports whether lowered contains any of the given words.
// Callers are expected to pass already-lowercased text.
func ContainsAny(lowered string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lowered, w) {
			return true
		}
	}
	return false
}
