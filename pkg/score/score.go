// Package score converts a single inbound message into a non-negative scam
// risk contribution. The score is informational: it feeds confidence and
// fallback heuristics, it never gates the conversation.
package score

import (
	"strings"

	"github.com/nightjarlabs/nightjar/pkg/patterns"
)

// Weights holds the additive rule weights. All rules are independent and may
// all fire on a single message.
type Weights struct {
	SecretRequest  int `yaml:"secret_request"`  // share/send/tell OTP or PIN/CVV/password
	SecretWarning  int `yaml:"secret_warning"`  // negative offset when the warning twin is present
	ClickLink      int `yaml:"click_link"`      // click/open/login/verify the link
	PaymentRequest int `yaml:"payment_request"` // pay/transfer/send with contextual evidence
	UrgencyWord    int `yaml:"urgency_word"`    // per distinct pressure keyword
	URLPresent     int `yaml:"url_present"`
	PhonePresent   int `yaml:"phone_present"`
	HandlePresent  int `yaml:"handle_present"`
	NumericIDToken int `yaml:"numeric_id_token"`
}

// DefaultWeights returns the calibrated rule weights.
func DefaultWeights() Weights {
	return Weights{
		SecretRequest:  6,
		SecretWarning:  -4,
		ClickLink:      3,
		PaymentRequest: 3,
		UrgencyWord:    1,
		URLPresent:     2,
		PhonePresent:   1,
		HandlePresent:  2,
		NumericIDToken: 1,
	}
}

// Scorer evaluates messages against the weighted signal rules.
type Scorer struct {
	weights Weights
}

// New creates a Scorer with the given weights.
func New(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// NewDefault creates a Scorer with DefaultWeights.
func NewDefault() *Scorer {
	return New(DefaultWeights())
}

// PaymentTargeted reports whether text carries a payment imperative with
// contextual evidence: a pay-word plus a payment handle, URL, 9-18 digit
// numeric token, or "to upi/account/a-c/bank" phrasing.
func PaymentTargeted(text string) bool {
	if !patterns.PayWord.MatchString(text) {
		return false
	}
	if patterns.PaymentHandle.MatchString(text) ||
		patterns.URL.MatchString(text) ||
		len(patterns.FindNumericIDs(text)) > 0 {
		return true
	}
	return patterns.PayContext.MatchString(patterns.Normalize(text))
}

// Score returns the message's risk contribution, clamped to >= 0. Warning
// phrases cancel the matching secret-request rule and contribute a negative
// offset, but the floor keeps a warning-only message from going negative.
func (s *Scorer) Score(text string) int {
	if text == "" {
		return 0
	}
	lowered := patterns.Normalize(text)
	w := s.weights
	total := 0

	otpWarned := patterns.OTPWarning.MatchString(text)
	pinWarned := patterns.PINWarning.MatchString(text)

	if patterns.OTPRequest.MatchString(text) && !otpWarned {
		total += w.SecretRequest
	}
	if patterns.PINRequest.MatchString(text) && !pinWarned {
		total += w.SecretRequest
	}
	if patterns.ClickLink.MatchString(text) {
		total += w.ClickLink
	}
	if PaymentTargeted(text) {
		total += w.PaymentRequest
	}

	for _, kw := range patterns.UrgencyWords {
		if strings.Contains(lowered, kw) {
			total += w.UrgencyWord
		}
	}

	if patterns.URL.MatchString(text) {
		total += w.URLPresent
	}
	if len(patterns.FindPhones(text)) > 0 {
		total += w.PhonePresent
	}
	if patterns.PaymentHandle.MatchString(text) {
		total += w.HandlePresent
	}
	if len(patterns.FindNumericIDs(text)) > 0 {
		total += w.NumericIDToken
	}

	if otpWarned {
		total += w.SecretWarning
	}
	if pinWarned {
		total += w.SecretWarning
	}

	if total < 0 {
		return 0
	}
	return total
}
