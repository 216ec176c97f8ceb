// Package rubric steers the decoy toward productive engagement: it measures
// which conversational features each reply carries, picks the next
// intelligence topic to probe for, and patches replies that fall behind the
// per-conversation minimums.
package rubric

import (
	"strings"

	"github.com/nightjarlabs/nightjar/pkg/intel"
	"github.com/nightjarlabs/nightjar/pkg/patterns"
	"github.com/nightjarlabs/nightjar/pkg/sanitize"
	"github.com/nightjarlabs/nightjar/pkg/score"
	"github.com/nightjarlabs/nightjar/pkg/session"
)

// Engagement targets, to be met by roughly turn 8.
const (
	targetQuestions     = 5
	targetInvestigative = 3
	targetRedFlags      = 5
	targetElicitation   = 4
	targetByTurn        = 8
)

// questionTurns are the turns on which a lagging reply gets patched. Spaced
// so that a conversation reaching turn 8 has asked at least five questions.
var questionTurns = map[int]bool{1: true, 2: true, 3: true, 5: true, 7: true}

// Features flags which rubric-tracked traits one reply exhibits.
type Features struct {
	Question      bool
	Investigative bool
	RedFlag       bool
	Elicitation   bool
}

// CountFeatures inspects a reply for the four tracked traits.
func CountFeatures(reply string) Features {
	lowered := strings.ToLower(reply)
	return Features{
		Question:      strings.Contains(reply, "?"),
		Investigative: patterns.ContainsAny(lowered, patterns.InvestigativeWords),
		RedFlag:       patterns.ContainsAny(lowered, patterns.RedFlagWords),
		Elicitation:   patterns.ContainsAny(lowered, patterns.ElicitationWords),
	}
}

// Apply folds the features into the session's running counters.
func (f Features) Apply(c *session.Counters) {
	if f.Question {
		c.Questions++
	}
	if f.Investigative {
		c.Investigative++
	}
	if f.RedFlag {
		c.RedFlags++
	}
	if f.Elicitation {
		c.Elicitation++
	}
}

// Deficits flags which targets are still unmet. All flags go false past the
// target turn so late-conversation replies are not steered anymore.
type Deficits struct {
	Question      bool
	Investigative bool
	RedFlag       bool
	Elicitation   bool
}

// DeficitsFor reports the unmet targets at the given turn.
func DeficitsFor(turn int, c session.Counters) Deficits {
	if turn > targetByTurn {
		return Deficits{}
	}
	return Deficits{
		Question:      c.Questions < targetQuestions,
		Investigative: c.Investigative < targetInvestigative,
		RedFlag:       c.RedFlags < targetRedFlags,
		Elicitation:   c.Elicitation < targetElicitation,
	}
}

// topic maps a probe keyword to its human-phrased label and the intelligence
// field whose emptiness makes it worth asking about.
type topic struct {
	key   string
	label string
	have  func(intel.Intelligence) []string
}

var (
	topicReference = topic{"reference", "reference/ticket number", func(x intel.Intelligence) []string { return x.ReferenceIDs }}
	topicLink      = topic{"link", "verification link", func(x intel.Intelligence) []string { return x.Links }}
	topicEmail     = topic{"email", "official email address", func(x intel.Intelligence) []string { return x.EmailAddresses }}
	topicPhone     = topic{"phone", "official phone number", func(x intel.Intelligence) []string { return x.PhoneNumbers }}
	topicHandle    = topic{"upi", "UPI ID", func(x intel.Intelligence) []string { return x.PaymentHandles }}
	topicAccount   = topic{"account", "bank account number", func(x intel.Intelligence) []string { return x.BankAccounts }}
)

// FallbackHint is returned once every topic is either asked or harvested.
const FallbackHint = "how to proceed"

// ChooseHint picks the next probe topic: the first preferred topic not yet
// asked and not yet harvested. The chosen key is recorded in
// sess.AskedTopics, so this must run inside a store Update.
//
// The preference order shifts with the incoming message: verification and
// link talk pulls link probes forward, payment talk pulls handle and account
// probes forward.
func ChooseHint(sess *session.Session, incomingText string, harvested intel.Intelligence) string {
	lowered := patterns.Normalize(incomingText)

	order := []topic{topicReference, topicLink, topicEmail, topicPhone, topicHandle, topicAccount}
	if strings.Contains(lowered, "kyc") || strings.Contains(lowered, "verify") || strings.Contains(lowered, "link") {
		order = []topic{topicLink, topicEmail, topicReference, topicPhone, topicHandle, topicAccount}
	}
	if strings.Contains(lowered, "upi") || score.PaymentTargeted(incomingText) {
		order = []topic{topicHandle, topicAccount, topicReference, topicPhone, topicEmail, topicLink}
	}

	for _, t := range order {
		if sess.AskedTopics[t.key] {
			continue
		}
		if len(t.have(harvested)) > 0 {
			continue
		}
		sess.AskedTopics[t.key] = true
		return t.label
	}
	return FallbackHint
}

// Patch strings for lagging replies.
const (
	patchQuestion      = "What's the reference/ticket number?"
	patchInvestigative = "I'm trying to verify this officially."
	patchReplaceReply  = "I'm trying to verify this officially - what's the reference/ticket number?"
)

// investigativeCore is the subset of investigative vocabulary the patcher
// checks for; reference/ticket/case mentions alone do not satisfy it.
var investigativeCore = []string{"verify", "official", "confirm"}

// EnforceMinimums patches the reply on designated question turns when the
// session is behind on questions or investigative wording, then re-sanitizes.
// Off those turns the reply passes through sanitization unchanged.
func EnforceMinimums(turn int, reply string, c session.Counters) string {
	r := strings.TrimSpace(reply)
	if questionTurns[turn] {
		if c.Questions < targetQuestions && !strings.Contains(r, "?") {
			r = strings.TrimRight(r, ".") + ". " + patchQuestion
		}
		if c.Investigative < targetInvestigative && !patterns.ContainsAny(strings.ToLower(r), investigativeCore) {
			if strings.Contains(r, "?") {
				r = patchReplaceReply
			} else {
				r = strings.TrimRight(r, ".") + " " + patchInvestigative
			}
		}
	}
	return sanitize.Sanitize(r)
}
