// Package intel turns accumulated conversation text into a deduplicated,
// disambiguated set of fraud artifacts. Extraction is a pure function of the
// input text: idempotent, side-effect free, deterministic (all output slices
// are sorted).
package intel

import (
	"sort"
	"strconv"
	"strings"

	"github.com/nightjarlabs/nightjar/pkg/patterns"
)

// Intelligence is the extracted artifact set for a conversation. Field names
// mirror the report wire format.
type Intelligence struct {
	PhoneNumbers   []string `json:"phoneNumbers"`
	BankAccounts   []string `json:"bankAccounts"`
	PaymentHandles []string `json:"upiIds"`
	Links          []string `json:"phishingLinks"`
	EmailAddresses []string `json:"emailAddresses"`
	CaseIDs        []string `json:"caseIds"`
	PolicyNumbers  []string `json:"policyNumbers"`
	OrderNumbers   []string `json:"orderNumbers"`
	ReferenceIDs   []string `json:"referenceIds"`
}

// Millisecond-epoch band treated as timestamp noise rather than account
// numbers: 2001-09-09 through 2039-09-17 in epoch-millis.
const (
	epochMillisMin = 1_000_000_000_000
	epochMillisMax = 2_200_000_000_000
)

// Extract runs the full candidate pipeline over text. Disambiguation order
// matters: phones are resolved before numeric IDs, emails before payment
// handles, so that a token never lands in two mutually-exclusive buckets.
func Extract(text string) Intelligence {
	links := extractLinks(text)
	emails := extractEmails(text)
	phones := extractPhones(text)
	handles := extractHandles(text, emails)
	accounts := extractAccounts(text, phones)
	refs := extractReferenceIDs(text)

	out := Intelligence{
		PhoneNumbers:   phones,
		BankAccounts:   accounts,
		PaymentHandles: handles,
		Links:          links,
		EmailAddresses: emails,
		ReferenceIDs:   refs,
	}
	out.CaseIDs, out.PolicyNumbers, out.OrderNumbers = splitReferenceIDs(refs)
	return out
}

// JoinHistory concatenates message texts in chronological order, the exact
// text set Extract is defined over.
func JoinHistory(texts []string) string {
	var nonEmpty []string
	for _, t := range texts {
		if t != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	return strings.Join(nonEmpty, " ")
}

// HighValueCount returns how many of the five strong-evidence categories
// (links, emails, payment handles, bank accounts, phones) are non-empty.
func HighValueCount(x Intelligence) int {
	n := 0
	for _, set := range [][]string{x.Links, x.EmailAddresses, x.PaymentHandles, x.BankAccounts, x.PhoneNumbers} {
		if len(set) > 0 {
			n++
		}
	}
	return n
}

func extractLinks(text string) []string {
	seen := map[string]struct{}{}
	for _, u := range patterns.URL.FindAllString(text, -1) {
		seen[patterns.CleanURL(u)] = struct{}{}
	}
	return sorted(seen)
}

func extractEmails(text string) []string {
	seen := map[string]struct{}{}
	for _, e := range patterns.Email.FindAllString(text, -1) {
		seen[e] = struct{}{}
	}
	return sorted(seen)
}

func extractPhones(text string) []string {
	seen := map[string]struct{}{}
	for _, p := range patterns.FindPhones(text) {
		seen[patterns.NormalizePhone(p)] = struct{}{}
	}
	return sorted(seen)
}

// extractHandles keeps local@psp tokens that are not emails. A handle whose
// "handle." form prefixes a detected email is a truncated capture of that
// email (support@fakebank vs support@fakebank.com) and is dropped.
func extractHandles(text string, emails []string) []string {
	seen := map[string]struct{}{}
candidates:
	for _, h := range patterns.PaymentHandle.FindAllString(text, -1) {
		if isFullEmail(h) {
			continue
		}
		domain := h[strings.LastIndex(h, "@")+1:]
		if strings.Contains(domain, ".") {
			continue
		}
		truncated := strings.ToLower(h) + "."
		for _, e := range emails {
			if strings.HasPrefix(strings.ToLower(e), truncated) {
				continue candidates
			}
		}
		seen[h] = struct{}{}
	}
	return sorted(seen)
}

func isFullEmail(token string) bool {
	m := patterns.Email.FindString(token)
	return m == token
}

// extractAccounts keeps 9-18 digit runs that are neither phone echoes (same
// trailing 10 digits as a detected phone) nor epoch-millisecond timestamps.
func extractAccounts(text string, phones []string) []string {
	phoneTails := map[string]struct{}{}
	for _, p := range phones {
		if d := digitsOf(p); len(d) >= 10 {
			phoneTails[d[len(d)-10:]] = struct{}{}
		}
	}

	seen := map[string]struct{}{}
	for _, a := range patterns.FindNumericIDs(text) {
		if len(a) >= 10 {
			if _, ok := phoneTails[a[len(a)-10:]]; ok {
				continue
			}
		}
		if len(a) == 13 && looksLikeEpochMillis(a) {
			continue
		}
		seen[a] = struct{}{}
	}
	return sorted(seen)
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

func looksLikeEpochMillis(a string) bool {
	v, err := strconv.ParseInt(a, 10, 64)
	if err != nil {
		return false
	}
	return v >= epochMillisMin && v <= epochMillisMax
}

func extractReferenceIDs(text string) []string {
	seen := map[string]struct{}{}

	for _, m := range patterns.RefToken.FindAllString(text, -1) {
		s := patterns.CanonicalRef(m)
		if patterns.HasDigit(s) {
			seen[s] = struct{}{}
		}
	}
	// The narrow REF#### form is kept unconditionally.
	for _, m := range patterns.RefOnly.FindAllString(text, -1) {
		seen[patterns.CanonicalRef(m)] = struct{}{}
	}
	return sorted(seen)
}

// splitReferenceIDs buckets canonical reference tokens by keyword prefix.
// A token matching multiple prefix families lands in every matching bucket.
var (
	casePrefixes  = []string{"REF", "REFERENCE", "TICKET", "CASE", "COMPLAINT"}
	orderPrefixes = []string{"ORDER", "ORD", "AWB", "APP", "BILL", "KYC", "TXN", "TRANSACTION"}
)

func splitReferenceIDs(refs []string) (caseIDs, policyNumbers, orderNumbers []string) {
	cases := map[string]struct{}{}
	policies := map[string]struct{}{}
	orders := map[string]struct{}{}

	for _, r := range refs {
		u := strings.ToUpper(r)
		if hasAnyPrefix(u, casePrefixes) {
			cases[u] = struct{}{}
		}
		if strings.HasPrefix(u, "POLICY") {
			policies[u] = struct{}{}
		}
		if hasAnyPrefix(u, orderPrefixes) {
			orders[u] = struct{}{}
		}
	}
	return sorted(cases), sorted(policies), sorted(orders)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func sorted(set map[string]struct{}) []string {
	if len(set) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
