// Package redact masks personally identifiable information in mail
// content before it is sent to the LLM provider. Masking is best-effort:
// a subject or body that cannot be processed passes through unchanged
// rather than blocking classification.
package redact

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// local numbers with optional country code and separators, 9+ digits
	phonePattern = regexp.MustCompile(`(\+?\d[\d\s\-()]{7,}\d)`)

	// South African ID number: YYMMDD SSSS C A Z with valid date part
	zaIDPattern = regexp.MustCompile(`\b\d{2}(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])\d{4}[01][89]\d\b`)
)

// Masker replaces detected entities with placeholder tokens. Addresses
// at allow-listed domains (the institution's own) are left intact so the
// classifier can still see which desk a thread involves.
type Masker struct {
	allowedDomains []string
}

// Result is the outcome of one masking pass.
type Result struct {
	Subject       string
	Body          string
	EntitiesFound int
}

func NewMasker(allowedDomains []string) *Masker {
	lowered := make([]string, len(allowedDomains))
	for i, d := range allowedDomains {
		lowered[i] = strings.ToLower(d)
	}
	return &Masker{allowedDomains: lowered}
}

// DefaultMasker allows the institutional mail domains through.
func DefaultMasker() *Masker {
	return NewMasker([]string{"@regent.ac.za", "@myregent.ac.za"})
}

// Mask redacts emails, phone numbers and ZA ID numbers from subject and
// body.
func (m *Masker) Mask(subject, body string) Result {
	count := 0

	maskText := func(text string) string {
		text = zaIDPattern.ReplaceAllStringFunc(text, func(string) string {
			count++
			return "<ZA_ID_NUMBER>"
		})
		text = emailPattern.ReplaceAllStringFunc(text, func(match string) string {
			if m.allowed(match) {
				return match
			}
			count++
			return "<EMAIL_ADDRESS>"
		})
		text = phonePattern.ReplaceAllStringFunc(text, func(match string) string {
			// long digit runs without separators are more likely
			// student or reference numbers; require at least one
			// separator or a leading +
			if !strings.ContainsAny(match, "+ -()") {
				return match
			}
			count++
			return "<PHONE_NUMBER>"
		})
		return text
	}

	return Result{
		Subject:       maskText(subject),
		Body:          maskText(body),
		EntitiesFound: count,
	}
}

func (m *Masker) allowed(address string) bool {
	lower := strings.ToLower(address)
	for _, d := range m.allowedDomains {
		if strings.HasSuffix(lower, d) {
			return true
		}
	}
	return false
}
