// Package policy implements the hard content gates. Validation is pure and
// deterministic: every check runs and every violation is reported, so the
// ledger records the full set of reasons an action was blocked rather than the
// first one encountered.
package policy

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pytrel-systems/dragon/internal/action"
)

// MaxTextLength is the hard cap, in runes, applied during sanitization.
const MaxTextLength = 2000

// Decision is the result of evaluating a piece of text.
type Decision struct {
	Allowed       bool
	Reasons       []string
	SanitizedText string
}

type patternFamily struct {
	code       string
	lowercased bool
	patterns   []*regexp.Regexp
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

var families = []patternFamily{
	{
		code:       "finance_promise",
		lowercased: true,
		patterns: compileAll(
			`\bguarantee(d)?\b`,
			`\bfree money\b`,
			`\bcan't lose\b`,
			`\b100%\b`,
			`\bdouble your\b`,
			`\bto the moon\b`,
		),
	},
	{
		code: "personal_data",
		patterns: compileAll(
			`\b\d{3}-\d{2}-\d{4}\b`,
			`\b\d{10}\b`,
			`\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`,
		),
	},
	{
		code:       "harassment",
		lowercased: true,
		patterns: compileAll(
			`\bkill yourself\b`,
			`\bgo die\b`,
			`\bstupid (idiot|moron)\b`,
		),
	},
}

// EvaluateText checks text against every pattern family and returns the
// accumulated violations alongside the sanitized form.
func EvaluateText(text string) Decision {
	t := strings.TrimSpace(text)
	if t == "" {
		return Decision{Allowed: false, Reasons: []string{"empty"}, SanitizedText: ""}
	}

	lowered := strings.ToLower(t)
	var reasons []string
	for _, fam := range families {
		subject := t
		if fam.lowercased {
			subject = lowered
		}
		for _, pat := range fam.patterns {
			if pat.MatchString(subject) {
				reasons = append(reasons, fam.code+":"+pat.String())
			}
		}
	}

	return Decision{
		Allowed:       len(reasons) == 0,
		Reasons:       reasons,
		SanitizedText: Sanitize(t),
	}
}

// Sanitize normalizes line endings, trims surrounding whitespace and caps the
// length at MaxTextLength runes, never splitting a multi-byte rune. It never
// rewrites meaning.
func Sanitize(text string) string {
	s := strings.ReplaceAll(text, "\r\n", "\n")
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > MaxTextLength {
		runes := []rune(s)
		s = string(runes[:MaxTextLength])
	}
	return s
}

// ValidateAction validates a structured action. It always returns the
// normalized action (lower-cased channel/type, sanitized text) so callers can
// log exactly what was attempted even when the action is rejected.
func ValidateAction(a action.Action) (bool, []string, action.Action) {
	var reasons []string

	normalized := a
	normalized.Type = action.Type(strings.ToLower(strings.TrimSpace(string(a.Type))))
	normalized.Channel = action.Channel(strings.ToLower(strings.TrimSpace(string(a.Channel))))

	if !normalized.Type.Valid() {
		reasons = append(reasons, "invalid_type")
	}
	if !normalized.Channel.Known() {
		reasons = append(reasons, "invalid_channel")
	}

	decision := EvaluateText(a.Text)
	if !decision.Allowed {
		reasons = append(reasons, decision.Reasons...)
	}
	normalized.Text = decision.SanitizedText

	if normalized.Type == action.TypeReply && strings.TrimSpace(normalized.InReplyTo) == "" {
		reasons = append(reasons, "missing_in_reply_to")
	}

	return len(reasons) == 0, reasons, normalized
}
