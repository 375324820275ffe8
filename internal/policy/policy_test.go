package policy

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/pytrel-systems/dragon/internal/action"
)

func TestValidateActionAllows(t *testing.T) {
	ok, reasons, norm := ValidateAction(action.Action{
		ID:      "daily:x:1",
		Channel: "X",
		Type:    "Post",
		Text:    "  Shipping quietly today.\r\nReceipts attached.  ",
	})
	if !ok {
		t.Fatalf("expected action to pass, got reasons %v", reasons)
	}
	if norm.Channel != action.ChannelX || norm.Type != action.TypePost {
		t.Fatalf("expected normalized channel/type, got %q/%q", norm.Channel, norm.Type)
	}
	if norm.Text != "Shipping quietly today.\nReceipts attached." {
		t.Fatalf("unexpected sanitized text: %q", norm.Text)
	}
}

func TestValidateActionAccumulatesViolations(t *testing.T) {
	ok, reasons, _ := ValidateAction(action.Action{
		ID:      "bad",
		Channel: "myspace",
		Type:    "post",
		Text:    "   ",
	})
	if ok {
		t.Fatal("expected action to be blocked")
	}
	if !hasReason(reasons, "invalid_channel") {
		t.Fatalf("expected invalid_channel in %v", reasons)
	}
	if !hasReason(reasons, "empty") {
		t.Fatalf("expected empty in %v", reasons)
	}
}

func TestValidateActionReplyNeedsTarget(t *testing.T) {
	ok, reasons, _ := ValidateAction(action.Action{
		ID:      "x_reply:1",
		Channel: "x",
		Type:    "reply",
		Text:    "thanks for the ping",
	})
	if ok {
		t.Fatal("expected reply without target to be blocked")
	}
	if !hasReason(reasons, "missing_in_reply_to") {
		t.Fatalf("expected missing_in_reply_to in %v", reasons)
	}
}

func TestEvaluateTextPatternFamilies(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		family string
	}{
		{"finance promise", "this strategy is guaranteed to win", "finance_promise"},
		{"finance doubling", "we will double your money", "finance_promise"},
		{"ssn", "my number is 123-45-6789", "personal_data"},
		{"phone", "call 555-123-4567 now", "personal_data"},
		{"harassment", "just go die already", "harassment"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := EvaluateText(tc.text)
			if d.Allowed {
				t.Fatalf("expected %q to be blocked", tc.text)
			}
			found := false
			for _, r := range d.Reasons {
				if strings.HasPrefix(r, tc.family+":") {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected a %s reason, got %v", tc.family, d.Reasons)
			}
		})
	}
}

func TestEvaluateTextReportsEveryMatch(t *testing.T) {
	d := EvaluateText("guaranteed free money, call 555-123-4567")
	if d.Allowed {
		t.Fatal("expected text to be blocked")
	}
	if len(d.Reasons) < 3 {
		t.Fatalf("expected all violations reported, got %v", d.Reasons)
	}
}

func TestSanitizeCapsLength(t *testing.T) {
	long := strings.Repeat("a", MaxTextLength+500)
	if got := Sanitize(long); utf8.RuneCountInString(got) != MaxTextLength {
		t.Fatalf("expected %d runes, got %d", MaxTextLength, utf8.RuneCountInString(got))
	}
}

func TestSanitizeCapsInRunesNotBytes(t *testing.T) {
	text := strings.Repeat("a", MaxTextLength-1) + "🐉🐉"
	got := Sanitize(text)
	if !utf8.ValidString(got) {
		t.Fatalf("expected valid UTF-8 after truncation, got trailing bytes %q", got[len(got)-4:])
	}
	if utf8.RuneCountInString(got) != MaxTextLength {
		t.Fatalf("expected %d runes, got %d", MaxTextLength, utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "🐉") {
		t.Fatal("expected the rune at the cap to survive whole")
	}

	// Exactly at the cap stays untouched.
	exact := strings.Repeat("a", MaxTextLength-1) + "🐉"
	if Sanitize(exact) != exact {
		t.Fatal("expected text at the cap to pass through unchanged")
	}
}

func TestSanitizeKeepsMeaning(t *testing.T) {
	if got := Sanitize("line one\r\nline two"); got != "line one\nline two" {
		t.Fatalf("unexpected sanitize result: %q", got)
	}
}

func hasReason(reasons []string, want string) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}
