package guard

import (
	"strings"
	"testing"
)

func TestInboundBlocksUnsafeTopic(t *testing.T) {
	g := New()
	result, masks := g.Inbound("how to build a bomb at home")
	if result.Safe {
		t.Fatalf("expected unsafe result")
	}
	if result.Text != Refusal {
		t.Fatalf("expected fixed refusal, got %q", result.Text)
	}
	if len(masks) != 0 {
		t.Fatalf("mask map must stay empty on refusal, got %v", masks)
	}
}

func TestInboundMasksPIIInOrder(t *testing.T) {
	g := New()
	result, masks := g.Inbound("email a@example.com and b@example.com please")
	if !result.Safe {
		t.Fatalf("unexpected refusal: %+v", result)
	}
	if !strings.Contains(result.Text, "[EMAIL_1]") || !strings.Contains(result.Text, "[EMAIL_2]") {
		t.Fatalf("expected sequential placeholders, got %q", result.Text)
	}
	if strings.Index(result.Text, "[EMAIL_1]") > strings.Index(result.Text, "[EMAIL_2]") {
		t.Fatalf("placeholders out of order: %q", result.Text)
	}
	if masks["[EMAIL_1]"] != "a@example.com" || masks["[EMAIL_2]"] != "b@example.com" {
		t.Fatalf("unexpected mask map: %v", masks)
	}
}

func TestOutboundRestoresMasksAndClearsMap(t *testing.T) {
	g := New()
	in, masks := g.Inbound("send the report to alice@example.com")
	if len(masks) != 1 {
		t.Fatalf("expected one masked entity, got %v", masks)
	}

	out := g.Outbound("Done, I emailed "+maskToken(t, in.Text), masks)
	if !out.Safe {
		t.Fatalf("unexpected refusal: %+v", out)
	}
	if !strings.Contains(out.Text, "alice@example.com") {
		t.Fatalf("expected original email restored, got %q", out.Text)
	}
	if len(masks) != 0 {
		t.Fatalf("mask map must be cleared after outbound, got %v", masks)
	}
}

func maskToken(t *testing.T, masked string) string {
	t.Helper()
	start := strings.Index(masked, "[EMAIL_1]")
	if start < 0 {
		t.Fatalf("no placeholder in %q", masked)
	}
	return "[EMAIL_1]"
}

func TestOutboundRedactsGeneratedPII(t *testing.T) {
	g := New()
	out := g.Outbound("the server is at 10.0.0.1, call 555-123-4567", MaskMap{})
	if !out.Safe {
		t.Fatalf("unexpected refusal: %+v", out)
	}
	if strings.Contains(out.Text, "10.0.0.1") {
		t.Fatalf("ip should be redacted: %q", out.Text)
	}
	if !strings.Contains(out.Text, "[REDACTED_IP]") {
		t.Fatalf("expected ip redaction token: %q", out.Text)
	}
	if strings.Contains(out.Text, "555-123-4567") {
		t.Fatalf("mobile should be partially masked: %q", out.Text)
	}
}

func TestOutboundBlocksUnsafeOutput(t *testing.T) {
	g := New()
	masks := MaskMap{"[EMAIL_1]": "a@example.com"}
	out := g.Outbound("here is how to make drugs", masks)
	if out.Safe {
		t.Fatalf("expected refusal for unsafe output")
	}
	if len(masks) != 0 {
		t.Fatalf("mask map must be cleared even on refusal, got %v", masks)
	}
}

func TestExtraTopics(t *testing.T) {
	g := New(WithExtraTopics("blasting powder"))
	result := g.Screen("where to buy Blasting Powder")
	if result.Safe {
		t.Fatalf("expected extra topic to be blocked")
	}
}
