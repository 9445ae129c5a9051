package policy

import (
	"strings"
	"testing"
)

func TestShapeOutboundStripsToolNames(t *testing.T) {
	reply := "I used general_lookup to find that Neo allows 5 days per month."
	out := ShapeOutbound(reply, []string{"general_lookup", "client_data_lookup"})
	if strings.Contains(strings.ToLower(out), "general_lookup") {
		t.Fatalf("ShapeOutbound() = %q, tool name still present", out)
	}
	if !strings.Contains(out, "5 days per month") {
		t.Fatalf("ShapeOutbound() = %q, answer content lost", out)
	}
}

func TestShapeOutboundStripsSpokenToolNames(t *testing.T) {
	reply := "Let me run the client data lookup for you."
	out := ShapeOutbound(reply, []string{"client_data_lookup"})
	if strings.Contains(strings.ToLower(out), "client data lookup") {
		t.Fatalf("ShapeOutbound() = %q, spoken tool name still present", out)
	}
}

func TestShapeOutboundStripsInternalErrorText(t *testing.T) {
	reply := "Sorry, that failed: backend status 502 and context deadline exceeded."
	out := ShapeOutbound(reply, nil)
	lower := strings.ToLower(out)
	if strings.Contains(lower, "backend status") || strings.Contains(lower, "deadline") {
		t.Fatalf("ShapeOutbound() = %q, internal error text still present", out)
	}
}

func TestShapeOutboundStripsRefCodes(t *testing.T) {
	reply := "Done, reference code a1b2c3d4."
	out := ShapeOutbound(reply, nil)
	if strings.Contains(out, "a1b2c3d4") {
		t.Fatalf("ShapeOutbound() = %q, ref code still present", out)
	}
}

func TestShapeOutboundNormalizesWhitespace(t *testing.T) {
	out := ShapeOutbound("  hello   there  ", nil)
	if out != "hello there" {
		t.Fatalf("ShapeOutbound() = %q, want %q", out, "hello there")
	}
}
