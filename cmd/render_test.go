package cmd

import (
	"bytes"
	"strings"
	"testing"

	"replybot/pkg/config"
	"replybot/pkg/logger"
	"replybot/pkg/rule"
)

func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	resolver, err := newResolver(config.Default(), nil, logger.Discard())
	if err != nil {
		t.Fatalf("newResolver error: %v", err)
	}

	var out, errOut bytes.Buffer
	in := renderInput("order 42", " Ada  Lovelace ", []string{"42"})
	template := "%first_name%/%last_name%: #%capturing_group_1% (%message_length%)%capturing_group_2%"
	if err := renderTemplate(&out, &errOut, resolver, template, in); err != nil {
		t.Fatalf("renderTemplate error: %v", err)
	}

	if got := strings.TrimSpace(out.String()); got != "Ada/Lovelace: #42 (8)" {
		t.Fatalf("rendered = %q", got)
	}
	if !strings.Contains(errOut.String(), rule.ErrorCaptureIndexOutOfRange) {
		t.Fatalf("expected capture warning, got %q", errOut.String())
	}
}

func TestSplitName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, first, last string
	}{
		{in: "", first: "", last: ""},
		{in: "Ada", first: "Ada", last: ""},
		{in: "  Ada   King Lovelace ", first: "Ada", last: "King Lovelace"},
	}

	for _, tt := range tests {
		first, last := splitName(tt.in)
		if first != tt.first || last != tt.last {
			t.Fatalf("splitName(%q) = %q, %q", tt.in, first, last)
		}
	}
}

func TestNewResolverRejectsBadPolicy(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Engine.ReplyPolicy = "weighted"
	if _, err := newResolver(cfg, nil, logger.Discard()); err == nil {
		t.Fatal("expected error for unknown reply policy")
	}
}
