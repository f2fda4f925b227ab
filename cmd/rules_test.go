package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"replybot/pkg/placeholder"
	"replybot/pkg/rulestore"
)

func writeRulesFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	return path
}

func TestCheckRulesReportsCounts(t *testing.T) {
	t.Parallel()

	path := writeRulesFile(t, `
rules:
  - {id: hi, type: exact_match, keyword: hi, replies: [Hello]}
  - {id: fallback, type: default_message, replies: ["Sorry?"]}
`)

	var out bytes.Buffer
	if err := checkRules(&out, path, 0); err != nil {
		t.Fatalf("checkRules error: %v", err)
	}

	got := out.String()
	for _, want := range []string{"2 rules", "exact_match", "default_message", "ok"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestCheckRulesFailsOnIssues(t *testing.T) {
	t.Parallel()

	path := writeRulesFile(t, `
- {id: broken, type: pattern_matching, pattern: "(", replies: [x]}
- {id: mute, type: exact_match, keyword: ping}
`)

	var out bytes.Buffer
	err := checkRules(&out, path, 0)
	if err == nil {
		t.Fatal("expected error for rules that cannot fire")
	}
	if !strings.Contains(err.Error(), "2 rule(s)") {
		t.Fatalf("error = %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "warning: no default rule") || strings.Count(got, "issue: ") != 2 {
		t.Fatalf("unexpected report:\n%s", got)
	}
}

func TestCheckRulesMissingFile(t *testing.T) {
	t.Parallel()

	if err := checkRules(&bytes.Buffer{}, filepath.Join(t.TempDir(), "missing.yaml"), 0); err == nil {
		t.Fatal("expected error for missing rules file")
	}
}

func TestWritePlaceholders(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := writePlaceholders(&out); err != nil {
		t.Fatalf("writePlaceholders error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != len(placeholder.Vocabulary())+1 {
		t.Fatalf("lines = %d, want %d", len(lines), len(placeholder.Vocabulary())+1)
	}
	if !strings.Contains(out.String(), "%rndm_num_A_B%") {
		t.Fatalf("missing random number token:\n%s", out.String())
	}
}

func TestCheckRulesAcceptsStarter(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := rulestore.WriteStarter(path, false); err != nil {
		t.Fatalf("WriteStarter error: %v", err)
	}

	var out bytes.Buffer
	if err := checkRules(&out, path, 0); err != nil {
		t.Fatalf("checkRules error: %v\n%s", err, out.String())
	}
	if strings.Contains(out.String(), "warning:") {
		t.Fatalf("unexpected warning:\n%s", out.String())
	}
}
