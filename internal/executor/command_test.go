package executor

import (
	"strings"
	"testing"
)

func TestBuildReviewerCommand(t *testing.T) {
	argv := BuildReviewerCommand("codex", "/repo", "HIGH", "/run/results/batch-1.raw.txt", "review this")

	want := []string{
		"codex", "exec", "--ephemeral", "--sandbox", "read-only", "--skip-git-repo-check",
		"-C", "/repo",
		"-c", `approval_policy="never"`,
		"-c", `model_reasoning_effort="high"`,
		"-o", "/run/results/batch-1.raw.txt",
		"review this",
	}
	if len(argv) != len(want) {
		t.Fatalf("argv = %v", argv)
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Errorf("argv[%d] = %q, want %q", i, argv[i], want[i])
		}
	}
}

func TestValidEffort(t *testing.T) {
	tests := map[string]string{
		"low":     "low",
		"medium":  "medium",
		" xhigh ": "xhigh",
		"High":    "high",
		"extreme": "low",
		"":        "low",
	}
	for in, want := range tests {
		if got := ValidEffort(in); got != want {
			t.Errorf("ValidEffort(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDisplayCommand(t *testing.T) {
	got := DisplayCommand([]string{"codex", "exec", strings.Repeat("x", 2000)})
	if strings.Contains(got, "xxx") {
		t.Errorf("prompt should be summarized: %q", got)
	}
	if !strings.HasPrefix(got, "codex exec <prompt ") {
		t.Errorf("DisplayCommand = %q", got)
	}
}

func TestTransientPhrase(t *testing.T) {
	tests := []struct {
		stdout, stderr string
		want           string
	}{
		{"", "ERROR: Stream Disconnected Before Completion", "stream disconnected before completion"},
		{"HTTP 429 Too Many Requests", "", "too many requests"},
		{"", "error sending request for url", "error sending request"},
		{"", "fatal: invalid configuration", ""},
		{"", "unexpected status 429 from api", "status 429"},
		{"", "HTTP/1.1 503", "status 503"},
		{"", "error: undefined name at src/app.py line 429", ""},
		{"checked 502 files", "", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := TransientPhrase(tt.stdout, tt.stderr); got != tt.want {
			t.Errorf("TransientPhrase(%q, %q) = %q, want %q", tt.stdout, tt.stderr, got, tt.want)
		}
	}
}

func TestJoinSections(t *testing.T) {
	got := JoinSections([]string{"a\n", "b"})
	if got != "a\n\nb\n" {
		t.Errorf("JoinSections = %q", got)
	}
}
