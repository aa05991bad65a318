package executor

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// ReasoningEfforts lists the accepted reasoning effort levels
var ReasoningEfforts = []string{"low", "medium", "high", "xhigh"}

// ValidEffort returns effort when it is a known level, otherwise "low"
func ValidEffort(effort string) string {
	effort = strings.ToLower(strings.TrimSpace(effort))
	for _, e := range ReasoningEfforts {
		if e == effort {
			return e
		}
	}
	return "low"
}

// BuildReviewerCommand returns the argv for one reviewer invocation. The
// prompt is always the final argument.
func BuildReviewerCommand(runner, repoRoot, effort, outputPath, prompt string) []string {
	if runner == "" {
		runner = "codex"
	}
	return []string{
		runner,
		"exec",
		"--ephemeral",
		"--sandbox", "read-only",
		"--skip-git-repo-check",
		"-C", repoRoot,
		"-c", `approval_policy="never"`,
		"-c", fmt.Sprintf("model_reasoning_effort=%q", ValidEffort(effort)),
		"-o", outputPath,
		prompt,
	}
}

// DisplayCommand renders argv for logs with the prompt argument summarized
func DisplayCommand(argv []string) string {
	if len(argv) < 2 {
		return strings.Join(argv, " ")
	}
	last := argv[len(argv)-1]
	parts := append([]string(nil), argv[:len(argv)-1]...)
	parts = append(parts, fmt.Sprintf("<prompt %s>", humanize.Bytes(uint64(len(last)))))
	return strings.Join(parts, " ")
}
