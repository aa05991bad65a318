// Package report diagnoses failed batches from their logs and produces a
// retry command scoped to exactly those batches.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/hochfrequenz/qualscan/internal/executor"
	"github.com/hochfrequenz/qualscan/internal/packet"
)

// Category is the root cause class of a failed batch
type Category string

const (
	CategoryTimeout          Category = "timeout"
	CategoryStreamDisconnect Category = "stream_disconnect"
	CategoryRunnerMissing    Category = "runner_missing"
	CategoryAuth             Category = "auth"
	CategoryException        Category = "exception"
	CategoryUnknown          Category = "unknown"
	CategoryMissingLog       Category = "missing_log"
)

// categoryOrder is both the classification priority and the print order
var categoryOrder = []Category{
	CategoryTimeout,
	CategoryStreamDisconnect,
	CategoryRunnerMissing,
	CategoryAuth,
	CategoryException,
	CategoryUnknown,
	CategoryMissingLog,
}

var signatures = map[Category][]string{
	CategoryTimeout:       {"timeout after", "stall recovery after"},
	CategoryRunnerMissing: {"executable file not found", "no such file or directory", "command not found", "exit code: 127"},
	CategoryAuth:          {"not logged in", "please log in", "login required", "unauthorized", "authentication failed"},
	CategoryException:     {"traceback (most recent call last)", "panic:", "unhandled exception", "exception:"},
}

var authStatus = executor.StatusPattern("401")

type hint struct {
	markers []string
	text    string
}

var hints = []hint{
	{
		markers: []string{"executable file not found", "command not found", "exit code: 127"},
		text:    "The reviewer CLI was not found. Install it or set review.runner in the config.",
	},
	{
		markers: []string{"not logged in", "please log in", "login required", "unauthorized"},
		text:    "The reviewer session is not authenticated. Log in with the reviewer CLI and retry.",
	},
	{
		markers: []string{"chatgpt.com/backend-api"},
		text:    "The reviewer could not reach chatgpt.com/backend-api. Check network, proxy and VPN settings.",
	},
	{
		markers: []string{"failed to load plugin", "invalid plugin", "malformed plugin", "plugin manifest"},
		text:    "A local reviewer plugin appears to be malformed. Check the reviewer's plugin configuration.",
	},
}

// BatchFailure is one diagnosed batch
type BatchFailure struct {
	Number   int      `json:"batch"` // 1-based
	Category Category `json:"category"`
	LogPath  string   `json:"log_path"`
}

// Report is the diagnosis of a run's failed batches
type Report struct {
	Failures     []BatchFailure   `json:"failures"`
	Counts       map[Category]int `json:"counts"`
	Hints        []string         `json:"hints"`
	RetryCommand string           `json:"retry_command"`
}

// Diagnose classifies each failed batch (0-based indices) using its log.
// logPath maps a 1-based batch number to its log file.
func Diagnose(packetPath string, failed []int, logPath func(number int) string) *Report {
	indices := append([]int(nil), failed...)
	sort.Ints(indices)

	r := &Report{Counts: make(map[Category]int), Hints: []string{}}
	seenHint := make(map[string]bool)
	var numbers []int

	for _, idx := range indices {
		number := idx + 1
		numbers = append(numbers, number)
		path := logPath(number)

		data, err := os.ReadFile(path)
		if err != nil {
			r.add(BatchFailure{Number: number, Category: CategoryMissingLog, LogPath: path})
			continue
		}
		text := strings.ToLower(string(data))
		r.add(BatchFailure{Number: number, Category: Classify(text), LogPath: path})

		for _, h := range hints {
			if !seenHint[h.text] && containsAny(text, h.markers) {
				seenHint[h.text] = true
			}
		}
	}

	for _, h := range hints {
		if seenHint[h.text] {
			r.Hints = append(r.Hints, h.text)
		}
	}
	r.RetryCommand = RetryCommand(packetPath, numbers)
	return r
}

func (r *Report) add(f BatchFailure) {
	r.Failures = append(r.Failures, f)
	r.Counts[f.Category]++
}

// Classify returns the highest priority category whose signature appears
// in the lower-cased log text.
func Classify(text string) Category {
	text = strings.ToLower(text)
	if containsAny(text, signatures[CategoryTimeout]) {
		return CategoryTimeout
	}
	if executor.TransientPhrase(text, "") != "" {
		return CategoryStreamDisconnect
	}
	for _, c := range []Category{CategoryRunnerMissing, CategoryAuth, CategoryException} {
		if containsAny(text, signatures[c]) {
			return c
		}
		if c == CategoryAuth && authStatus.MatchString(text) {
			return c
		}
	}
	return CategoryUnknown
}

// RetryCommand re-runs exactly the given 1-based batches against the packet
func RetryCommand(packetPath string, numbers []int) string {
	return fmt.Sprintf("qualscan review run --packet %s --only-batches %s",
		shellQuote(packetPath), packet.FormatSelection(numbers))
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"$`\\") {
		return s
	}
	return strconv.Quote(s)
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// Write renders the report for a terminal
func (r *Report) Write(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d batch(es) failed:\n", len(r.Failures))
	for _, c := range categoryOrder {
		if n := r.Counts[c]; n > 0 {
			fmt.Fprintf(&b, "  %-18s %d\n", c, n)
		}
	}
	if len(r.Hints) > 0 {
		b.WriteString("\nHints:\n")
		for _, h := range r.Hints {
			fmt.Fprintf(&b, "  - %s\n", h)
		}
	}
	b.WriteString("\nRetry the failed batches with:\n")
	fmt.Fprintf(&b, "  %s\n", r.RetryCommand)
	b.WriteString("\nLogs:\n")
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "  batch %d (%s): %s\n", f.Number, f.Category, f.LogPath)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
