package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogWriter persists the full text of a batch log
type LogWriter func(path, content string) error

// WriteLogFile replaces the log at path with content, creating parent directories
func WriteLogFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing log: %w", err)
	}
	return nil
}

// AttemptContext describes one execution attempt of a batch. A new one is
// built for every retry; it is never modified after construction.
type AttemptContext struct {
	Header     string
	Started    time.Time // carries a monotonic reading
	OutputPath string
	LogPath    string

	prior    []string
	writeLog LogWriter
}

// NewAttemptContext builds the context for one attempt. prior holds the
// finished log sections of earlier attempts and is copied.
func NewAttemptContext(header, outputPath, logPath string, prior []string, w LogWriter) AttemptContext {
	if w == nil {
		w = WriteLogFile
	}
	return AttemptContext{
		Header:     header,
		Started:    time.Now(),
		OutputPath: outputPath,
		LogPath:    logPath,
		prior:      append([]string(nil), prior...),
		writeLog:   w,
	}
}

// AttemptHeader formats the banner that opens an attempt's log section
func AttemptHeader(attempt, total, batchNumber int, name string) string {
	return fmt.Sprintf("=== ATTEMPT %d/%d: batch %d (%s) ===", attempt, total, batchNumber, name)
}

// Elapsed returns the time since the attempt started
func (a AttemptContext) Elapsed() time.Duration {
	return time.Since(a.Started)
}

// PriorSections returns a copy of the earlier attempts' log sections
func (a AttemptContext) PriorSections() []string {
	return append([]string(nil), a.prior...)
}

// WriteLog writes the prior sections followed by current
func (a AttemptContext) WriteLog(current string) error {
	if a.LogPath == "" {
		return nil
	}
	return a.writeLog(a.LogPath, JoinSections(append(a.PriorSections(), current)))
}

// JoinSections renders log sections in attempt order
func JoinSections(sections []string) string {
	var b strings.Builder
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.TrimRight(s, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}
