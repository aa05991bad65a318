package extract

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hochfrequenz/qualscan/internal/domain"
)

// ErrNoPayload means neither the raw output nor the log yielded a JSON object
var ErrNoPayload = errors.New("no JSON payload")

const (
	stdoutMarker = "STDOUT:"
	stderrMarker = "STDERR:"
)

// Source names where a payload was found
type Source string

const (
	SourceRaw Source = "raw"
	SourceLog Source = "log"
)

// HasPayload reports whether the file at path holds a payload that
// normalizes into a BatchResult. A stray nested object inside a truncated
// write does not count.
func HasPayload(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	obj, ok := FindObject(string(data))
	if !ok {
		return false
	}
	_, ok = Normalize(0, obj).(domain.BatchResult)
	return ok
}

// Payload returns the batch payload, preferring the raw output file and
// falling back to the last STDOUT section of the log. A log whose STDOUT
// section holds no JSON ends the search.
func Payload(rawPath, logPath string) (map[string]any, Source, error) {
	if data, err := os.ReadFile(rawPath); err == nil {
		if obj, ok := FindObject(string(data)); ok {
			return obj, SourceRaw, nil
		}
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: raw output unusable and log unreadable: %v", ErrNoPayload, err)
	}
	section, ok := LastStdout(string(data))
	if !ok {
		return nil, "", fmt.Errorf("%w: raw output unusable and log has no STDOUT section", ErrNoPayload)
	}
	obj, ok := FindObject(section)
	if !ok {
		return nil, "", fmt.Errorf("%w: STDOUT section holds no JSON object", ErrNoPayload)
	}
	return obj, SourceLog, nil
}

// LastStdout returns the text of the last STDOUT section of a log, bounded by
// the following STDERR marker or the end of the log.
func LastStdout(log string) (string, bool) {
	idx := lastMarkerLine(log, stdoutMarker)
	if idx < 0 {
		return "", false
	}
	body := log[idx+len(stdoutMarker):]
	if end := markerLine(body, stderrMarker); end >= 0 {
		body = body[:end]
	}
	return body, true
}

// lastMarkerLine finds the last occurrence of marker at the start of a line
func lastMarkerLine(s, marker string) int {
	for end := len(s); end > 0; {
		i := strings.LastIndex(s[:end], marker)
		if i < 0 {
			return -1
		}
		if i == 0 || s[i-1] == '\n' {
			return i
		}
		end = i
	}
	return -1
}

func markerLine(s, marker string) int {
	for start := 0; start < len(s); {
		i := strings.Index(s[start:], marker)
		if i < 0 {
			return -1
		}
		i += start
		if i == 0 || s[i-1] == '\n' {
			return i
		}
		start = i + 1
	}
	return -1
}

// Batch extracts and normalizes the outcome of one batch. number is 1-based.
func Batch(number int, rawPath, logPath string) domain.BatchOutcome {
	payload, _, err := Payload(rawPath, logPath)
	if err != nil {
		return domain.ParseFailure{Index: number, Reason: err.Error()}
	}
	return Normalize(number, payload)
}
