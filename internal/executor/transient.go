package executor

import (
	"regexp"
	"strings"
)

// transientPhrases mark failures that are likely to succeed on retry
var transientPhrases = []string{
	"stream disconnected before completion",
	"stream error",
	"connection reset",
	"connection refused",
	"connection closed",
	"broken pipe",
	"failed to lookup address",
	"name resolution",
	"dns error",
	"error sending request",
	"network error",
	"timed out while waiting",
	"rate limit",
	"too many requests",
	"502 bad gateway",
	"503 service unavailable",
	"server overloaded",
}

// StatusPattern matches an HTTP status code only where it reads as one, as in
// "status 429", "HTTP/1.1 503" or "error code: 502". A bare number such as a
// line number does not match.
func StatusPattern(codes ...string) *regexp.Regexp {
	return regexp.MustCompile(`\b(?:status(?: code)?|http(?:/[0-9.]+)?|code|error)\s*[:=]?\s*(` +
		strings.Join(codes, "|") + `)\b`)
}

var transientStatus = StatusPattern("429", "502", "503", "504")

// TransientPhrase returns the first transient marker found in the combined
// output, or "" when the failure looks permanent.
func TransientPhrase(stdout, stderr string) string {
	text := strings.ToLower(stdout + "\n" + stderr)
	for _, p := range transientPhrases {
		if strings.Contains(text, p) {
			return p
		}
	}
	if m := transientStatus.FindStringSubmatch(text); m != nil {
		return "status " + m[1]
	}
	return ""
}
