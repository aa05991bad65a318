// Package executor supervises reviewer processes: one attempt at a time via
// the Supervisor, retried and recovered per batch by the BatchRunner.
package executor

import "time"

// Exit codes reported for attempts that did not end with a child exit status
const (
	ExitOK        = 0
	ExitTimeout   = 124 // timeout or stall without a usable artifact
	ExitSpawn     = 126 // process could not be started
	ExitNotFound  = 127 // reviewer binary not found
	ExitCancelled = 130 // interrupted by the caller
)

// DefaultPollInterval is how often the supervisor checks for exit, timeout and stall
const DefaultPollInterval = 500 * time.Millisecond

// Options controls supervision and retry behaviour. Zero StallWindow or
// LiveLogInterval disables the feature; zero Timeout means no ceiling.
type Options struct {
	Runner          string
	ReasoningEffort string
	MaxRetries      int
	RetryBackoff    time.Duration
	Timeout         time.Duration
	StallWindow     time.Duration
	LiveLogInterval time.Duration
	KillGrace       time.Duration
	PollInterval    time.Duration
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Runner:          "codex",
		ReasoningEffort: "low",
		MaxRetries:      1,
		RetryBackoff:    2 * time.Second,
		Timeout:         20 * time.Minute,
		StallWindow:     2 * time.Minute,
		LiveLogInterval: 5 * time.Second,
		KillGrace:       5 * time.Second,
		PollInterval:    DefaultPollInterval,
	}
}

func (o Options) pollInterval() time.Duration {
	if o.PollInterval <= 0 || o.PollInterval > time.Second {
		return DefaultPollInterval
	}
	return o.PollInterval
}
