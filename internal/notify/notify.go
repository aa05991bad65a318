package notify

import (
	"fmt"
	"strings"

	"github.com/hochfrequenz/qualscan/internal/config"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string // Optional run reference
	RunDir  string // Optional run directory
	Fields  []Field
}

// Field is a labelled detail shown by notifiers that support it
type Field struct {
	Title string
	Value string
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// FromConfig builds the notifier described by the notifications config
func FromConfig(cfg config.NotificationsConfig) Notifier {
	var ns []Notifier
	if cfg.Desktop {
		ns = append(ns, NewDesktopNotifier(true))
	}
	if cfg.SlackWebhook != "" {
		ns = append(ns, NewSlackNotifier(cfg.SlackWebhook))
	}
	if len(ns) == 0 {
		return NoopNotifier{}
	}
	return NewMultiNotifier(ns...)
}

// RunSummary describes a finished review run
type RunSummary struct {
	RunID      string
	RunDir     string
	Selected   int
	Failed     []int // 1-based
	Dimensions int
}

// ForRun builds the notification sent when a review run finishes
func ForRun(s RunSummary) Notification {
	n := Notification{RunID: s.RunID, RunDir: s.RunDir}
	switch {
	case len(s.Failed) == 0:
		n.Type = NotifySuccess
		n.Title = "Review complete"
		n.Message = fmt.Sprintf("%d batches merged into %d dimension scores", s.Selected, s.Dimensions)
	case len(s.Failed) == s.Selected:
		n.Type = NotifyError
		n.Title = "Review failed"
		n.Message = fmt.Sprintf("all %d batches failed", s.Selected)
	default:
		n.Type = NotifyWarning
		n.Title = "Review partially complete"
		nums := make([]string, len(s.Failed))
		for i, f := range s.Failed {
			nums[i] = fmt.Sprint(f)
		}
		n.Message = fmt.Sprintf("%d of %d batches failed (%s); %d dimension scores merged",
			len(s.Failed), s.Selected, strings.Join(nums, ","), s.Dimensions)
		n.Fields = append(n.Fields, Field{Title: "Retry", Value: "--only-batches " + strings.Join(nums, ",")})
	}
	if s.RunDir != "" {
		n.Fields = append(n.Fields, Field{Title: "Run directory", Value: s.RunDir})
	}
	return n
}
