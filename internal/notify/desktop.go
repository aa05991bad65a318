package notify

import (
	"os/exec"
	"runtime"
	"strings"
)

// DesktopNotifier pops up a desktop notification via notify-send or osascript
type DesktopNotifier struct {
	enabled bool
	goos    string
}

// NewDesktopNotifier creates a new desktop notifier
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled, goos: runtime.GOOS}
}

// Send sends a desktop notification. Unsupported platforms are a no-op.
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}
	argv := desktopCommand(d.goos, n)
	if argv == nil {
		return nil
	}
	return exec.Command(argv[0], argv[1:]...).Run()
}

func desktopCommand(goos string, n Notification) []string {
	switch goos {
	case "darwin":
		script := `display notification "` + appleScriptEscape(n.Message) + `" with title "` + appleScriptEscape(n.Title) + `"`
		if n.RunID != "" {
			script += ` subtitle "` + appleScriptEscape("run "+n.RunID) + `"`
		}
		return []string{"osascript", "-e", script}
	case "linux", "freebsd", "openbsd":
		urgency := "normal"
		if n.Type == NotifyError {
			urgency = "critical"
		}
		return []string{"notify-send", "--app-name", "qualscan", "--urgency", urgency, "--icon", IconForType(n.Type), n.Title, n.Message}
	}
	return nil
}

func appleScriptEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// IconForType returns a freedesktop icon name for the notification type
func IconForType(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "dialog-positive"
	case NotifyWarning:
		return "dialog-warning"
	case NotifyError:
		return "dialog-error"
	default:
		return "dialog-information"
	}
}
