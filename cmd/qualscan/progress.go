package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hochfrequenz/qualscan/internal/scheduler"
)

func printProgress(ev scheduler.Event) {
	if line := formatProgress(ev); line != "" {
		fmt.Fprintln(os.Stderr, line)
	}
}

// formatProgress renders a scheduler event as one status line. Queued
// events are folded into the first heartbeat and render as "".
func formatProgress(ev scheduler.Event) string {
	switch ev.Kind {
	case scheduler.EventStart:
		return fmt.Sprintf("[progress] batch %d started", ev.Batch+1)
	case scheduler.EventDone:
		status := "done"
		if ev.ExitCode != 0 || ev.Err != nil {
			status = fmt.Sprintf("failed (exit %d)", ev.ExitCode)
		}
		return fmt.Sprintf("[progress] batch %d %s in %s", ev.Batch+1, status, ev.Elapsed.Round(time.Second))
	case scheduler.EventHeartbeat:
		active := make([]string, len(ev.Active))
		for i, a := range ev.Active {
			active[i] = fmt.Sprintf("#%d %s", a.Index+1, a.Elapsed.Round(time.Second))
		}
		line := fmt.Sprintf("[progress] %d/%d done, %d active, %d queued",
			ev.Completed, ev.Total, len(ev.Active), len(ev.Queued))
		if len(active) > 0 {
			line += " (" + strings.Join(active, ", ") + ")"
		}
		return line
	}
	return ""
}
