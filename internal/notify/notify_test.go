package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/qualscan/internal/config"
)

func TestSlackNotifier_Payload(t *testing.T) {
	s := NewSlackNotifier("http://example.invalid")
	s.now = func() time.Time { return time.Unix(1760000000, 0) }

	p := s.payload(ForRun(RunSummary{
		RunID:    "20261015-101500-ab12cd34",
		RunDir:   "/runs/20261015-101500-ab12cd34",
		Selected: 4,
		Failed:   []int{2, 4},
	}))

	if p.Text != "Review partially complete" || len(p.Attachments) != 1 {
		t.Fatalf("payload = %+v", p)
	}
	att := p.Attachments[0]
	if att.Color != "warning" || att.Title != "run 20261015-101500-ab12cd34" || att.TS != 1760000000 {
		t.Errorf("attachment = %+v", att)
	}
	if len(att.Fields) != 2 || att.Fields[0].Value != "--only-batches 2,4" || att.Fields[1].Title != "Run directory" {
		t.Errorf("fields = %+v", att.Fields)
	}
}

func TestSlackNotifier_Send(t *testing.T) {
	var got slackPayload
	// Mock Slack server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Test",
		Message: "Test message",
		Type:    NotifyInfo,
		RunID:   "abc",
	})

	if err != nil {
		t.Errorf("Send failed: %v", err)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Title != "run abc" {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestSlackNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	if err := NewSlackNotifier(server.URL).Send(Notification{Title: "x"}); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestForRun(t *testing.T) {
	tests := []struct {
		name    string
		summary RunSummary
		typ     NotificationType
		title   string
	}{
		{"success", RunSummary{Selected: 3, Dimensions: 5}, NotifySuccess, "Review complete"},
		{"partial", RunSummary{Selected: 3, Failed: []int{2}, Dimensions: 4}, NotifyWarning, "Review partially complete"},
		{"failed", RunSummary{Selected: 2, Failed: []int{1, 2}}, NotifyError, "Review failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := ForRun(tt.summary)
			if n.Type != tt.typ || n.Title != tt.title {
				t.Errorf("ForRun() = %+v", n)
			}
		})
	}
	if n := ForRun(RunSummary{Selected: 4, Failed: []int{1, 3}}); !strings.Contains(n.Message, "(1,3)") {
		t.Errorf("partial message should list failed batches: %q", n.Message)
	}
}

func TestFromConfig(t *testing.T) {
	if _, ok := FromConfig(config.NotificationsConfig{}).(NoopNotifier); !ok {
		t.Error("expected NoopNotifier when nothing is enabled")
	}
	if _, ok := FromConfig(config.NotificationsConfig{SlackWebhook: "http://x"}).(*MultiNotifier); !ok {
		t.Error("expected MultiNotifier when slack is configured")
	}
}

func TestAppleScriptEscape(t *testing.T) {
	if got := appleScriptEscape(`say "hi" \ now`); got != `say \"hi\" \\ now` {
		t.Errorf("appleScriptEscape = %q", got)
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		got := SlackColor(tt.typ)
		if got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called}

	multi := NewMultiNotifier(mock1, mock2)
	multi.Send(Notification{Title: "Test"})

	if len(called) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(called))
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}

func TestDesktopCommand(t *testing.T) {
	n := Notification{Title: "Review failed", Message: "all 3 batches failed", Type: NotifyError, RunID: "r1"}

	linux := desktopCommand("linux", n)
	if linux[0] != "notify-send" || !strings.Contains(strings.Join(linux, " "), "--urgency critical") {
		t.Errorf("linux argv = %v", linux)
	}
	if linux[len(linux)-2] != n.Title || linux[len(linux)-1] != n.Message {
		t.Errorf("linux argv should end with title and message: %v", linux)
	}

	mac := desktopCommand("darwin", n)
	if mac[0] != "osascript" || !strings.Contains(mac[2], `subtitle "run r1"`) {
		t.Errorf("darwin argv = %v", mac)
	}

	if desktopCommand("windows", n) != nil {
		t.Error("windows should be unsupported")
	}
}
