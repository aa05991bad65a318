package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// slackPayload is the incoming-webhook message body
type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title,omitempty"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer"`
	TS     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// SlackNotifier posts run summaries to a Slack incoming webhook
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

// NewSlackNotifier creates a notifier for webhookURL. An empty URL disables it.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

var slackColors = map[NotificationType]string{
	NotifySuccess: "good",
	NotifyWarning: "warning",
	NotifyError:   "danger",
}

// SlackColor returns the attachment color for a notification type
func SlackColor(t NotificationType) string {
	if c, ok := slackColors[t]; ok {
		return c
	}
	return "#439FE0"
}

func (s *SlackNotifier) payload(n Notification) slackPayload {
	att := slackAttachment{
		Color:  SlackColor(n.Type),
		Text:   n.Message,
		Footer: "qualscan",
		TS:     s.now().Unix(),
	}
	if n.RunID != "" {
		att.Title = "run " + n.RunID
	}
	for _, f := range n.Fields {
		att.Fields = append(att.Fields, slackField{Title: f.Title, Value: f.Value, Short: len(f.Value) <= 40})
	}
	return slackPayload{Text: n.Title, Attachments: []slackAttachment{att}}
}

// Send posts the notification
func (s *SlackNotifier) Send(n Notification) error {
	if s.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(s.payload(n))
	if err != nil {
		return fmt.Errorf("encoding slack message: %w", err)
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}
	return nil
}
