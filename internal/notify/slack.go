package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackSender posts to a Slack incoming webhook.
type SlackSender struct {
	WebhookURL string
	Client     *http.Client
}

func NewSlackSender(webhookURL string, timeout time.Duration) *SlackSender {
	return &SlackSender{
		WebhookURL: webhookURL,
		Client:     &http.Client{Timeout: timeout},
	}
}

func (s *SlackSender) Name() string { return "slack" }

func (s *SlackSender) Send(ctx context.Context, subject, message string) error {
	payload := map[string]string{
		"text": fmt.Sprintf("🚨 %s\n\n%s", subject, message),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
