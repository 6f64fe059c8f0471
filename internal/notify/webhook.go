package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Webhook posts notifications to an HTTP endpoint as form parameters.
type Webhook struct {
	baseURL string
	client  *http.Client
}

// NewWebhook creates a webhook notifier targeting baseURL.
func NewWebhook(baseURL string) (*Webhook, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("webhook url is empty")
	}
	return &Webhook{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (w *Webhook) Send(ctx context.Context, title, body string) error {
	form := url.Values{}
	form.Set("title", title)
	form.Set("body", body)
	form.Set("group", "taskgate")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status: %d", resp.StatusCode)
	}
	return nil
}

// FailureHook builds an OnFailure callback that reports the named task's
// failure through the notifier. Delivery problems are deliberately not
// surfaced into the task's own outcome.
func FailureHook(n Notifier, taskName string) func(err error) {
	return func(cause error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = n.Send(ctx, fmt.Sprintf("task %s failed", taskName), cause.Error())
	}
}
