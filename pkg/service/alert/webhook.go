package alert

import (
	"context"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
)

// Webhook posts text messages to a Slack-compatible incoming webhook
type Webhook struct {
	url        string
	httpClient *http.Client
}

// NewWebhook creates a Webhook for url
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithHTTPClient replaces the HTTP client
func (w *Webhook) WithHTTPClient(hc *http.Client) *Webhook {
	w.httpClient = hc
	return w
}

// Send posts text as one message
func (w *Webhook) Send(ctx context.Context, text string) error {
	msg := &slack.WebhookMessage{Text: text}
	if err := slack.PostWebhookCustomHTTPContext(ctx, w.url, w.httpClient, msg); err != nil {
		return goerr.Wrap(err, "failed to post webhook message")
	}
	return nil
}
