package config

import (
	"log/slog"

	"github.com/secmon-lab/orgsync/pkg/service/alert"
	"github.com/secmon-lab/orgsync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Alert holds the run log webhook configuration
type Alert struct {
	WebhookURL string
	Level      string
}

// Flags returns CLI flags for Alert configuration
func (a *Alert) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "alert-webhook-url",
			Usage:       "Incoming webhook receiving the log of each run",
			Category:    "Alert",
			Sources:     cli.EnvVars("ORGSYNC_ALERT_WEBHOOK_URL"),
			Destination: &a.WebhookURL,
		},
		&cli.StringFlag{
			Name:        "alert-level",
			Usage:       "Lowest log level copied to the webhook (debug, info, warn, error)",
			Category:    "Alert",
			Value:       "info",
			Sources:     cli.EnvVars("ORGSYNC_ALERT_LEVEL"),
			Destination: &a.Level,
		},
	}
}

// IsConfigured checks if a webhook URL is set
func (a *Alert) IsConfigured() bool {
	return a.WebhookURL != ""
}

// Configure returns the alert buffer and its log handler, or nils when no
// webhook is configured
func (a *Alert) Configure() (*alert.Buffer, slog.Handler) {
	if !a.IsConfigured() {
		return nil, nil
	}
	buf := alert.NewBuffer(alert.NewWebhook(a.WebhookURL).Send)
	return buf, buf.Handler(logging.ParseLogLevel(a.Level))
}

// LogValue returns structured log value
func (a Alert) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("webhook", a.WebhookURL != ""),
		slog.String("level", a.Level),
	)
}
