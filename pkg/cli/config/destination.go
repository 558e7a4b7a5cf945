package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/service/destination"
	"github.com/secmon-lab/orgsync/pkg/service/metrics"
	"github.com/secmon-lab/orgsync/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Destination holds the destination organization API configuration
type Destination struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	SCIMURL      string
	Pacing       time.Duration
}

// Flags returns CLI flags for Destination configuration
func (d *Destination) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "client-id",
			Usage:       "OAuth client ID of the destination app",
			Category:    "Destination",
			Sources:     cli.EnvVars("ORGSYNC_CLIENT_ID"),
			Destination: &d.ClientID,
		},
		&cli.StringFlag{
			Name:        "client-secret",
			Usage:       "OAuth client secret of the destination app",
			Category:    "Destination",
			Sources:     cli.EnvVars("ORGSYNC_CLIENT_SECRET"),
			Destination: &d.ClientSecret,
		},
		&cli.StringFlag{
			Name:        "base-url",
			Usage:       "Destination API base URL",
			Category:    "Destination",
			Value:       destination.DefaultBaseURL,
			Sources:     cli.EnvVars("ORGSYNC_BASE_URL"),
			Destination: &d.BaseURL,
		},
		&cli.StringFlag{
			Name:        "scim-url",
			Usage:       "Destination SCIM endpoint used for user updates",
			Category:    "Destination",
			Value:       destination.DefaultSCIMURL,
			Sources:     cli.EnvVars("ORGSYNC_SCIM_URL"),
			Destination: &d.SCIMURL,
		},
		&cli.DurationFlag{
			Name:        "pacing",
			Usage:       "Delay after every mutating API call",
			Category:    "Destination",
			Value:       destination.DefaultPacing,
			Sources:     cli.EnvVars("ORGSYNC_PACING"),
			Destination: &d.Pacing,
		},
	}
}

// IsConfigured checks if the OAuth client is set
func (d *Destination) IsConfigured() bool {
	return d.ClientID != "" && d.ClientSecret != ""
}

// OAuth returns the OAuth client of the destination app
func (d *Destination) OAuth(redirectURL string) (*destination.OAuth, error) {
	if !d.IsConfigured() {
		return nil, goerr.New("client ID and client secret are required", goerr.T(model.ErrTagConfig))
	}
	return destination.NewOAuth(d.BaseURL, d.ClientID, d.ClientSecret, redirectURL), nil
}

// Factory returns a DestinationFactory building an authenticated API client
// that persists refreshed credentials to repo
func (d *Destination) Factory(oauth *destination.OAuth, repo interfaces.Repository, m *metrics.Collector) usecase.DestinationFactory {
	return func(ctx context.Context, cred *model.Credential) (interfaces.Destination, error) {
		if !cred.IsValid() {
			return nil, goerr.New("stored credential is incomplete, log in again", goerr.T(model.ErrTagConfig))
		}
		client := destination.NewClient(cred, oauth,
			destination.WithBaseURL(d.BaseURL),
			destination.WithPacing(d.Pacing),
			destination.WithCredentialStore(repo),
			destination.WithMetrics(m),
		)
		return destination.NewAPI(client, d.SCIMURL), nil
	}
}

// LogValue returns structured log value
func (d Destination) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("client_id", d.ClientID),
		slog.Bool("client_secret", d.ClientSecret != ""),
		slog.String("base_url", d.BaseURL),
		slog.String("scim_url", d.SCIMURL),
		slog.Duration("pacing", d.Pacing),
	)
}
