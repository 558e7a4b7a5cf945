package config

import (
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	controller "github.com/secmon-lab/orgsync/pkg/controller/http"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// Server holds server configuration
type Server struct {
	Addr        string
	PublicURL   string
	SecretKey   string
	CORSOrigins []string
	RateLimit   float64
	RateBurst   int
}

// Flags returns CLI flags for Server configuration
func (s *Server) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Server address",
			Value:       "localhost:8080",
			Sources:     cli.EnvVars("ORGSYNC_ADDR"),
			Destination: &s.Addr,
		},
		&cli.StringFlag{
			Name:        "public-url",
			Usage:       "Externally reachable base URL, used for the OAuth redirect URI",
			Sources:     cli.EnvVars("ORGSYNC_PUBLIC_URL"),
			Destination: &s.PublicURL,
		},
		&cli.StringFlag{
			Name:        "secret-key",
			Usage:       "Shared secret required in the X-Secret-Key header of sync requests",
			Sources:     cli.EnvVars("ORGSYNC_SECRET_KEY"),
			Destination: &s.SecretKey,
		},
		&cli.StringSliceFlag{
			Name:        "cors-origin",
			Usage:       "Allowed CORS origin (repeatable)",
			Sources:     cli.EnvVars("ORGSYNC_CORS_ORIGINS"),
			Destination: &s.CORSOrigins,
		},
		&cli.FloatFlag{
			Name:        "rate-limit",
			Usage:       "Requests per second allowed on sync endpoints (0 disables)",
			Value:       1,
			Sources:     cli.EnvVars("ORGSYNC_RATE_LIMIT"),
			Destination: &s.RateLimit,
		},
		&cli.IntFlag{
			Name:        "rate-burst",
			Usage:       "Burst size for the sync endpoint rate limit",
			Value:       5,
			Sources:     cli.EnvVars("ORGSYNC_RATE_BURST"),
			Destination: &s.RateBurst,
		},
	}
}

// RedirectURL returns the OAuth callback URL, or empty without a public URL
func (s *Server) RedirectURL() string {
	if s.PublicURL == "" {
		return ""
	}
	return strings.TrimRight(s.PublicURL, "/") + "/api/auth/callback"
}

// Configure returns the HTTP controller configuration
func (s *Server) Configure(gatherer prometheus.Gatherer) *controller.Config {
	return &controller.Config{
		Addr:         s.Addr,
		SecretKey:    s.SecretKey,
		CORSOrigins:  s.CORSOrigins,
		TriggerRate:  rate.Limit(s.RateLimit),
		TriggerBurst: s.RateBurst,
		Gatherer:     gatherer,
	}
}

// LogValue returns structured log value
func (s Server) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("addr", s.Addr),
		slog.String("public_url", s.PublicURL),
		slog.Bool("secret_key", s.SecretKey != ""),
		slog.Any("cors_origins", s.CORSOrigins),
		slog.Float64("rate_limit", s.RateLimit),
		slog.Int("rate_burst", s.RateBurst),
	)
}
