package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Schedule holds the daily run configuration
type Schedule struct {
	Daily    string
	TimeZone string
	Poll     time.Duration
}

// Flags returns CLI flags for Schedule configuration
func (s *Schedule) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "schedule",
			Usage:       "Daily run time as HH:MM (empty disables the scheduler)",
			Category:    "Schedule",
			Sources:     cli.EnvVars("ORGSYNC_SCHEDULE"),
			Destination: &s.Daily,
		},
		&cli.StringFlag{
			Name:        "timezone",
			Usage:       "IANA time zone of the daily run time",
			Category:    "Schedule",
			Value:       "UTC",
			Sources:     cli.EnvVars("ORGSYNC_TIMEZONE"),
			Destination: &s.TimeZone,
		},
		&cli.DurationFlag{
			Name:        "schedule-poll",
			Usage:       "How often the scheduler checks the clock",
			Category:    "Schedule",
			Value:       usecase.DefaultPollInterval,
			Sources:     cli.EnvVars("ORGSYNC_SCHEDULE_POLL"),
			Destination: &s.Poll,
		},
	}
}

// Configure creates the scheduler, or returns nil when no daily time is set
func (s *Schedule) Configure(gate usecase.Starter) (*usecase.Scheduler, error) {
	if s.Daily == "" {
		return nil, nil
	}

	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid time zone",
			goerr.V("timezone", s.TimeZone),
			goerr.T(model.ErrTagConfig))
	}

	return usecase.NewScheduler(gate, s.Daily, loc, usecase.WithPollInterval(s.Poll))
}

// LogValue returns structured log value
func (s Schedule) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("daily", s.Daily),
		slog.String("timezone", s.TimeZone),
		slog.Duration("poll", s.Poll),
	)
}
