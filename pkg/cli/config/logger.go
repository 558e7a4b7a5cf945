package config

import (
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

var (
	logLevels  = []string{"", "debug", "info", "warn", "warning", "error"}
	logFormats = map[string]logging.Format{
		"":        logging.FormatAuto,
		"auto":    logging.FormatAuto,
		"console": logging.FormatConsole,
		"json":    logging.FormatJSON,
	}
)

// Logger holds logger configuration
type Logger struct {
	Level  string
	Format string
	Output string
}

// Flags returns CLI flags for Logger configuration
func (l *Logger) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Category:    "Logging",
			Value:       "info",
			Sources:     cli.EnvVars("ORGSYNC_LOG_LEVEL"),
			Destination: &l.Level,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json, auto)",
			Category:    "Logging",
			Value:       "auto",
			Sources:     cli.EnvVars("ORGSYNC_LOG_FORMAT"),
			Destination: &l.Format,
		},
		&cli.StringFlag{
			Name:        "log-output",
			Usage:       "Log destination (stdout, stderr, or a file path)",
			Category:    "Logging",
			Value:       "stdout",
			Sources:     cli.EnvVars("ORGSYNC_LOG_OUTPUT"),
			Destination: &l.Output,
		},
	}
}

// Configure validates the configuration and builds the logger
func (l *Logger) Configure() (*slog.Logger, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	w, err := l.writer()
	if err != nil {
		return nil, err
	}

	return logging.NewLoggerWithFormat(logging.ParseLogLevel(l.Level), w, logFormats[l.Format]), nil
}

func (l *Logger) writer() (io.Writer, error) {
	switch l.Output {
	case "", "stdout", "-":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	// The file stays open for the lifetime of the process
	f, err := os.OpenFile(l.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open log file",
			goerr.V("path", l.Output),
			goerr.T(model.ErrTagConfig))
	}
	return f, nil
}

// Validate validates the logger configuration
func (l *Logger) Validate() error {
	if !slices.Contains(logLevels, strings.ToLower(l.Level)) {
		return goerr.New("invalid log level", goerr.V("level", l.Level), goerr.T(model.ErrTagConfig))
	}
	if _, ok := logFormats[l.Format]; !ok {
		return goerr.New("invalid log format", goerr.V("format", l.Format), goerr.T(model.ErrTagConfig))
	}
	return nil
}

// LogValue returns structured log value
func (l Logger) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("level", l.Level),
		slog.String("format", l.Format),
		slog.String("output", l.Output),
	)
}
