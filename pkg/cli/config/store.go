package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/repository"
	"github.com/urfave/cli/v3"
)

// Store holds credential and run history storage configuration
type Store struct {
	FirestoreProject  string
	FirestoreDatabase string
	PostgresDSN       string
}

// Flags returns CLI flags for Store configuration
func (s *Store) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "GCP project ID for Firestore",
			Category:    "Store",
			Sources:     cli.EnvVars("ORGSYNC_FIRESTORE_PROJECT"),
			Destination: &s.FirestoreProject,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID",
			Category:    "Store",
			Value:       "(default)",
			Sources:     cli.EnvVars("ORGSYNC_FIRESTORE_DATABASE"),
			Destination: &s.FirestoreDatabase,
		},
		&cli.StringFlag{
			Name:        "postgres-dsn",
			Usage:       "PostgreSQL connection string",
			Category:    "Store",
			Sources:     cli.EnvVars("ORGSYNC_POSTGRES_DSN"),
			Destination: &s.PostgresDSN,
		},
	}
}

// Configure creates the repository. Firestore and PostgreSQL are exclusive;
// with neither configured the memory repository is used.
func (s *Store) Configure(ctx context.Context) (interfaces.Repository, error) {
	logger := ctxlog.From(ctx)

	switch {
	case s.FirestoreProject != "" && s.PostgresDSN != "":
		return nil, goerr.New("firestore and postgres are mutually exclusive", goerr.T(model.ErrTagConfig))

	case s.FirestoreProject != "":
		repo, err := repository.NewFirestore(ctx, s.FirestoreProject, s.FirestoreDatabase)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to init firestore",
				goerr.V("project", s.FirestoreProject),
				goerr.V("database", s.FirestoreDatabase),
			)
		}
		return repo, nil

	case s.PostgresDSN != "":
		repo, err := repository.NewPostgres(ctx, s.PostgresDSN)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to init postgres")
		}
		return repo, nil
	}

	logger.Warn("Using memory database. The destination credential will be lost when shutting down")
	return repository.NewMemory(), nil
}

// LogValue returns structured log value
func (s Store) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("firestore_project", s.FirestoreProject),
		slog.String("firestore_database", s.FirestoreDatabase),
		slog.Bool("postgres", s.PostgresDSN != ""),
	)
}
