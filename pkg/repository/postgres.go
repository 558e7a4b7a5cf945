package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS orgsync_credentials (
    id            TEXT PRIMARY KEY,
    access_token  TEXT NOT NULL,
    refresh_token TEXT NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS orgsync_runs (
    id          TEXT PRIMARY KEY,
    trigger     TEXT NOT NULL,
    state       TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ,
    error       TEXT NOT NULL DEFAULT '',
    stats       JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS orgsync_runs_started_at_idx ON orgsync_runs (started_at DESC);
`

// Postgres implements Repository interface with PostgreSQL
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and creates the tables if missing
func NewPostgres(ctx context.Context, dsn string) (interfaces.Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse postgres DSN")
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect postgres")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, goerr.Wrap(err, "failed to ping postgres")
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, goerr.Wrap(err, "failed to migrate postgres schema")
	}

	ctxlog.From(ctx).Info("Postgres repository initialized successfully",
		"host", cfg.ConnConfig.Host,
		"database", cfg.ConnConfig.Database,
	)

	return &Postgres{pool: pool}, nil
}

// GetCredential retrieves the destination credential
func (p *Postgres) GetCredential(ctx context.Context) (*model.Credential, error) {
	var cred model.Credential
	err := p.pool.QueryRow(ctx,
		`SELECT access_token, refresh_token, updated_at FROM orgsync_credentials WHERE id = $1`,
		destinationCredentialDocID,
	).Scan(&cred.AccessToken, &cred.RefreshToken, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrCredentialNotFound, "no credential row")
		}
		return nil, goerr.Wrap(err, "failed to select credential")
	}

	return &cred, nil
}

// PutCredential upserts the destination credential
func (p *Postgres) PutCredential(ctx context.Context, cred *model.Credential) error {
	if !cred.IsValid() {
		return goerr.New("credential is incomplete")
	}

	_, err := p.pool.Exec(ctx, `
INSERT INTO orgsync_credentials (id, access_token, refresh_token, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET access_token  = EXCLUDED.access_token,
    refresh_token = EXCLUDED.refresh_token,
    updated_at    = EXCLUDED.updated_at
`, destinationCredentialDocID, cred.AccessToken, cred.RefreshToken, cred.UpdatedAt)
	if err != nil {
		return goerr.Wrap(err, "failed to upsert credential")
	}

	return nil
}

// PutRun creates or overwrites a run record
func (p *Postgres) PutRun(ctx context.Context, run *model.Run) error {
	if run == nil {
		return goerr.New("run is nil")
	}
	if run.ID == "" {
		return goerr.New("run ID is empty")
	}

	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal run stats", goerr.V("id", run.ID))
	}

	var finishedAt *time.Time
	if !run.FinishedAt.IsZero() {
		finishedAt = &run.FinishedAt
	}

	_, err = p.pool.Exec(ctx, `
INSERT INTO orgsync_runs (id, trigger, state, started_at, finished_at, error, stats)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
SET state       = EXCLUDED.state,
    finished_at = EXCLUDED.finished_at,
    error       = EXCLUDED.error,
    stats       = EXCLUDED.stats
`, run.ID.String(), run.Trigger.String(), string(run.State), run.StartedAt, finishedAt, run.Error, stats)
	if err != nil {
		return goerr.Wrap(err, "failed to upsert run", goerr.V("id", run.ID))
	}

	return nil
}

const selectRunColumns = `SELECT id, trigger, state, started_at, finished_at, error, stats FROM orgsync_runs`

// GetRun retrieves a run by ID
func (p *Postgres) GetRun(ctx context.Context, id types.RunID) (*model.Run, error) {
	if id == "" {
		return nil, goerr.New("run ID is empty")
	}

	run, err := scanRun(p.pool.QueryRow(ctx, selectRunColumns+` WHERE id = $1`, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrRunNotFound, "no run row", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to select run", goerr.V("id", id))
	}

	return run, nil
}

// ListRuns lists runs, newest first
func (p *Postgres) ListRuns(ctx context.Context, limit int) ([]*model.Run, error) {
	query := selectRunColumns + ` ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query runs")
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan run")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate runs")
	}

	return runs, nil
}

// Close closes the connection pool
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func scanRun(row pgx.Row) (*model.Run, error) {
	var (
		run        model.Run
		id         string
		trigger    string
		state      string
		finishedAt *time.Time
		stats      []byte
	)
	if err := row.Scan(&id, &trigger, &state, &run.StartedAt, &finishedAt, &run.Error, &stats); err != nil {
		return nil, err
	}

	run.ID = types.RunID(id)
	run.Trigger = types.Trigger(trigger)
	run.State = model.RunState(state)
	if finishedAt != nil {
		run.FinishedAt = *finishedAt
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &run.Stats); err != nil {
			return nil, goerr.Wrap(err, "failed to decode run stats", goerr.V("id", id))
		}
	}

	return &run, nil
}
