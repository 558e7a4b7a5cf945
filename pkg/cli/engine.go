package cli

import (
	"context"

	"github.com/secmon-lab/orgsync/pkg/cli/config"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/service/destination"
	"github.com/secmon-lab/orgsync/pkg/service/metrics"
	"github.com/secmon-lab/orgsync/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// engineConfig groups the configuration shared by every command that runs
// a reconciliation
type engineConfig struct {
	store       config.Store
	destination config.Destination
	source      config.Source
	policy      config.Policy
	alert       config.Alert
}

func (e *engineConfig) flags() []cli.Flag {
	return joinFlags(
		e.store.Flags(),
		e.destination.Flags(),
		e.source.Flags(),
		e.policy.Flags(),
		e.alert.Flags(),
	)
}

// engine is the wired set of components behind a reconciliation run
type engine struct {
	repo  interfaces.Repository
	oauth *destination.OAuth
	sync  *usecase.Sync
}

func (e *engine) Close() error {
	return e.repo.Close()
}

func (e *engineConfig) build(ctx context.Context, redirectURL string, m *metrics.Collector) (*engine, error) {
	if err := e.policy.Validate(); err != nil {
		return nil, err
	}

	src, err := e.source.Configure()
	if err != nil {
		return nil, err
	}

	oauth, err := e.destination.OAuth(redirectURL)
	if err != nil {
		return nil, err
	}

	repo, err := e.store.Configure(ctx)
	if err != nil {
		return nil, err
	}

	opts := []usecase.SyncOption{
		usecase.WithUserPolicy(e.policy.UserPolicy()),
		usecase.WithTeamPolicy(e.policy.TeamPolicy()),
		usecase.WithExcludedTeams(e.source.ExcludedRefIDs()),
		usecase.WithMetrics(m),
	}
	if buf, handler := e.alert.Configure(); buf != nil {
		opts = append(opts, usecase.WithNotifier(buf, handler))
	}

	return &engine{
		repo:  repo,
		oauth: oauth,
		sync:  usecase.NewSync(repo, src, e.destination.Factory(oauth, repo, m), opts...),
	}, nil
}

// joinFlags combines multiple flag slices into one
func joinFlags(flags ...[]cli.Flag) []cli.Flag {
	var result []cli.Flag
	for _, f := range flags {
		result = append(result, f...)
	}
	return result
}
