package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
	"github.com/secmon-lab/orgsync/pkg/service/metrics"
	"github.com/secmon-lab/orgsync/pkg/utils/logging"
)

// DestinationFactory builds the destination API around a run's credential
type DestinationFactory func(ctx context.Context, cred *model.Credential) (interfaces.Destination, error)

// Sync executes one reconciliation run from credential loading to the
// final run record
type Sync struct {
	repo           interfaces.Repository
	source         interfaces.IdentitySource
	newDestination DestinationFactory

	users        *UserReconciler
	teams        *TeamReconciler
	excludeTeams []types.RefID

	metrics      *metrics.Collector
	notifier     interfaces.Notifier
	alertHandler slog.Handler
}

// SyncOption configures Sync
type SyncOption func(*Sync)

// WithUserPolicy sets the user reconciliation policy
func WithUserPolicy(p UserPolicy) SyncOption {
	return func(s *Sync) { s.users = NewUserReconciler(p) }
}

// WithTeamPolicy sets the team reconciliation policy
func WithTeamPolicy(p TeamPolicy) SyncOption {
	return func(s *Sync) { s.teams = NewTeamReconciler(p) }
}

// WithExcludedTeams drops source teams with these ref IDs before diffing
func WithExcludedTeams(refIDs []types.RefID) SyncOption {
	return func(s *Sync) { s.excludeTeams = refIDs }
}

// WithMetrics records run outcomes to m
func WithMetrics(m *metrics.Collector) SyncOption {
	return func(s *Sync) { s.metrics = m }
}

// WithNotifier copies run logs to handler and flushes notifier when the run ends
func WithNotifier(notifier interfaces.Notifier, handler slog.Handler) SyncOption {
	return func(s *Sync) {
		s.notifier = notifier
		s.alertHandler = handler
	}
}

// NewSync creates a Sync use case
func NewSync(repo interfaces.Repository, source interfaces.IdentitySource, newDestination DestinationFactory, opts ...SyncOption) *Sync {
	s := &Sync{
		repo:           repo,
		source:         source,
		newDestination: newDestination,
		users:          NewUserReconciler(UserPolicy{}),
		teams:          NewTeamReconciler(TeamPolicy{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ SyncUseCase = (*Sync)(nil)

// Run executes a reconciliation. The returned run is always finished and
// persisted on a best-effort basis; the error is the one that failed the run.
func (s *Sync) Run(ctx context.Context, trigger types.Trigger) (*model.Run, error) {
	if s.alertHandler != nil {
		ctx = ctxlog.With(ctx, logging.WithAlert(ctxlog.From(ctx), s.alertHandler))
	}

	run, err := model.NewRun(trigger)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create run")
	}

	logger := ctxlog.From(ctx).With("run_id", run.ID)
	ctx = ctxlog.With(ctx, logger)
	logger.Info("Sync started", "trigger", trigger)

	s.metrics.RecordRunStarted()
	s.saveRun(ctx, run)

	runErr := s.execute(ctx, run)
	run.Finish(runErr)

	s.saveRun(ctx, run)
	s.metrics.RecordRunFinished(run)

	if runErr != nil {
		logger.Error("Sync failed",
			"error", runErr,
			"stats", run.Stats,
			"duration", run.Duration(),
		)
	} else {
		logger.Info("Sync finished",
			"stats", run.Stats,
			"duration", run.Duration(),
		)
	}

	if s.notifier != nil {
		if err := s.notifier.Flush(ctx); err != nil {
			ctxlog.From(ctx).Warn("Failed to flush alert notifier", "error", err)
		}
	}

	return run, runErr
}

func (s *Sync) execute(ctx context.Context, run *model.Run) error {
	cred, err := s.repo.GetCredential(ctx)
	if err != nil {
		if errors.Is(err, model.ErrCredentialNotFound) {
			return goerr.Wrap(err, "destination is not authorized yet, log in first",
				goerr.T(model.ErrTagConfig))
		}
		return goerr.Wrap(err, "failed to load destination credential")
	}

	dest, err := s.newDestination(ctx, cred)
	if err != nil {
		return goerr.Wrap(err, "failed to build destination client", goerr.T(model.ErrTagConfig))
	}

	src, err := s.loadSource(ctx)
	if err != nil {
		return err
	}

	if err := s.users.Reconcile(ctx, dest, src, &run.Stats); err != nil {
		return goerr.Wrap(err, "user reconciliation failed")
	}
	if err := s.teams.Reconcile(ctx, dest, src, &run.Stats); err != nil {
		return err
	}

	return nil
}

func (s *Sync) loadSource(ctx context.Context) (*model.SourceSet, error) {
	users, err := s.source.ListUsers(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list source users")
	}
	teams, err := s.source.ListTeams(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list source teams")
	}

	src := &model.SourceSet{Users: users, Teams: teams}
	for _, u := range src.DropUsersWithoutRefID() {
		ctxlog.From(ctx).Warn("Source user has no ref_id, skipped", "name", u.Name, "email", u.Email)
	}
	src.ExcludeTeams(s.excludeTeams)
	if err := src.Validate(); err != nil {
		return nil, err
	}

	ctxlog.From(ctx).Info("Source loaded", "users", len(src.Users), "teams", len(src.Teams))
	return src, nil
}

func (s *Sync) saveRun(ctx context.Context, run *model.Run) {
	if err := s.repo.PutRun(ctx, run); err != nil {
		ctxlog.From(ctx).Warn("Failed to save run", "error", err, "run_id", run.ID)
	}
}
