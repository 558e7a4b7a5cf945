package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Policy holds the optional reconciliation behaviors
type Policy struct {
	ProvisionUsers        bool
	ReconcileActiveStatus bool
	Language              string
	Timezone              string
	TeamRemoval           string
}

// Flags returns CLI flags for Policy configuration
func (p *Policy) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "provision-users",
			Usage:       "Create destination users for source users without a match",
			Category:    "Policy",
			Sources:     cli.EnvVars("ORGSYNC_PROVISION_USERS"),
			Destination: &p.ProvisionUsers,
		},
		&cli.BoolFlag{
			Name:        "reconcile-active-status",
			Usage:       "Deactivate destination users missing from the source and reactivate returning ones",
			Category:    "Policy",
			Sources:     cli.EnvVars("ORGSYNC_RECONCILE_ACTIVE_STATUS"),
			Destination: &p.ReconcileActiveStatus,
		},
		&cli.StringFlag{
			Name:        "default-user-language",
			Usage:       "Language of provisioned users",
			Category:    "Policy",
			Value:       usecase.DefaultUserLanguage,
			Sources:     cli.EnvVars("ORGSYNC_DEFAULT_USER_LANGUAGE"),
			Destination: &p.Language,
		},
		&cli.StringFlag{
			Name:        "default-user-timezone",
			Usage:       "Time zone of provisioned users",
			Category:    "Policy",
			Value:       usecase.DefaultUserTimezone,
			Sources:     cli.EnvVars("ORGSYNC_DEFAULT_USER_TIMEZONE"),
			Destination: &p.Timezone,
		},
		&cli.StringFlag{
			Name:        "team-removal",
			Usage:       "What to do with destination teams missing from the source (delete, archive)",
			Category:    "Policy",
			Value:       string(usecase.TeamRemovalDelete),
			Sources:     cli.EnvVars("ORGSYNC_TEAM_REMOVAL"),
			Destination: &p.TeamRemoval,
		},
	}
}

// Validate validates the policy configuration
func (p *Policy) Validate() error {
	if !usecase.TeamRemoval(p.TeamRemoval).IsValid() {
		return goerr.New("invalid team removal mode",
			goerr.V("team_removal", p.TeamRemoval),
			goerr.T(model.ErrTagConfig))
	}
	return nil
}

// UserPolicy returns the user reconciliation policy
func (p *Policy) UserPolicy() usecase.UserPolicy {
	return usecase.UserPolicy{
		ProvisionUsers:        p.ProvisionUsers,
		ReconcileActiveStatus: p.ReconcileActiveStatus,
		Language:              p.Language,
		Timezone:              p.Timezone,
	}
}

// TeamPolicy returns the team reconciliation policy
func (p *Policy) TeamPolicy() usecase.TeamPolicy {
	return usecase.TeamPolicy{Removal: usecase.TeamRemoval(p.TeamRemoval)}
}

// LogValue returns structured log value
func (p Policy) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("provision_users", p.ProvisionUsers),
		slog.Bool("reconcile_active_status", p.ReconcileActiveStatus),
		slog.String("language", p.Language),
		slog.String("timezone", p.Timezone),
		slog.String("team_removal", p.TeamRemoval),
	)
}
