package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
	"github.com/secmon-lab/orgsync/pkg/service/source"
	"github.com/urfave/cli/v3"
)

// Source types
const (
	SourceCSV  = "csv"
	SourceYAML = "yaml"
	SourceLDAP = "ldap"
)

// Source holds identity source configuration
type Source struct {
	Type         string
	UsersCSV     string
	TeamsCSV     string
	YAMLPath     string
	LDAP         source.LDAPConfig
	ExcludeTeams []string
}

// Flags returns CLI flags for Source configuration
func (s *Source) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "source",
			Usage:       "Identity source type (csv, yaml, ldap)",
			Category:    "Source",
			Value:       SourceCSV,
			Sources:     cli.EnvVars("ORGSYNC_SOURCE"),
			Destination: &s.Type,
		},
		&cli.StringFlag{
			Name:        "users-csv",
			Usage:       "CSV file of users (ref_id, name, email, phone_number)",
			Category:    "Source",
			Sources:     cli.EnvVars("ORGSYNC_USERS_CSV"),
			Destination: &s.UsersCSV,
		},
		&cli.StringFlag{
			Name:        "teams-csv",
			Usage:       "CSV file of teams (obj_id, name, parent_id, user_ref_ids)",
			Category:    "Source",
			Sources:     cli.EnvVars("ORGSYNC_TEAMS_CSV"),
			Destination: &s.TeamsCSV,
		},
		&cli.StringFlag{
			Name:        "source-yaml",
			Usage:       "YAML file with users and teams",
			Category:    "Source",
			Sources:     cli.EnvVars("ORGSYNC_SOURCE_YAML"),
			Destination: &s.YAMLPath,
		},
		&cli.StringFlag{
			Name:        "ldap-url",
			Usage:       "LDAP server URL (ldap:// or ldaps://)",
			Category:    "Source",
			Sources:     cli.EnvVars("ORGSYNC_LDAP_URL"),
			Destination: &s.LDAP.URL,
		},
		&cli.StringFlag{
			Name:        "ldap-bind-dn",
			Usage:       "LDAP bind DN",
			Category:    "Source",
			Sources:     cli.EnvVars("ORGSYNC_LDAP_BIND_DN"),
			Destination: &s.LDAP.BindDN,
		},
		&cli.StringFlag{
			Name:        "ldap-bind-password",
			Usage:       "LDAP bind password",
			Category:    "Source",
			Sources:     cli.EnvVars("ORGSYNC_LDAP_BIND_PASSWORD"),
			Destination: &s.LDAP.BindPassword,
		},
		&cli.StringFlag{
			Name:        "ldap-user-base-dn",
			Usage:       "Base DN searched for users",
			Category:    "Source",
			Sources:     cli.EnvVars("ORGSYNC_LDAP_USER_BASE_DN"),
			Destination: &s.LDAP.UserBaseDN,
		},
		&cli.StringFlag{
			Name:        "ldap-group-base-dn",
			Usage:       "Base DN searched for teams",
			Category:    "Source",
			Sources:     cli.EnvVars("ORGSYNC_LDAP_GROUP_BASE_DN"),
			Destination: &s.LDAP.GroupBaseDN,
		},
		&cli.StringFlag{
			Name:        "ldap-user-filter",
			Usage:       "LDAP filter for users",
			Category:    "Source",
			Sources:     cli.EnvVars("ORGSYNC_LDAP_USER_FILTER"),
			Destination: &s.LDAP.UserFilter,
		},
		&cli.StringFlag{
			Name:        "ldap-group-filter",
			Usage:       "LDAP filter for teams",
			Category:    "Source",
			Sources:     cli.EnvVars("ORGSYNC_LDAP_GROUP_FILTER"),
			Destination: &s.LDAP.GroupFilter,
		},
		&cli.BoolFlag{
			Name:        "ldap-insecure-skip-verify",
			Usage:       "Skip TLS certificate verification for ldaps://",
			Category:    "Source",
			Sources:     cli.EnvVars("ORGSYNC_LDAP_INSECURE_SKIP_VERIFY"),
			Destination: &s.LDAP.InsecureSkipVerify,
		},
		&cli.StringSliceFlag{
			Name:        "exclude-team",
			Usage:       "Source team ref ID to leave out of synchronization (repeatable)",
			Category:    "Source",
			Sources:     cli.EnvVars("ORGSYNC_TEAMS_TO_EXCLUDE"),
			Destination: &s.ExcludeTeams,
		},
	}
}

// Configure creates the identity source
func (s *Source) Configure() (interfaces.IdentitySource, error) {
	switch s.Type {
	case SourceCSV:
		if s.UsersCSV == "" || s.TeamsCSV == "" {
			return nil, goerr.New("users-csv and teams-csv are required for the csv source", goerr.T(model.ErrTagConfig))
		}
		return source.NewCSV(s.UsersCSV, s.TeamsCSV), nil

	case SourceYAML:
		if s.YAMLPath == "" {
			return nil, goerr.New("source-yaml is required for the yaml source", goerr.T(model.ErrTagConfig))
		}
		return source.NewYAML(s.YAMLPath), nil

	case SourceLDAP:
		if s.LDAP.URL == "" || s.LDAP.UserBaseDN == "" || s.LDAP.GroupBaseDN == "" {
			return nil, goerr.New("ldap-url, ldap-user-base-dn and ldap-group-base-dn are required for the ldap source",
				goerr.T(model.ErrTagConfig))
		}
		return source.NewLDAP(s.LDAP, nil), nil
	}

	return nil, goerr.New("unknown source type", goerr.V("source", s.Type), goerr.T(model.ErrTagConfig))
}

// ExcludedRefIDs returns the excluded team ref IDs
func (s *Source) ExcludedRefIDs() []types.RefID {
	ids := make([]types.RefID, 0, len(s.ExcludeTeams))
	for _, id := range s.ExcludeTeams {
		if id != "" {
			ids = append(ids, types.RefID(id))
		}
	}
	return ids
}

// LogValue returns structured log value
func (s Source) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("type", s.Type),
		slog.Any("exclude_teams", s.ExcludeTeams),
	}
	switch s.Type {
	case SourceCSV:
		attrs = append(attrs, slog.String("users_csv", s.UsersCSV), slog.String("teams_csv", s.TeamsCSV))
	case SourceYAML:
		attrs = append(attrs, slog.String("yaml", s.YAMLPath))
	case SourceLDAP:
		attrs = append(attrs,
			slog.String("ldap_url", s.LDAP.URL),
			slog.String("ldap_bind_dn", s.LDAP.BindDN),
			slog.String("ldap_user_base_dn", s.LDAP.UserBaseDN),
			slog.String("ldap_group_base_dn", s.LDAP.GroupBaseDN),
		)
	}
	return slog.GroupValue(attrs...)
}
