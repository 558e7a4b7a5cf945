package config_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/orgsync/pkg/cli/config"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
)

type nopStarter struct{}

func (nopStarter) Start(ctx context.Context, trigger types.Trigger) bool { return true }

func TestSourceConfigure(t *testing.T) {
	t.Run("csv requires both files", func(t *testing.T) {
		cfg := config.Source{Type: config.SourceCSV, UsersCSV: "users.csv"}
		_, err := cfg.Configure()
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, model.ErrTagConfig))
	})

	t.Run("csv", func(t *testing.T) {
		cfg := config.Source{Type: config.SourceCSV, UsersCSV: "users.csv", TeamsCSV: "teams.csv"}
		src, err := cfg.Configure()
		gt.NoError(t, err).Required()
		gt.NotEqual(t, src, nil)
	})

	t.Run("yaml", func(t *testing.T) {
		cfg := config.Source{Type: config.SourceYAML, YAMLPath: "org.yaml"}
		_, err := cfg.Configure()
		gt.NoError(t, err)
	})

	t.Run("ldap requires base DNs", func(t *testing.T) {
		cfg := config.Source{Type: config.SourceLDAP}
		cfg.LDAP.URL = "ldap://localhost"
		_, err := cfg.Configure()
		gt.Error(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		cfg := config.Source{Type: "excel"}
		_, err := cfg.Configure()
		gt.Error(t, err)
	})
}

func TestSourceExcludedRefIDs(t *testing.T) {
	cfg := config.Source{ExcludeTeams: []string{"t1", "", "t2"}}
	gt.Equal(t, cfg.ExcludedRefIDs(), []types.RefID{"t1", "t2"})
}

func TestPolicy(t *testing.T) {
	p := config.Policy{
		ProvisionUsers: true,
		Language:       "ja",
		Timezone:       "Asia/Tokyo",
		TeamRemoval:    "archive",
	}
	gt.NoError(t, p.Validate())
	gt.True(t, p.UserPolicy().ProvisionUsers)
	gt.Equal(t, p.UserPolicy().Language, "ja")
	gt.Equal(t, p.UserPolicy().Timezone, "Asia/Tokyo")
	gt.Equal(t, string(p.TeamPolicy().Removal), "archive")

	p.TeamRemoval = "shred"
	gt.Error(t, p.Validate())
}

func TestScheduleConfigure(t *testing.T) {
	t.Run("empty schedule disables scheduler", func(t *testing.T) {
		cfg := config.Schedule{TimeZone: "UTC"}
		s, err := cfg.Configure(nopStarter{})
		gt.NoError(t, err)
		gt.True(t, s == nil)
	})

	t.Run("valid", func(t *testing.T) {
		cfg := config.Schedule{Daily: "03:30", TimeZone: "Asia/Tokyo", Poll: time.Second}
		s, err := cfg.Configure(nopStarter{})
		gt.NoError(t, err)
		gt.False(t, s == nil)
	})

	t.Run("invalid time zone", func(t *testing.T) {
		cfg := config.Schedule{Daily: "03:30", TimeZone: "Mars/Olympus"}
		_, err := cfg.Configure(nopStarter{})
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, model.ErrTagConfig))
	})

	t.Run("invalid time", func(t *testing.T) {
		cfg := config.Schedule{Daily: "25:00", TimeZone: "UTC"}
		_, err := cfg.Configure(nopStarter{})
		gt.Error(t, err)
	})
}

func TestServerRedirectURL(t *testing.T) {
	gt.Equal(t, (&config.Server{}).RedirectURL(), "")
	gt.Equal(t, (&config.Server{PublicURL: "https://sync.example.com/"}).RedirectURL(),
		"https://sync.example.com/api/auth/callback")
}

func TestStoreConfigure(t *testing.T) {
	t.Run("memory without settings", func(t *testing.T) {
		repo, err := (&config.Store{}).Configure(context.Background())
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.Close())
	})

	t.Run("firestore and postgres are exclusive", func(t *testing.T) {
		cfg := config.Store{FirestoreProject: "p", PostgresDSN: "postgres://localhost/db"}
		_, err := cfg.Configure(context.Background())
		gt.Error(t, err)
	})
}

func TestDestinationFactory(t *testing.T) {
	cfg := config.Destination{ClientID: "id", ClientSecret: "secret", BaseURL: "https://api.example.com"}
	oauth, err := cfg.OAuth("")
	gt.NoError(t, err).Required()

	repo, err := (&config.Store{}).Configure(context.Background())
	gt.NoError(t, err).Required()

	factory := cfg.Factory(oauth, repo, nil)
	_, err = factory(context.Background(), &model.Credential{})
	gt.Error(t, err)

	_, err = (&config.Destination{}).OAuth("")
	gt.Error(t, err)
}

func TestLogValueRedactsSecrets(t *testing.T) {
	v := config.Destination{ClientID: "id", ClientSecret: "very-secret"}.LogValue()
	gt.False(t, strings.Contains(v.String(), "very-secret"))
}

func TestLoggerConfigure(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := config.Logger{Level: "info", Format: "json"}
		logger, err := cfg.Configure()
		gt.NoError(t, err)
		gt.False(t, logger == nil)
	})

	t.Run("invalid level", func(t *testing.T) {
		cfg := config.Logger{Level: "verbose"}
		_, err := cfg.Configure()
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, model.ErrTagConfig))
	})

	t.Run("invalid format", func(t *testing.T) {
		cfg := config.Logger{Level: "debug", Format: "xml"}
		gt.Error(t, cfg.Validate())
	})

	t.Run("file output", func(t *testing.T) {
		cfg := config.Logger{Level: "warn", Output: t.TempDir() + "/orgsync.log"}
		logger, err := cfg.Configure()
		gt.NoError(t, err).Required()
		logger.Warn("written to file")
	})
}
