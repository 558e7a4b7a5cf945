package usecase_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/repository"
	"github.com/secmon-lab/orgsync/pkg/usecase"
)

type fakeOAuth struct {
	codes []string
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://openapi.example.com/oauth/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeOAuth) Exchange(ctx context.Context, code string) (*model.Credential, error) {
	f.codes = append(f.codes, code)
	if code != "good-code" {
		return nil, goerr.New("invalid_grant", goerr.T(model.ErrTagAuth))
	}
	return &model.Credential{AccessToken: "at", RefreshToken: "rt", UpdatedAt: time.Now()}, nil
}

func stateOf(t *testing.T, loginURL string) string {
	t.Helper()
	u, err := url.Parse(loginURL)
	gt.NoError(t, err).Required()
	state := u.Query().Get("state")
	gt.NotEqual(t, state, "")
	return state
}

func TestAuthLoginAndCallback(t *testing.T) {
	ctx := testContext()
	repo := repository.NewMemory()
	oauth := &fakeOAuth{}
	auth, err := usecase.NewAuth(repo, oauth, []byte("state-secret"))
	gt.NoError(t, err).Required()

	loginURL, err := auth.LoginURL(ctx)
	gt.NoError(t, err).Required()
	state := stateOf(t, loginURL)

	gt.NoError(t, auth.Callback(ctx, state, "good-code")).Required()
	gt.Equal(t, oauth.codes, []string{"good-code"})

	cred, err := repo.GetCredential(ctx)
	gt.NoError(t, err).Required()
	gt.Equal(t, cred.AccessToken, "at")
	gt.Equal(t, cred.RefreshToken, "rt")

	t.Run("rejected code is not stored", func(t *testing.T) {
		repo := repository.NewMemory()
		auth, err := usecase.NewAuth(repo, oauth, []byte("state-secret"))
		gt.NoError(t, err).Required()

		loginURL, err := auth.LoginURL(ctx)
		gt.NoError(t, err).Required()

		gt.Error(t, auth.Callback(ctx, stateOf(t, loginURL), "bad-code"))
		_, err = repo.GetCredential(ctx)
		gt.True(t, errors.Is(err, model.ErrCredentialNotFound))
	})
}

func TestAuthInvalidState(t *testing.T) {
	ctx := testContext()
	oauth := &fakeOAuth{}
	auth, err := usecase.NewAuth(repository.NewMemory(), oauth, []byte("state-secret"))
	gt.NoError(t, err).Required()

	t.Run("signed with another secret", func(t *testing.T) {
		other, err := usecase.NewAuth(repository.NewMemory(), oauth, []byte("other-secret"))
		gt.NoError(t, err).Required()
		loginURL, err := other.LoginURL(ctx)
		gt.NoError(t, err).Required()

		err = auth.Callback(ctx, stateOf(t, loginURL), "good-code")
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, model.ErrTagAuth))
	})

	t.Run("expired", func(t *testing.T) {
		loginURL, err := auth.LoginURL(ctx)
		gt.NoError(t, err).Required()

		usecase.SetAuthClock(auth, func() time.Time { return time.Now().Add(usecase.StateTTL + time.Minute) })
		defer usecase.SetAuthClock(auth, time.Now)

		gt.Error(t, auth.Callback(ctx, stateOf(t, loginURL), "good-code"))
	})

	t.Run("garbage", func(t *testing.T) {
		gt.Error(t, auth.Callback(ctx, "not-a-jwt", "good-code"))
	})

	t.Run("missing code", func(t *testing.T) {
		loginURL, err := auth.LoginURL(ctx)
		gt.NoError(t, err).Required()
		gt.Error(t, auth.Callback(ctx, stateOf(t, loginURL), ""))
	})

	gt.Equal(t, len(oauth.codes), 0)
}

func TestNewAuthRequiresSecret(t *testing.T) {
	_, err := usecase.NewAuth(repository.NewMemory(), &fakeOAuth{}, nil)
	gt.Error(t, err)
	gt.True(t, model.IsRunFatal(err))
}
