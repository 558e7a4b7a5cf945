package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
)

const (
	stateIssuer   = "orgsync"
	stateAudience = "oauth-callback"
	// StateTTL bounds the time between login and callback
	StateTTL = 10 * time.Minute
)

// Auth implements AuthUseCase with an HS256-signed state parameter
type Auth struct {
	repo   interfaces.Repository
	oauth  OAuthProvider
	secret []byte
	now    func() time.Time
}

var _ AuthUseCase = (*Auth)(nil)

// NewAuth creates a new Auth use case. secret signs the OAuth state.
func NewAuth(repo interfaces.Repository, oauth OAuthProvider, secret []byte) (*Auth, error) {
	if len(secret) == 0 {
		return nil, goerr.New("state signing secret is required", goerr.T(model.ErrTagConfig))
	}
	return &Auth{
		repo:   repo,
		oauth:  oauth,
		secret: secret,
		now:    time.Now,
	}, nil
}

// LoginURL returns the consent page URL carrying a signed state
func (a *Auth) LoginURL(ctx context.Context) (string, error) {
	now := a.now()
	token, err := jwt.NewBuilder().
		Issuer(stateIssuer).
		Audience([]string{stateAudience}).
		JwtID(uuid.NewString()).
		IssuedAt(now).
		Expiration(now.Add(StateTTL)).
		Build()
	if err != nil {
		return "", goerr.Wrap(err, "failed to build state token")
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, a.secret))
	if err != nil {
		return "", goerr.Wrap(err, "failed to sign state token")
	}

	return a.oauth.AuthCodeURL(string(signed)), nil
}

// Callback verifies state, exchanges code and stores the credential
func (a *Auth) Callback(ctx context.Context, state, code string) error {
	logger := ctxlog.From(ctx)

	if code == "" {
		return goerr.New("authorization code is required", goerr.T(model.ErrTagAuth))
	}

	if _, err := jwt.Parse([]byte(state),
		jwt.WithKey(jwa.HS256, a.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(stateIssuer),
		jwt.WithAudience(stateAudience),
		jwt.WithClock(jwt.ClockFunc(a.now)),
	); err != nil {
		return goerr.Wrap(err, "invalid OAuth state", goerr.T(model.ErrTagAuth))
	}

	cred, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return err
	}

	if err := a.repo.PutCredential(ctx, cred); err != nil {
		return goerr.Wrap(err, "failed to save destination credential")
	}

	logger.Info("Destination credential stored", "updated_at", cred.UpdatedAt)
	return nil
}
