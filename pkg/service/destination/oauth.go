package destination

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"golang.org/x/oauth2"
)

// OAuthScopes are the permissions requested for the service account
var OAuthScopes = []string{"user:read", "admin:read", "admin:write"}

// OAuth performs the authorization code grant and refresh grant
type OAuth struct {
	config     *oauth2.Config
	httpClient *http.Client
}

var _ interfaces.TokenRefresher = (*OAuth)(nil)

// NewOAuth creates an OAuth client for the destination at baseURL.
// Client credentials are sent in the request body, as the destination expects.
func NewOAuth(baseURL, clientID, clientSecret, redirectURL string) *OAuth {
	baseURL = strings.TrimRight(baseURL, "/")
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       OAuthScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   baseURL + "/oauth/authorize",
				TokenURL:  baseURL + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// WithHTTPClient replaces the HTTP client used for token requests
func (o *OAuth) WithHTTPClient(hc *http.Client) *OAuth {
	o.httpClient = hc
	return o
}

// AuthCodeURL returns the consent page URL carrying state
func (o *OAuth) AuthCodeURL(state string) string {
	return o.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a credential
func (o *OAuth) Exchange(ctx context.Context, code string) (*model.Credential, error) {
	token, err := o.config.Exchange(o.withClient(ctx), code)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to exchange authorization code",
			goerr.T(model.ErrTagAuth))
	}
	return toCredential(token)
}

// Refresh trades a refresh token for a new credential
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (*model.Credential, error) {
	if refreshToken == "" {
		return nil, goerr.New("refresh token is empty", goerr.T(model.ErrTagAuth))
	}

	src := o.config.TokenSource(o.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to refresh token", goerr.T(model.ErrTagAuth))
	}

	cred, err := toCredential(token)
	if err != nil {
		return nil, err
	}
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}
	return cred, nil
}

func (o *OAuth) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
}

func toCredential(token *oauth2.Token) (*model.Credential, error) {
	if token.AccessToken == "" {
		return nil, goerr.New("token response has no access token", goerr.T(model.ErrTagAuth))
	}
	return &model.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		UpdatedAt:    time.Now(),
	}, nil
}
