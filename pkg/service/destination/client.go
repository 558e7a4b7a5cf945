package destination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/service/metrics"
)

const (
	// DefaultBaseURL is the destination host serving both the REST API and OAuth
	DefaultBaseURL = "https://openapi.swit.io"
	// DefaultSCIMURL is the SCIM endpoint used for user profile updates
	DefaultSCIMURL = "https://saml.swit.io/scim/v2"
	// DefaultPacing is the pause after every mutating call
	DefaultPacing = 200 * time.Millisecond

	apiPath            = "/v1/api"
	maxRateLimitTries  = 5
	defaultHTTPTimeout = 10 * time.Second
)

// APIError is a non-2xx response from the destination
type APIError struct {
	Status int
	Body   string
	Method string
	URL    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("destination API %s %s returned %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// CredentialStore persists a refreshed credential
type CredentialStore interface {
	PutCredential(ctx context.Context, cred *model.Credential) error
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client is an authenticated, rate-limit aware caller of the destination API.
// The held credential is refreshed at most once per call on 401.
type Client struct {
	baseURL    string
	httpClient *http.Client
	refresher  interfaces.TokenRefresher
	store      CredentialStore
	sleep      SleepFunc
	pacing     time.Duration
	metrics    *metrics.Collector

	mu   sync.Mutex
	cred *model.Credential
}

// Option configures Client
type Option func(*Client)

// WithBaseURL overrides the destination host (without the /v1/api path)
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSleep replaces the function used for backoff and pacing waits
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// WithPacing sets the pause after mutating calls
func WithPacing(d time.Duration) Option {
	return func(c *Client) {
		c.pacing = d
	}
}

// WithCredentialStore persists the credential after each refresh
func WithCredentialStore(store CredentialStore) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithMetrics records request and retry metrics
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a Client holding cred. cred is updated in place when the
// access token is refreshed.
func NewClient(cred *model.Credential, refresher interfaces.TokenRefresher, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		refresher:  refresher,
		sleep:      sleepContext,
		pacing:     DefaultPacing,
		cred:       cred,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call sends one API request and decodes the JSON response into out when out
// is not nil. target is either a path relative to the API base or an absolute
// URL used verbatim.
func (c *Client) Call(ctx context.Context, method, target string, body, out any) error {
	logger := ctxlog.From(ctx)
	url := c.resolve(target)

	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal request body",
				goerr.V("method", method),
				goerr.V("url", url))
		}
		payload = raw
	}

	refreshed := false
	rateLimited := 0
	for {
		token := c.accessToken()
		status, respBody, err := c.send(ctx, method, url, token, payload)
		if err != nil {
			return err
		}

		switch {
		case status == http.StatusUnauthorized:
			if refreshed {
				return goerr.Wrap(c.apiError(status, respBody, method, url), "still unauthorized after token refresh",
					goerr.T(model.ErrTagAuth))
			}
			if err := c.refresh(ctx, token); err != nil {
				return err
			}
			refreshed = true
			c.metrics.RecordAPIRetry("unauthorized")
			logger.Info("Access token refreshed", "method", method, "url", url)
			continue

		case status == http.StatusTooManyRequests:
			rateLimited++
			if rateLimited >= maxRateLimitTries {
				return goerr.Wrap(c.apiError(status, respBody, method, url), "rate limited past retry ceiling",
					goerr.V("attempts", rateLimited),
					goerr.T(model.ErrTagRateLimited))
			}
			wait := time.Duration(rateLimited) * time.Second
			c.metrics.RecordAPIRetry("rate_limited")
			logger.Info("Too many requests, waiting",
				"method", method,
				"url", url,
				"wait", wait,
			)
			if err := c.sleep(ctx, wait); err != nil {
				return goerr.Wrap(err, "interrupted while waiting for rate limit")
			}
			continue

		case status < 200 || status >= 300:
			logger.Warn("Destination API request failed",
				"method", method,
				"url", url,
				"status", status,
				"request", string(payload),
				"response", string(respBody),
			)
			opts := []goerr.Option{goerr.T(model.ErrTagAPI)}
			if status == http.StatusNotFound {
				opts = append(opts, goerr.T(model.ErrTagNotFound))
			}
			return goerr.Wrap(c.apiError(status, respBody, method, url), "destination API returned error", opts...)
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return goerr.Wrap(err, "failed to decode response",
					goerr.V("method", method),
					goerr.V("url", url),
					goerr.V("body", string(respBody)))
			}
		}

		if method != http.MethodGet {
			if err := c.sleep(ctx, c.pacing); err != nil {
				logger.Debug("pacing interrupted", "error", err)
			}
		}
		return nil
	}
}

// Credential returns a copy of the credential currently held
func (c *Client) Credential() model.Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.cred
}

func (c *Client) resolve(target string) string {
	if strings.HasPrefix(target, "https://") || strings.HasPrefix(target, "http://") {
		return target
	}
	return c.baseURL + apiPath + target
}

func (c *Client) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred.AccessToken
}

func (c *Client) send(ctx context.Context, method, url, token string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, goerr.Wrap(err, "failed to create request",
			goerr.V("method", method),
			goerr.V("url", url))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, goerr.Wrap(err, "failed to send request",
			goerr.V("method", method),
			goerr.V("url", url))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, goerr.Wrap(err, "failed to read response body",
			goerr.V("method", method),
			goerr.V("url", url),
			goerr.V("status", resp.StatusCode))
	}
	c.metrics.RecordAPIResponse(method, resp.StatusCode, time.Since(started))

	return resp.StatusCode, respBody, nil
}

// refresh exchanges the refresh token for a new access token. rejected is
// the access token that got the 401; when another caller has already
// replaced it, nothing is refreshed.
func (c *Client) refresh(ctx context.Context, rejected string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cred.AccessToken != rejected {
		return nil
	}

	if c.refresher == nil {
		return goerr.New("access token expired and no refresher is configured",
			goerr.T(model.ErrTagAuth))
	}

	fresh, err := c.refresher.Refresh(ctx, c.cred.RefreshToken)
	if err != nil {
		return goerr.Wrap(err, "failed to refresh access token",
			goerr.T(model.ErrTagAuth))
	}

	c.cred.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		c.cred.RefreshToken = fresh.RefreshToken
	}
	c.cred.UpdatedAt = time.Now()

	if c.store != nil {
		saved := *c.cred
		if err := c.store.PutCredential(ctx, &saved); err != nil {
			ctxlog.From(ctx).Error("failed to persist refreshed credential", "error", err)
		}
	}

	return nil
}

func (c *Client) apiError(status int, body []byte, method, url string) *APIError {
	return &APIError{
		Status: status,
		Body:   string(body),
		Method: method,
		URL:    url,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
