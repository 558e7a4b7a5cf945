package http_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/prometheus/client_golang/prometheus"
	controller "github.com/secmon-lab/orgsync/pkg/controller/http"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
	"github.com/secmon-lab/orgsync/pkg/repository"
	"github.com/secmon-lab/orgsync/pkg/service/metrics"
	"golang.org/x/time/rate"
)

type fakeGate struct {
	mu       sync.Mutex
	busy     bool
	triggers []types.Trigger
	last     *model.Run
}

func (g *fakeGate) Start(ctx context.Context, trigger types.Trigger) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return false
	}
	g.busy = true
	g.triggers = append(g.triggers, trigger)
	return true
}

func (g *fakeGate) InProgress() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}

func (g *fakeGate) LastRun() *model.Run {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

type fakeAuth struct {
	state string
	code  string
}

func (a *fakeAuth) LoginURL(ctx context.Context) (string, error) {
	return "https://openapi.example.com/oauth/authorize?state=signed", nil
}

func (a *fakeAuth) Callback(ctx context.Context, state, code string) error {
	if state != "signed" {
		return goerr.New("invalid OAuth state", goerr.T(model.ErrTagAuth))
	}
	a.state, a.code = state, code
	return nil
}

func testContext() context.Context {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return ctxlog.With(context.Background(), logger)
}

func newTestServer(t *testing.T, cfg *controller.Config, gate *fakeGate, auth *fakeAuth) *controller.Server {
	t.Helper()
	uc := controller.NewUseCases(gate, nil)
	if auth != nil {
		uc = controller.NewUseCases(gate, auth)
	}
	server, err := controller.NewServer(testContext(), cfg, uc)
	gt.NoError(t, err).Required()
	return server
}

func serve(server *controller.Server, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	server.Handler.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, &controller.Config{}, &fakeGate{}, nil)

	w := serve(server, http.MethodGet, "/health", nil)
	gt.Equal(t, w.Code, http.StatusOK)
	gt.S(t, w.Body.String()).Contains(`"status":"healthy"`)
}

func TestSyncTrigger(t *testing.T) {
	gate := &fakeGate{}
	server := newTestServer(t, &controller.Config{SecretKey: "s3cret"}, gate, nil)
	auth := map[string]string{controller.SecretKeyHeader: "s3cret"}

	t.Run("missing secret", func(t *testing.T) {
		w := serve(server, http.MethodPost, "/api/sync", nil)
		gt.Equal(t, w.Code, http.StatusUnauthorized)
		gt.Equal(t, len(gate.triggers), 0)
	})

	t.Run("wrong secret", func(t *testing.T) {
		w := serve(server, http.MethodPost, "/api/sync", map[string]string{controller.SecretKeyHeader: "nope"})
		gt.Equal(t, w.Code, http.StatusUnauthorized)
	})

	t.Run("accepted", func(t *testing.T) {
		w := serve(server, http.MethodPost, "/api/sync", auth)
		gt.Equal(t, w.Code, http.StatusAccepted)
		gt.S(t, w.Body.String()).Contains(`"started":true`)
		gt.Equal(t, gate.triggers, []types.Trigger{types.TriggerHTTP})
	})

	t.Run("already running", func(t *testing.T) {
		w := serve(server, http.MethodPost, "/api/sync", auth)
		gt.Equal(t, w.Code, http.StatusConflict)
		gt.S(t, w.Body.String()).Contains(`"started":false`)
		gt.Equal(t, len(gate.triggers), 1)
	})
}

func TestSyncStatus(t *testing.T) {
	run, err := model.NewRun(types.TriggerSchedule)
	gt.NoError(t, err).Required()
	run.Stats.TeamsCreated = 3
	run.Finish(nil)

	gate := &fakeGate{last: run}
	server := newTestServer(t, &controller.Config{}, gate, nil)

	w := serve(server, http.MethodGet, "/api/sync/status", nil)
	gt.Equal(t, w.Code, http.StatusOK)

	var resp struct {
		InProgress bool       `json:"in_progress"`
		LastRun    *model.Run `json:"last_run"`
	}
	gt.NoError(t, json.NewDecoder(w.Body).Decode(&resp)).Required()
	gt.False(t, resp.InProgress)
	gt.Equal(t, resp.LastRun.ID, run.ID)
	gt.Equal(t, resp.LastRun.State, model.RunStateSucceeded)
	gt.Equal(t, resp.LastRun.Stats.TeamsCreated, 3)

	t.Run("no run yet", func(t *testing.T) {
		server := newTestServer(t, &controller.Config{}, &fakeGate{}, nil)
		w := serve(server, http.MethodGet, "/api/sync/status", nil)
		gt.S(t, w.Body.String()).Contains(`"last_run":null`)
	})
}

func TestSyncRateLimit(t *testing.T) {
	server := newTestServer(t, &controller.Config{TriggerRate: rate.Limit(0.5), TriggerBurst: 2}, &fakeGate{}, nil)

	gt.Equal(t, serve(server, http.MethodGet, "/api/sync/status", nil).Code, http.StatusOK)
	gt.Equal(t, serve(server, http.MethodGet, "/api/sync/status", nil).Code, http.StatusOK)

	w := serve(server, http.MethodGet, "/api/sync/status", nil)
	gt.Equal(t, w.Code, http.StatusTooManyRequests)
	gt.Equal(t, w.Header().Get("Retry-After"), "2")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	c.RecordRunStarted()

	server := newTestServer(t, &controller.Config{Gatherer: reg}, &fakeGate{}, nil)
	w := serve(server, http.MethodGet, "/metrics", nil)
	gt.Equal(t, w.Code, http.StatusOK)
	gt.S(t, w.Body.String()).Contains("orgsync_run_in_progress 1")

	t.Run("disabled without gatherer", func(t *testing.T) {
		server := newTestServer(t, &controller.Config{}, &fakeGate{}, nil)
		gt.Equal(t, serve(server, http.MethodGet, "/metrics", nil).Code, http.StatusNotFound)
	})
}

func TestCORS(t *testing.T) {
	server := newTestServer(t, &controller.Config{CORSOrigins: []string{"https://admin.example.com"}}, &fakeGate{}, nil)

	w := serve(server, http.MethodOptions, "/api/sync/status", map[string]string{
		"Origin":                         "https://admin.example.com",
		"Access-Control-Request-Method":  http.MethodGet,
		"Access-Control-Request-Headers": controller.SecretKeyHeader,
	})
	gt.Equal(t, w.Header().Get("Access-Control-Allow-Origin"), "https://admin.example.com")

	w = serve(server, http.MethodGet, "/health", map[string]string{"Origin": "https://evil.example.com"})
	gt.Equal(t, w.Header().Get("Access-Control-Allow-Origin"), "")
}

func TestAuthEndpoints(t *testing.T) {
	auth := &fakeAuth{}
	server := newTestServer(t, &controller.Config{}, &fakeGate{}, auth)

	t.Run("login redirects to consent page", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/api/auth/login", nil)
		gt.Equal(t, w.Code, http.StatusTemporaryRedirect)
		gt.Equal(t, w.Header().Get("Location"), "https://openapi.example.com/oauth/authorize?state=signed")
	})

	t.Run("callback stores credential", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/api/auth/callback?state=signed&code=abc", nil)
		gt.Equal(t, w.Code, http.StatusOK)
		gt.Equal(t, auth.code, "abc")
	})

	t.Run("invalid state is a bad request", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/api/auth/callback?state=forged&code=abc", nil)
		gt.Equal(t, w.Code, http.StatusBadRequest)
	})

	t.Run("denied consent", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/api/auth/callback?error=access_denied", nil)
		gt.Equal(t, w.Code, http.StatusBadRequest)
	})

	t.Run("not mounted without auth use case", func(t *testing.T) {
		server := newTestServer(t, &controller.Config{}, &fakeGate{}, nil)
		gt.Equal(t, serve(server, http.MethodGet, "/api/auth/login", nil).Code, http.StatusNotFound)
	})
}

func TestNewServerRequiresGate(t *testing.T) {
	_, err := controller.NewServer(testContext(), &controller.Config{}, controller.NewUseCases(nil, nil))
	gt.Error(t, err)
}

func TestSyncRuns(t *testing.T) {
	ctx := testContext()
	repo := repository.NewMemory()

	older, err := model.NewRun(types.TriggerSchedule)
	gt.NoError(t, err).Required()
	older.Finish(nil)
	gt.NoError(t, repo.PutRun(ctx, older))

	newer, err := model.NewRun(types.TriggerHTTP)
	gt.NoError(t, err).Required()
	newer.StartedAt = older.StartedAt.Add(time.Minute)
	newer.Finish(goerr.New("destination is not authorized yet"))
	gt.NoError(t, repo.PutRun(ctx, newer))

	uc := controller.NewUseCases(&fakeGate{}, nil).WithRunHistory(repo)
	server, err := controller.NewServer(ctx, &controller.Config{SecretKey: "s3cret"}, uc)
	gt.NoError(t, err).Required()
	auth := map[string]string{controller.SecretKeyHeader: "s3cret"}

	t.Run("list newest first", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/api/sync/runs", auth)
		gt.Equal(t, w.Code, http.StatusOK)

		var resp struct {
			Runs []*model.Run `json:"runs"`
		}
		gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp)).Required()
		gt.Equal(t, len(resp.Runs), 2)
		gt.Equal(t, resp.Runs[0].ID, newer.ID)
		gt.Equal(t, resp.Runs[0].State, model.RunStateFailed)
	})

	t.Run("limit", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/api/sync/runs?limit=1", auth)
		gt.Equal(t, w.Code, http.StatusOK)
		gt.S(t, w.Body.String()).Contains(newer.ID.String())
		gt.False(t, strings.Contains(w.Body.String(), older.ID.String()))
	})

	t.Run("invalid limit", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/api/sync/runs?limit=zero", auth)
		gt.Equal(t, w.Code, http.StatusBadRequest)
	})

	t.Run("get one", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/api/sync/runs/"+older.ID.String(), auth)
		gt.Equal(t, w.Code, http.StatusOK)
		gt.S(t, w.Body.String()).Contains(`"state":"succeeded"`)
	})

	t.Run("unknown run", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/api/sync/runs/missing", auth)
		gt.Equal(t, w.Code, http.StatusNotFound)
	})

	t.Run("requires secret", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/api/sync/runs", nil)
		gt.Equal(t, w.Code, http.StatusUnauthorized)
	})
}
