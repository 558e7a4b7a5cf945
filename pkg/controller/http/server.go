package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
	"github.com/secmon-lab/orgsync/pkg/service/metrics"
	"github.com/secmon-lab/orgsync/pkg/usecase"
	"golang.org/x/time/rate"
)

// Config holds the HTTP server settings
type Config struct {
	Addr string
	// SecretKey protects the trigger and status endpoints through the
	// X-Secret-Key header. Empty disables the check.
	SecretKey   string
	CORSOrigins []string
	// TriggerRate and TriggerBurst bound requests to the sync endpoints
	TriggerRate  rate.Limit
	TriggerBurst int
	// Gatherer is exposed on /metrics when set
	Gatherer prometheus.Gatherer
}

// RunHistory reads persisted run records
type RunHistory interface {
	GetRun(ctx context.Context, id types.RunID) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*model.Run, error)
}

// UseCases bundles the use cases served over HTTP. Auth may be nil when
// OAuth login is not configured.
type UseCases struct {
	gate usecase.GateUseCase
	auth usecase.AuthUseCase
	runs RunHistory
}

// NewUseCases creates a UseCases
func NewUseCases(gate usecase.GateUseCase, auth usecase.AuthUseCase) *UseCases {
	return &UseCases{gate: gate, auth: auth}
}

// WithRunHistory exposes persisted runs under /api/sync/runs
func (u *UseCases) WithRunHistory(runs RunHistory) *UseCases {
	u.runs = runs
	return u
}

// Server represents the HTTP server
type Server struct {
	*http.Server
	router chi.Router
}

// NewServer creates a new HTTP server
func NewServer(ctx context.Context, cfg *Config, uc *UseCases) (*Server, error) {
	if cfg == nil || uc == nil || uc.gate == nil {
		return nil, goerr.New("server config and sync gate are required")
	}

	router := chi.NewRouter()

	// Apply global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggingMiddleware(ctx))
	router.Use(middleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", SecretKeyHeader},
			MaxAge:         300,
		}))
	}

	syncHandler := NewSyncHandler(uc.gate, uc.runs)

	// Health check
	router.Get("/health", handleHealth)

	if cfg.Gatherer != nil {
		router.Handle("/metrics", metrics.Handler(cfg.Gatherer))
	}

	// API routes
	router.Route("/api", func(r chi.Router) {
		r.Route("/sync", func(r chi.Router) {
			r.Use(RequireSecret(cfg.SecretKey))
			if cfg.TriggerRate > 0 {
				r.Use(RateLimit(rate.NewLimiter(cfg.TriggerRate, max(cfg.TriggerBurst, 1))))
			}
			r.Post("/", syncHandler.HandleTrigger)
			r.Get("/status", syncHandler.HandleStatus)
			if uc.runs != nil {
				r.Get("/runs", syncHandler.HandleListRuns)
				r.Get("/runs/{id}", syncHandler.HandleGetRun)
			}
		})

		if uc.auth != nil {
			authHandler := NewAuthHandler(uc.auth)
			r.Route("/auth", func(r chi.Router) {
				r.Get("/login", authHandler.HandleLogin)
				r.Get("/callback", authHandler.HandleCallback)
			})
		}
	})

	server := &Server{
		Server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
		},
		router: router,
	}

	return server, nil
}

// handleHealth handles health check requests
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "orgsync",
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ctxlog.From(r.Context()).Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	var message string
	if goErr := goerr.Unwrap(err); goErr != nil {
		message = goErr.Error()
	} else {
		message = err.Error()
	}

	if err := json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	}); err != nil {
		// Can't get context here, so use background context
		ctxlog.From(context.Background()).Error("Failed to encode error response", "error", err)
	}
}
