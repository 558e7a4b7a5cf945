package http

import (
	"context"
	"crypto/subtle"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"
)

// SecretKeyHeader carries the shared secret of the sync endpoints
const SecretKeyHeader = "X-Secret-Key"

// RequireSecret rejects requests whose X-Secret-Key header does not match
// secret. An empty secret lets every request through.
func RequireSecret(secret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(SecretKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				ctxlog.From(r.Context()).Warn("Rejected request with invalid secret key",
					"path", r.URL.Path,
					"remote", r.RemoteAddr,
				)
				writeError(w, goerr.New("invalid secret key"), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit answers 429 with a Retry-After header once limiter runs dry
func RateLimit(limiter *rate.Limiter) func(next http.Handler) http.Handler {
	retryAfter := 1
	if limit := limiter.Limit(); limit > 0 && limit != rate.Inf {
		retryAfter = max(int(math.Ceil(1/float64(limit))), 1)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				ctxlog.From(r.Context()).Warn("Rate limit exceeded", "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeError(w, goerr.New("too many requests"), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware creates a chi-compatible logging middleware
func LoggingMiddleware(ctx context.Context) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Embed logger from the initial context into request context
			r = r.WithContext(ctxlog.With(r.Context(), ctxlog.From(ctx)))

			logger := ctxlog.From(r.Context())
			start := time.Now()

			// Wrap response writer to capture status
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			)
		})
	}
}
