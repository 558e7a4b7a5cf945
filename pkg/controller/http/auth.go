package http

import (
	"net/http"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/usecase"
)

// AuthHandler handles the destination OAuth login endpoints
type AuthHandler struct {
	authUC usecase.AuthUseCase
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authUC usecase.AuthUseCase) *AuthHandler {
	return &AuthHandler{authUC: authUC}
}

// HandleLogin redirects to the destination consent page
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	loginURL, err := h.authUC.LoginURL(r.Context())
	if err != nil {
		ctxlog.From(r.Context()).Error("Failed to build login URL", "error", err)
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// HandleCallback stores the credential granted by the destination
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.From(r.Context())
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		logger.Warn("OAuth authorization denied", "error", e, "description", q.Get("error_description"))
		writeError(w, goerr.New("authorization denied", goerr.V("error", e)), http.StatusBadRequest)
		return
	}

	if err := h.authUC.Callback(r.Context(), q.Get("state"), q.Get("code")); err != nil {
		status := http.StatusInternalServerError
		if goerr.HasTag(err, model.ErrTagAuth) {
			status = http.StatusBadRequest
		}
		logger.Error("OAuth callback failed", "error", err)
		writeError(w, err, status)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]string{
		"message": "destination authorized",
	})
}
