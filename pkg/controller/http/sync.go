package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
	"github.com/secmon-lab/orgsync/pkg/usecase"
	"github.com/secmon-lab/orgsync/pkg/utils/apperr"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

// SyncHandler serves the run trigger, status and history endpoints
type SyncHandler struct {
	gate usecase.GateUseCase
	runs RunHistory
}

// NewSyncHandler creates a new sync handler. runs may be nil.
func NewSyncHandler(gate usecase.GateUseCase, runs RunHistory) *SyncHandler {
	return &SyncHandler{gate: gate, runs: runs}
}

type triggerResponse struct {
	Started bool `json:"started"`
}

type statusResponse struct {
	InProgress bool       `json:"in_progress"`
	LastRun    *model.Run `json:"last_run"`
}

type runsResponse struct {
	Runs []*model.Run `json:"runs"`
}

// HandleTrigger starts a run in the background. It answers 409 while a
// run is already in progress.
func (h *SyncHandler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	if !h.gate.Start(r.Context(), types.TriggerHTTP) {
		writeJSON(w, r, http.StatusConflict, triggerResponse{Started: false})
		return
	}
	writeJSON(w, r, http.StatusAccepted, triggerResponse{Started: true})
}

// HandleStatus reports whether a run is alive and the last finished run
func (h *SyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, statusResponse{
		InProgress: h.gate.InProgress(),
		LastRun:    h.gate.LastRun(),
	})
}

// HandleListRuns lists persisted runs, newest first
func (h *SyncHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, goerr.New("limit must be a positive integer"), http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		apperr.Handle(r.Context(), "Failed to list runs", err)
		writeError(w, goerr.New("failed to list runs"), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	writeJSON(w, r, http.StatusOK, runsResponse{Runs: runs})
}

// HandleGetRun returns one persisted run
func (h *SyncHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := types.RunID(chi.URLParam(r, "id"))

	run, err := h.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrRunNotFound) {
			writeError(w, goerr.New("run not found"), http.StatusNotFound)
			return
		}
		apperr.Handle(r.Context(), "Failed to get run", err, "run_id", id)
		writeError(w, goerr.New("failed to get run"), http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}
