package model

import (
	"log/slog"
	"time"

	"github.com/secmon-lab/orgsync/pkg/domain/types"
)

// RunState is the lifecycle state of a reconciliation run
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateFailed    RunState = "failed"
)

// IsFinished reports whether the run reached a terminal state
func (s RunState) IsFinished() bool {
	return s == RunStateSucceeded || s == RunStateFailed
}

// RunStats counts what a run changed on the destination
type RunStats struct {
	UsersCreated     int `json:"users_created" firestore:"users_created"`
	UsersUpdated     int `json:"users_updated" firestore:"users_updated"`
	UsersActivated   int `json:"users_activated" firestore:"users_activated"`
	UsersDeactivated int `json:"users_deactivated" firestore:"users_deactivated"`
	TeamsCreated     int `json:"teams_created" firestore:"teams_created"`
	TeamsUpdated     int `json:"teams_updated" firestore:"teams_updated"`
	TeamsRemoved     int `json:"teams_removed" firestore:"teams_removed"`
	TeamsSorted      int `json:"teams_sorted" firestore:"teams_sorted"`
	MembersAdded     int `json:"members_added" firestore:"members_added"`
	MembersRemoved   int `json:"members_removed" firestore:"members_removed"`
	Failures         int `json:"failures" firestore:"failures"`
}

// Mutations returns the number of successful mutating calls
func (s RunStats) Mutations() int {
	return s.UsersCreated + s.UsersUpdated + s.UsersActivated + s.UsersDeactivated +
		s.TeamsCreated + s.TeamsUpdated + s.TeamsRemoved + s.TeamsSorted
}

// LogValue returns structured log value
func (s RunStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("users_created", s.UsersCreated),
		slog.Int("users_updated", s.UsersUpdated),
		slog.Int("users_activated", s.UsersActivated),
		slog.Int("users_deactivated", s.UsersDeactivated),
		slog.Int("teams_created", s.TeamsCreated),
		slog.Int("teams_updated", s.TeamsUpdated),
		slog.Int("teams_removed", s.TeamsRemoved),
		slog.Int("teams_sorted", s.TeamsSorted),
		slog.Int("members_added", s.MembersAdded),
		slog.Int("members_removed", s.MembersRemoved),
		slog.Int("failures", s.Failures),
	)
}

// Run is the persisted record of one reconciliation run
type Run struct {
	ID         types.RunID   `json:"id" firestore:"id"`
	Trigger    types.Trigger `json:"trigger" firestore:"trigger"`
	State      RunState      `json:"state" firestore:"state"`
	StartedAt  time.Time     `json:"started_at" firestore:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty" firestore:"finished_at"`
	Error      string        `json:"error,omitempty" firestore:"error"`
	Stats      RunStats      `json:"stats" firestore:"stats"`
}

// NewRun creates a run in the running state
func NewRun(trigger types.Trigger) (*Run, error) {
	id, err := types.NewRunID()
	if err != nil {
		return nil, err
	}
	return &Run{
		ID:        id,
		Trigger:   trigger,
		State:     RunStateRunning,
		StartedAt: time.Now(),
	}, nil
}

// Finish moves the run to its terminal state depending on err
func (r *Run) Finish(err error) {
	r.FinishedAt = time.Now()
	if err != nil {
		r.State = RunStateFailed
		r.Error = err.Error()
		return
	}
	r.State = RunStateSucceeded
}

// Duration returns how long the run took, or has taken so far
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
