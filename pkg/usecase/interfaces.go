package usecase

import (
	"context"

	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
)

// SyncUseCase runs one complete reconciliation
type SyncUseCase interface {
	// Run executes a reconciliation and returns its finished record
	Run(ctx context.Context, trigger types.Trigger) (*model.Run, error)
}

// GateUseCase admits at most one reconciliation run at a time
type GateUseCase interface {
	// Start launches a run in the background. It returns false without
	// doing anything while another run is still alive.
	Start(ctx context.Context, trigger types.Trigger) bool

	// InProgress reports whether a run is alive
	InProgress() bool

	// LastRun returns the most recently finished run, or nil
	LastRun() *model.Run
}

// AuthUseCase defines the interface for the destination OAuth login flow
type AuthUseCase interface {
	// LoginURL returns the consent page URL carrying a signed state
	LoginURL(ctx context.Context) (string, error)

	// Callback verifies state, exchanges code and stores the credential
	Callback(ctx context.Context, state, code string) error
}

// OAuthProvider is the authorization code grant of the destination
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*model.Credential, error)
}
