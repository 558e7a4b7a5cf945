package interfaces

import (
	"context"

	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
)

// Destination is the typed API of the organization being synchronized
type Destination interface {
	// User operations
	ListUsers(ctx context.Context) ([]*model.DestinationUser, error)
	CreateUser(ctx context.Context, user *model.UserCreate) error
	ActivateUser(ctx context.Context, id types.UserID) error
	DeactivateUser(ctx context.Context, id types.UserID) error
	UpdateUser(ctx context.Context, id types.UserID, patch *model.UserPatch) error

	// Team operations. ListTeams returns the raw listing including the root
	// team and any duplicated ref IDs.
	ListTeams(ctx context.Context) ([]*model.DestinationTeam, error)
	CreateTeam(ctx context.Context, team *model.TeamCreate) (*model.DestinationTeam, error)
	UpdateTeam(ctx context.Context, update *model.TeamUpdate) (*model.DestinationTeam, error)
	DeleteTeam(ctx context.Context, id types.TeamID) error
	AddTeamMembers(ctx context.Context, id types.TeamID, userIDs []types.UserID) error
	RemoveTeamMembers(ctx context.Context, id types.TeamID, userIDs []types.UserID) error
	SortTeams(ctx context.Context, parent types.TeamID, teamIDs []types.TeamID) error
}

// TokenRefresher exchanges a refresh token for a new credential
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*model.Credential, error)
}
