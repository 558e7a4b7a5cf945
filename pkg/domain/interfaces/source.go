package interfaces

import (
	"context"

	"github.com/secmon-lab/orgsync/pkg/domain/model"
)

// IdentitySource provides the authoritative users and teams for a run
type IdentitySource interface {
	ListUsers(ctx context.Context) ([]*model.SourceUser, error)
	ListTeams(ctx context.Context) ([]*model.SourceTeam, error)
}
