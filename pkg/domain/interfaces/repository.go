package interfaces

import (
	"context"

	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
)

// Repository defines the interface for data persistence
type Repository interface {
	// Credential operations. GetCredential returns model.ErrCredentialNotFound
	// when no credential has been stored yet.
	GetCredential(ctx context.Context) (*model.Credential, error)
	PutCredential(ctx context.Context, cred *model.Credential) error

	// Run history operations
	PutRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id types.RunID) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*model.Run, error)

	// Close closes the repository connection
	Close() error
}
