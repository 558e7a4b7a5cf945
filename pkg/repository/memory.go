package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
)

// Memory implements Repository interface with in-memory storage
type Memory struct {
	mu         sync.RWMutex
	credential *model.Credential
	runs       map[types.RunID]*model.Run
}

// NewMemory creates a new memory repository
func NewMemory() interfaces.Repository {
	return &Memory{
		runs: make(map[types.RunID]*model.Run),
	}
}

// GetCredential returns the stored credential
func (m *Memory) GetCredential(ctx context.Context) (*model.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.credential == nil {
		return nil, goerr.Wrap(model.ErrCredentialNotFound, "no credential in memory")
	}

	// Return a copy to prevent external modification
	credCopy := *m.credential
	return &credCopy, nil
}

// PutCredential replaces the stored credential
func (m *Memory) PutCredential(ctx context.Context, cred *model.Credential) error {
	if !cred.IsValid() {
		return goerr.New("credential is incomplete")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	credCopy := *cred
	m.credential = &credCopy
	return nil
}

// PutRun creates or overwrites a run record
func (m *Memory) PutRun(ctx context.Context, run *model.Run) error {
	if run == nil {
		return goerr.New("run is nil")
	}
	if run.ID == "" {
		return goerr.New("run ID is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	runCopy := *run
	m.runs[run.ID] = &runCopy
	return nil
}

// GetRun retrieves a run by ID
func (m *Memory) GetRun(ctx context.Context, id types.RunID) (*model.Run, error) {
	if id == "" {
		return nil, goerr.New("run ID is empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	run, exists := m.runs[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrRunNotFound, "run not in memory", goerr.V("id", id))
	}

	runCopy := *run
	return &runCopy, nil
}

// ListRuns lists runs, newest first
func (m *Memory) ListRuns(ctx context.Context, limit int) ([]*model.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]*model.Run, 0, len(m.runs))
	for _, run := range m.runs {
		runCopy := *run
		runs = append(runs, &runCopy)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}

// Close is a no-op for memory repository
func (m *Memory) Close() error {
	return nil
}
