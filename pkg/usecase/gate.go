package usecase

import (
	"context"
	"sync"

	"github.com/m-mizutani/ctxlog"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
	"github.com/secmon-lab/orgsync/pkg/utils/async"
)

// Gate admits at most one run at a time. Triggers arriving while a run is
// alive are refused rather than queued.
type Gate struct {
	runner SyncUseCase

	mu   sync.Mutex
	done <-chan struct{}
	last *model.Run
}

var _ GateUseCase = (*Gate)(nil)

// NewGate creates a Gate running s
func NewGate(s SyncUseCase) *Gate {
	return &Gate{runner: s}
}

// Start launches a run with a background context that keeps the caller's
// logger. It never blocks on the run itself.
func (g *Gate) Start(ctx context.Context, trigger types.Trigger) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.aliveLocked() {
		ctxlog.From(ctx).Info("Sync already in progress, trigger ignored", "trigger", trigger)
		return false
	}

	g.done = async.Dispatch(ctx, func(ctx context.Context) error {
		// Run failures are logged by the runner and kept in the run record
		run, _ := g.runner.Run(ctx, trigger)
		if run != nil {
			g.mu.Lock()
			g.last = run
			g.mu.Unlock()
		}
		return nil
	})
	return true
}

// InProgress reports whether a run is alive
func (g *Gate) InProgress() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.aliveLocked()
}

// LastRun returns a copy of the most recently finished run, or nil
func (g *Gate) LastRun() *model.Run {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		return nil
	}
	run := *g.last
	return &run
}

// Wait blocks until the current run, if any, has ended
func (g *Gate) Wait() {
	g.mu.Lock()
	done := g.done
	g.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (g *Gate) aliveLocked() bool {
	if g.done == nil {
		return false
	}
	select {
	case <-g.done:
		return false
	default:
		return true
	}
}
