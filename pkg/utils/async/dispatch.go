package async

import (
	"context"
	"runtime/debug"

	"github.com/m-mizutani/ctxlog"
	"github.com/secmon-lab/orgsync/pkg/utils/apperr"
)

// Dispatch executes handler in its own goroutine. The handler's context
// keeps every value of ctx (the logger included) but not its cancellation
// or deadline, so a run outlives the HTTP request that started it. The
// returned channel is closed when handler returns or panics.
func Dispatch(ctx context.Context, handler func(ctx context.Context) error) <-chan struct{} {
	bgCtx := context.WithoutCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				ctxlog.From(bgCtx).Error("Panic in async handler",
					"recover", r,
					"stack", string(debug.Stack()),
				)
			}
		}()

		if err := handler(bgCtx); err != nil {
			apperr.Handle(bgCtx, "Error in async handler", err)
		}
	}()

	return done
}
