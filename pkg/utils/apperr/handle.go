package apperr

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
)

// Handle logs err with msg. Per-entity destination failures are warnings;
// anything else is an error.
func Handle(ctx context.Context, msg string, err error, args ...any) {
	logger := ctxlog.From(ctx)

	level := slog.LevelError
	if goerr.HasTag(err, model.ErrTagAPI) || goerr.HasTag(err, model.ErrTagRateLimited) {
		level = slog.LevelWarn
	}

	logger.Log(ctx, level, msg, append(args, "error", err)...)
}
