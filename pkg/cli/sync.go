package cli

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
	"github.com/secmon-lab/orgsync/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdSync() *cli.Command {
	var engineCfg engineConfig

	return &cli.Command{
		Name:  "sync",
		Usage: "Run one reconciliation and exit",
		Flags: engineCfg.flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			logger.Info("Starting one-shot sync",
				slog.Any("store", engineCfg.store),
				slog.Any("destination", engineCfg.destination),
				slog.Any("source", engineCfg.source),
				slog.Any("policy", engineCfg.policy),
			)

			eng, err := engineCfg.build(ctx, "", nil)
			if err != nil {
				return err
			}
			defer func() {
				if err := eng.Close(); err != nil {
					logger.Warn("Failed to close repository", "error", err)
				}
			}()

			gate := usecase.NewGate(eng.sync)
			if !gate.Start(ctx, types.TriggerCLI) {
				return goerr.New("sync could not be started")
			}
			gate.Wait()

			run := gate.LastRun()
			if run == nil {
				return goerr.New("sync ended without a run record")
			}
			if run.State != model.RunStateSucceeded {
				return goerr.New("sync failed",
					goerr.V("run_id", run.ID),
					goerr.V("error", run.Error))
			}

			logger.Info("One-shot sync completed", "run_id", run.ID, "stats", run.Stats)
			return nil
		},
	}
}
