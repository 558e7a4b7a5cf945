package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/secmon-lab/orgsync/pkg/cli/config"
	controller "github.com/secmon-lab/orgsync/pkg/controller/http"
	"github.com/secmon-lab/orgsync/pkg/service/metrics"
	"github.com/secmon-lab/orgsync/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var (
		serverCfg   config.Server
		scheduleCfg config.Schedule
		engineCfg   engineConfig
	)

	flags := joinFlags(
		serverCfg.Flags(),
		scheduleCfg.Flags(),
		engineCfg.flags(),
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Start HTTP server with the daily scheduler",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			logger.Info("Starting orgsync server",
				slog.Any("server", serverCfg),
				slog.Any("schedule", scheduleCfg),
				slog.Any("store", engineCfg.store),
				slog.Any("destination", engineCfg.destination),
				slog.Any("source", engineCfg.source),
				slog.Any("policy", engineCfg.policy),
				slog.Any("alert", engineCfg.alert),
			)

			if serverCfg.SecretKey == "" {
				return goerr.New("secret key is required to protect sync endpoints. Please provide ORGSYNC_SECRET_KEY")
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			collector := metrics.NewCollector(registry)

			eng, err := engineCfg.build(ctx, serverCfg.RedirectURL(), collector)
			if err != nil {
				return err
			}
			defer func() {
				if err := eng.Close(); err != nil {
					logger.Warn("Failed to close repository", "error", err)
				}
			}()

			gate := usecase.NewGate(eng.sync)

			var authUC usecase.AuthUseCase
			if serverCfg.PublicURL != "" {
				auth, err := usecase.NewAuth(eng.repo, eng.oauth, []byte(engineCfg.destination.ClientSecret))
				if err != nil {
					return err
				}
				authUC = auth
			} else {
				logger.Warn("Public URL is not set, OAuth login endpoints are disabled")
			}

			scheduler, err := scheduleCfg.Configure(gate)
			if err != nil {
				return err
			}

			server, err := controller.NewServer(ctx,
				serverCfg.Configure(registry),
				controller.NewUseCases(gate, authUC).WithRunHistory(eng.repo),
			)
			if err != nil {
				return goerr.Wrap(err, "failed to create HTTP server")
			}

			runCtx, stop := context.WithCancel(ctx)
			defer stop()

			if scheduler != nil {
				go func() {
					if err := scheduler.Run(runCtx); err != nil {
						logger.Error("Scheduler error", "error", err)
					}
				}()
			} else {
				logger.Info("No daily schedule, runs are triggered by HTTP only")
			}

			go func() {
				logger.Info("HTTP server starting", slog.String("addr", serverCfg.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP server error", slog.Any("error", err))
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down...")
			case sig := <-sigChan:
				logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
			}
			stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}

			if gate.InProgress() {
				logger.Info("Waiting for the running sync to finish")
				gate.Wait()
			}

			logger.Info("Server shutdown complete")
			return nil
		},
	}
}
