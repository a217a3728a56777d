package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"laraops/internal/api"
	"laraops/internal/logging"
	"laraops/internal/store"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the read-only status HTTP server",
		Long:  "Serves task, schedule and run-history state over HTTP for dashboards\nand monitoring. All endpoints are GET; mutations stay with the CLI.",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustConfig()
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger := logging.New(cfg.LogLevel)

			tasks, err := store.OpenTasks(cfg.TasksFile())
			if err != nil {
				logger.Error().Err(err).Msg("open task repository")
				os.Exit(1)
			}

			// Run history is optional; the /v1/runs endpoint reports 503
			// when the database cannot be opened.
			runs, err := store.OpenRuns(cmd.Context(), cfg.DBPath, cfg.RunKeep)
			if err != nil {
				logger.Warn().Err(err).Msg("run history unavailable")
				runs = nil
			} else {
				defer runs.Close()
			}

			server := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, tasks, runs, logger)

			serverErr := make(chan error, 1)
			go func() {
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigs:
				logger.Info().Str("signal", sig.String()).Msg("received signal")
			case err := <-serverErr:
				logger.Error().Err(err).Msg("server error")
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
			defer shutdownCancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown")
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
