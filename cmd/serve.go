package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/previewkit/previewd/cli"
	"github.com/previewkit/previewd/internal/daemon/hub"
	"github.com/previewkit/previewd/internal/daemon/server"
	"github.com/previewkit/previewd/logging"
	"github.com/previewkit/previewd/pkg/session"
	"github.com/previewkit/previewd/pkg/watcher"
	"github.com/previewkit/previewd/pkg/workspace"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewServeCmd returns the daemon command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the preview session daemon",
		Long: `Start the previewd daemon in foreground mode. The daemon recovers
sessions left on disk by a previous run, resumes live reload on the most
recently created one, and serves the lifecycle HTTP API and the realtime
websocket endpoint.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger("previewd")
			if cli.GetOptions(cmd).Verbose {
				logger.Logger.SetLevel(logrus.DebugLevel)
			}

			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}

			store, err := workspace.NewStore(cfg.Sessions)
			if err != nil {
				return fmt.Errorf("failed to open sessions root: %w", err)
			}

			binder := watcher.New(time.Duration(cfg.Watcher.DebounceMs) * time.Millisecond)
			defer binder.Close()

			registry := session.NewRegistry(store, binder)
			recovered, err := registry.Recover()
			if err != nil {
				logger.Warnf("Startup recovery failed: %v", err)
			}

			h := hub.New()
			srv := server.New(logger, registry, h)

			// Resume live reload where the previous run left off.
			if recovered > 0 {
				if err := registry.WatchMostRecent(srv.ChangeHandler()); err != nil {
					logger.Warnf("Could not resume watching most recent session: %v", err)
				}
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			go func() {
				<-stop
				logger.Info("Received stop signal")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("Server shutdown error: %v", err)
				}
				binder.Close()
			}()

			logger.WithField("pid", os.Getpid()).Info("Starting daemon")
			if err := srv.ListenAndServe(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().String("addr", "", "Listen address (overrides config)")
	return cmd
}
