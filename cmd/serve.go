package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codewatch/codewatch/internal/config"
	"github.com/codewatch/codewatch/internal/events"
	"github.com/codewatch/codewatch/internal/lifecycle"
	"github.com/codewatch/codewatch/internal/locale"
	"github.com/codewatch/codewatch/internal/logging"
	"github.com/codewatch/codewatch/internal/project"
	"github.com/codewatch/codewatch/internal/scheduler"
	"github.com/codewatch/codewatch/internal/server"
	"github.com/codewatch/codewatch/internal/status"
	"github.com/codewatch/codewatch/internal/store"
	"github.com/codewatch/codewatch/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the project lifecycle service",
	Long: `Start the HTTP service that admits projects, schedules builds, and
supervises per-project file watchers.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "host to bind the server to")
	serveCmd.Flags().Int("port", 0, "port to bind the server to")
	serveCmd.Flags().String("workspace", "", "workspace root directory")
	serveCmd.Flags().String("portal-url", "", "portal websocket URL for event delivery")
	bindFlags(serveCmd.Flags(), map[string]string{
		"server.host":   "host",
		"server.port":   "port",
		"workspace.dir": "workspace",
		"portal.url":    "portal-url",
	})

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := logging.New(&logging.Config{
		Level:  logging.ParseLevel(viper.GetString("log-level")),
		Format: "text",
		Output: os.Stdout,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bus events.Bus
	if url := viper.GetString("portal.url"); url != "" {
		portal := events.NewPortalBus(url, log)
		defer portal.Close()
		bus = portal
	} else {
		bus = events.NewMemoryBus()
	}

	translator := locale.NewCatalog()
	ctrl := status.NewInMemoryController()
	st := store.New(cfg.Workspace.DataDir, log)

	registry := project.NewRegistry()
	registry.Register(project.NewGenericHandler(ctrl, translator, cfg.Workspace.LogsDir, log))

	supervisor := watcher.NewSupervisor(cfg, &watcher.OSProcessManager{}, "", log)
	sched := scheduler.New(cfg.MaxBuilds, ctrl, bus, supervisor, translator, log)
	coordinator := lifecycle.New(cfg, st, registry, ctrl, sched, supervisor, bus, translator, log)
	srv := server.New(cfg.Server.Host, cfg.Server.Port, coordinator, log)

	sched.Start(ctx)
	defer sched.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "server listening",
			"host", cfg.Server.Host, "port", cfg.Server.Port,
			"maxBuilds", cfg.MaxBuilds, "inCluster", cfg.InCluster)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, err, "server shutdown failed")
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, err, "scheduler shutdown failed")
	}
	coordinator.WaitDeletions()
	st.Flush()
	return nil
}
