package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codewatch/codewatch/internal/logging"
	"github.com/codewatch/codewatch/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch <location> <origin> <projectID> <host> <watched> <ignored> <reserved> <port>",
	Short: "Run a project watcher child (spawned by the service)",
	Long: `Watch one project location recursively and post debounced change
batches back to the service. The service spawns one watch child per
project; running it by hand is only useful for debugging.`,
	Hidden: true,
	Args:   cobra.ExactArgs(8),
	RunE:   runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	port, err := strconv.Atoi(args[7])
	if err != nil {
		return fmt.Errorf("invalid portal port %q: %w", args[7], err)
	}

	opts := watcher.RunnerOptions{
		Location:        args[0],
		WorkspaceOrigin: args[1],
		ProjectID:       args[2],
		Host:            args[3],
		WatchedFiles:    splitList(args[4]),
		IgnoredFiles:    splitList(args[5]),
		PortalPort:      port,
	}

	log := logging.New(&logging.Config{
		Level:  logging.ParseLevel(viper.GetString("log-level")),
		Format: "text",
		Output: os.Stderr,
	})

	runner, err := watcher.NewRunner(opts, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runner.Run(ctx)
}

// splitList parses a comma-separated pattern list, dropping empty
// elements.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
