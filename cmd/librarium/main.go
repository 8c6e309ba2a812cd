// Command librarium runs the Librarium library service and its
// maintenance tasks: migrations, overdue notices and admin bootstrap.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bigkaa/librarium/internal/config"
)

func main() {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "librarium",
		Short:        "University library service",
		Version:      config.Version,
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newNoticesCmd(),
		newUsersCmd(),
	)
	return root
}

// setup loads the configuration and the logger shared by every command.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Configuration error", slog.String("error", err.Error()))
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, config.SetupLogger(cfg), nil
}
