package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lgn-platform/lgn-api/internal/config"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	serveCmd := newServeCommand(opts)

	root := &cobra.Command{
		Use:   "lgn-api",
		Short: "LGN API server - organizations, groups and marathons backend",
		Long: `LGN API server manages organizations, the groups they run, group members
and the marathons members take part in.

The server supports:
- JWT registration, login, refresh and logout with token revocation
- Role based access (USER, MANAGER, ADMIN) on every /api route
- PostgreSQL storage with embedded migrations
- Background token purging on River`,
		SilenceUsage: true,
		// Run the serve command by default if no subcommand is specified
		RunE: serveCmd.RunE,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (optional, env vars override it)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (json, console) (default: json)")

	root.AddCommand(serveCmd)
	root.AddCommand(newMigrateCommand(opts))
	root.AddCommand(newVersionCommand())
	root.AddCommand(newHealthcheckCommand())
	return root
}

// Execute runs the root command until it finishes or the process receives
// SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func loadConfig(opts *rootOptions) (config.Config, error) {
	if opts.envFile != "" {
		if err := config.LoadDotEnv(opts.envFile); err != nil {
			return config.Config{}, err
		}
	}

	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}

	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	return cfg, nil
}
