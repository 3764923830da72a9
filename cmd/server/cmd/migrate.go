package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lgn-platform/lgn-api/internal/jobs"
	"github.com/lgn-platform/lgn-api/internal/storage/postgres"
)

type migrateOptions struct {
	path  string
	steps int
	river bool
}

func newMigrateCommand(root *rootOptions) *cobra.Command {
	opts := &migrateOptions{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply or roll back the application schema and River's job tables.

Migrations are embedded in the binary; --path points at a directory of
*.sql files instead.`,
	}
	cmd.PersistentFlags().StringVar(&opts.path, "path", "", "migrations directory (default: embedded)")
	cmd.PersistentFlags().BoolVar(&opts.river, "river", true, "also migrate River job tables")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, err := databaseURL(root)
			if err != nil {
				return err
			}
			if err := postgres.MigrateUp(dbURL, opts.path); err != nil {
				return err
			}
			if opts.river {
				if err := migrateRiver(cmd.Context(), root, "up"); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long:  `Roll back --steps application migrations. River's tables are only dropped with --river when every application migration is rolled back.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.steps <= 0 {
				return fmt.Errorf("--steps must be greater than 0")
			}
			dbURL, err := databaseURL(root)
			if err != nil {
				return err
			}
			if err := postgres.MigrateDown(dbURL, opts.path, opts.steps); err != nil {
				return err
			}
			version, _, err := postgres.MigrationVersion(dbURL, opts.path)
			if err != nil {
				return err
			}
			if opts.river && version == 0 {
				if err := migrateRiver(cmd.Context(), root, "down"); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", opts.steps)
			return nil
		},
	}
	down.Flags().IntVar(&opts.steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, err := databaseURL(root)
			if err != nil {
				return err
			}
			v, dirty, err := postgres.MigrationVersion(dbURL, opts.path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version: %d\ndirty:   %t\n", v, dirty)
			return nil
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func databaseURL(root *rootOptions) (string, error) {
	cfg, err := loadConfig(root)
	if err != nil {
		return "", fmt.Errorf("config error: %w", err)
	}
	return cfg.Database.URL, nil
}

func migrateRiver(ctx context.Context, root *rootOptions, direction string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	return jobs.Migrate(ctx, pool, direction)
}
