package admin

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docsage/internal/database"
	"github.com/cloo-solutions/docsage/internal/logger"
)

const defaultMigrationsDir = "migrations"

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}
	cmd.PersistentFlags().String("migrations", defaultMigrationsDir, "Directory containing SQL migrations")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, flush, err := loadConfig()
			if err != nil {
				return err
			}
			defer flush()
			dir, _ := cmd.Flags().GetString("migrations")
			return migrateUp(cfg.DatabaseURL, dir, log)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, flush, err := loadConfig()
			if err != nil {
				return err
			}
			defer flush()
			dir, _ := cmd.Flags().GetString("migrations")
			return database.WithMigrator(cfg.DatabaseURL, dir, func(m *migrate.Migrate) error {
				if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("failed to roll back migration: %w", err)
				}
				log.Info("migrations: rolled back one step")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, flush, err := loadConfig()
			if err != nil {
				return err
			}
			defer flush()
			dir, _ := cmd.Flags().GetString("migrations")
			return database.WithMigrator(cfg.DatabaseURL, dir, func(m *migrate.Migrate) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to get migration version: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			})
		},
	})

	return cmd
}

func migrateUp(databaseURL, dir string, log *logger.Logger) error {
	version, applied, err := database.MigrateUp(databaseURL, dir)
	if err != nil {
		return err
	}

	switch {
	case version == 0:
		log.Info("migrations: no migrations found", "dir", dir)
	case applied:
		log.Info("migrations: applied successfully", "version", version)
	default:
		log.Info("migrations: database is up to date", "version", version)
	}
	return nil
}
