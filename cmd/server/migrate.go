package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nutshimit/mashin-registry/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate <up|down>",
	Short:     "Apply or roll back database migrations",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"up", "down"},
	RunE: func(_ *cobra.Command, args []string) error {
		if args[0] != "up" && args[0] != "down" {
			return fmt.Errorf("invalid migration direction %q (must be up or down)", args[0])
		}
		return withDatabase(func(database *sql.DB) error {
			slog.Info("running migrations", "direction", args[0])
			if err := db.RunMigrations(database, args[0]); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			return logMigrationVersion(database)
		})
	},
}

var migrateForceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Mark a migration version as applied and clear the dirty flag",
	Long: "Repair a database left dirty by an interrupted migration. No migration " +
		"SQL runs; fix the schema by hand first if the migration half-applied.",
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		target, err := strconv.Atoi(args[0])
		if err != nil || target < 1 {
			return fmt.Errorf("invalid migration version %q", args[0])
		}
		return withDatabase(func(database *sql.DB) error {
			if err := db.ForceMigrationVersion(database, target); err != nil {
				return err
			}
			return logMigrationVersion(database)
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateForceCmd)
}

func logMigrationVersion(database *sql.DB) error {
	v, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return err
	}
	slog.Info("migration state", "version", v, "dirty", dirty)
	return nil
}
