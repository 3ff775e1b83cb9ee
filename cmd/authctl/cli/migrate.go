package cli

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/GTDGit/gtd_auth/internal/config"
	"github.com/GTDGit/gtd_auth/internal/database"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runMigrateUp,
	})
	return cmd
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "load configuration").Wrap(err)
	}

	cmd.Println("Connecting to database...")
	db, err := database.Connect(&cfg.DB)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()

	cmd.Println("Running migrations...")
	if err := database.Migrate(db.DB, cfg.DB.MigrationsPath); err != nil {
		return oops.Code("MIGRATION_FAILED").With("source", cfg.DB.MigrationsPath).Wrap(err)
	}

	cmd.Println("Migrations completed successfully")
	return nil
}
