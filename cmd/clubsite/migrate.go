package main

import (
	"database/sql"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"clubsite/internal/config"
	"clubsite/internal/store"

	_ "modernc.org/sqlite"
)

func newMigrateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect storage schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch cfg.Storage.Backend {
			case store.BackendSQLite:
				return migrateSQLite(cfg.Storage.SQLitePath, dryRun, *jsonOutput)
			case store.BackendPostgres:
				if dryRun {
					return fmt.Errorf("--dry-run is only supported for the sqlite backend")
				}
				st, err := store.OpenPostgres(cmd.Context(), cfg.Storage.PostgresDSN)
				if err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				defer st.Close()
				return writePlain("Postgres schema is up to date.\n")
			default:
				return writePlain("The %s backend has no schema to migrate.\n", cfg.Storage.Backend)
			}
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	return cmd
}

func migrateSQLite(path string, dryRun, jsonOutput bool) error {
	if !dryRun {
		st, err := store.Open(path)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if err := st.Close(); err != nil {
			return err
		}
	}

	db, err := openRawDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	plan, err := store.MigrationPlan(db)
	if err != nil {
		return fmt.Errorf("inspect migrations: %w", err)
	}
	if jsonOutput {
		return writeJSON(plan)
	}

	_ = writePlain("Current version: %d\n", plan.CurrentVersion)
	_ = writePlain("Available version: %d\n", plan.AvailableVersion)
	if len(plan.Pending) == 0 {
		return writePlain("No pending migrations.\n")
	}
	_ = writePlain("Pending migrations: %d\n", len(plan.Pending))
	for _, m := range plan.Pending {
		_ = writePlain("  %d: %s\n", m.Version, m.Description)
	}
	return nil
}

func openRawDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return sql.Open("sqlite", u.String())
}
