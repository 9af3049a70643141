package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"customerqueries/web/internal/store"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := store.Open(context.Background(), cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer db.Close()
				return store.ApplyMigrations(db, logger)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := store.Open(context.Background(), cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := store.RollbackMigrations(db); err != nil {
					return err
				}
				logger.Info("migrations rolled back")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := store.Open(context.Background(), cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer db.Close()
				version, dirty, err := store.MigrationVersion(db)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", version, dirty)
				return nil
			},
		},
	)
	return cmd
}
