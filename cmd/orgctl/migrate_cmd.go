package main

import (
	"github.com/spf13/cobra"

	"orgchart/api/internal/store"
)

func newMigrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or roll back) the people table migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := store.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if down {
				if err := store.RollbackMigrations(cmd.Context(), db, store.Migrations()); err != nil {
					return err
				}
				log.Info("migrations rolled back")
				return nil
			}
			if err := store.ApplyMigrations(cmd.Context(), db, store.Migrations()); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "Roll back every applied migration")
	return cmd
}
