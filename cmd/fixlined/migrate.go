package main

import (
	"github.com/spf13/cobra"

	"github.com/fixline/fixline/internal/config"
	"github.com/fixline/fixline/internal/db"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return db.Migrate(cfg.Postgres)
		},
	}
}
