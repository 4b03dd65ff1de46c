package main

import (
	"github.com/spf13/cobra"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/store/postgres"
	"go.uber.org/zap"
)

func newMigrateCmd(a *app) *cobra.Command {
	var rollback bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply the embedded goose migrations to the Postgres database.
SQLite and memory stores create their schema on open and need no migration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if a.cfg.Database.Driver != config.DriverPostgres {
				a.logger.Info("nothing to migrate", zap.String("driver", a.cfg.Database.Driver))
				return nil
			}

			pool, err := postgres.Connect(ctx, a.cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.Migrate(ctx, pool, rollback); err != nil {
				return err
			}
			a.logger.Info("migrations applied", zap.Bool("rollback", rollback))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&rollback, "rollback", "r", false, "roll back the latest migration")
	return cmd
}
