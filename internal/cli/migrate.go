package cli

import (
	"github.com/EmpoweredVote/police-ingester/internal/db"
	"github.com/spf13/cobra"
)

func MigrateCmd(a *app) *cobra.Command {
	var createDatabase bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the bronze schema and tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if createDatabase {
				if err := db.EnsureDatabase(ctx, a.cfg.DatabaseURL); err != nil {
					return err
				}
			}

			gdb, err := db.Connect(a.cfg.DatabaseURL, a.log)
			if err != nil {
				return err
			}
			if sqlDB, err := gdb.DB(); err == nil {
				defer sqlDB.Close()
			}

			if err := db.Migrate(ctx, gdb); err != nil {
				return err
			}
			a.log.Info("Bronze schema is up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&createDatabase, "create-database", true, "create the database first if it does not exist")
	return cmd
}
