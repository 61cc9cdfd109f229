package cli

import (
	"github.com/EmpoweredVote/police-ingester/internal/server"
	"github.com/spf13/cobra"
)

func ServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve HTTP endpoints that trigger ingestion runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, done, err := a.newRunner(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			handler := server.SetupRoutes(r, a.log)
			return server.ListenAndServe(cmd.Context(), a.cfg.Server.Port, handler, a.log)
		},
	}
}
