package cli

import (
	"github.com/EmpoweredVote/police-ingester/internal/ingest"
	"github.com/spf13/cobra"
)

const flagForceIDs = "force-ids"

func IngestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest Police API data into the bronze tables",
	}
	cmd.PersistentFlags().String(flagForceIDs, "", "comma separated force ids to restrict ingestion to (default all)")

	cmd.AddCommand(ingestForcesCmd(a))
	cmd.AddCommand(ingestAvailableDatesCmd(a))
	cmd.AddCommand(ingestStopAndSearchesCmd(a))
	return cmd
}

func forceIDsFlag(cmd *cobra.Command) ([]string, error) {
	s, _ := cmd.Flags().GetString(flagForceIDs)
	return ingest.SplitForceIDs(s)
}

func ingestForcesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "forces",
		Short: "Store any forces not yet in the warehouse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			forceIDs, err := forceIDsFlag(cmd)
			if err != nil {
				return err
			}

			r, done, err := a.newRunner(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			return r.IngestForces(cmd.Context(), forceIDs)
		},
	}
}

func ingestAvailableDatesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "available-dates FROM TO",
		Short: "Store the months with stop and search data between FROM and TO",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := ingest.ParseDatetime(args[0], a.log)
			if err != nil {
				return err
			}
			to, err := ingest.ParseDatetime(args[1], a.log)
			if err != nil {
				return err
			}
			forceIDs, err := forceIDsFlag(cmd)
			if err != nil {
				return err
			}

			r, done, err := a.newRunner(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			return r.IngestAvailableDates(cmd.Context(), from, to, forceIDs)
		},
	}
}

func ingestStopAndSearchesCmd(a *app) *cobra.Command {
	var skipAvailableDates bool
	cmd := &cobra.Command{
		Use:   "stop-and-searches FROM TO",
		Short: "Store the stop and searches that happened between FROM and TO",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := ingest.ParseDatetime(args[0], a.log)
			if err != nil {
				return err
			}
			to, err := ingest.ParseDatetime(args[1], a.log)
			if err != nil {
				return err
			}
			forceIDs, err := forceIDsFlag(cmd)
			if err != nil {
				return err
			}

			r, done, err := a.newRunner(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			return r.IngestStopAndSearches(cmd.Context(), from, to, skipAvailableDates, forceIDs)
		},
	}
	cmd.Flags().BoolVar(&skipAvailableDates, "skip-available-dates", false, "use the stored available dates without refreshing them first")
	return cmd
}
