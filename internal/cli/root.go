// Package cli wires configuration, logging, storage and the Police API client
// into the police-ingester commands.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/EmpoweredVote/police-ingester/internal/bronze"
	"github.com/EmpoweredVote/police-ingester/internal/config"
	"github.com/EmpoweredVote/police-ingester/internal/db"
	"github.com/EmpoweredVote/police-ingester/internal/ingest"
	"github.com/EmpoweredVote/police-ingester/internal/logging"
	"github.com/EmpoweredVote/police-ingester/internal/police"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// runner is implemented by ingest.Ingester.
type runner interface {
	IngestForces(ctx context.Context, forceIDs []string) error
	IngestAvailableDates(ctx context.Context, from, to time.Time, forceIDs []string) error
	IngestStopAndSearches(ctx context.Context, from, to time.Time, skipAvailableDates bool, forceIDs []string) error
}

// app is the state shared by every command, filled in before a command runs.
type app struct {
	cfg *config.Config
	log *logrus.Entry

	// newRunner builds the ingester. The returned func releases its resources.
	newRunner func(ctx context.Context) (runner, func(), error)
}

func NewRootCmd() *cobra.Command {
	a := &app{}
	a.newRunner = a.connect
	return newRootCmd(a)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "police-ingester",
		Short: "Ingest data.police.uk stop and search data into the bronze warehouse layer",
		// Failures are logged by the command itself.
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(IngestCmd(a))
	root.AddCommand(ServeCmd(a))
	root.AddCommand(MigrateCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		ConfigPath: cfg.Log.ConfigPath,
		Output:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	a.cfg = cfg
	a.log = log
	return nil
}

// connect builds the production ingester: one database pool and one rate
// limited client shared by every operation.
func (a *app) connect(ctx context.Context) (runner, func(), error) {
	gdb, err := db.Connect(a.cfg.DatabaseURL, a.log)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { _ = sqlDB.Close() }

	client, err := police.NewClient(a.cfg.Police, a.log)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return ingest.New(client, bronze.NewGormStore(gdb), a.log), closeDB, nil
}
