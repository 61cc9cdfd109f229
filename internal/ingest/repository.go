// Package ingest reconciles Police API data against the bronze tables.
//
// Every repository method is a unit boundary: failures below it are logged
// with the entity they concern and returned as that unit's error. Fan-out
// units run concurrently, commit independently and never cancel each other.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/EmpoweredVote/police-ingester/internal/bronze"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// PoliceAPI is the part of police.Client the repositories depend on.
type PoliceAPI interface {
	FetchForces(ctx context.Context, forceIDs []string) ([]bronze.Force, error)
	FetchAvailableDates(ctx context.Context, from, to time.Time) ([]bronze.AvailableDateWithForceIDs, error)
	FetchStopAndSearches(ctx context.Context, yearMonth bronze.YearMonth, forceID string, withLocation bool) ([]bronze.StopAndSearch, error)
}

// runUnits runs unit(0..n-1) concurrently and joins every failure. A failing
// unit does not stop its siblings.
func runUnits(n int, unit func(i int) error) error {
	errs := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			errs[i] = unit(i)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// storageFields describes a storage failure, including the Postgres SQLSTATE
// when the driver reported one.
func storageFields(err error) logrus.Fields {
	fields := logrus.Fields{logrus.ErrorKey: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		fields["sqlstate"] = pgErr.Code
		if pgErr.ConstraintName != "" {
			fields["constraint"] = pgErr.ConstraintName
		}
	}
	return fields
}

// idSet returns nil for a nil filter so callers can tell "no filter" apart
// from "filter everything out".
func idSet(ids []string) map[string]struct{} {
	if ids == nil {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
