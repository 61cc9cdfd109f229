package ingest

import (
	"context"
	"fmt"

	"github.com/EmpoweredVote/police-ingester/internal/bronze"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ForceRepository keeps bronze.Force in step with the forces the API lists.
// Rows are only ever added.
type ForceRepository struct {
	api   PoliceAPI
	store bronze.Store
	log   logrus.FieldLogger
}

func NewForceRepository(api PoliceAPI, store bronze.Store, log logrus.FieldLogger) *ForceRepository {
	return &ForceRepository{api: api, store: store, log: log}
}

// StoreForces inserts the fetched forces that are not stored yet and returns
// the union of stored and fetched forces. A nil forceIDs fetches every force.
func (r *ForceRepository) StoreForces(ctx context.Context, forceIDs []string) ([]bronze.Force, error) {
	var fetched, stored []bronze.Force

	var g errgroup.Group
	g.Go(func() error {
		forces, err := r.api.FetchForces(ctx, forceIDs)
		if err != nil {
			return fmt.Errorf("fetch forces: %w", err)
		}
		fetched = forces
		return nil
	})
	g.Go(func() error {
		forces, err := r.store.Forces(ctx)
		if err != nil {
			r.log.WithFields(storageFields(err)).Error("Cannot get existing Forces from the database.")
			return fmt.Errorf("read stored forces: %w", err)
		}
		stored = forces
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(stored))
	for _, f := range stored {
		known[f.ID] = struct{}{}
	}
	var toInsert []bronze.Force
	for _, f := range fetched {
		if _, ok := known[f.ID]; ok {
			continue
		}
		known[f.ID] = struct{}{}
		toInsert = append(toInsert, f)
	}

	if len(toInsert) > 0 {
		err := r.store.Transaction(ctx, func(s bronze.Session) error {
			return s.AddForces(toInsert)
		})
		if err != nil {
			r.log.WithFields(storageFields(err)).Error("Could not store Forces in the database.")
			return nil, fmt.Errorf("store forces: %w", err)
		}
		r.log.WithField("count", len(toInsert)).Info("Stored new Forces")
	}

	return append(stored, toInsert...), nil
}
