package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/EmpoweredVote/police-ingester/internal/bronze"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrInvalidRange is returned when a run's start is after its end.
var ErrInvalidRange = errors.New("ingest: from must not be after to")

// Ingester runs the ingestion operations against one shared API client and
// store. Each run gets its own id on every log line.
type Ingester struct {
	api   PoliceAPI
	store bronze.Store
	log   logrus.FieldLogger
}

func New(api PoliceAPI, store bronze.Store, log logrus.FieldLogger) *Ingester {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ingester{api: api, store: store, log: log}
}

type run struct {
	log    logrus.FieldLogger
	forces *ForceRepository
	dates  *AvailableDateRepository
	stops  *StopAndSearchRepository
}

func (in *Ingester) start(operation string) run {
	log := in.log.WithFields(logrus.Fields{
		"run_id":    uuid.NewString(),
		"operation": operation,
	})
	forces := NewForceRepository(in.api, in.store, log)
	dates := NewAvailableDateRepository(in.api, in.store, forces, log)
	return run{
		log:    log,
		forces: forces,
		dates:  dates,
		stops:  NewStopAndSearchRepository(in.api, in.store, dates, log),
	}
}

func (r run) finish(started time.Time, err error) error {
	log := r.log.WithField("duration_ms", time.Since(started).Milliseconds())
	if err != nil {
		log.WithError(err).Error("Ingestion failed")
		return err
	}
	log.Info("Ingestion succeeded")
	return nil
}

func (in *Ingester) IngestForces(ctx context.Context, forceIDs []string) error {
	r := in.start("forces")
	started := time.Now()
	r.log.Info("Ingesting forces")
	_, err := r.forces.StoreForces(ctx, forceIDs)
	return r.finish(started, err)
}

func (in *Ingester) IngestAvailableDates(ctx context.Context, from, to time.Time, forceIDs []string) error {
	if from.After(to) {
		return ErrInvalidRange
	}
	r := in.start("available_dates")
	started := time.Now()
	r.log.WithFields(logrus.Fields{"from": from, "to": to}).Info("Ingesting available dates")
	return r.finish(started, r.dates.StoreAvailableDates(ctx, from, to, forceIDs))
}

func (in *Ingester) IngestStopAndSearches(ctx context.Context, from, to time.Time, skipAvailableDates bool, forceIDs []string) error {
	if from.After(to) {
		return ErrInvalidRange
	}
	r := in.start("stop_and_searches")
	started := time.Now()
	r.log.WithFields(logrus.Fields{
		"from":                 from,
		"to":                   to,
		"skip_available_dates": skipAvailableDates,
	}).Info("Ingesting stop and searches")
	return r.finish(started, r.stops.StoreStopAndSearches(ctx, from, to, !skipAvailableDates, forceIDs))
}
