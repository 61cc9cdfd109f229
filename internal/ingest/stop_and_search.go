package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EmpoweredVote/police-ingester/internal/bronze"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// StopAndSearchRepository appends stop and search events for every stored
// (month, force) pair. Rows are never updated, so overlapping windows store
// the same event more than once.
type StopAndSearchRepository struct {
	api   PoliceAPI
	store bronze.Store
	dates *AvailableDateRepository
	log   logrus.FieldLogger
}

func NewStopAndSearchRepository(api PoliceAPI, store bronze.Store, dates *AvailableDateRepository, log logrus.FieldLogger) *StopAndSearchRepository {
	return &StopAndSearchRepository{api: api, store: store, dates: dates, log: log}
}

// ErrNoAvailableDates is returned when no (month, force) pair is stored for
// the requested range.
var ErrNoAvailableDates = errors.New("ingest: no available dates stored for the requested range")

type monthForce struct {
	yearMonth bronze.YearMonth
	forceID   string
}

// StoreStopAndSearches stores the events in [from, to] for every force with
// data in the months the range touches. storeAvailableDates refreshes those
// months first. A nil forceIDs covers every force.
func (r *StopAndSearchRepository) StoreStopAndSearches(ctx context.Context, from, to time.Time, storeAvailableDates bool, forceIDs []string) error {
	if storeAvailableDates {
		if err := r.dates.StoreAvailableDates(ctx, from, to, forceIDs); err != nil {
			return fmt.Errorf("store available dates: %w", err)
		}
	}

	dates, err := r.dates.GetAvailableDates(ctx, bronze.YearMonthOf(from), bronze.YearMonthOf(to), true)
	if err != nil {
		return err
	}

	wanted := idSet(forceIDs)
	var pairs []monthForce
	for _, d := range dates {
		for _, f := range d.Forces {
			if wanted != nil {
				if _, ok := wanted[f.ID]; !ok {
					continue
				}
			}
			pairs = append(pairs, monthForce{yearMonth: d.YearMonth, forceID: f.ID})
		}
	}
	if len(pairs) == 0 {
		r.log.WithFields(logrus.Fields{"from": from, "to": to}).
			Warn("No available dates stored for the requested range, nothing to ingest")
		return ErrNoAvailableDates
	}

	r.log.WithField("units", len(pairs)).Info("Storing stop and searches")
	return runUnits(len(pairs), func(i int) error {
		p := pairs[i]
		return r.StoreStopAndSearch(ctx, p.yearMonth, p.forceID, from, to)
	})
}

// StoreStopAndSearch stores one force's events for one month, keeping only
// those with from <= Datetime <= to.
func (r *StopAndSearchRepository) StoreStopAndSearch(ctx context.Context, yearMonth bronze.YearMonth, forceID string, from, to time.Time) error {
	log := r.log.WithFields(logrus.Fields{"force_id": forceID, "year_month": yearMonth})

	var withLocation, withoutLocation []bronze.StopAndSearch
	var g errgroup.Group
	g.Go(func() error {
		s, err := r.api.FetchStopAndSearches(ctx, yearMonth, forceID, true)
		withLocation = s
		return err
	})
	g.Go(func() error {
		s, err := r.api.FetchStopAndSearches(ctx, yearMonth, forceID, false)
		withoutLocation = s
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("fetch stop and searches for force %s on %s: %w", forceID, yearMonth, err)
	}

	records := make([]bronze.StopAndSearch, 0, len(withLocation)+len(withoutLocation))
	for _, batch := range [][]bronze.StopAndSearch{withLocation, withoutLocation} {
		for _, s := range batch {
			if s.Datetime.Before(from) || s.Datetime.After(to) {
				continue
			}
			records = append(records, s)
		}
	}
	if len(records) == 0 {
		log.Debug("No stop and searches in range")
		return nil
	}

	err := r.store.Transaction(ctx, func(s bronze.Session) error {
		return s.AddStopAndSearches(records)
	})
	if err != nil {
		log.WithFields(storageFields(err)).Errorf(
			"Could not store stop and searches for force with id '%s' on date '%s' in the database.",
			forceID, yearMonth,
		)
		return fmt.Errorf("store stop and searches for force %s on %s: %w", forceID, yearMonth, err)
	}

	log.WithField("count", len(records)).Info("Stored stop and searches")
	return nil
}
