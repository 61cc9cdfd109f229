package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/EmpoweredVote/police-ingester/internal/bronze"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// AvailableDateRepository records which months each force has published stop
// and search data for. Months are added once and their force mappings only
// grow.
type AvailableDateRepository struct {
	api    PoliceAPI
	store  bronze.Store
	forces *ForceRepository
	log    logrus.FieldLogger
}

func NewAvailableDateRepository(api PoliceAPI, store bronze.Store, forces *ForceRepository, log logrus.FieldLogger) *AvailableDateRepository {
	return &AvailableDateRepository{api: api, store: store, forces: forces, log: log}
}

// StoreAvailableDates reconciles the months in [from, to] and their forces.
// Each month is stored in its own transaction; the returned error joins the
// failures of every month that could not be stored.
func (r *AvailableDateRepository) StoreAvailableDates(ctx context.Context, from, to time.Time, forceIDs []string) error {
	fromYM, toYM := bronze.YearMonthOf(from), bronze.YearMonthOf(to)

	var (
		forces   []bronze.Force
		fetched  []bronze.AvailableDateWithForceIDs
		existing []bronze.AvailableDate
	)
	var g errgroup.Group
	g.Go(func() error {
		f, err := r.forces.StoreForces(ctx, forceIDs)
		if err != nil {
			return err
		}
		forces = f
		return nil
	})
	g.Go(func() error {
		d, err := r.api.FetchAvailableDates(ctx, from, to)
		if err != nil {
			return fmt.Errorf("fetch available dates: %w", err)
		}
		fetched = d
		return nil
	})
	g.Go(func() error {
		d, err := r.GetAvailableDates(ctx, fromYM, toYM, true)
		if err != nil {
			return err
		}
		existing = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	fetched = restrictToForces(fetched, idSet(forceIDs))

	if err := r.storeMissingForces(ctx, forces, fetched); err != nil {
		return err
	}

	byMonth := make(map[bronze.YearMonth]*bronze.AvailableDate, len(existing))
	for i := range existing {
		byMonth[existing[i].YearMonth] = &existing[i]
	}

	return runUnits(len(fetched), func(i int) error {
		return r.StoreAvailableDate(ctx, fetched[i], byMonth[fetched[i].YearMonth])
	})
}

// StoreAvailableDate stores one month. With no existing row the month is
// inserted together with a mapping for every force; otherwise only forces not
// yet mapped to existing are added.
func (r *AvailableDateRepository) StoreAvailableDate(ctx context.Context, date bronze.AvailableDateWithForceIDs, existing *bronze.AvailableDate) error {
	log := r.log.WithField("year_month", date.YearMonth)
	forceIDs := uniqueIDs(date.ForceIDs)

	var err error
	if existing == nil {
		err = r.store.Transaction(ctx, func(s bronze.Session) error {
			row := &bronze.AvailableDate{YearMonth: date.YearMonth}
			if err := s.AddAvailableDate(row); err != nil {
				return err
			}
			return s.AddForceMappings(mappingsFor(row.ID, forceIDs))
		})
	} else {
		mapped := idSet(existing.ForceIDs())
		var missing []string
		for _, id := range forceIDs {
			if _, ok := mapped[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) == 0 {
			log.Debug("Available date is up to date")
			return nil
		}
		forceIDs = missing
		err = r.store.Transaction(ctx, func(s bronze.Session) error {
			return s.AddForceMappings(mappingsFor(existing.ID, missing))
		})
	}
	if err != nil {
		log.WithFields(storageFields(err)).
			Errorf("Could not store available date '%s' in the database.", date.YearMonth)
		return fmt.Errorf("store available date %s: %w", date.YearMonth, err)
	}

	log.WithField("forces", len(forceIDs)).Info("Stored available date")
	return nil
}

// GetAvailableDates returns the stored months in the inclusive range
// [from, to]. withForces also loads each month's forces.
func (r *AvailableDateRepository) GetAvailableDates(ctx context.Context, from, to bronze.YearMonth, withForces bool) ([]bronze.AvailableDate, error) {
	var (
		dates []bronze.AvailableDate
		err   error
	)
	if withForces {
		dates, err = r.store.AvailableDatesWithForces(ctx, from, to)
	} else {
		dates, err = r.store.AvailableDates(ctx, from, to)
	}
	if err != nil {
		r.log.WithFields(storageFields(err)).
			WithFields(logrus.Fields{"from": from, "to": to}).
			Error("Cannot get existing available dates from the database.")
		return nil, fmt.Errorf("read available dates %s..%s: %w", from, to, err)
	}
	return dates, nil
}

// storeMissingForces inserts bare stubs for forces the dates listing names
// but the forces listing does not, so that mappings can reference them.
func (r *AvailableDateRepository) storeMissingForces(ctx context.Context, known []bronze.Force, dates []bronze.AvailableDateWithForceIDs) error {
	have := make(map[string]struct{}, len(known))
	for _, f := range known {
		have[f.ID] = struct{}{}
	}
	var stubs []bronze.Force
	for _, d := range dates {
		for _, id := range d.ForceIDs {
			if _, ok := have[id]; ok {
				continue
			}
			have[id] = struct{}{}
			stubs = append(stubs, bronze.Force{ID: id})
		}
	}
	if len(stubs) == 0 {
		return nil
	}
	sort.Slice(stubs, func(i, j int) bool { return stubs[i].ID < stubs[j].ID })

	err := r.store.Transaction(ctx, func(s bronze.Session) error {
		return s.AddForces(stubs)
	})
	if err != nil {
		r.log.WithFields(storageFields(err)).Error("Could not store missing Forces in the database.")
		return fmt.Errorf("store missing forces: %w", err)
	}
	r.log.WithField("count", len(stubs)).Warn("Stored Forces referenced by available dates but not listed by the API")
	return nil
}

// restrictToForces keeps only the wanted force ids of each month and drops
// months left without any. A nil set keeps everything.
func restrictToForces(dates []bronze.AvailableDateWithForceIDs, wanted map[string]struct{}) []bronze.AvailableDateWithForceIDs {
	if wanted == nil {
		return dates
	}
	out := make([]bronze.AvailableDateWithForceIDs, 0, len(dates))
	for _, d := range dates {
		var ids []string
		for _, id := range d.ForceIDs {
			if _, ok := wanted[id]; ok {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			continue
		}
		out = append(out, bronze.AvailableDateWithForceIDs{YearMonth: d.YearMonth, ForceIDs: ids})
	}
	return out
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func mappingsFor(availableDateID int64, forceIDs []string) []bronze.AvailableDateForceMapping {
	mappings := make([]bronze.AvailableDateForceMapping, 0, len(forceIDs))
	for _, id := range forceIDs {
		mappings = append(mappings, bronze.AvailableDateForceMapping{AvailableDateID: availableDateID, ForceID: id})
	}
	return mappings
}
