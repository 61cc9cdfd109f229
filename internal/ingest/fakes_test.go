package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/EmpoweredVote/police-ingester/internal/bronze"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// fakeStore is an in-memory bronze.Store. Sessions buffer their writes and
// only apply them when the transaction function returns nil. It enforces the
// same keys and foreign keys as the real tables.
type fakeStore struct {
	mu         sync.Mutex
	forces     []bronze.Force
	dates      []bronze.AvailableDate
	mappings   []bronze.AvailableDateForceMapping
	stops      []bronze.StopAndSearch
	nextDateID int64

	forcesErr    error
	datesErr     error
	addForcesErr error
	dateErrs     map[bronze.YearMonth]error
	stopErrs     map[string]error
	forceInserts [][]bronze.Force
	transactions int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextDateID: 1,
		dateErrs:   map[bronze.YearMonth]error{},
		stopErrs:   map[string]error{},
	}
}

func (s *fakeStore) seedForces(ids ...string) {
	for _, id := range ids {
		name := "Force " + id
		s.forces = append(s.forces, bronze.Force{ID: id, Name: &name})
	}
}

// seedDate stores a month mapped to forceIDs, creating missing forces.
func (s *fakeStore) seedDate(ym bronze.YearMonth, forceIDs ...string) {
	id := s.nextDateID
	s.nextDateID++
	s.dates = append(s.dates, bronze.AvailableDate{ID: id, YearMonth: ym})
	for _, f := range forceIDs {
		if !s.hasForce(f) {
			s.seedForces(f)
		}
		s.mappings = append(s.mappings, bronze.AvailableDateForceMapping{AvailableDateID: id, ForceID: f})
	}
}

func (s *fakeStore) hasForce(id string) bool {
	for _, f := range s.forces {
		if f.ID == id {
			return true
		}
	}
	return false
}

func (s *fakeStore) Forces(ctx context.Context) ([]bronze.Force, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forcesErr != nil {
		return nil, s.forcesErr
	}
	return append([]bronze.Force(nil), s.forces...), nil
}

func (s *fakeStore) AvailableDates(ctx context.Context, from, to bronze.YearMonth) ([]bronze.AvailableDate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.datesErr != nil {
		return nil, s.datesErr
	}
	var out []bronze.AvailableDate
	for _, d := range s.dates {
		if d.YearMonth.Within(from, to) {
			out = append(out, bronze.AvailableDate{ID: d.ID, YearMonth: d.YearMonth})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].YearMonth < out[j].YearMonth })
	return out, nil
}

func (s *fakeStore) AvailableDatesWithForces(ctx context.Context, from, to bronze.YearMonth) ([]bronze.AvailableDate, error) {
	dates, err := s.AvailableDates(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range dates {
		for _, m := range s.mappings {
			if m.AvailableDateID != dates[i].ID {
				continue
			}
			for _, f := range s.forces {
				if f.ID == m.ForceID {
					dates[i].Forces = append(dates[i].Forces, f)
				}
			}
		}
		sort.Slice(dates[i].Forces, func(a, b int) bool { return dates[i].Forces[a].ID < dates[i].Forces[b].ID })
	}
	return dates, nil
}

func (s *fakeStore) Transaction(ctx context.Context, fn func(bronze.Session) error) error {
	sess := &fakeSession{store: s}
	if err := fn(sess); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions++
	s.forces = append(s.forces, sess.forces...)
	s.dates = append(s.dates, sess.dates...)
	s.mappings = append(s.mappings, sess.mappings...)
	s.stops = append(s.stops, sess.stops...)
	s.forceInserts = append(s.forceInserts, sess.forceInserts...)
	return nil
}

func (s *fakeStore) mappingCount(ym bronze.YearMonth) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.dates {
		if d.YearMonth != ym {
			continue
		}
		for _, m := range s.mappings {
			if m.AvailableDateID == d.ID {
				n++
			}
		}
	}
	return n
}

func (s *fakeStore) mappedForces(ym bronze.YearMonth) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, d := range s.dates {
		if d.YearMonth != ym {
			continue
		}
		for _, m := range s.mappings {
			if m.AvailableDateID == d.ID {
				ids = append(ids, m.ForceID)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *fakeStore) storedStops() []bronze.StopAndSearch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bronze.StopAndSearch(nil), s.stops...)
}

type fakeSession struct {
	store        *fakeStore
	forces       []bronze.Force
	dates        []bronze.AvailableDate
	mappings     []bronze.AvailableDateForceMapping
	stops        []bronze.StopAndSearch
	forceInserts [][]bronze.Force
}

func (t *fakeSession) forceExists(id string) bool {
	for _, f := range t.forces {
		if f.ID == id {
			return true
		}
	}
	return t.store.hasForce(id)
}

func (t *fakeSession) dateMonth(id int64) (bronze.YearMonth, bool) {
	for _, d := range concat(t.dates, t.store.dates) {
		if d.ID == id {
			return d.YearMonth, true
		}
	}
	return "", false
}

func (t *fakeSession) AddForces(forces []bronze.Force) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.addForcesErr != nil {
		return t.store.addForcesErr
	}
	for _, f := range forces {
		if t.forceExists(f.ID) {
			return fmt.Errorf("duplicate key Force %q", f.ID)
		}
		t.forces = append(t.forces, f)
	}
	t.forceInserts = append(t.forceInserts, append([]bronze.Force(nil), forces...))
	return nil
}

func (t *fakeSession) AddAvailableDate(d *bronze.AvailableDate) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if err := t.store.dateErrs[d.YearMonth]; err != nil {
		return err
	}
	for _, existing := range concat(t.dates, t.store.dates) {
		if existing.YearMonth == d.YearMonth {
			return fmt.Errorf("duplicate key AvailableDate %q", d.YearMonth)
		}
	}
	d.ID = t.store.nextDateID
	t.store.nextDateID++
	t.dates = append(t.dates, bronze.AvailableDate{ID: d.ID, YearMonth: d.YearMonth})
	return nil
}

func (t *fakeSession) AddForceMappings(mappings []bronze.AvailableDateForceMapping) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, m := range mappings {
		ym, ok := t.dateMonth(m.AvailableDateID)
		if !ok {
			return fmt.Errorf("foreign key: AvailableDate %d missing", m.AvailableDateID)
		}
		if err := t.store.dateErrs[ym]; err != nil {
			return err
		}
		if !t.forceExists(m.ForceID) {
			return fmt.Errorf("foreign key: Force %q missing", m.ForceID)
		}
		for _, existing := range concat(t.mappings, t.store.mappings) {
			if existing.AvailableDateID == m.AvailableDateID && existing.ForceID == m.ForceID {
				return fmt.Errorf("duplicate key mapping (%d, %q)", m.AvailableDateID, m.ForceID)
			}
		}
		t.mappings = append(t.mappings, m)
	}
	return nil
}

func (t *fakeSession) AddStopAndSearches(stops []bronze.StopAndSearch) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, s := range stops {
		if err := t.store.stopErrs[s.ForceID]; err != nil {
			return err
		}
		if !t.forceExists(s.ForceID) {
			return fmt.Errorf("foreign key: Force %q missing", s.ForceID)
		}
	}
	t.stops = append(t.stops, stops...)
	return nil
}

func concat[T any](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}

type stopKey struct {
	yearMonth    bronze.YearMonth
	forceID      string
	withLocation bool
}

// fakeAPI serves canned Police API results and records stop and search calls.
type fakeAPI struct {
	mu        sync.Mutex
	forces    []bronze.Force
	forcesErr error
	dates     []bronze.AvailableDateWithForceIDs
	datesErr  error
	stops     map[stopKey][]bronze.StopAndSearch
	stopsErr  map[string]error
	stopCalls []stopKey
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		stops:    map[stopKey][]bronze.StopAndSearch{},
		stopsErr: map[string]error{},
	}
}

func (a *fakeAPI) withForces(ids ...string) *fakeAPI {
	for _, id := range ids {
		name := "Force " + id
		a.forces = append(a.forces, bronze.Force{ID: id, Name: &name})
	}
	return a
}

func (a *fakeAPI) withDate(ym bronze.YearMonth, forceIDs ...string) *fakeAPI {
	a.dates = append(a.dates, bronze.AvailableDateWithForceIDs{YearMonth: ym, ForceIDs: forceIDs})
	return a
}

func (a *fakeAPI) FetchForces(ctx context.Context, forceIDs []string) ([]bronze.Force, error) {
	if a.forcesErr != nil {
		return nil, a.forcesErr
	}
	wanted := idSet(forceIDs)
	var out []bronze.Force
	for _, f := range a.forces {
		if wanted != nil {
			if _, ok := wanted[f.ID]; !ok {
				continue
			}
		}
		out = append(out, f)
	}
	return out, nil
}

func (a *fakeAPI) FetchAvailableDates(ctx context.Context, from, to time.Time) ([]bronze.AvailableDateWithForceIDs, error) {
	if a.datesErr != nil {
		return nil, a.datesErr
	}
	var out []bronze.AvailableDateWithForceIDs
	for _, d := range a.dates {
		if d.YearMonth.Within(bronze.YearMonthOf(from), bronze.YearMonthOf(to)) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (a *fakeAPI) FetchStopAndSearches(ctx context.Context, yearMonth bronze.YearMonth, forceID string, withLocation bool) ([]bronze.StopAndSearch, error) {
	key := stopKey{yearMonth: yearMonth, forceID: forceID, withLocation: withLocation}
	a.mu.Lock()
	a.stopCalls = append(a.stopCalls, key)
	a.mu.Unlock()
	if err := a.stopsErr[forceID]; err != nil {
		return nil, err
	}
	return a.stops[key], nil
}

func (a *fakeAPI) calls() []stopKey {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]stopKey(nil), a.stopCalls...)
}

var errBoom = errors.New("boom")

func newTestLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

func hasLogMessage(hook *test.Hook, level logrus.Level, msg string) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

func forceIDsOf(forces []bronze.Force) []string {
	ids := make([]string, 0, len(forces))
	for _, f := range forces {
		ids = append(ids, f.ID)
	}
	sort.Strings(ids)
	return ids
}

func stopAt(forceID string, dt time.Time) bronze.StopAndSearch {
	return bronze.StopAndSearch{
		ForceID:     forceID,
		Type:        "Person search",
		Datetime:    dt,
		OutcomeID:   "bu-no-further-action",
		OutcomeName: "A no further action disposal",
	}
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return tm
}
