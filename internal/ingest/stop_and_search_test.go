package ingest

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/EmpoweredVote/police-ingester/internal/bronze"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStopRepository(api *fakeAPI, store *fakeStore, log logrus.FieldLogger) *StopAndSearchRepository {
	return NewStopAndSearchRepository(api, store, newDateRepository(api, store, log), log)
}

func TestStoreStopAndSearchKeepsOnlyWindow(t *testing.T) {
	from := mustTime(t, "2023-04-10T00:00:00Z")
	to := mustTime(t, "2023-04-20T12:00:00Z")

	store := newFakeStore()
	store.seedForces("leicestershire")
	api := newFakeAPI()
	api.stops[stopKey{"2023-04", "leicestershire", true}] = []bronze.StopAndSearch{
		stopAt("leicestershire", from.Add(-time.Second)),
		stopAt("leicestershire", from),
		stopAt("leicestershire", mustTime(t, "2023-04-15T09:30:00Z")),
	}
	api.stops[stopKey{"2023-04", "leicestershire", false}] = []bronze.StopAndSearch{
		stopAt("leicestershire", to),
		stopAt("leicestershire", to.Add(time.Second)),
		stopAt("leicestershire", mustTime(t, "2023-04-30T23:00:00Z")),
	}
	log, _ := newTestLogger()

	err := newStopRepository(api, store, log).StoreStopAndSearch(context.Background(), "2023-04", "leicestershire", from, to)
	require.NoError(t, err)

	stored := store.storedStops()
	require.Len(t, stored, 3)
	for _, s := range stored {
		assert.False(t, s.Datetime.Before(from), "%s before window", s.Datetime)
		assert.False(t, s.Datetime.After(to), "%s after window", s.Datetime)
	}
	assert.Equal(t, 1, store.transactions)
	assert.ElementsMatch(t, []stopKey{
		{"2023-04", "leicestershire", true},
		{"2023-04", "leicestershire", false},
	}, api.calls())
}

func TestStoreStopAndSearchNothingInWindow(t *testing.T) {
	store := newFakeStore()
	store.seedForces("leicestershire")
	api := newFakeAPI()
	api.stops[stopKey{"2023-04", "leicestershire", true}] = []bronze.StopAndSearch{
		stopAt("leicestershire", mustTime(t, "2023-04-01T00:00:00Z")),
	}
	log, _ := newTestLogger()

	from := mustTime(t, "2023-04-10T00:00:00Z")
	to := mustTime(t, "2023-04-11T00:00:00Z")
	err := newStopRepository(api, store, log).StoreStopAndSearch(context.Background(), "2023-04", "leicestershire", from, to)
	require.NoError(t, err)
	assert.Zero(t, store.transactions)
}

func TestStoreStopAndSearchFailures(t *testing.T) {
	from := mustTime(t, "2023-04-01T00:00:00Z")
	to := mustTime(t, "2023-04-30T23:59:59Z")

	t.Run("api", func(t *testing.T) {
		store := newFakeStore()
		store.seedForces("leicestershire")
		api := newFakeAPI()
		api.stopsErr["leicestershire"] = errBoom
		log, _ := newTestLogger()

		err := newStopRepository(api, store, log).StoreStopAndSearch(context.Background(), "2023-04", "leicestershire", from, to)
		require.ErrorIs(t, err, errBoom)
		assert.Zero(t, store.transactions)
	})

	t.Run("storage", func(t *testing.T) {
		store := newFakeStore()
		store.seedForces("leicestershire")
		store.stopErrs["leicestershire"] = errBoom
		api := newFakeAPI()
		api.stops[stopKey{"2023-04", "leicestershire", true}] = []bronze.StopAndSearch{
			stopAt("leicestershire", mustTime(t, "2023-04-02T00:00:00Z")),
		}
		log, hook := newTestLogger()

		err := newStopRepository(api, store, log).StoreStopAndSearch(context.Background(), "2023-04", "leicestershire", from, to)
		require.ErrorIs(t, err, errBoom)
		assert.Empty(t, store.storedStops())
		assert.True(t, hasLogMessage(hook, logrus.ErrorLevel,
			"Could not store stop and searches for force with id 'leicestershire' on date '2023-04' in the database."))
	})
}

func TestStoreStopAndSearchesFansOut(t *testing.T) {
	store := newFakeStore()
	store.seedDate("2023-01", "force-a", "force-b")
	store.seedDate("2023-02", "force-a")
	store.seedDate("2023-03", "force-b")
	api := newFakeAPI()
	for _, k := range []stopKey{{"2023-01", "force-a", true}, {"2023-01", "force-b", true}, {"2023-02", "force-a", false}} {
		api.stops[k] = []bronze.StopAndSearch{stopAt(k.forceID, mustTime(t, string(k.yearMonth)+"-15T12:00:00Z"))}
	}
	log, _ := newTestLogger()

	from := mustTime(t, "2023-01-01T00:00:00Z")
	to := mustTime(t, "2023-02-28T23:59:59Z")
	err := newStopRepository(api, store, log).StoreStopAndSearches(context.Background(), from, to, false, nil)
	require.NoError(t, err)

	assert.Len(t, api.calls(), 6, "three (month, force) pairs, two variants each")
	assert.Len(t, store.storedStops(), 3)
}

func TestStoreStopAndSearchesOnePairFails(t *testing.T) {
	store := newFakeStore()
	store.seedDate("2023-01", "force-a", "force-b", "force-c")
	api := newFakeAPI()
	for _, f := range []string{"force-a", "force-b", "force-c"} {
		api.stops[stopKey{"2023-01", f, true}] = []bronze.StopAndSearch{stopAt(f, mustTime(t, "2023-01-15T12:00:00Z"))}
	}
	store.stopErrs["force-b"] = errBoom
	log, _ := newTestLogger()

	from := mustTime(t, "2023-01-01T00:00:00Z")
	to := mustTime(t, "2023-01-31T23:59:59Z")
	err := newStopRepository(api, store, log).StoreStopAndSearches(context.Background(), from, to, false, nil)
	require.ErrorIs(t, err, errBoom)

	var forces []string
	for _, s := range store.storedStops() {
		forces = append(forces, s.ForceID)
	}
	sort.Strings(forces)
	assert.Equal(t, []string{"force-a", "force-c"}, forces)
}

func TestStoreStopAndSearchesForceFilter(t *testing.T) {
	store := newFakeStore()
	store.seedDate("2023-01", "force-a", "force-b")
	api := newFakeAPI()
	log, _ := newTestLogger()

	from := mustTime(t, "2023-01-01T00:00:00Z")
	to := mustTime(t, "2023-01-31T23:59:59Z")
	err := newStopRepository(api, store, log).StoreStopAndSearches(context.Background(), from, to, false, []string{"force-b"})
	require.NoError(t, err)

	for _, c := range api.calls() {
		assert.Equal(t, "force-b", c.forceID)
	}
	assert.Len(t, api.calls(), 2)
}

func TestStoreStopAndSearchesStoresAvailableDatesFirst(t *testing.T) {
	store := newFakeStore()
	api := newFakeAPI().
		withForces("force-a").
		withDate("2023-01", "force-a")
	api.stops[stopKey{"2023-01", "force-a", false}] = []bronze.StopAndSearch{
		stopAt("force-a", mustTime(t, "2023-01-15T12:00:00Z")),
	}
	log, _ := newTestLogger()

	from := mustTime(t, "2023-01-01T00:00:00Z")
	to := mustTime(t, "2023-01-31T23:59:59Z")
	err := newStopRepository(api, store, log).StoreStopAndSearches(context.Background(), from, to, true, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"force-a"}, store.mappedForces("2023-01"))
	assert.Len(t, store.storedStops(), 1)
}

func TestStoreStopAndSearchesAborts(t *testing.T) {
	from := mustTime(t, "2023-01-01T00:00:00Z")
	to := mustTime(t, "2023-01-31T23:59:59Z")

	t.Run("available dates", func(t *testing.T) {
		store := newFakeStore()
		api := newFakeAPI()
		api.datesErr = errBoom
		log, _ := newTestLogger()

		err := newStopRepository(api, store, log).StoreStopAndSearches(context.Background(), from, to, true, nil)
		require.ErrorIs(t, err, errBoom)
		assert.Empty(t, api.calls())
	})

	t.Run("stored dates", func(t *testing.T) {
		store := newFakeStore()
		store.datesErr = errBoom
		api := newFakeAPI()
		log, _ := newTestLogger()

		err := newStopRepository(api, store, log).StoreStopAndSearches(context.Background(), from, to, false, nil)
		require.ErrorIs(t, err, errBoom)
		assert.Empty(t, api.calls())
	})
}

func TestStoreStopAndSearchesNoDates(t *testing.T) {
	store := newFakeStore()
	api := newFakeAPI()
	log, hook := newTestLogger()

	from := mustTime(t, "2023-01-01T00:00:00Z")
	to := mustTime(t, "2023-01-31T23:59:59Z")
	err := newStopRepository(api, store, log).StoreStopAndSearches(context.Background(), from, to, false, nil)
	require.ErrorIs(t, err, ErrNoAvailableDates)
	assert.Empty(t, api.calls())
	assert.True(t, hasLogMessage(hook, logrus.WarnLevel, "No available dates stored for the requested range, nothing to ingest"))
}
