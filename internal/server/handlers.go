package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/EmpoweredVote/police-ingester/internal/ingest"
	"github.com/sirupsen/logrus"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

type handlers struct {
	runner Runner
	log    logrus.FieldLogger
}

type response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, response{Status: "invalid", Error: err.Error()})
}

// addServerTiming reports the duration of the ingestion run in a
// Server-Timing header.
func addServerTiming(w http.ResponseWriter, name string, d time.Duration) {
	w.Header().Add("Server-Timing", fmt.Sprintf("%s;dur=%.1f", name, float64(d.Microseconds())/1000))
}

// finish maps an ingestion result to a response. The details are in the
// logs, so failures only report that the run failed.
func finish(w http.ResponseWriter, started time.Time, err error) {
	addServerTiming(w, "ingest", time.Since(started))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, response{Status: "ok"})
	case errors.Is(err, ingest.ErrInvalidRange):
		badRequest(w, err)
	default:
		writeJSON(w, http.StatusInternalServerError, response{Status: "failed", Error: "ingestion failed"})
	}
}

func (h *handlers) forces(w http.ResponseWriter, r *http.Request) {
	forceIDs, err := ingest.SplitForceIDs(r.URL.Query().Get("force_ids"))
	if err != nil {
		badRequest(w, err)
		return
	}
	started := time.Now()
	finish(w, started, h.runner.IngestForces(r.Context(), forceIDs))
}

func (h *handlers) availableDates(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.window(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	forceIDs, err := ingest.SplitForceIDs(r.URL.Query().Get("force_ids"))
	if err != nil {
		badRequest(w, err)
		return
	}
	started := time.Now()
	finish(w, started, h.runner.IngestAvailableDates(r.Context(), from, to, forceIDs))
}

func (h *handlers) stopAndSearches(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.window(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	skip := false
	if v := r.URL.Query().Get("skip_available_dates"); v != "" {
		if skip, err = strconv.ParseBool(v); err != nil {
			badRequest(w, fmt.Errorf("skip_available_dates: %w", err))
			return
		}
	}
	forceIDs, err := ingest.SplitForceIDs(r.URL.Query().Get("force_ids"))
	if err != nil {
		badRequest(w, err)
		return
	}
	started := time.Now()
	finish(w, started, h.runner.IngestStopAndSearches(r.Context(), from, to, skip, forceIDs))
}

func (h *handlers) window(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if q.Get("from") == "" || q.Get("to") == "" {
		return from, to, errors.New("from and to are required")
	}
	if from, err = ingest.ParseDatetime(q.Get("from"), h.log); err != nil {
		return from, to, err
	}
	if to, err = ingest.ParseDatetime(q.Get("to"), h.log); err != nil {
		return from, to, err
	}
	return from, to, nil
}
