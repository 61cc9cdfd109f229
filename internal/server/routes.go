// Package server exposes the ingestion operations over HTTP so an external
// scheduler can trigger them.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Runner is implemented by ingest.Ingester.
type Runner interface {
	IngestForces(ctx context.Context, forceIDs []string) error
	IngestAvailableDates(ctx context.Context, from, to time.Time, forceIDs []string) error
	IngestStopAndSearches(ctx context.Context, from, to time.Time, skipAvailableDates bool, forceIDs []string) error
}

func SetupRoutes(runner Runner, log logrus.FieldLogger) http.Handler {
	h := &handlers{runner: runner, log: log}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger(log))

	r.Get("/", RootHandler)
	r.Route("/ingest", func(r chi.Router) {
		r.Post("/forces", h.forces)
		r.Post("/available-dates", h.availableDates)
		r.Post("/stop-and-searches", h.stopAndSearches)
	})
	return r
}
