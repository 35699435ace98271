package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func buildRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthzHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(requireBearerToken(s.cfg.APIToken))

		r.Get("/server-info", s.serverInfoHandler)

		// Queue readouts
		r.Get("/queue-stats", s.queueStatsHandler)
		r.Get("/queue-history", s.queueHistoryHandler)

		// Job API
		if s.jobsEnabled() {
			r.Post("/jobs", s.enqueueJobHandler)
			r.Get("/jobs/{id}", s.getJobHandler)
			r.Post("/jobs/{id}/status", s.jobStatusHandler)
		}
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.gatherer, promhttp.HandlerOpts{}))

	return r
}
