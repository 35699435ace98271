package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/health"

	"github.com/izzyreal/qwatch/internal/config"
	"github.com/izzyreal/qwatch/internal/source"
	"github.com/izzyreal/qwatch/internal/store"
)

// Server holds the backend, the history store and the metrics registry
// shared by the HTTP and gRPC surfaces.
type Server struct {
	cfg     config.Server
	db      *store.Store
	src     source.Source
	metrics *serverMetrics
	health  *health.Server
	now     func() time.Time
}

// New wires a server over db and src. src may be db itself.
func New(cfg config.Server, db *store.Store, src source.Source) *Server {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 60
	}
	if cfg.VolumeHours <= 0 {
		cfg.VolumeHours = 24
	}
	if cfg.HistorySampleInterval <= 0 {
		cfg.HistorySampleInterval = time.Minute
	}
	return &Server{
		cfg:     cfg,
		db:      db,
		src:     src,
		metrics: newServerMetrics(prometheus.NewRegistry()),
		health:  newHealthServer(),
		now:     time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	return buildRouter(s)
}

// jobsEnabled reports whether the job write API is served; it only applies
// when the sqlite store is also the stats backend.
func (s *Server) jobsEnabled() bool {
	return s.db != nil && s.src == source.Source(s.db)
}

func (s *Server) query(filter string) source.Query {
	return source.Query{
		Filter: filter,
		Window: time.Duration(s.cfg.VolumeHours) * time.Hour,
		Now:    s.now(),
	}
}
