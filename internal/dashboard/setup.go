package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/izzyreal/qwatch/internal/chart"
	"github.com/izzyreal/qwatch/internal/config"
	"github.com/izzyreal/qwatch/internal/discovery"
	"github.com/izzyreal/qwatch/internal/fetch"
	"github.com/izzyreal/qwatch/internal/view"
)

// Setup is a dashboard bound to the in-memory board and chart surface that
// front ends draw from.
type Setup struct {
	*Dashboard
	Board   *view.Board
	Surface *chart.Surface
	BaseURL string
}

// Build resolves the API URL, through mDNS when none is configured, and wires
// a dashboard over a fresh board and surface. reg may be nil.
func Build(ctx context.Context, cfg config.Dashboard, reg prometheus.Registerer, onUpdate func()) (*Setup, error) {
	baseURL, err := ResolveAPIURL(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []fetch.Option{
		fetch.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		fetch.WithMaxAttempts(cfg.RetryAttempts),
		fetch.WithRetryDelay(cfg.RetryDelay),
		fetch.WithBearerToken(cfg.APIToken),
	}
	if reg != nil {
		opts = append(opts, fetch.WithMetrics(fetch.NewMetrics(reg)))
	}
	if f := strings.TrimSpace(cfg.QueueFilter); f != "" {
		opts = append(opts, fetch.WithQuery(url.Values{"queue": {f}}))
	}

	board := view.NewDashboardBoard()
	surface := chart.NewSurface()
	d := New(fetch.New(baseURL, opts...), board, chart.NewManager(surface), Options{
		StatsInterval:    cfg.StatsInterval,
		HistoryInterval:  cfg.HistoryInterval,
		Location:         cfg.Location(),
		MinServerVersion: cfg.MinServerVersion,
		OnUpdate:         onUpdate,
	})
	return &Setup{Dashboard: d, Board: board, Surface: surface, BaseURL: baseURL}, nil
}

func ResolveAPIURL(ctx context.Context, cfg config.Dashboard) (string, error) {
	if u := strings.TrimSpace(cfg.APIURL); u != "" {
		return strings.TrimRight(u, "/"), nil
	}
	if !cfg.Discover {
		return "", fmt.Errorf("api_url is empty and discovery is disabled")
	}
	u, err := discovery.Discover(ctx, cfg.DiscoverTimeout)
	if err != nil {
		return "", fmt.Errorf("discover api url: %w", err)
	}
	return u, nil
}
