package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/izzyreal/qwatch/internal/config"
	"github.com/izzyreal/qwatch/internal/console"
	"github.com/izzyreal/qwatch/internal/dashboard"
	"github.com/izzyreal/qwatch/internal/view"
)

func runWatch(ctx context.Context, args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("watch", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	return watch(ctx, cfg.Dashboard, os.Stdout)
}

// watch prints the dashboard after every updater run until ctx is done,
// which is the teardown signal.
func watch(ctx context.Context, cfg config.Dashboard, out io.Writer) error {
	reg := prometheus.NewRegistry()
	redraw := make(chan struct{}, 1)
	setup, err := dashboard.Build(ctx, cfg, reg, func() {
		select {
		case redraw <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	slog.Info("watching queue API", "url", setup.BaseURL)

	stopMetrics := serveMetrics(cfg.MetricsAddr, reg)
	defer stopMetrics()

	con := console.New(out, setup.Board, setup.Surface, view.DashboardIDs()...)
	setup.Open(ctx)
	for {
		select {
		case <-ctx.Done():
			setup.Close()
			return nil
		case <-redraw:
			if _, err := fmt.Fprintf(out, "\n=== %s ===\n", time.Now().Format(time.TimeOnly)); err != nil {
				setup.Close()
				return err
			}
			if err := con.Render(); err != nil {
				setup.Close()
				return err
			}
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) func() {
	if addr == "" {
		return func() {}
	}
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info("dashboard metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("dashboard metrics listener failed", "error", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
