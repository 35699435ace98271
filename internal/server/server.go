// Package server serves queue statistics and history over HTTP, with a gRPC
// health service and mDNS advertisement alongside.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/izzyreal/qwatch/internal/config"
	"github.com/izzyreal/qwatch/internal/discovery"
	"github.com/izzyreal/qwatch/internal/rq"
	"github.com/izzyreal/qwatch/internal/simulator"
	"github.com/izzyreal/qwatch/internal/source"
	"github.com/izzyreal/qwatch/internal/store"
)

// Run opens the configured backend and serves until ctx is cancelled.
func Run(ctx context.Context, cfg config.Server) error {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	var src source.Source = db
	if cfg.RedisURL != "" {
		rqSrc, err := rq.Connect(ctx, cfg.RedisURL, 3, time.Second)
		if err != nil {
			return err
		}
		defer rqSrc.Close()
		src = rqSrc
	}

	s := New(cfg, db, src)

	var (
		grpcSrv *grpc.Server
		grpcLis net.Listener
	)
	if cfg.GRPCAddr != "" {
		grpcLis, err = net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		grpcSrv = s.newGRPCServer()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		s.runHistorySampler(ctx)
	}()
	if cfg.Simulate {
		if !s.jobsEnabled() {
			slog.Warn("load simulator needs the sqlite backend; not starting", "backend", src.Name())
		} else {
			sim := simulator.New(db, simulator.DefaultConfig())
			workers.Add(1)
			go func() {
				defer workers.Done()
				sim.Run(ctx)
			}()
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("qwatch server started", "addr", cfg.Addr, "backend", src.Name())
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen and serve: %w", err)
			return
		}
		errCh <- nil
	}()

	if grpcSrv != nil {
		go func() {
			slog.Info("qwatch grpc health started", "addr", cfg.GRPCAddr)
			if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("serve grpc: %w", err)
			}
		}()
	}

	stopMDNS := func() {}
	if cfg.MDNS {
		stopMDNS = discovery.Advertise(discovery.AdvertiseOptions{
			Addr:     cfg.Addr,
			Instance: cfg.MDNSInstance,
			Backend:  src.Name(),
		})
	}

	shutdown := func() error {
		stopMDNS()
		s.health.Shutdown()
		if grpcSrv != nil {
			grpcSrv.GracefulStop()
		}
		cancel()
		workers.Wait()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		slog.Info("qwatch server stopped")
		return nil
	}

	select {
	case <-ctx.Done():
		return shutdown()
	case err := <-errCh:
		if shutdownErr := shutdown(); err == nil {
			err = shutdownErr
		}
		return err
	}
}
