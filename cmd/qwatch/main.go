package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/izzyreal/qwatch/internal/config"
	"github.com/izzyreal/qwatch/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	initLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "server":
		err = runServer(ctx, os.Args[2:])
	case "watch":
		err = runWatch(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx, os.Args[2:], os.Stdout)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "qwatch: %v\n", err)
		os.Exit(1)
	}
}

func initLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(os.Getenv("QWATCH_LOG_LEVEL"))) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads .env, then the YAML file named by -config or QWATCH_CONFIG.
func loadConfig(fs *flag.FlagSet, args []string) (config.File, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return config.File{}, err
	}
	path := fs.String("config", os.Getenv("QWATCH_CONFIG"), "path to qwatch YAML config")
	if err := fs.Parse(args); err != nil {
		return config.File{}, err
	}
	return config.Load(*path)
}

func runServer(ctx context.Context, args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("server", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	return server.Run(ctx, cfg.Server)
}

func usage() {
	fmt.Fprintf(os.Stderr, `qwatch - queue monitoring dashboard

Usage:
  qwatch <command> [flags]

Commands:
  server      Serve queue stats and history (sqlite or Redis RQ backend)
  watch       Run the dashboard in the terminal
  health      Check a server's gRPC health endpoint
  help        Show this help

Flags:
  -config     YAML config path (default $QWATCH_CONFIG)
  -addr       gRPC address for health (default 127.0.0.1:8115)
`)
}
