// Command regionlens overlays a cross-region text-consistency report on
// a live product page.
//
// Usage:
//
//	regionlens -config regionlens.yaml
//	regionlens -url https://www.amazon.com/dp/B0EXAMPLE1 -service http://localhost:8000
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/marchfour/regionlens/api"
	"github.com/marchfour/regionlens/browser"
	"github.com/marchfour/regionlens/compare"
	"github.com/marchfour/regionlens/history"
	"github.com/marchfour/regionlens/overlay"
)

func main() {
	configPath := flag.String("config", "", "path to regionlens.yaml config file")
	pageURL := flag.String("url", "", "product page URL to open")
	serviceURL := flag.String("service", "", "comparison service base URL")
	listen := flag.String("listen", "", "status API listen address (empty = disabled)")
	historyDB := flag.String("history-db", "", "check-log SQLite path (empty = disabled)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := buildConfig(*configPath, *pageURL, *serviceURL, *listen, *historyDB)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(1)
	}

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("regionlens: fatal", "error", err)
		os.Exit(1)
	}
}

// buildConfig loads the file config (when given) and lets flags
// override it. Flag-only invocations get a config built from scratch.
func buildConfig(path, pageURL, serviceURL, listen, historyDB string) (*FileConfig, error) {
	cfg := &FileConfig{}
	if path != "" {
		loaded, err := LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if pageURL != "" {
		cfg.PageURL = pageURL
	}
	if serviceURL != "" {
		cfg.ServiceURL = serviceURL
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if historyDB != "" {
		cfg.HistoryDB = historyDB
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, logger *slog.Logger, cfg *FileConfig) error {
	var store *history.Store
	if cfg.HistoryDB != "" {
		var err error
		store, err = history.Open(cfg.HistoryDB)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
	}

	client := compare.New(cfg.ServiceURL, compare.WithLogger(logger))
	if err := client.Health(ctx); err != nil {
		logger.Warn("regionlens: comparison service not reachable yet", "error", err)
	}

	cfg.Browser.Logger = logger
	mgr := browser.NewManager(cfg.Browser)
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer mgr.Close()

	var host *browser.PageHost
	var err error
	if cfg.PageURL != "" {
		host, err = mgr.OpenPage(ctx, cfg.PageURL)
	} else {
		host, err = mgr.AttachFirstPage(ctx)
	}
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer host.Close()

	opts := []overlay.Option{overlay.WithLogger(logger)}
	if store != nil {
		opts = append(opts, overlay.WithHistory(store))
	}
	coord := overlay.New(cfg.Overlay, host, client, opts...)

	if cfg.Listen != "" {
		srv := api.NewServer(cfg.Listen, coord, store, logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("regionlens: status api stopped", "error", err)
			}
		}()
	}

	logger.Info("regionlens: watching", "page", cfg.PageURL, "service", cfg.ServiceURL)
	return coord.Run(ctx)
}
