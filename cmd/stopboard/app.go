package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"stopboard.dev/gtfs"
	"stopboard.dev/gtfs/config"
	"stopboard.dev/gtfs/display"
	"stopboard.dev/gtfs/downloader"
	"stopboard.dev/gtfs/internal/logging"
	"stopboard.dev/gtfs/storage"
)

// Everything a command needs, built from config.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	storage storage.Storage
	engine  *gtfs.Engine
	manager *gtfs.Manager
	board   *display.Board
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}

	s, err := newStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("creating storage: %w", err)
	}

	d, err := newDownloader(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("creating download cache: %w", err)
	}

	var realtime *gtfs.RealtimeCache
	if cfg.Realtime.URL != "" {
		extra, err := parseHeaders(realtimeHeaders)
		if err != nil {
			return nil, fmt.Errorf("invalid realtime header: %w", err)
		}

		source := gtfs.NewHTTPRealtimeSource(
			cfg.Realtime.URL,
			mergeHeaders(cfg.Realtime.Headers, extra),
			d,
			logger,
		)
		source.MaxSize = cfg.Realtime.MaxSize
		source.DumpPath = cfg.Realtime.DumpPath

		realtime = gtfs.NewRealtimeCache(source, cfg.Realtime.TTL, cfg.Realtime.Timeout, logger)
	}

	engine := gtfs.NewEngine(gtfs.NewSystemClock(loc), realtime, logger)

	extra, err := parseHeaders(staticHeaders)
	if err != nil {
		return nil, fmt.Errorf("invalid static header: %w", err)
	}

	manager := gtfs.NewManager(s, engine, cfg.Static.URL, logger)
	manager.StaticHeaders = mergeHeaders(cfg.Static.Headers, extra)
	manager.StaticTimeout = cfg.Static.Timeout
	manager.StaticMaxSize = cfg.Static.MaxSize
	manager.StaticRefreshInterval = cfg.Static.RefreshInterval
	manager.Downloader = d

	stops := make([]display.BoardStop, 0, len(cfg.Display.Stops))
	for _, stop := range cfg.Display.Stops {
		stops = append(stops, display.BoardStop{StopID: stop.StopID, Count: stop.Count})
	}
	board := display.NewBoard(engine, stops, cfg.Display.LineMap, logger)
	board.Width = cfg.Display.Width

	return &app{
		cfg:     cfg,
		logger:  logger,
		storage: s,
		engine:  engine,
		manager: manager,
		board:   board,
	}, nil
}

func newStorage(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		return storage.NewSQLiteStorage(storage.SQLiteConfig{
			OnDisk:    cfg.Directory != "",
			Directory: cfg.Directory,
		})
	case "postgres":
		return storage.NewPSQLStorage(cfg.DSN, false)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

func newDownloader(cfg config.CacheConfig, logger *slog.Logger) (downloader.Downloader, error) {
	switch cfg.Backend {
	case "memory":
		return downloader.NewMemoryDownloader(), nil
	case "filesystem":
		return downloader.NewFilesystem(cfg.Path, logger)
	case "redis":
		return downloader.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

// Publishes a schedule for one-shot commands: a stored feed if one
// covers today, otherwise a fresh download.
func (a *app) loadSchedule(ctx context.Context) error {
	err := a.manager.LoadStored(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gtfs.ErrNoActiveFeed) {
		a.logger.Warn("loading stored feed", "error", err)
	}
	return a.manager.Refresh(ctx)
}
