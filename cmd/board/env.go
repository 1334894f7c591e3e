package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/satyaki-up/issueboard/internal/config"
	"github.com/satyaki-up/issueboard/internal/issues"
	"github.com/satyaki-up/issueboard/internal/store"
	"github.com/satyaki-up/issueboard/internal/telemetry"
)

const memoryDB = ":memory:"

type cli struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	dbPath     string
	project    string
	actor      string
	jsonOut    bool
	verbose    bool

	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// setup resolves configuration, flags winning over BOARD_* env and the file.
func (c *cli) setup(ctx context.Context) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cwd, c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(c.dbPath) != "" {
		cfg.DBPath = c.dbPath
	}
	if strings.TrimSpace(c.project) != "" {
		cfg.Project = strings.ToLower(strings.TrimSpace(c.project))
	}
	if strings.TrimSpace(c.actor) != "" {
		cfg.Actor = strings.TrimSpace(c.actor)
	}
	c.cfg = cfg

	level := slog.LevelInfo
	switch {
	case c.verbose || cfg.LogLevel == "debug":
		level = slog.LevelDebug
	case cfg.LogLevel == "warn":
		level = slog.LevelWarn
	case cfg.LogLevel == "error":
		level = slog.LevelError
	}
	c.logger = slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: level}))

	if err := telemetry.Init(ctx, "board", version); err != nil {
		return err
	}
	c.closers = append(c.closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	})
	c.logger.Debug("config resolved", "config", cfg.Path, "db", cfg.DBPath, "project", cfg.Project, "actor", cfg.Actor)
	return nil
}

// openStore opens the configured store. live enables cross-process change
// detection for long-running commands.
func (c *cli) openStore(ctx context.Context, live bool) (issues.Store, error) {
	opts := []store.Option{
		store.WithProject(c.cfg.Project),
		store.WithLogger(c.logger),
		store.WithWatchDebounce(c.cfg.WatchDebounce),
	}
	if c.cfg.DBPath == memoryDB {
		m := store.NewMemory(opts...)
		c.closers = append(c.closers, func() { _ = m.Close() })
		return telemetry.WrapStore(m), nil
	}
	if !live {
		opts = append(opts, store.WithoutWatch())
	}
	s, err := store.OpenSQLite(ctx, c.cfg.DBPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	c.closers = append(c.closers, func() { _ = s.Close() })
	return telemetry.WrapStore(s), nil
}

func (c *cli) service(ctx context.Context, live bool) (*issues.Service, issues.Store, error) {
	st, err := c.openStore(ctx, live)
	if err != nil {
		return nil, nil, err
	}
	return issues.NewService(st, issues.WithLogger(c.logger)), st, nil
}

// close releases resources in reverse order of acquisition.
func (c *cli) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
