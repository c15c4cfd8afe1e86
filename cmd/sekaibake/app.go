package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	rootpkg "tools.zach/dev/sekaibake"
	"tools.zach/dev/sekaibake/internal/atomicfile"
	"tools.zach/dev/sekaibake/internal/config"
	"tools.zach/dev/sekaibake/internal/logger"
	"tools.zach/dev/sekaibake/internal/paths"
)

// app holds per-invocation state shared by the subcommands.
type app struct {
	// dataDir and consoleLevel are bound to persistent flags.
	dataDir      string
	consoleLevel string

	paths DataPaths
	// cfg has every relative path resolved against the data directory.
	cfg *config.Config
	log *slog.Logger

	lock      *runLock
	logCloser io.Closer
}

// setup prepares the data directory: lock, default config on first run,
// config load, and logger. Console output goes to stderr.
func (a *app) setup(stderr io.Writer) error {
	a.paths = DataPaths{Root: a.dataDir}
	if err := os.MkdirAll(a.paths.Root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	lock, err := acquireLock(a.paths.Lock())
	if err != nil {
		return err
	}
	a.lock = lock

	if _, err := os.Stat(a.paths.Config()); errors.Is(err, os.ErrNotExist) {
		if err := atomicfile.Write(a.paths.Config(), rootpkg.DefaultConfigTOML, 0o644); err != nil {
			fmt.Fprintf(stderr, "warning: failed to write default config: %v\n", err)
		}
	}

	cfg, err := config.Load(a.paths.Root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg.Resolved(a.paths.Root)

	fileLevel := logger.ParseLevel(cfg.Log.Level)
	consoleLevel := logger.LevelInfo
	if a.consoleLevel != "" {
		consoleLevel = logger.ParseLevel(a.consoleLevel)
	}
	log, closer, err := logger.NewLogger(a.paths.Log(), fileLevel, cfg.Log.MaxSizeMB, stderr, consoleLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.log, a.logCloser = log, closer
	slog.SetDefault(log)

	log.Debug("sekaibake starting", "version", resolveVersion(), "data_dir", a.paths.Root)
	return nil
}

// teardown flushes the log and releases the lock. Safe to call when setup
// never ran or failed part way.
func (a *app) teardown() {
	if a.logCloser != nil {
		a.logCloser.Close()
		a.logCloser = nil
	}
	a.lock.release()
	a.lock = nil
}

// defaultDataDir is relative to the working directory so a checkout of the
// badge site carries its own data.
func defaultDataDir() string {
	return paths.DataDirRel
}
