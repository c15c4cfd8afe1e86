// Package watch signals when master-data files change inside one or more
// checkout directories.
//
// Directories rather than files are watched because git replaces files by
// rename, which drops a per-file inotify watch. fsnotify is the primary
// mechanism; stat polling takes over when it is unavailable or fails.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the stat interval in polling mode.
const DefaultPollInterval = 2 * time.Second

// Options configures a Watcher.
type Options struct {
	// PollInterval is the stat interval in polling mode.
	PollInterval time.Duration
	// ForcePolling skips fsnotify entirely.
	ForcePolling bool
	Logger       *slog.Logger
}

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher monitors named files in a set of directories.
type Watcher struct {
	dirs  []string
	names map[string]bool
	// events is buffered to 1 so back-to-back writes coalesce.
	events chan struct{}
	done   chan struct{}
	once   sync.Once
	log    *slog.Logger

	mu  sync.Mutex
	fsw *fsnotify.Watcher // nil when polling

	polling      atomic.Bool
	pollInterval time.Duration
}

// New watches dirs for writes to files whose base name is in names.
func New(dirs, names []string, opts Options) (*Watcher, error) {
	if len(dirs) == 0 || len(names) == 0 {
		return nil, errors.New("watch: no directories or file names")
	}
	w := &Watcher{
		dirs:         dirs,
		names:        make(map[string]bool, len(names)),
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		log:          opts.Logger,
		pollInterval: opts.PollInterval,
	}
	for _, n := range names {
		w.names[n] = true
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	if w.pollInterval <= 0 {
		w.pollInterval = DefaultPollInterval
	}

	if opts.ForcePolling {
		w.startPolling()
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.startPolling()
		return w, nil
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			w.log.Info("cannot watch directory, falling back to polling", "path", dir, "error", err)
			fsw.Close()
			w.startPolling()
			return w, nil
		}
	}
	w.fsw = fsw
	go w.watch(fsw)
	return w, nil
}

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Events returns a channel that receives a signal when a watched file changes.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
			w.fsw = nil
		}
	})
	return err
}

func (w *Watcher) watched(name string) bool {
	return w.names[filepath.Base(name)]
}

// watch forwards write, create and rename events for watched files. On an
// fsnotify error it closes the native watcher and switches to polling.
func (w *Watcher) watch(fsw *fsnotify.Watcher) {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if w.watched(event.Name) {
					w.notify()
				}
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.Info("fsnotify error, switching to polling", "error", err)
			w.mu.Lock()
			if w.fsw != nil {
				w.fsw.Close()
				w.fsw = nil
			}
			w.mu.Unlock()
			w.startPolling()
			return
		}
	}
}

func (w *Watcher) startPolling() {
	w.polling.Store(true)
	go w.poll()
}

// poll stats the watched files every interval and notifies when the newest
// modification time advances.
func (w *Watcher) poll() {
	lastMod := w.latestMod()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if mod := w.latestMod(); mod.After(lastMod) {
				lastMod = mod
				w.notify()
			}
		}
	}
}

// latestMod returns the newest modification time among watched files.
func (w *Watcher) latestMod() time.Time {
	var latest time.Time
	for _, dir := range w.dirs {
		for name := range w.names {
			info, err := os.Stat(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			if info.ModTime().After(latest) {
				latest = info.ModTime()
			}
		}
	}
	return latest
}

// notify sends a single signal to the events channel. If a signal is already
// pending the call is a no-op.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}

// ///////////////////////////////////////////////
// Run Loop
// ///////////////////////////////////////////////

// Run calls fn after each burst of change events, once the watcher has been
// quiet for settle. Errors from fn are logged and the loop continues. Run
// returns when ctx is done.
func Run(ctx context.Context, w *Watcher, settle time.Duration, fn func(context.Context) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.Events():
		}

		// Wait out the rest of the burst; git pulls touch both files.
		timer := time.NewTimer(settle)
	settling:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-w.Events():
				timer.Reset(settle)
			case <-timer.C:
				break settling
			}
		}

		w.log.Info("master data changed")
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("rebuild after change failed", "error", err)
		}
	}
}
