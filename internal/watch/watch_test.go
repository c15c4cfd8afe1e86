// Tests for the master-data watcher: construction, event filtering, polling
// fallback, close semantics, and the debounced run loop.
package watch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

var watchedNames = []string{"honors.json", "honorGroups.json"}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// touch writes path and pushes its mtime forward so polling sees a change
// even on filesystems with coarse timestamps.
func touch(t *testing.T, path string, ahead time.Duration) {
	t.Helper()
	writeFile(t, path, `[]`)
	future := time.Now().Add(ahead)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
}

func expectEvent(t *testing.T, w *Watcher, within time.Duration) {
	t.Helper()
	select {
	case <-w.Events():
	case <-time.After(within):
		t.Fatal("timed out waiting for change event")
	}
}

func expectNoEvent(t *testing.T, w *Watcher, within time.Duration) {
	t.Helper()
	select {
	case <-w.Events():
		t.Fatal("unexpected change event")
	case <-time.After(within):
	}
}

// ///////////////////////////////////////////////
// Constructor Tests
// ///////////////////////////////////////////////

func TestNew(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		dirs    []string
		names   []string
		wantErr bool
	}{
		{"existing dir", []string{dir}, watchedNames, false},
		{"missing dir falls back to polling", []string{filepath.Join(dir, "nope")}, watchedNames, false},
		{"no dirs", nil, watchedNames, true},
		{"no names", []string{dir}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := New(tt.dirs, tt.names, Options{Logger: quiet()})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if w.Events() == nil {
				t.Error("Events() channel is nil")
			}
			if err := w.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		})
	}
}

func TestNew_MissingDirPolls(t *testing.T) {
	w, err := New([]string{filepath.Join(t.TempDir(), "absent")}, watchedNames, Options{Logger: quiet()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()
	if !w.Polling() {
		t.Error("Polling() = false for a directory that cannot be watched")
	}
}

func TestClose_Idempotent(t *testing.T) {
	w, err := New([]string{t.TempDir()}, watchedNames, Options{Logger: quiet()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// ///////////////////////////////////////////////
// Event Tests
// ///////////////////////////////////////////////

func TestWatcher_Events(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}

	for _, polling := range []bool{false, true} {
		name := "fsnotify"
		if polling {
			name = "polling"
		}
		t.Run(name, func(t *testing.T) {
			en, jp := t.TempDir(), t.TempDir()
			w, err := New([]string{en, jp}, watchedNames, Options{
				ForcePolling: polling,
				PollInterval: 20 * time.Millisecond,
				Logger:       quiet(),
			})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer w.Close()
			time.Sleep(50 * time.Millisecond)

			touch(t, filepath.Join(jp, "README.md"), time.Hour)
			expectNoEvent(t, w, 150*time.Millisecond)

			touch(t, filepath.Join(jp, "honors.json"), 2*time.Hour)
			expectEvent(t, w, 2*time.Second)

			touch(t, filepath.Join(en, "honorGroups.json"), 3*time.Hour)
			expectEvent(t, w, 2*time.Second)
		})
	}
}

func TestNotify_Coalesces(t *testing.T) {
	w, err := New([]string{t.TempDir()}, watchedNames, Options{ForcePolling: true, PollInterval: time.Hour, Logger: quiet()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	w.notify()
	w.notify()
	w.notify()
	expectEvent(t, w, time.Second)
	expectNoEvent(t, w, 50*time.Millisecond)
}

// ///////////////////////////////////////////////
// Run Tests
// ///////////////////////////////////////////////

func TestRun_DebouncesBursts(t *testing.T) {
	w, err := New([]string{t.TempDir()}, watchedNames, Options{ForcePolling: true, PollInterval: time.Hour, Logger: quiet()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	ran := make(chan struct{}, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- Run(ctx, w, 50*time.Millisecond, func(context.Context) error {
			calls.Add(1)
			ran <- struct{}{}
			return errors.New("rebuild failed")
		})
	}()

	// One burst.
	for range 5 {
		w.notify()
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("fn was not called")
	}

	// A failing fn does not stop the loop.
	w.notify()
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("fn was not called for the second burst")
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("fn calls = %d, want 2", got)
	}
}
