// Package singleinstance enforces that only one supervisor process runs at
// a time and lets a second launch attempt raise the first instance's
// window instead of starting a competing copy.
//
// A second launch fails to acquire the lock file, writes a sentinel file
// under the runtime directory, and exits; the first instance watches that
// directory for the sentinel's appearance, deletes it, and raises its
// window.
package singleinstance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
)

// SentinelName is the zero-byte file a second launch writes under the
// runtime directory to signal the first instance.
const SentinelName = "single_instance.lock"

// lockFileName is the advisory lock file that actually arbitrates which
// process is "first", distinct from the sentinel above.
const lockFileName = ".aw-tauri.lock"

// TryAcquire attempts to become the sole running instance by taking an
// exclusive, non-blocking lock under runtimeDir. On success the returned
// *flock.Flock must be kept referenced (and eventually Unlocked) for the
// supervisor's lifetime — letting it be garbage collected would release
// the lock. ok is false when another instance already holds the lock,
// which is not itself an error.
func TryAcquire(runtimeDir string) (lock *flock.Flock, ok bool, err error) {
	if err := os.MkdirAll(runtimeDir, 0o755); err != nil {
		return nil, false, fmt.Errorf("create runtime directory: %w", err)
	}

	l := flock.New(filepath.Join(runtimeDir, lockFileName))
	locked, err := l.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("acquire single-instance lock: %w", err)
	}
	if !locked {
		return nil, false, nil
	}
	return l, true, nil
}

// SignalSecondLaunch writes the zero-byte sentinel file under runtimeDir.
// Called by a process that failed TryAcquire, immediately before exiting.
func SignalSecondLaunch(runtimeDir string) error {
	if err := os.MkdirAll(runtimeDir, 0o755); err != nil {
		return fmt.Errorf("create runtime directory: %w", err)
	}
	path := filepath.Join(runtimeDir, SentinelName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("write sentinel %s: %w", path, err)
	}
	return f.Close()
}

// Watch starts a background goroutine that watches runtimeDir
// non-recursively for the sentinel file's creation or modification. Each
// time it fires, the goroutine deletes the file and calls onRaise.
// Watch-error events are logged and tolerated, never fatal. The goroutine
// exits when ctx is done.
func Watch(ctx context.Context, runtimeDir string, logger *slog.Logger, onRaise func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create single-instance watcher: %w", err)
	}
	if err := w.Add(runtimeDir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", runtimeDir, err)
	}

	target := filepath.Join(runtimeDir, SentinelName)

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != target {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				_ = os.Remove(target)
				onRaise()
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				if logger != nil {
					logger.Error("single-instance watcher error", "error", werr)
				}
			}
		}
	}()

	return nil
}
