// Package loglifecycle owns the supervisor's own log file: a
// size-bounded, self-rotating writer and a slog.Handler producing the
// bracketed "[timestamp][level][target] message" line format, with
// verbosity selected from the AW_DEBUG/AW_TRACE environment variables.
package loglifecycle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MaxSize is the threshold past which the next Write rotates the file.
const MaxSize = 32 * 1024 * 1024

// MaxRotated is how many rotated files are kept; older ones are pruned.
const MaxRotated = 5

// RotatingWriter is an io.WriteCloser appending to a single log file,
// renaming it aside once it exceeds MaxSize and pruning all but the
// MaxRotated most recently modified rotated files.
type RotatingWriter struct {
	mu   sync.Mutex
	path string
	dir  string
	stem string
	file *os.File
	size int64
	now  func() time.Time
}

// NewRotatingWriter opens (creating if necessary) the log file at path.
// now, if nil, defaults to time.Now and is otherwise a seam for tests.
func NewRotatingWriter(path string, now func() time.Time) (*RotatingWriter, error) {
	if now == nil {
		now = time.Now
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	w := &RotatingWriter{path: path, dir: dir, stem: stem, now: now}
	if err := w.openLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) openLocked() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", w.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file %s: %w", w.path, err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write appends p, rotating first if the file already exceeds MaxSize.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > MaxSize {
		if err := w.rotateLocked(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) rotateLocked() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close log file before rotation: %w", err)
	}
	rotated := filepath.Join(w.dir, fmt.Sprintf("%s.%s.log", w.stem, w.now().Format("2006-01-02_15-04-05")))
	if err := os.Rename(w.path, rotated); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}
	if err := pruneRotated(w.dir, w.stem); err != nil {
		return err
	}
	return w.openLocked()
}

// pruneRotated removes rotated log files beyond the MaxRotated most
// recently modified, leaving the live log (stem.log) untouched.
func pruneRotated(dir, stem string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read log directory %s: %w", dir, err)
	}

	type rotatedFile struct {
		path    string
		modTime time.Time
	}
	current := stem + ".log"
	prefix := stem + "."
	var rotated []rotatedFile
	for _, e := range entries {
		name := e.Name()
		if name == current || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		rotated = append(rotated, rotatedFile{path: filepath.Join(dir, name), modTime: info.ModTime()})
	}

	sort.Slice(rotated, func(i, j int) bool { return rotated[i].modTime.After(rotated[j].modTime) })

	for _, r := range rotated[min(len(rotated), MaxRotated):] {
		if err := os.Remove(r.path); err != nil {
			return fmt.Errorf("prune rotated log %s: %w", r.path, err)
		}
	}
	return nil
}

// Close closes the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Handler is a slog.Handler that writes "[timestamp][LEVEL][target]
// message key=value..." lines, one per record.
type Handler struct {
	w     io.Writer
	level slog.Leveler
	mu    *sync.Mutex
	attrs []slog.Attr
}

// NewHandler wraps w. level defaults to Info if nil.
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{w: w, level: level, mu: &sync.Mutex{}}
}

// Enabled reports whether level meets the handler's configured floor.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes a single record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	target := "aw-tauri"
	var extra []string

	collect := func(a slog.Attr) bool {
		if a.Key == "target" {
			target = a.Value.String()
			return true
		}
		extra = append(extra, fmt.Sprintf("%s=%v", a.Key, a.Value.Any()))
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	line := fmt.Sprintf("[%s][%s][%s] %s", r.Time.Format("2006-01-02 15:04:05"), r.Level.String(), target, r.Message)
	if len(extra) > 0 {
		line += " " + strings.Join(extra, " ")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.w, line)
	return err
}

// WithAttrs returns a Handler that includes attrs on every future record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

// WithGroup is a no-op beyond returning the receiver: this format has no
// notion of nested groups.
func (h *Handler) WithGroup(string) slog.Handler {
	return h
}

// LevelFromEnv selects Debug when either AW_DEBUG or AW_TRACE is set
// (regardless of value), Info otherwise.
func LevelFromEnv() slog.Level {
	if _, ok := os.LookupEnv("AW_TRACE"); ok {
		return slog.LevelDebug
	}
	if _, ok := os.LookupEnv("AW_DEBUG"); ok {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Setup opens the rotating log file at path and returns a ready-to-use
// logger plus a close function to flush and release the file descriptor.
func Setup(path string) (*slog.Logger, func() error, error) {
	w, err := NewRotatingWriter(path, nil)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(NewHandler(w, LevelFromEnv()))
	return logger, w.Close, nil
}
