package supervisor_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/activitywatch/aw-tauri/internal/config"
	"github.com/activitywatch/aw-tauri/internal/lifecycle"
	"github.com/activitywatch/aw-tauri/internal/supervisor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script %s: %v", name, err)
	}
	return path
}

func waitForRunning(t *testing.T, snapshots <-chan lifecycle.Snapshot, name string, timeout time.Duration) bool {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case snap := <-snapshots:
			for _, m := range snap.Known {
				if m.Name == name && m.Running {
					return true
				}
			}
		case <-deadline:
			return false
		}
	}
}

func waitForStopped(t *testing.T, snapshots <-chan lifecycle.Snapshot, name string, timeout time.Duration) bool {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case snap := <-snapshots:
			for _, m := range snap.Known {
				if m.Name == name && !m.Running {
					return true
				}
			}
		case <-deadline:
			return false
		}
	}
}

func TestSupervisorAutostartAndGracefulStop(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh unavailable")
	}

	dir := t.TempDir()
	path := writeScript(t, dir, "aw-watcher-afk", "sleep 5\n")

	cfg := &config.UserConfig{
		Port: config.DefaultPort,
		Autostart: config.AutostartConfig{
			Enabled: true,
			Modules: []config.ModuleEntry{{Name: "aw-watcher-afk"}},
		},
	}

	snapshots := make(chan lifecycle.Snapshot, 64)
	sup := supervisor.New(cfg, testLogger(), map[string]string{"aw-watcher-afk": path})
	sup.SetProjector(func(s lifecycle.Snapshot) { snapshots <- s })

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if !waitForRunning(t, snapshots, "aw-watcher-afk", 2*time.Second) {
		t.Fatal("module never reported running")
	}

	sup.Stop()

	if !waitForStopped(t, snapshots, "aw-watcher-afk", 2*time.Second) {
		t.Fatal("module never reported stopped after Stop")
	}
}

func TestSupervisorCrashLoopRestartLimit(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh unavailable")
	}

	dir := t.TempDir()
	path := writeScript(t, dir, "aw-flaky", "exit 7\n")

	cfg := &config.UserConfig{
		Port: config.DefaultPort,
		Autostart: config.AutostartConfig{
			Enabled: true,
			Modules: []config.ModuleEntry{{Name: "aw-flaky"}},
		},
	}

	var mu sync.Mutex
	var dialogs []string
	sup := supervisor.New(cfg, testLogger(), map[string]string{"aw-flaky": path},
		supervisor.WithDialog(func(msg string) {
			mu.Lock()
			dialogs = append(dialogs, msg)
			mu.Unlock()
		}),
	)

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop()

	deadline := time.After(8 * time.Second)
	for {
		mu.Lock()
		last := ""
		if len(dialogs) > 0 {
			last = dialogs[len(dialogs)-1]
		}
		mu.Unlock()
		if strings.Contains(last, "restart limit reached") {
			break
		}
		select {
		case <-deadline:
			mu.Lock()
			t.Fatalf("restart limit dialog never observed; dialogs so far: %v", dialogs)
			mu.Unlock()
		case <-time.After(50 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	crashDialogs := 0
	for _, d := range dialogs {
		if strings.Contains(d, "crashed, restarting") {
			crashDialogs++
		}
	}
	if crashDialogs != 3 {
		t.Errorf("crash-restart dialogs = %d, want exactly 3", crashDialogs)
	}
}

