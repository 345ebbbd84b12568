package lifecycle_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/activitywatch/aw-tauri/internal/lifecycle"
)

func newTestState(t *testing.T) (*lifecycle.State, *[]lifecycle.Snapshot, *[]string) {
	t.Helper()

	var projections []lifecycle.Snapshot
	var started []string

	discovered := map[string]string{
		"aw-watcher-afk": "/usr/bin/aw-watcher-afk",
	}

	s := lifecycle.New(nil, discovered,
		func(name, path string, args []string) {
			started = append(started, name)
		},
		func(pid int) error { return nil },
		func(snap lifecycle.Snapshot) { projections = append(projections, snap) },
	)
	return s, &projections, &started
}

func TestStartModule_NotDiscovered(t *testing.T) {
	s, _, _ := newTestState(t)
	err := s.StartModule("aw-nonexistent", nil)
	if !errors.Is(err, lifecycle.ErrNotDiscovered) {
		t.Fatalf("err = %v, want ErrNotDiscovered", err)
	}
}

func TestStartModule_IdempotentWhileRunning(t *testing.T) {
	s, _, started := newTestState(t)

	if err := s.StartModule("aw-watcher-afk", nil); err != nil {
		t.Fatalf("first start: %v", err)
	}
	s.StartedModule("aw-watcher-afk", 123, nil)

	if err := s.StartModule("aw-watcher-afk", nil); err != nil {
		t.Fatalf("second start: %v", err)
	}

	if len(*started) != 1 {
		t.Errorf("spawner invoked %d times, want 1 (start while running must be a no-op)", len(*started))
	}
}

func TestStopModule_NoopWhenNotRunning(t *testing.T) {
	s, _, _ := newTestState(t)
	if err := s.StopModule("aw-watcher-afk"); err != nil {
		t.Fatalf("stop non-running module: %v", err)
	}
}

// TestInvariantPIDRunning covers spec invariant 1: pid is present iff
// running = true.
func TestInvariantPIDRunning(t *testing.T) {
	s, projections, _ := newTestState(t)

	s.StartedModule("aw-watcher-afk", 42, nil)
	pendingShutdown, restartCount := s.StoppedModule("aw-watcher-afk")
	if pendingShutdown {
		t.Error("pendingShutdown = true after a clean, non-pending stop")
	}
	if restartCount != 0 {
		t.Errorf("restartCount = %d, want 0", restartCount)
	}

	last := (*projections)[len(*projections)-1]
	for _, m := range last.Known {
		if m.Name == "aw-watcher-afk" && m.Running {
			t.Error("module still reported running after StoppedModule")
		}
	}
}

// TestPendingShutdownSuppressesRestart covers spec invariant 2.
func TestPendingShutdownSuppressesRestart(t *testing.T) {
	s, _, _ := newTestState(t)

	if err := s.StartModule("aw-watcher-afk", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.StartedModule("aw-watcher-afk", 7, nil)

	if err := s.StopModule("aw-watcher-afk"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	pendingShutdown, restartCountBefore := s.StoppedModule("aw-watcher-afk")
	if !pendingShutdown {
		t.Fatal("pendingShutdown = false, want true after StopModule then exit")
	}

	decision, _ := s.ArbitrateRestart("aw-watcher-afk")
	if decision != lifecycle.RestartAborted {
		t.Errorf("decision = %v, want RestartAborted", decision)
	}
	_, restartCountAfter := s.StoppedModule("aw-watcher-afk")
	if restartCountAfter != restartCountBefore {
		t.Errorf("restart count changed from %d to %d across an aborted restart", restartCountBefore, restartCountAfter)
	}
}

// TestRestartCountCapsAtThree covers spec invariant 3 and the boundary
// behavior in §8 (the 4th failing exit does not trigger a restart).
func TestRestartCountCapsAtThree(t *testing.T) {
	s, _, started := newTestState(t)

	if err := s.StartModule("aw-watcher-afk", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.StartedModule("aw-watcher-afk", 1, nil)

	var grants int
	for i := 0; i < 5; i++ {
		s.StoppedModule("aw-watcher-afk")
		decision, args := s.ArbitrateRestart("aw-watcher-afk")
		switch decision {
		case lifecycle.RestartGranted:
			grants++
			s.StartedModule("aw-watcher-afk", 100+i, args)
		case lifecycle.RestartLimitReached:
			// expected from the 4th failure onward
		case lifecycle.RestartAborted:
			t.Fatalf("unexpected abort at iteration %d", i)
		}
	}

	if grants != 3 {
		t.Errorf("grants = %d, want exactly 3", grants)
	}
	_ = started
}

func TestHandleSystemClickTogglesAndPreservesArgs(t *testing.T) {
	var started [][]string
	s := lifecycle.New(nil, map[string]string{"aw-watcher-afk": "/usr/bin/aw-watcher-afk"},
		func(name, path string, args []string) {
			started = append(started, args)
		},
		func(pid int) error { return nil },
		nil,
	)

	if err := s.HandleSystemClick("aw-watcher-afk"); err != nil {
		t.Fatalf("click 1: %v", err)
	}
	s.StartedModule("aw-watcher-afk", 55, []string{"--port", "5601"})

	if err := s.HandleSystemClick("aw-watcher-afk"); err != nil {
		t.Fatalf("click 2 (stop): %v", err)
	}
	s.StoppedModule("aw-watcher-afk")

	if err := s.HandleSystemClick("aw-watcher-afk"); err != nil {
		t.Fatalf("click 3 (restart): %v", err)
	}

	if len(started) != 2 {
		t.Fatalf("spawner invoked %d times, want 2", len(started))
	}
	if want := []string{"--port", "5601"}; !reflect.DeepEqual(started[1], want) {
		t.Errorf("restart after stop used args %v, want last-used args %v", started[1], want)
	}
}
