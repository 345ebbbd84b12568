// Package lifecycle holds the supervisor's authoritative module state: one
// shared value, protected by a single mutex, mapping each module name to
// whether it is running, its pid and last-used arguments, its crash-restart
// counter, and whether a shutdown for it is already in flight.
//
// Every method reads and writes the table under the same mutex.
// StartedModule, StoppedModule and ForceProject, the methods that change
// what the menu shows, end by handing a freshly built snapshot to the
// injected projector while still holding it, so a tray menu built from that
// snapshot always reflects the state produced by the mutation that
// triggered it. The other methods do not project: they change only fields
// the menu does not show (pending shutdown, the restart counter), and they
// release the mutex before calling the Starter or Terminator.
package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// maxRestarts is the crash budget: the third failing exit of a module may
// still be restarted, the fourth may not.
const maxRestarts = 3

// ErrNotDiscovered is returned by StartModule (and wrapped by
// HandleSystemClick) when asked to start a module whose executable was
// never found on the discovery search path.
var ErrNotDiscovered = errors.New("lifecycle: module not discovered")

// Record is the per-module lifecycle row. PID is meaningful only while
// Running is true; Args and RestartCount persist across restarts.
type Record struct {
	Running         bool
	PID             int
	Args            []string
	RestartCount    int
	PendingShutdown bool
}

// ModuleView is a read-only projection of a single module's state, used by
// the tray projector to render a menu entry.
type ModuleView struct {
	Name    string
	Running bool
}

// Snapshot is the state observed under a single critical section: every
// module that has ever had a record (running or previously stopped),
// plus every discovered module that has never been started.
type Snapshot struct {
	Known    []ModuleView
	NeverRun []string
}

// RestartDecision is the outcome of ArbitrateRestart.
type RestartDecision int

const (
	// RestartAborted means pending_shutdown was set: the exit was
	// user-intended and must not trigger a respawn.
	RestartAborted RestartDecision = iota
	// RestartLimitReached means the crash budget (maxRestarts) is spent.
	RestartLimitReached
	// RestartGranted means the restart counter was incremented and the
	// caller should respawn the module with the returned args.
	RestartGranted
)

// Starter spawns a module's worker thread: it starts the process at path
// with args, and is responsible for eventually reporting the outcome back
// to the State via StartedModule/StoppedModule. It is invoked without the
// State's mutex held, since spawning may block.
type Starter func(name, path string, args []string)

// Terminator sends a platform-appropriate termination request to pid.
type Terminator func(pid int) error

// Projector receives a freshly built Snapshot after every mutation.
type Projector func(Snapshot)

// State is the shared, mutex-protected lifecycle table.
type State struct {
	mu     sync.Mutex
	logger *slog.Logger

	records    map[string]*Record
	discovered map[string]string // name -> absolute path
	populated  bool

	start   Starter
	term    Terminator
	project Projector
}

// New constructs a State. discovered is the module-name-to-path mapping
// produced once by discovery at supervisor construction; it is never
// refreshed during steady state.
func New(logger *slog.Logger, discovered map[string]string, start Starter, term Terminator, project Projector) *State {
	return &State{
		logger:     logger,
		records:    make(map[string]*Record),
		discovered: discovered,
		start:      start,
		term:       term,
		project:    project,
	}
}

func (s *State) recordLocked(name string) *Record {
	r, ok := s.records[name]
	if !ok {
		r = &Record{}
		s.records[name] = r
	}
	return r
}

// snapshotLocked builds a Snapshot; callers must hold s.mu.
func (s *State) snapshotLocked() Snapshot {
	snap := Snapshot{}
	for name, r := range s.records {
		snap.Known = append(snap.Known, ModuleView{Name: name, Running: r.Running})
	}
	sort.Slice(snap.Known, func(i, j int) bool { return snap.Known[i].Name < snap.Known[j].Name })

	for name := range s.discovered {
		if _, ok := s.records[name]; !ok {
			snap.NeverRun = append(snap.NeverRun, name)
		}
	}
	sort.Strings(snap.NeverRun)

	return snap
}

// projectLocked rebuilds and hands off the menu snapshot; callers must hold
// s.mu so the snapshot reflects exactly the mutation that preceded it.
func (s *State) projectLocked() {
	s.populated = true
	if s.project != nil {
		s.project(s.snapshotLocked())
	}
}

// ForceProject triggers a menu projection unconditionally, used once at
// boot to install an initial menu before any module has started.
func (s *State) ForceProject() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projectLocked()
}

// Populated reports whether at least one projection has occurred.
func (s *State) Populated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.populated
}

// IsDiscovered reports whether name was found during discovery, and its
// absolute path if so.
func (s *State) IsDiscovered(name string) (path string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok = s.discovered[name]
	return
}

// StartedModule records that name's worker thread observed a successful
// spawn. It clears pending_shutdown (a fresh process life has begun) and
// triggers a menu projection.
func (s *State) StartedModule(name string, pid int, args []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.recordLocked(name)
	r.Running = true
	r.PID = pid
	r.Args = args
	r.PendingShutdown = false
	s.projectLocked()
}

// StoppedModule records that name's worker thread observed process exit.
// It returns whether the exit was already pending-shutdown (so the caller
// must not start a restart arbiter) and the current restart count, snapshot
// at the instant of the transition.
func (s *State) StoppedModule(name string) (pendingShutdown bool, restartCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.recordLocked(name)
	r.Running = false
	r.PID = 0
	pendingShutdown = r.PendingShutdown
	restartCount = r.RestartCount
	s.projectLocked()
	return
}

// ArbitrateRestart is called by the restart arbiter after its fixed delay
// to decide, atomically with respect to any click that may have arrived
// during the delay, whether to respawn name. On RestartGranted the restart
// counter has already been incremented and the returned args are the ones
// to respawn with.
func (s *State) ArbitrateRestart(name string) (RestartDecision, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[name]
	if !ok || r.PendingShutdown {
		return RestartAborted, nil
	}
	if r.RestartCount >= maxRestarts {
		return RestartLimitReached, nil
	}
	r.RestartCount++
	return RestartGranted, append([]string(nil), r.Args...)
}

// StartModule is idempotent with respect to current running state: a call
// for an already-running module is a no-op. A call for a module that was
// never discovered returns ErrNotDiscovered without mutating any state.
func (s *State) StartModule(name string, args []string) error {
	s.mu.Lock()
	if r, ok := s.records[name]; ok && r.Running {
		s.mu.Unlock()
		return nil
	}
	path, ok := s.discovered[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotDiscovered, name)
	}

	s.start(name, path, args)
	return nil
}

// StopModule is idempotent with respect to current running state: a call
// for a module that is not running is a no-op. Otherwise it marks
// pending_shutdown and sends a termination request; the actual running=false
// transition happens later when StoppedModule observes the exit.
func (s *State) StopModule(name string) error {
	s.mu.Lock()
	r, ok := s.records[name]
	if !ok || !r.Running {
		s.mu.Unlock()
		return nil
	}
	r.PendingShutdown = true
	pid := r.PID
	s.mu.Unlock()

	if err := s.term(pid); err != nil {
		return fmt.Errorf("terminate %s (pid %d): %w", name, pid, err)
	}
	return nil
}

// StopModules marks every currently running module pending-shutdown and
// sends each a termination request. It snapshots the set of running
// modules before iterating so a concurrent StartedModule cannot extend the
// set mid-traversal. It is best-effort: termination failures are logged,
// not returned, since the caller (Quit) exits the application regardless.
func (s *State) StopModules() {
	type target struct {
		name string
		pid  int
	}

	s.mu.Lock()
	var targets []target
	for name, r := range s.records {
		if r.Running {
			r.PendingShutdown = true
			targets = append(targets, target{name: name, pid: r.PID})
		}
	}
	s.mu.Unlock()

	for _, t := range targets {
		if err := s.term(t.pid); err != nil && s.logger != nil {
			s.logger.Error("terminate module failed", "module", t.name, "pid", t.pid, "error", err)
		}
	}
}

// HandleSystemClick toggles a module between running and stopped, mirroring
// a tray checkbox click: start it if not running (with its last-used args,
// or none for a module that has never run), stop it if running.
func (s *State) HandleSystemClick(name string) error {
	s.mu.Lock()
	r, ok := s.records[name]
	running := ok && r.Running
	var args []string
	if ok {
		args = append([]string(nil), r.Args...)
	}
	s.mu.Unlock()

	if running {
		return s.StopModule(name)
	}
	return s.StartModule(name, args)
}
