// Package supervisor drives the module lifecycle: it owns the single
// consumer thread that drains lifecycle events in order, the per-child
// worker goroutines that spawn and wait on module processes, and the
// delayed restart arbiter that decides whether a crashed module comes back.
//
// The shared lifecycle.State does the actual bookkeeping; this package is
// the concurrent machinery around it: a single consumer goroutine draining
// a channel of worker-reported events into that state.
package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/activitywatch/aw-tauri/internal/config"
	"github.com/activitywatch/aw-tauri/internal/lifecycle"
	"github.com/activitywatch/aw-tauri/internal/notify"
	"github.com/activitywatch/aw-tauri/internal/platform"
)

// notifyModuleName is the one module the supervisor spawns through the
// notify sub-protocol instead of the generic path.
const notifyModuleName = "aw-notify"

// restartDelay is the fixed minimum delay the restart arbiter waits before
// re-acquiring the lifecycle lock, per the crash-restart policy.
const restartDelay = 1 * time.Second

// eventKind distinguishes the three messages the consumer thread drains.
type eventKind int

const (
	eventInit eventKind = iota
	eventStarted
	eventStopped
)

type event struct {
	kind eventKind
	name string
	pid  int
	args []string

	// stopped-only fields
	exitErr error
}

// Dialog surfaces a short user-facing message (a crash notice, a restart
// limit warning, a port-conflict error) through whatever GUI dialog
// facility the host provides.
type Dialog func(message string)

// Notifier dispatches a completed OS notification with the given title and
// body, used both for the notify sub-protocol's re-emitted notifications
// and the first-run welcome message.
type Notifier func(title, body string)

// Option configures a Supervisor at construction time.
type Option func(*Supervisor)

// WithDialog overrides the dialog sink. The default is a no-op.
func WithDialog(d Dialog) Option {
	return func(s *Supervisor) { s.dialog = d }
}

// WithNotifier overrides the OS notification sink. The default is a no-op.
func WithNotifier(n Notifier) Option {
	return func(s *Supervisor) { s.notifier = n }
}

// Supervisor owns the lifecycle channel, the consumer thread, and every
// per-child worker and restart-arbiter goroutine it spawns.
type Supervisor struct {
	cfg    *config.UserConfig
	logger *slog.Logger
	state  *lifecycle.State

	dialog   Dialog
	notifier Notifier

	events chan event

	mu                sync.Mutex
	ctx               context.Context
	cancel            context.CancelFunc
	wg                sync.WaitGroup
	externalProjector func(lifecycle.Snapshot)
}

// New constructs a Supervisor. discovered is the module-name-to-path
// mapping produced by a single discovery pass at startup.
func New(cfg *config.UserConfig, logger *slog.Logger, discovered map[string]string, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:      cfg,
		logger:   logger,
		dialog:   func(string) {},
		notifier: func(string, string) {},
		events:   make(chan event, 32),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.state = lifecycle.New(logger, discovered, s.spawn, platform.Terminate, s.projectMenu)
	return s
}

// State exposes the lifecycle table for the tray click dispatcher to read
// and mutate through its own documented methods.
func (s *Supervisor) State() *lifecycle.State {
	return s.state
}

// Start launches the consumer thread and the configured autostart modules.
// It returns once the consumer thread is running; module spawns happen
// asynchronously.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("supervisor: already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.ctx = ctx
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.consume(ctx)

	s.events <- event{kind: eventInit}

	if s.cfg.Autostart.Enabled {
		for _, m := range s.cfg.Autostart.Modules {
			args := config.TokenizeArgs(m.Args)
			if err := s.state.StartModule(m.Name, args); err != nil {
				s.logger.Error("autostart module failed", "module", m.Name, "error", err)
			}
		}
	}

	return nil
}

// Stop requests every running module to terminate and waits for all worker
// and arbiter goroutines to finish. It is safe to call once, after Start.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	s.state.StopModules()
	cancel()
	s.wg.Wait()
}

// consume is the single consumer thread: it drains events in order and is
// the only goroutine that applies Started/Stopped events to the lifecycle
// state, so those transitions for a given module are applied in the order
// its worker reported them. Restart decisions are made afterwards, in a
// restartArbiter goroutine.
func (s *Supervisor) consume(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			switch ev.kind {
			case eventInit:
				s.state.ForceProject()
			case eventStarted:
				s.state.StartedModule(ev.name, ev.pid, ev.args)
			case eventStopped:
				pendingShutdown, _ := s.state.StoppedModule(ev.name)
				if ev.exitErr == nil {
					s.logger.Info("module exited cleanly", "module", ev.name)
					continue
				}
				if pendingShutdown {
					s.logger.Info("module stopped by request", "module", ev.name)
					continue
				}
				s.wg.Add(1)
				go s.restartArbiter(ev.name)
			}
		}
	}
}

// restartArbiter waits the fixed restart delay, then atomically re-checks
// pending_shutdown and the crash budget before respawning.
func (s *Supervisor) restartArbiter(name string) {
	defer s.wg.Done()

	b := backoff.NewConstantBackOff(restartDelay)
	time.Sleep(b.NextBackOff())

	decision, args := s.state.ArbitrateRestart(name)
	switch decision {
	case lifecycle.RestartAborted:
		return
	case lifecycle.RestartLimitReached:
		s.dialog(fmt.Sprintf("%s keeps on crashing, restart limit reached", name))
	case lifecycle.RestartGranted:
		s.dialog(fmt.Sprintf("%s crashed, restarting…", name))
		if err := s.state.StartModule(name, args); err != nil {
			s.logger.Error("restart failed", "module", name, "error", err)
		}
	}
}

// projectMenu is the lifecycle.Projector hook. It forwards each snapshot to
// whatever callback SetProjector installed — normally the tray package's
// own Snapshot-to-menu translation — keeping Supervisor itself unaware of
// menu structure.
func (s *Supervisor) projectMenu(snap lifecycle.Snapshot) {
	s.mu.Lock()
	proj := s.externalProjector
	s.mu.Unlock()
	if proj != nil {
		proj(snap)
	}
}

// SetProjector installs the tray package's menu-projection callback. It
// must be called before Start so the very first (Init) projection reaches
// it.
func (s *Supervisor) SetProjector(p func(lifecycle.Snapshot)) {
	s.mu.Lock()
	s.externalProjector = p
	s.mu.Unlock()
}

// spawn is the lifecycle.Starter: it launches the per-child worker
// goroutine that exec's path, reports Started, blocks to completion, and
// reports Stopped.
func (s *Supervisor) spawn(name, path string, args []string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if name == notifyModuleName {
			s.spawnNotifyModule(name, path, args)
			return
		}

		s.spawnGeneric(name, path, resolveArgs(args, s.cfg.Port))
	}()
}

// spawnGeneric runs the standard per-child worker: spawn with stdout
// captured, report Started immediately, wait for exit, report Stopped.
func (s *Supervisor) spawnGeneric(name, path string, args []string) {
	cmd := exec.Command(path, args...)
	platform.ApplySpawnAttrs(cmd)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Start(); err != nil {
		s.logger.Error("spawn module failed", "module", name, "path", path, "error", err)
		return
	}

	s.events <- event{kind: eventStarted, name: name, pid: cmd.Process.Pid, args: args}

	waitErr := cmd.Wait()
	s.events <- event{kind: eventStopped, name: name, exitErr: waitErr}
}

// spawnNotifyModule implements the distinct spawn path for aw-notify: always
// prepend --output-only, and stream stdout through the notify parser
// instead of buffering it. If the child rejects --output-only, fall back to
// the generic spawn path for this one attempt.
func (s *Supervisor) spawnNotifyModule(name, path string, args []string) {
	resolved := resolveArgs(args, s.cfg.Port)
	notifyArgs := append([]string{"--output-only"}, resolved...)

	cmd := exec.Command(path, notifyArgs...)
	platform.ApplySpawnAttrs(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.logger.Error("notify stdout pipe failed", "module", name, "error", err)
		return
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		s.logger.Error("spawn notify module failed", "module", name, "error", err)
		return
	}

	s.events <- event{kind: eventStarted, name: name, pid: cmd.Process.Pid, args: resolved}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		_ = notify.Run(stdout, func(body string) {
			s.notifier("ActivityWatch", body)
		}, func(line string) {
			s.logger.Debug("notify module stray output", "module", name, "line", line)
		})
	}()

	waitErr := cmd.Wait()
	<-readerDone

	if waitErr != nil && strings.Contains(stderr.String(), notify.RejectionMarker) {
		s.logger.Info("notify module rejected --output-only, falling back to generic spawn", "module", name)
		s.spawnGeneric(name, path, resolved)
		return
	}

	s.events <- event{kind: eventStopped, name: name, exitErr: waitErr}
}

// resolveArgs implements the argument-selection rule: a non-nil args slice
// (configured args, or args carried over from a previous spawn) is used
// verbatim; otherwise, a non-default port appends --port <port>, and the
// default port appends nothing. The result is always non-nil so that a
// later restart or tray click, which reuses the stored Args verbatim, sees
// the same resolved value and does not re-derive it.
func resolveArgs(args []string, port int) []string {
	if args != nil {
		return args
	}
	if port != config.DefaultPort {
		return []string{"--port", strconv.Itoa(port)}
	}
	return []string{}
}
