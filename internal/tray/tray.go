// Package tray projects lifecycle state into a tray menu descriptor and
// dispatches menu clicks back into the supervisor.
//
// The GUI application handle is published exactly once, mirroring the
// set-once-cell-plus-condition-variable pattern the original bootstrap used
// for its app handle and tray ID: any goroutine that wants to project a
// menu before the GUI has finished initializing blocks on Wait until
// Publish is called.
package tray

import (
	"log/slog"
	"sync"

	"github.com/activitywatch/aw-tauri/internal/lifecycle"
)

// Fixed tray menu IDs.
const (
	IDOpen         = "open"
	IDQuit         = "quit"
	IDConfigFolder = "config_folder"
	IDLogFolder    = "log_folder"
)

// MenuItem is a GUI-agnostic tray menu entry. Separator is true for a
// plain divider; Submenu holds nested items for the "Modules" entry.
type MenuItem struct {
	ID        string
	Label     string
	Checkable bool
	Checked   bool
	Separator bool
	Submenu   []MenuItem
}

// BuildMenu translates a lifecycle.Snapshot into the fixed menu structure:
// Open Dashboard, a separator, the Modules submenu, a separator, the two
// folder-reveal items, a separator, and Quit.
func BuildMenu(snap lifecycle.Snapshot) []MenuItem {
	modules := make([]MenuItem, 0, len(snap.Known)+len(snap.NeverRun))
	for _, m := range snap.Known {
		modules = append(modules, MenuItem{ID: m.Name, Label: m.Name, Checkable: true, Checked: m.Running})
	}
	for _, name := range snap.NeverRun {
		modules = append(modules, MenuItem{ID: name, Label: name})
	}

	return []MenuItem{
		{ID: IDOpen, Label: "Open Dashboard"},
		{Separator: true},
		{Label: "Modules", Submenu: modules},
		{Separator: true},
		{ID: IDConfigFolder, Label: "Open config folder"},
		{ID: IDLogFolder, Label: "Open log folder"},
		{Separator: true},
		{ID: IDQuit, Label: "Quit ActivityWatch"},
	}
}

// Handle abstracts the GUI host's application handle: the operations the
// tray and single-instance packages need to perform against it.
type Handle interface {
	ShowMainWindow()
	SetMenu(items []MenuItem)
}

// Publisher is a set-once cell for a Handle, with waiters blocking on a
// condition variable until Publish is called.
type Publisher struct {
	mu        sync.Mutex
	cond      *sync.Cond
	handle    Handle
	published bool
}

// NewPublisher returns a Publisher with no handle yet installed.
func NewPublisher() *Publisher {
	p := &Publisher{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Publish installs h exactly once. Calls after the first are no-ops,
// mirroring the original OnceLock.get_or_init semantics: the GUI handle is
// set up once at startup and never replaced.
func (p *Publisher) Publish(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.published {
		return
	}
	p.handle = h
	p.published = true
	p.cond.Broadcast()
}

// Wait blocks until Publish has been called at least once, then returns
// the published handle.
func (p *Publisher) Wait() Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.published {
		p.cond.Wait()
	}
	return p.handle
}

// Projector returns a lifecycle.Projector that blocks on the handle's
// publication, then builds and hands off the menu for every snapshot. Menu
// projections are naturally serialized because lifecycle.State calls its
// Projector under its own mutex.
func (p *Publisher) Projector() func(lifecycle.Snapshot) {
	return func(snap lifecycle.Snapshot) {
		p.Wait().SetMenu(BuildMenu(snap))
	}
}

// Dispatcher routes a clicked menu ID to the corresponding action.
type Dispatcher struct {
	state     *lifecycle.State
	handle    *Publisher
	logger    *slog.Logger
	configDir string
	logDir    string
	reveal    func(path string) error
	exit      func(code int)
}

// NewDispatcher constructs a Dispatcher. reveal opens a directory in the
// host shell; exit terminates the application process.
func NewDispatcher(state *lifecycle.State, handle *Publisher, logger *slog.Logger, configDir, logDir string, reveal func(string) error, exit func(int)) *Dispatcher {
	return &Dispatcher{
		state:     state,
		handle:    handle,
		logger:    logger,
		configDir: configDir,
		logDir:    logDir,
		reveal:    reveal,
		exit:      exit,
	}
}

// Dispatch handles a single menu click by ID: open shows the main window,
// quit stops every module and exits, config_folder/log_folder reveal their
// directory, and any other ID is treated as a module name toggle.
func (d *Dispatcher) Dispatch(id string) {
	switch id {
	case IDOpen:
		d.handle.Wait().ShowMainWindow()
	case IDQuit:
		d.state.StopModules()
		d.exit(0)
	case IDConfigFolder:
		if err := d.reveal(d.configDir); err != nil && d.logger != nil {
			d.logger.Error("reveal config folder failed", "error", err)
		}
	case IDLogFolder:
		if err := d.reveal(d.logDir); err != nil && d.logger != nil {
			d.logger.Error("reveal log folder failed", "error", err)
		}
	default:
		if err := d.state.HandleSystemClick(id); err != nil && d.logger != nil {
			d.logger.Error("module click failed", "module", id, "error", err)
		}
	}
}
