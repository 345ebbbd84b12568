// Command aw-tauri is the ActivityWatch module supervisor: it loads the
// user configuration, discovers sibling watcher/sync modules on the
// filesystem, autostarts the configured ones, projects their running state
// into a tray menu, and serves a small HTTP surface (liveness probe and
// device identity) alongside them. Exactly one instance may run per user
// session; a second launch raises the first and exits.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/activitywatch/aw-tauri/internal/config"
	"github.com/activitywatch/aw-tauri/internal/dirs"
	"github.com/activitywatch/aw-tauri/internal/discovery"
	"github.com/activitywatch/aw-tauri/internal/loglifecycle"
	"github.com/activitywatch/aw-tauri/internal/platform"
	"github.com/activitywatch/aw-tauri/internal/singleinstance"
	"github.com/activitywatch/aw-tauri/internal/supervisor"
	"github.com/activitywatch/aw-tauri/internal/tray"
	"github.com/activitywatch/aw-tauri/internal/webserver"
	"github.com/activitywatch/aw-tauri/internal/webserver/store"
)

// headlessHandle is the tray.Handle this binary publishes: the native
// webview/tray toolkit is outside this repo's scope (the core only
// publishes a menu descriptor through an abstract interface), so this
// handle logs what a real GUI host would have rendered.
type headlessHandle struct {
	logger *slog.Logger
}

func (h *headlessHandle) ShowMainWindow() {
	h.logger.Info("show main window requested")
}

func (h *headlessHandle) SetMenu(items []tray.MenuItem) {
	h.logger.Debug("tray menu projected", "item_count", len(items))
}

func fatal(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Error(msg, args...)
	} else {
		fmt.Fprintf(os.Stderr, "aw-tauri: %s\n", msg)
	}
	os.Exit(1)
}

func main() {
	d, err := dirs.Resolve()
	if err != nil {
		fatal(nil, "resolve directories failed", "error", err)
	}

	logger, closeLog, err := loglifecycle.Setup(filepath.Join(d.Log, "aw-tauri.log"))
	if err != nil {
		fatal(nil, "set up logging failed", "error", err)
	}
	defer closeLog()
	logger.Info("aw-tauri starting")

	lock, acquired, err := singleinstance.TryAcquire(d.Runtime)
	if err != nil {
		fatal(logger, "single-instance lock failed", "error", err)
	}
	if !acquired {
		logger.Info("another instance is already running; signalling it and exiting")
		if err := singleinstance.SignalSecondLaunch(d.Runtime); err != nil {
			fatal(logger, "signal running instance failed", "error", err)
		}
		return
	}
	defer lock.Unlock()

	dialog := func(msg string) { logger.Warn("dialog", "message", msg) }
	notifier := func(title, body string) { logger.Info("notification", "title", title, "body", body) }

	cfg, err := config.LoadConfig(filepath.Join(d.Config, "config.toml"))
	if err != nil {
		fatal(logger, "load config failed", "error", err)
	}
	if cfg.Malformed {
		dialog("Malformed config; using defaults")
	}

	assetDir, err := webserver.ResolveAssetDir(os.Getenv("AW_WEBUI_DIR"))
	if err != nil {
		dialog(fmt.Sprintf("Invalid AW_WEBUI_DIR: %v", err))
		fatal(logger, "resolve AW_WEBUI_DIR failed", "error", err)
	}

	// The port is claimed before anything is discovered or autostarted: a
	// conflict must abort with zero children spawned, not after they've
	// already been exec'd.
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	if err != nil {
		dialog(fmt.Sprintf("Port %d is already in use", cfg.Port))
		fatal(logger, "listen on configured port failed", "port", cfg.Port, "error", err)
	}

	discoveryPaths := cfg.DiscoveryPaths
	if len(discoveryPaths) == 0 {
		discoveryPaths = d.Discovery
	}
	discovered, err := discovery.Discover(discoveryPaths)
	if err != nil {
		fatal(logger, "module discovery failed", "error", err)
	}
	logger.Info("module discovery complete", "module_count", len(discovered))

	handle := &headlessHandle{logger: logger}
	publisher := tray.NewPublisher()
	publisher.Publish(handle)

	sup := supervisor.New(cfg, logger, discovered,
		supervisor.WithDialog(dialog),
		supervisor.WithNotifier(notifier),
	)
	sup.SetProjector(publisher.Projector())

	// The click dispatcher is wired up for whatever GUI event loop
	// eventually forwards tray clicks into it; this binary has no such
	// loop, so it is constructed but never driven.
	_ = tray.NewDispatcher(sup.State(), publisher, logger, d.Config, d.Log, platform.OpenDirectory, func(code int) { os.Exit(code) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		fatal(logger, "start supervisor failed", "error", err)
	}

	if err := singleinstance.Watch(ctx, d.Runtime, logger, handle.ShowMainWindow); err != nil {
		logger.Error("single-instance watcher failed to start", "error", err)
	}

	if cfg.FirstRun {
		handle.ShowMainWindow()
		notifier("ActivityWatch", "Welcome to Aw-Tauri…")
	}

	db, err := store.Open(filepath.Join(d.Data, "aw-tauri.db"))
	if err != nil {
		fatal(logger, "open webserver store failed", "error", err)
	}
	defer db.Close()

	startTime := time.Now()
	if err := db.RecordStart(ctx, startTime); err != nil {
		logger.Warn("record start event failed", "error", err)
	}

	webSrv := webserver.New(db, assetDir, startTime)
	httpServer := &http.Server{Handler: webSrv.Router()}
	go func() {
		logger.Info("web surface listening", "addr", listener.Addr().String())
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("web surface error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	sup.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("web surface shutdown error", "error", err)
	}

	logger.Info("aw-tauri exited cleanly")
}
