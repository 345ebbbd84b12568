// Package webserver is the supervisor's own small HTTP surface: a liveness
// probe and a device/session identity endpoint the webui queries on load,
// plus optional static asset serving from an AW_WEBUI_DIR override. It is
// additive to the boundary where the core spawns the embedded dashboard
// server as an ordinary module (port and asset path only); it does not
// implement that dashboard server itself.
package webserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/activitywatch/aw-tauri/internal/webserver/store"
)

// Version is the supervisor's own build version, surfaced on /api/0/info.
// Overridden at build time via -ldflags "-X .../webserver.Version=...".
var Version = "dev"

// ResolveAssetDir validates an AW_WEBUI_DIR override. An empty webuiDir
// means no override was configured and is not an error. A non-empty value
// that does not resolve to a directory is fatal, mirroring the original
// bootstrap's panic before serving if the override path is missing.
func ResolveAssetDir(webuiDir string) (string, error) {
	if webuiDir == "" {
		return "", nil
	}
	info, err := os.Stat(webuiDir)
	if err != nil {
		return "", fmt.Errorf("AW_WEBUI_DIR %q: %w", webuiDir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("AW_WEBUI_DIR %q is not a directory", webuiDir)
	}
	return webuiDir, nil
}

// Info is the JSON body returned by GET /api/0/info.
type Info struct {
	Hostname  string    `json:"hostname"`
	DeviceID  string    `json:"device_id"`
	StartTime time.Time `json:"start_time"`
	Version   string    `json:"version"`
}

// Server holds the dependencies of the small HTTP surface.
type Server struct {
	db        *store.DB
	startTime time.Time
	assetDir  string
}

// New constructs a Server. assetDir may be empty to disable static asset
// serving.
func New(db *store.DB, assetDir string, startTime time.Time) *Server {
	return &Server{db: db, assetDir: assetDir, startTime: startTime}
}

// Router returns a configured chi.Router: GET /healthz, GET /api/0/info,
// and — if an asset directory was configured — a catch-all static file
// handler for the web UI bundle.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/api/0/info", s.handleInfo)

	if s.assetDir != "" {
		fs := http.FileServer(http.Dir(s.assetDir))
		r.Handle("/*", fs)
	}

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	deviceID, err := s.db.DeviceID(r.Context())
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "failed to resolve device id"})
		return
	}

	hostname, _ := os.Hostname()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(Info{
		Hostname:  hostname,
		DeviceID:  deviceID,
		StartTime: s.startTime,
		Version:   Version,
	})
}
