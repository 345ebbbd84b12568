package webserver_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/activitywatch/aw-tauri/internal/webserver"
	"github.com/activitywatch/aw-tauri/internal/webserver/store"
)

func TestResolveAssetDirEmptyIsNotAnError(t *testing.T) {
	dir, err := webserver.ResolveAssetDir("")
	if err != nil {
		t.Fatalf("ResolveAssetDir(\"\") error: %v", err)
	}
	if dir != "" {
		t.Errorf("ResolveAssetDir(\"\") = %q, want empty", dir)
	}
}

func TestResolveAssetDirMissingIsFatal(t *testing.T) {
	if _, err := webserver.ResolveAssetDir(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Fatal("expected an error for a missing AW_WEBUI_DIR override")
	}
}

func TestResolveAssetDirNotADirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := webserver.ResolveAssetDir(file); err == nil {
		t.Fatal("expected an error when AW_WEBUI_DIR points at a file")
	}
}

func TestHealthzReturnsOK(t *testing.T) {
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer db.Close()

	srv := webserver.New(db, "", time.Now())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestInfoReturnsStableDeviceID(t *testing.T) {
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer db.Close()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	srv := webserver.New(db, "", start)
	router := srv.Router()

	var first webserver.Info
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/0/info", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.DeviceID == "" {
		t.Fatal("device_id was empty")
	}
	if !first.StartTime.Equal(start) {
		t.Errorf("start_time = %v, want %v", first.StartTime, start)
	}

	var second webserver.Info
	rr2 := httptest.NewRecorder()
	router.ServeHTTP(rr2, httptest.NewRequest(http.MethodGet, "/api/0/info", nil))
	if err := json.Unmarshal(rr2.Body.Bytes(), &second); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if second.DeviceID != first.DeviceID {
		t.Errorf("device_id changed across requests: %q != %q", first.DeviceID, second.DeviceID)
	}
}

func TestAssetDirServesStaticFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write index.html: %v", err)
	}

	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer db.Close()

	srv := webserver.New(db, dir, time.Now())
	rr := httptest.NewRecorder()
	// http.FileServer redirects a request for ".../index.html" to the
	// directory, so the bundle's index is fetched through "/".
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != "hello" {
		t.Errorf("body = %q, want %q", rr.Body.String(), "hello")
	}
}
