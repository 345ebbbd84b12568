//go:build !windows

package platform

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsModuleCandidate(t *testing.T) {
	dir := t.TempDir()

	exe := filepath.Join(dir, "aw-watcher-afk")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write executable: %v", err)
	}
	notExec := filepath.Join(dir, "aw-readme")
	if err := os.WriteFile(notExec, []byte("hi"), 0o644); err != nil {
		t.Fatalf("write non-executable: %v", err)
	}
	withExt := filepath.Join(dir, "aw-watcher-window.py")
	if err := os.WriteFile(withExt, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write extensioned file: %v", err)
	}

	cases := []struct {
		path string
		want bool
	}{
		{exe, true},
		{notExec, false},
		{withExt, false},
	}

	for _, c := range cases {
		info, err := os.Lstat(c.path)
		if err != nil {
			t.Fatalf("lstat %s: %v", c.path, err)
		}
		if got := IsModuleCandidate(c.path, info.Mode()); got != c.want {
			t.Errorf("IsModuleCandidate(%s) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestModuleStemUnix(t *testing.T) {
	if got := ModuleStem("aw-watcher-afk"); got != "aw-watcher-afk" {
		t.Errorf("ModuleStem() = %q, want unchanged", got)
	}
}
