//go:build linux

package dirs

import (
	"fmt"
	"os"
	"path/filepath"
)

const appSubpath = "activitywatch/aw-tauri"

func resolve() (*Dirs, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	config := xdgPath("XDG_CONFIG_HOME", home, ".config")
	data := xdgPath("XDG_DATA_HOME", home, ".local/share")
	cache := xdgPath("XDG_CACHE_HOME", home, ".cache")

	runtime := os.Getenv("XDG_RUNTIME_DIR")
	if runtime != "" {
		runtime = filepath.Join(runtime, appSubpath)
	} else {
		// original aw-tauri falls back to the cache directory when no
		// session runtime directory is published (e.g. a bare TTY login).
		runtime = cache
	}

	d := &Dirs{
		Config:  config,
		Data:    data,
		Runtime: runtime,
		Log:     filepath.Join(cache, "log"),
		Discovery: []string{
			filepath.Join(home, "bin"),
			filepath.Join(home, ".local", "bin"),
			filepath.Join(data, "modules"),
			filepath.Join(home, "aw-modules"),
		},
	}

	for _, p := range []string{d.Config, d.Data, d.Runtime, d.Log} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", p, err)
		}
	}

	return d, nil
}

func xdgPath(envVar, home, fallbackRel string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, appSubpath)
	}
	return filepath.Join(home, fallbackRel, appSubpath)
}
