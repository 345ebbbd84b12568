//go:build windows

package dirs

import (
	"fmt"
	"os"
	"path/filepath"
)

const appSubpath = `activitywatch\aw-tauri`

func resolve() (*Dirs, error) {
	local := os.Getenv("LOCALAPPDATA")
	if local == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		local = filepath.Join(home, "AppData", "Local")
	}

	base := filepath.Join(local, appSubpath)
	user := os.Getenv("USERNAME")

	d := &Dirs{
		Config:  base,
		Data:    base,
		Runtime: base,
		Log:     filepath.Join(base, "log"),
		Discovery: []string{
			filepath.Join(local, "Programs", "ActivityWatch"),
			filepath.Join(`C:\Users`, user, "aw-modules"),
		},
	}

	for _, p := range []string{d.Config, d.Data, d.Runtime, d.Log} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", p, err)
		}
	}

	return d, nil
}
