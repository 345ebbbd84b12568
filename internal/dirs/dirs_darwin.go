//go:build darwin

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

	support := filepath.Join(home, "Library", "Application Support", appSubpath)
	logDir := filepath.Join(home, "Library", "Logs", appSubpath)

	d := &Dirs{
		Config:  support,
		Data:    support,
		Runtime: support,
		Log:     logDir,
		Discovery: []string{
			filepath.Join(home, "aw-modules"),
			"/Applications/ActivityWatch.app/Contents/MacOS",
			"/Applications/ActivityWatch.app/Contents/Resources",
		},
	}

	for _, p := range []string{d.Config, d.Data, d.Runtime, d.Log} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", p, err)
		}
	}

	return d, nil
}
