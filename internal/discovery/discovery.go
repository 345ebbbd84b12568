// Package discovery enumerates candidate module executables across a
// merged search path: the user's configured discovery_paths first, then
// the operating system's PATH entries, deduplicated with discovery paths
// winning on a name collision. It runs once at supervisor construction and
// is never refreshed during steady state.
package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/activitywatch/aw-tauri/internal/platform"
)

// excluded lists the supervisor's own siblings: never offered as modules
// even if found on the search path.
var excluded = map[string]bool{
	"aw-tauri":       true,
	"aw-client":      true,
	"aw-cli":         true,
	"aw-qt":          true,
	"aw-server":      true,
	"aw-server-rust": true,
}

// unixOnlyExcluded additionally excludes the standard Unix "awk" utility,
// which collides with the "aw-" prefix test but is never a module.
var unixOnlyExcluded = map[string]bool{
	"awk": true,
}

// Discover walks discoveryPaths followed by the OS PATH entries, depth
// first, with a canonical-path visited set guarding against symlink
// cycles, and returns a mapping from module name to absolute executable
// path. Earlier roots win when the same module name is found more than
// once.
func Discover(discoveryPaths []string) (map[string]string, error) {
	roots := mergedRoots(discoveryPaths)

	found := make(map[string]string)
	visited := make(map[string]bool)

	for _, root := range roots {
		if err := walk(root, visited, found); err != nil {
			return nil, fmt.Errorf("discover modules under %s: %w", root, err)
		}
	}

	return found, nil
}

func mergedRoots(discoveryPaths []string) []string {
	seen := make(map[string]bool)
	var roots []string

	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		roots = append(roots, p)
	}

	for _, p := range discoveryPaths {
		add(p)
	}
	for _, p := range filepath.SplitList(os.Getenv("PATH")) {
		add(p)
	}

	return roots
}

// walk performs a depth-first traversal of root, adding any accepted
// candidate to found. A canonical (symlink-resolved) path that has already
// been visited is skipped, which bounds the traversal even in the presence
// of symlink cycles.
func walk(root string, visited map[string]bool, found map[string]string) error {
	canon, err := filepath.EvalSymlinks(root)
	if err != nil {
		// A root that does not exist, or cannot be resolved, is not an
		// error for discovery as a whole: it simply contributes nothing.
		return nil
	}
	if visited[canon] {
		return nil
	}
	visited[canon] = true

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}

	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())

		if entry.IsDir() {
			if err := walk(path, visited, found); err != nil {
				return err
			}
			continue
		}

		name, ok := accept(entry, path)
		if !ok {
			continue
		}
		if _, already := found[name]; !already {
			found[name] = path
		}
	}

	return nil
}

// accept reports whether entry at path is a launchable module candidate,
// and the module name it should be registered under.
func accept(entry os.DirEntry, path string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(entry.Name()), "aw-") {
		return "", false
	}

	info, err := entry.Info()
	if err != nil {
		return "", false
	}
	mode := info.Mode()

	// Resolve a symlink's target mode so executable-bit/regular-file
	// checks apply to what the link actually points at.
	if mode&fs.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(path)
		if err != nil {
			return "", false
		}
		targetInfo, err := os.Stat(target)
		if err != nil {
			return "", false
		}
		mode = targetInfo.Mode()
	}

	if !platform.IsModuleCandidate(path, mode) {
		return "", false
	}

	name := platform.ModuleStem(entry.Name())
	if excluded[name] {
		return "", false
	}
	if runtime.GOOS != "windows" && unixOnlyExcluded[name] {
		return "", false
	}

	return name, true
}
