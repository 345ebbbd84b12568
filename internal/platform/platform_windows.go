//go:build windows

package platform

import (
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

// applySpawnAttrs sets the creation flag that prevents a console window
// from flashing up for a detached child process.
func applySpawnAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &windows.SysProcAttr{
		CreationFlags: windows.CREATE_NO_WINDOW,
		HideWindow:    true,
	}
}

// terminate opens pid with PROCESS_TERMINATE rights and calls
// TerminateProcess directly, rather than relying on os.Process.Signal's
// os.Kill mapping, so that a failure to even open the handle is
// distinguishable from a failure to terminate.
func terminate(pid int) error {
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)

	if err := windows.TerminateProcess(h, 1); err != nil {
		return fmt.Errorf("terminate process %d: %w", pid, err)
	}
	return nil
}

// isModuleCandidate accepts a regular file whose name ends in ".exe"
// (case-insensitive).
func isModuleCandidate(path string, mode fs.FileMode) bool {
	if !mode.IsRegular() {
		return false
	}
	return strings.EqualFold(filepath.Ext(path), ".exe")
}

// moduleStem lowercases name and strips its extension, matching the stored
// module-name convention on Windows.
func moduleStem(name string) string {
	ext := filepath.Ext(name)
	return strings.ToLower(strings.TrimSuffix(name, ext))
}

// openDirectory shells out to Explorer.
func openDirectory(path string) error {
	if err := exec.Command("explorer", path).Start(); err != nil {
		return fmt.Errorf("reveal directory %s: %w", path, err)
	}
	return nil
}
