// Package dirs resolves the absolute filesystem locations the supervisor
// reads and writes: configuration, persistent data, runtime/volatile state,
// logs, and the ordered set of paths module discovery searches. Each
// location is computed once per process and cached; callers after the
// first never observe a different answer or a new directory-creation
// attempt, matching the contract in the directory resolver component.
package dirs

import "sync"

// Dirs holds the resolved, already-created directory roots for this OS.
type Dirs struct {
	Config  string
	Data    string
	Runtime string
	Log     string

	// Discovery is the ordered list of roots module discovery searches,
	// before the OS PATH entries are appended. Earlier entries win on a
	// name collision.
	Discovery []string
}

var (
	once      sync.Once
	cached    *Dirs
	cachedErr error
)

// Resolve returns the process-wide Dirs value, computing and creating every
// directory on the first call and returning the cached value (or the
// cached error) on every subsequent call.
func Resolve() (*Dirs, error) {
	once.Do(func() {
		cached, cachedErr = resolve()
	})
	return cached, cachedErr
}
