// Package config loads and persists the supervisor's user configuration.
//
// The store is read-once: LoadConfig parses the file (or computes and
// writes defaults if none exists) and returns a single *UserConfig value;
// there is no reload path, matching the "read-once, write-never-after-load"
// contract.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultPort is the TCP port the embedded server listens on when the
// configuration file does not override it.
const DefaultPort = 5600

// ModuleEntry names a module the supervisor should autostart, with the
// literal argument string it should be spawned with. An empty Args means
// the supervisor supplies its own default arguments at spawn time.
type ModuleEntry struct {
	Name string
	Args string
}

// AutostartConfig controls which modules start automatically and whether
// the main window should begin minimized.
type AutostartConfig struct {
	Enabled   bool
	Minimized bool
	Modules   []ModuleEntry
}

// UserConfig is the fully resolved, in-memory configuration the rest of the
// supervisor reads from for its entire lifetime.
type UserConfig struct {
	Port           int
	DiscoveryPaths []string
	Autostart      AutostartConfig

	// FirstRun is true iff no config file existed at load time, so the
	// values above are freshly computed defaults that were just persisted.
	FirstRun bool

	// Malformed is true iff a config file existed but could not be parsed,
	// so the values above are defaults that were computed in memory and NOT
	// persisted over the bad file. Callers should surface this to the user
	// (spec: "Malformed config; using defaults") rather than silently
	// falling back.
	Malformed bool
}

// fileConfig is the on-disk shape decoded by the TOML parser. Autostart's
// module entries are kept as undecoded toml.Primitive so each one can be
// either a bare string or a {name, args} table, per the config file format.
type fileConfig struct {
	Port           int           `toml:"port"`
	DiscoveryPaths []string      `toml:"discovery_paths"`
	Autostart      fileAutostart `toml:"autostart"`
}

type fileAutostart struct {
	Enabled   *bool            `toml:"enabled"`
	Minimized *bool            `toml:"minimized"`
	Modules   []toml.Primitive `toml:"modules"`
}

type moduleRow struct {
	Name string `toml:"name"`
	Args string `toml:"args"`
}

// LoadConfig loads the configuration at path.
//
// If the file does not exist, LoadConfig computes OS/session-appropriate
// defaults, persists them to path, and returns them with FirstRun set.
// If the file exists but fails to parse, LoadConfig returns the computed
// defaults without touching the bad file on disk — a malformed config is
// never silently overwritten — and sets Malformed so the caller can surface
// it to the user.
func LoadConfig(path string) (*UserConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := defaults()
		cfg.FirstRun = true
		if err := persist(path, cfg); err != nil {
			return nil, fmt.Errorf("persist default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	md, decodeErr := toml.Decode(string(data), &fc)
	if decodeErr != nil {
		cfg := defaults()
		cfg.Malformed = true
		return cfg, nil
	}

	cfg, err := fromFile(fc, md)
	if err != nil {
		cfg := defaults()
		cfg.Malformed = true
		return cfg, nil
	}
	return cfg, nil
}

// fromFile merges a parsed fileConfig over a freshly computed defaults
// value, so that any field or subtree the file omits (including an
// entirely missing [autostart] table) falls back to the default.
func fromFile(fc fileConfig, md toml.MetaData) (*UserConfig, error) {
	cfg := defaults()

	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if fc.DiscoveryPaths != nil {
		cfg.DiscoveryPaths = fc.DiscoveryPaths
	}
	if fc.Autostart.Enabled != nil {
		cfg.Autostart.Enabled = *fc.Autostart.Enabled
	}
	if fc.Autostart.Minimized != nil {
		cfg.Autostart.Minimized = *fc.Autostart.Minimized
	}
	if fc.Autostart.Modules != nil {
		modules := make([]ModuleEntry, 0, len(fc.Autostart.Modules))
		for _, prim := range fc.Autostart.Modules {
			var name string
			if err := md.PrimitiveDecode(prim, &name); err == nil {
				modules = append(modules, ModuleEntry{Name: name})
				continue
			}

			var row moduleRow
			if err := md.PrimitiveDecode(prim, &row); err != nil {
				return nil, fmt.Errorf("decode module entry: %w", err)
			}
			modules = append(modules, ModuleEntry{Name: row.Name, Args: row.Args})
		}
		cfg.Autostart.Modules = modules
	}

	return cfg, nil
}

// defaults computes the OS/session-appropriate default configuration: on
// Wayland, aw-awatcher; otherwise aw-watcher-afk and aw-watcher-window;
// always aw-sync with args "daemon".
func defaults() *UserConfig {
	var modules []ModuleEntry
	if isWayland() {
		modules = append(modules, ModuleEntry{Name: "aw-awatcher"})
	} else {
		modules = append(modules,
			ModuleEntry{Name: "aw-watcher-afk"},
			ModuleEntry{Name: "aw-watcher-window"},
		)
	}
	modules = append(modules, ModuleEntry{Name: "aw-sync", Args: "daemon"})

	return &UserConfig{
		Port: DefaultPort,
		Autostart: AutostartConfig{
			Enabled:   true,
			Minimized: true,
			Modules:   modules,
		},
	}
}

// isWayland reports whether the current session is a Wayland session,
// following the same environment-variable check the original bootstrap
// helper used to decide which watcher modules ship by default.
func isWayland() bool {
	return os.Getenv("XDG_SESSION_TYPE") == "wayland" || os.Getenv("WAYLAND_DISPLAY") != ""
}

// persist writes cfg to path using the human-friendly layout documented in
// the config file format: a bare string for a module with no args, an
// inline {name, args} table otherwise.
func persist(path string, cfg *UserConfig) error {
	var b strings.Builder

	fmt.Fprintf(&b, "port = %d\n", cfg.Port)
	b.WriteString("discovery_paths = [")
	for i, p := range cfg.DiscoveryPaths {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q", p)
	}
	b.WriteString("]\n\n")

	b.WriteString("[autostart]\n")
	fmt.Fprintf(&b, "enabled = %t\n", cfg.Autostart.Enabled)
	fmt.Fprintf(&b, "minimized = %t\n", cfg.Autostart.Minimized)
	b.WriteString("modules = [\n")
	for _, m := range cfg.Autostart.Modules {
		if m.Args == "" {
			fmt.Fprintf(&b, "  %q,\n", m.Name)
		} else {
			fmt.Fprintf(&b, "  { name = %q, args = %q },\n", m.Name, m.Args)
		}
	}
	b.WriteString("]\n")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// TokenizeArgs splits a module's configured argument string into argv-style
// tokens, honoring single and double quoting so an argument containing
// whitespace can be expressed without being split.
func TokenizeArgs(args string) []string {
	var tokens []string
	var cur strings.Builder
	var quote rune
	inToken := false

	flush := func() {
		if inToken {
			tokens = append(tokens, cur.String())
			cur.Reset()
			inToken = false
		}
	}

	for _, r := range args {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			inToken = true
			cur.WriteRune(r)
		}
	}
	flush()

	return tokens
}
