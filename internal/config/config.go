// Package config handles the command-line contract of spec.md §6:
// positional script path, repeatable verbosity, and the device-selector
// file with its XDG fallback search, plus an optional YAML settings file
// for the defaults a flag did not override, generalized from the
// teacher's config.go search-path chain (which resolved the same kind of
// YAML settings file across several candidate directories).
package config

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the resolved result of parsing the command line, with any
// field a flag left at its zero value backfilled from Settings.
type Config struct {
	ScriptPath   string
	DevicesPath  string
	Verbosity    int
	NoTray       bool
	DumpMappings bool
}

// Settings is the optional persistent settings file's shape: the handful
// of run defaults a user would rather set once than retype as flags every
// launch, mirroring the teacher's config.yaml fields
// (layout/keyboard_device/log_level) generalized to map2's own CLI
// surface. Every field is optional; an absent or empty settings file
// changes nothing.
type Settings struct {
	DevicesPath string `yaml:"devices_path"`
	Verbosity   int    `yaml:"verbosity"`
	NoTray      bool   `yaml:"no_tray"`
}

// LoadSettings reads the YAML settings file from $XDG_CONFIG_HOME/map2/
// settings.yaml (falling back to ~/.config/map2/settings.yaml), the same
// search chain ResolveDevices uses for devices.list. A missing file is not
// an error: it returns a zero-value Settings, per spec.md §6's "every
// setting has a zero-config default" rule.
func LoadSettings() (*Settings, error) {
	path := defaultSettingsPath()
	if path == "" {
		return &Settings{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("reading settings file %s: %w", path, err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing settings file %s: %w", path, err)
	}
	return &s, nil
}

func defaultSettingsPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "map2", "settings.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "map2", "settings.yaml")
	}
	return ""
}

// ApplySettings backfills cfg fields a flag left at its zero value from s.
// Verbosity is the one field where "unset" and "explicitly zero" are
// indistinguishable after flag parsing, so a settings-file verbosity only
// ever raises it, never lowers a -v the user did pass.
func ApplySettings(cfg *Config, s *Settings) {
	if cfg.DevicesPath == "" {
		cfg.DevicesPath = s.DevicesPath
	}
	if !cfg.NoTray {
		cfg.NoTray = s.NoTray
	}
	if s.Verbosity > cfg.Verbosity {
		cfg.Verbosity = s.Verbosity
	}
}

// verboseFlag implements flag.Value so -v/--verbose can be repeated
// (-v -v -v) to raise verbosity.
type verboseFlag struct{ n *int }

func (v verboseFlag) String() string   { return "" }
func (v verboseFlag) IsBoolFlag() bool { return true }
func (v verboseFlag) Set(string) error { *v.n++; return nil }

// Parse parses args (normally os.Args[1:]) into a Config. It does not
// touch the filesystem beyond flag parsing; call ResolveDevices
// separately once logging is set up, so a devices-file read failure can
// be logged rather than silently swallowed.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("map2", flag.ContinueOnError)
	cfg := &Config{}

	vf := verboseFlag{n: &cfg.Verbosity}
	fs.Var(vf, "v", "increase verbosity (repeatable)")
	fs.Var(vf, "verbose", "increase verbosity (repeatable)")
	fs.StringVar(&cfg.DevicesPath, "d", "", "path to a device-selector regex file, one per line")
	fs.StringVar(&cfg.DevicesPath, "devices", "", "path to a device-selector regex file, one per line")
	fs.BoolVar(&cfg.NoTray, "no-tray", false, "run without the system tray icon")
	fs.BoolVar(&cfg.DumpMappings, "dump-mappings", false, "evaluate the script, YAML-dump the resolved mapping table, and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.NArg() != 1 {
		return nil, fmt.Errorf("expected exactly one positional argument (script path), got %d", fs.NArg())
	}
	cfg.ScriptPath = fs.Arg(0)

	return cfg, nil
}

// ResolveDevices returns the device-selector regex patterns for this run.
// If -d/--devices was given, it is used as-is. Otherwise it looks up
// devices.list under the user's XDG config directory. If the chosen file
// does not exist, the device list is empty (spec.md §6); any other read
// error is returned.
func ResolveDevices(cfg *Config) ([]string, error) {
	path := cfg.DevicesPath
	if path == "" {
		path = defaultDevicesPath()
	}
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading devices file %s: %w", path, err)
	}

	return parseDevicesFile(data)
}

// defaultDevicesPath resolves $XDG_CONFIG_HOME/map2/devices.list, falling
// back to ~/.config/map2/devices.list, matching the teacher's config.go
// search-path fallback chain generalized to XDG_CONFIG_HOME first.
func defaultDevicesPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "map2", "devices.list")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "map2", "devices.list")
	}
	return ""
}

// parseDevicesFile splits on lines only: no comment syntax, no trimming
// beyond the line split itself, per spec.md §6. An empty file is valid
// and yields a nil pattern list.
func parseDevicesFile(data []byte) ([]string, error) {
	var patterns []string
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning devices file: %w", err)
	}
	return patterns, nil
}
