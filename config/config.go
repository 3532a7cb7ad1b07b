// Package config handles garnet.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/chazu/garnet/vm"
)

// FileName is the name of the configuration file.
const FileName = "garnet.toml"

// MaxPolymorphicLimit bounds dispatch.polymorphic_limit.
const MaxPolymorphicLimit = 64

// Config represents a garnet.toml file.
type Config struct {
	Dispatch Dispatch `toml:"dispatch"`
	Frames   Frames   `toml:"frames"`
	Log      Log      `toml:"log"`
	Profile  Profile  `toml:"profile"`

	// Dir is the directory containing the garnet.toml file (set at load
	// time). Empty for the built-in defaults.
	Dir string `toml:"-"`
}

// Dispatch configures call-site caching.
type Dispatch struct {
	PolymorphicLimit int  `toml:"polymorphic_limit"`
	VerifyCacheHits  bool `toml:"verify_cache_hits"`
}

// Frames configures the caller-frame protocol.
type Frames struct {
	TraceStackWalks bool `toml:"trace_stack_walks"`
}

// Log configures the log backend.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Profile configures dispatch profile recording.
type Profile struct {
	Database  string `toml:"database"`
	WarmStart bool   `toml:"warm_start"`
}

// Default returns the configuration used when no garnet.toml exists.
func Default() *Config {
	return &Config{
		Dispatch: Dispatch{PolymorphicLimit: vm.DefaultPolymorphicLimit},
	}
}

// Load parses the garnet.toml file in dir. Keys not set in the file keep
// their defaults; unknown keys are an error.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a garnet.toml file, then
// loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if l := c.Dispatch.PolymorphicLimit; l < 1 || l > MaxPolymorphicLimit {
		return fmt.Errorf("dispatch.polymorphic_limit must be between 1 and %d, got %d", MaxPolymorphicLimit, l)
	}
	if c.Log.Verbosity < 0 {
		return fmt.Errorf("log.verbosity must not be negative, got %d", c.Log.Verbosity)
	}
	return nil
}

// VMOptions converts the configuration into VM options.
func (c *Config) VMOptions() vm.Options {
	return vm.Options{
		PolymorphicLimit: c.Dispatch.PolymorphicLimit,
		VerifyCacheHits:  c.Dispatch.VerifyCacheHits,
		TraceStackWalks:  c.Frames.TraceStackWalks,
	}
}

// ProfileDatabase returns the profile database path, resolved against the
// config directory. Empty means profiles are not recorded.
func (c *Config) ProfileDatabase() string {
	return c.resolve(c.Profile.Database)
}

// LogFile returns the log file path, resolved against the config
// directory. Empty means stderr.
func (c *Config) LogFile() string {
	return c.resolve(c.Log.File)
}

func (c *Config) resolve(p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}
