// Package config handles mycelia.toml runtime configuration.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents a mycelia.toml runtime configuration.
type Config struct {
	Runtime  Runtime  `toml:"runtime"`
	Queues   Queues   `toml:"queues"`
	Sponsor  Sponsor  `toml:"sponsor"`
	Snapshot Snapshot `toml:"snapshot"`

	// Path is the file the configuration was loaded from (set at load
	// time; empty for defaults).
	Path string `toml:"-"`
}

// Runtime sizes the block arena and tunes collection.
type Runtime struct {
	ArenaBlocks int    `toml:"arena-blocks"`
	GCLowWater  int    `toml:"gc-low-water"`
	ScanMode    string `toml:"scan-mode"` // "typed" or "conservative"
}

// Queues sizes the two rings.
type Queues struct {
	Events        int `toml:"events"`
	Continuations int `toml:"continuations"`
}

// Sponsor selects the resource policy.
type Sponsor struct {
	Policy         string `toml:"policy"` // default, fast, debug
	WatchdogBudget int    `toml:"watchdog-budget"`
	Trace          bool   `toml:"trace"`
}

// Snapshot configures image persistence.
type Snapshot struct {
	Store string `toml:"store"` // sqlite database path
}

// Default returns the configuration the runtime boots with when no
// file is given.
func Default() *Config {
	return &Config{
		Runtime: Runtime{
			ArenaBlocks: 4096,
			ScanMode:    "typed",
		},
		Queues: Queues{
			Events:        256,
			Continuations: 256,
		},
		Sponsor: Sponsor{
			Policy: "default",
		},
	}
}

// Load parses a mycelia.toml file, filling unset fields from defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	if c.Runtime.ArenaBlocks <= 0 {
		return fmt.Errorf("runtime.arena-blocks must be positive, got %d", c.Runtime.ArenaBlocks)
	}
	if c.Runtime.GCLowWater < 0 {
		return fmt.Errorf("runtime.gc-low-water must not be negative, got %d", c.Runtime.GCLowWater)
	}
	switch c.Runtime.ScanMode {
	case "", "typed", "conservative":
	default:
		return fmt.Errorf("runtime.scan-mode must be typed or conservative, got %q", c.Runtime.ScanMode)
	}
	if c.Queues.Events <= 0 || c.Queues.Continuations <= 0 {
		return fmt.Errorf("queue capacities must be positive")
	}
	switch c.Sponsor.Policy {
	case "", "default", "fast", "debug":
	default:
		return fmt.Errorf("sponsor.policy must be default, fast, or debug, got %q", c.Sponsor.Policy)
	}
	if c.Sponsor.WatchdogBudget < 0 {
		return fmt.Errorf("sponsor.watchdog-budget must not be negative, got %d", c.Sponsor.WatchdogBudget)
	}
	return nil
}
