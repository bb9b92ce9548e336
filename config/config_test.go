package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "mycelia.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Runtime.ArenaBlocks != 4096 {
		t.Errorf("arena-blocks = %d, want 4096", cfg.Runtime.ArenaBlocks)
	}
	if cfg.Queues.Events != 256 || cfg.Queues.Continuations != 256 {
		t.Errorf("queues = %+v, want 256/256", cfg.Queues)
	}
	if cfg.Runtime.ScanMode != "typed" {
		t.Errorf("scan-mode = %q, want typed", cfg.Runtime.ScanMode)
	}
	if cfg.Sponsor.Policy != "default" {
		t.Errorf("sponsor.policy = %q, want default", cfg.Sponsor.Policy)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %s", err)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[runtime]
arena-blocks = 1024
gc-low-water = 64
scan-mode = "conservative"

[queues]
events = 128

[sponsor]
policy = "debug"
watchdog-budget = 500
trace = true

[snapshot]
store = "/tmp/snapshots.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Runtime.ArenaBlocks != 1024 || cfg.Runtime.GCLowWater != 64 {
		t.Errorf("runtime = %+v", cfg.Runtime)
	}
	if cfg.Runtime.ScanMode != "conservative" {
		t.Errorf("scan-mode = %q", cfg.Runtime.ScanMode)
	}
	if cfg.Queues.Events != 128 {
		t.Errorf("queues.events = %d, want 128", cfg.Queues.Events)
	}
	// Unset fields keep their defaults.
	if cfg.Queues.Continuations != 256 {
		t.Errorf("queues.continuations = %d, want default 256", cfg.Queues.Continuations)
	}
	if cfg.Sponsor.Policy != "debug" || cfg.Sponsor.WatchdogBudget != 500 || !cfg.Sponsor.Trace {
		t.Errorf("sponsor = %+v", cfg.Sponsor)
	}
	if cfg.Snapshot.Store != "/tmp/snapshots.db" {
		t.Errorf("snapshot.store = %q", cfg.Snapshot.Store)
	}
	if cfg.Path != path {
		t.Errorf("path = %q, want %q", cfg.Path, path)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("missing file loaded")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero arena", func(c *Config) { c.Runtime.ArenaBlocks = 0 }, "arena-blocks"},
		{"negative low water", func(c *Config) { c.Runtime.GCLowWater = -1 }, "gc-low-water"},
		{"bad scan mode", func(c *Config) { c.Runtime.ScanMode = "psychic" }, "scan-mode"},
		{"zero queue", func(c *Config) { c.Queues.Events = 0 }, "capacities"},
		{"bad policy", func(c *Config) { c.Sponsor.Policy = "lavish" }, "policy"},
		{"negative budget", func(c *Config) { c.Sponsor.WatchdogBudget = -1 }, "watchdog-budget"},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: validated", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[sponsor]
watchdog-budget = 100
`)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	changed := make(chan *Config, 1)
	w.OnChange(func(old, new *Config) {
		changed <- new
	})
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	if got := w.Config().Sponsor.WatchdogBudget; got != 100 {
		t.Fatalf("initial watchdog-budget = %d, want 100", got)
	}

	writeConfig(t, dir, `
[sponsor]
watchdog-budget = 200
`)

	select {
	case cfg := <-changed:
		if cfg.Sponsor.WatchdogBudget != 200 {
			t.Errorf("reloaded watchdog-budget = %d, want 200", cfg.Sponsor.WatchdogBudget)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload within 5s")
	}
	if got := w.Config().Sponsor.WatchdogBudget; got != 200 {
		t.Errorf("watcher config watchdog-budget = %d, want 200", got)
	}
}

func TestWatcherKeepsOldConfigOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[runtime]
arena-blocks = 512
`)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	writeConfig(t, dir, `
[runtime]
arena-blocks = "many"
`)

	// The bad file is rejected; give the debounce time to fire.
	time.Sleep(500 * time.Millisecond)
	if got := w.Config().Runtime.ArenaBlocks; got != 512 {
		t.Errorf("arena-blocks = %d, want previous 512", got)
	}
}
