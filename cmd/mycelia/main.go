// Mycelia CLI - boots the actor runtime and runs a demo actor world.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/organix/mycelia/config"
	"github.com/organix/mycelia/image"
	"github.com/organix/mycelia/kernel"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	configPath := flag.String("config", "", "Path to mycelia.toml")
	watch := flag.Bool("watch", false, "Hot-reload the config file (trace toggle only)")
	sponsorName := flag.String("sponsor", "", "Sponsor policy: default, fast, debug (overrides config)")
	trace := flag.Bool("trace", false, "Enable dispatcher tracing (overrides config)")
	steps := flag.Int("steps", 0, "Maximum dispatcher steps (0 = run to idle)")
	rounds := flag.Int("rounds", 10, "Ping-pong rounds for the demo world")
	saveName := flag.String("save", "", "Save a snapshot under this name after the run")
	loadName := flag.String("load", "", "Restore the runtime from this snapshot instead of booting the demo")
	list := flag.Bool("list", false, "List stored snapshots and exit")
	verbosity := flag.Int("v", 0, "Log verbosity (0 = errors only)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mycelia [options]\n\n")
		fmt.Fprintf(os.Stderr, "Boots the actor runtime, runs the demo world, and prints a heap report.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  mycelia -rounds 100 -trace -v 1     # Traced ping-pong run\n")
		fmt.Fprintf(os.Stderr, "  mycelia -config mycelia.toml -watch # Hot-reload trace toggle\n")
		fmt.Fprintf(os.Stderr, "  mycelia -save before-crash          # Snapshot the final state\n")
		fmt.Fprintf(os.Stderr, "  mycelia -load before-crash          # Resume a stored snapshot\n")
	}
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	cfg, watcher, err := loadConfig(*configPath, *watch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *sponsorName != "" {
		cfg.Sponsor.Policy = *sponsorName
	}
	if *trace {
		cfg.Sponsor.Trace = true
	}

	if *list {
		if err := listSnapshots(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	rt, err := buildRuntime(cfg, *loadName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if watcher != nil {
		watcher.OnChange(func(_, updated *config.Config) {
			sponsor, err := kernel.SponsorByName(
				updated.Sponsor.Policy, updated.Sponsor.WatchdogBudget, updated.Sponsor.Trace)
			if err != nil {
				return
			}
			rt.SetSponsor(sponsor)
		})
		if err := watcher.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer watcher.Stop()
	}

	if *loadName == "" {
		if err := bootDemo(rt, *rounds); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else {
		// Snapshots carry data, not Go code: reinstall the demo's
		// native behaviors so restored actors dispatch again.
		registerDemoBehaviors(rt)
	}

	n, err := rt.Run(*steps)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Run error after %d steps: %v\n", n, err)
	}

	printReport(rt, n)

	if *saveName != "" {
		if err := saveSnapshot(cfg, rt, *saveName); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Saved snapshot %q\n", *saveName)
	}
}

func loadConfig(path string, watch bool) (*config.Config, *config.Watcher, error) {
	if path == "" {
		return config.Default(), nil, nil
	}
	if watch {
		w, err := config.NewWatcher(path)
		if err != nil {
			return nil, nil, err
		}
		return w.Config(), w, nil
	}
	cfg, err := config.Load(path)
	return cfg, nil, err
}

func buildRuntime(cfg *config.Config, loadName string) (*kernel.Runtime, error) {
	if loadName != "" {
		store, err := openStore(cfg)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		data, err := store.Load(loadName)
		if err != nil {
			return nil, err
		}
		rt, err := kernel.Restore(data)
		if err != nil {
			return nil, err
		}
		// Restore resolves the sponsor by name only; re-apply the
		// configured budget and trace flag.
		sponsor, err := kernel.SponsorByName(
			cfg.Sponsor.Policy, cfg.Sponsor.WatchdogBudget, cfg.Sponsor.Trace)
		if err != nil {
			return nil, err
		}
		rt.SetSponsor(sponsor)
		return rt, nil
	}

	sponsor, err := kernel.SponsorByName(
		cfg.Sponsor.Policy, cfg.Sponsor.WatchdogBudget, cfg.Sponsor.Trace)
	if err != nil {
		return nil, err
	}
	scanMode := kernel.ScanTyped
	if cfg.Runtime.ScanMode == "conservative" {
		scanMode = kernel.ScanConservative
	}
	return kernel.New(kernel.Options{
		ArenaBlocks:   cfg.Runtime.ArenaBlocks,
		EventCapacity: cfg.Queues.Events,
		ContCapacity:  cfg.Queues.Continuations,
		Sponsor:       sponsor,
		ScanMode:      scanMode,
		GCLowWater:    cfg.Runtime.GCLowWater,
	}), nil
}

func openStore(cfg *config.Config) (*image.Store, error) {
	path := cfg.Snapshot.Store
	if path == "" {
		var err error
		path, err = image.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return image.Open(path)
}

func listSnapshots(cfg *config.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	infos, err := store.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No snapshots stored.")
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%-24s %8d bytes  %s\n", info.Name, info.Size,
			info.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func saveSnapshot(cfg *config.Config, rt *kernel.Runtime, name string) error {
	data, err := rt.Snapshot()
	if err != nil {
		if errors.Is(err, kernel.ErrSnapshotBusy) {
			return fmt.Errorf("runtime still has in-flight turns; run to idle first")
		}
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(name, data)
}

// ---------------------------------------------------------------------------
// Demo world: ping-pong between a counter and an echo actor
// ---------------------------------------------------------------------------

// registerDemoBehaviors installs the demo's native behaviors. Atom IDs
// line up with snapshots because registration order matches bootDemo.
func registerDemoBehaviors(rt *kernel.Runtime) (ping kernel.Value) {
	// The pong side echoes every message straight back to its sender:
	// message shape is (sender payload).
	rt.RegisterBehavior("pong", func(tx *kernel.Txn, msg kernel.Value) error {
		sender := rt.Nth(msg, 1)
		payload := rt.Nth(msg, 2)
		reply, err := rt.List(tx.Self(), payload)
		if err != nil {
			return err
		}
		return tx.Send(sender, reply)
	})

	// The ping side counts rounds in its first two state words:
	// word 0 = rounds remaining, word 1 = peer capability.
	ping = rt.RegisterBehavior("ping", func(tx *kernel.Txn, msg kernel.Value) error {
		remaining := rt.Store().ActorState(tx.Self(), 0)
		peer := rt.Store().ActorState(tx.Self(), 1)
		if !remaining.IsInt() || remaining.Int() <= 0 {
			return nil // done; consume the final echo silently
		}
		rt.Store().SetActorState(tx.Self(), 0, kernel.FromInt(remaining.Int()-1))
		out, err := rt.List(tx.Self(), rt.Nth(msg, 2))
		if err != nil {
			return err
		}
		return tx.Send(peer, out)
	})
	return ping
}

func bootDemo(rt *kernel.Runtime, rounds int) error {
	pingBeh := registerDemoBehaviors(rt)

	pongBeh := rt.Atom("pong")
	pong, err := rt.Create(pongBeh)
	if err != nil {
		return err
	}

	ping, err := rt.Boot(pingBeh)
	if err != nil {
		return err
	}
	rt.Store().SetActorState(ping, 0, kernel.FromInt(int64(rounds)))
	rt.Store().SetActorState(ping, 1, pong)

	// Kick off: hand ping a fake first echo.
	kick, err := rt.List(pong, kernel.FromInt(0))
	if err != nil {
		return err
	}
	return rt.Send(ping, kick)
}

func printReport(rt *kernel.Runtime, steps int) {
	report := rt.Report()
	stats := rt.Stats()
	fmt.Printf("Steps: %d  Turns: %d  Commits: %d  Aborts: %d  Collections: %d\n",
		steps, stats.Turns, stats.Commits, stats.Aborts, stats.Collections)
	fmt.Printf("Heap: %d bytes (%d blocks)  Free list: %d bytes (%d blocks)\n",
		report.HeapBytes, report.HeapBlocks, report.FreeBytes, report.FreeBlocks)
	if retained := rt.RetainedEvents(); len(retained) > 0 {
		fmt.Printf("Retained events (debug sponsor): %d\n", len(retained))
	}
}
