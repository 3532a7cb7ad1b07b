// Garnet CLI - runs dispatch scenarios against the garnet VM core and
// reports inline cache and frame-sending behavior.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"

	"github.com/chazu/garnet/config"
	"github.com/chazu/garnet/vm"
	"github.com/chazu/garnet/vm/profile"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	configDir := flag.String("config", "", "Directory containing garnet.toml (default: search upward from the working directory)")
	verbose := flag.Bool("v", false, "Verbose output")
	stress := flag.Int("stress", 0, "Run the concurrent stress workload with N dispatch iterations per thread")
	threads := flag.Int("threads", 4, "Threads used by -stress")
	profileDB := flag.String("profile-db", "", "SQLite database to record dispatch profiles in (overrides [profile] database)")
	listProfiles := flag.Bool("list-profiles", false, "List the profiles stored in the profile database and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: garnet [options] [scenario...]\n\n")
		fmt.Fprintf(os.Stderr, "Runs dispatch scenarios and prints call-site statistics.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nScenarios:\n")
		for _, name := range scenarioNames() {
			fmt.Fprintf(os.Stderr, "  %s\n", name)
		}
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  garnet                            # Run every scenario\n")
		fmt.Fprintf(os.Stderr, "  garnet send special-vars          # Run two scenarios\n")
		fmt.Fprintf(os.Stderr, "  garnet -stress 100000 -threads 8  # Concurrent stress run\n")
		fmt.Fprintf(os.Stderr, "  garnet -profile-db garnet.db      # Record a profile after the run\n")
	}
	flag.Parse()

	cfg, err := loadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *profileDB != "" {
		cfg.Profile.Database = *profileDB
	}

	verbosity := cfg.Log.Verbosity
	if *verbose && verbosity < 1 {
		verbosity = 1
	}
	if logFile := cfg.LogFile(); logFile != "" {
		commonlog.Configure(verbosity, &logFile)
	} else {
		commonlog.Configure(verbosity, nil)
	}

	if *listProfiles {
		if err := listStoredProfiles(os.Stdout, cfg.ProfileDatabase()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	names := flag.Args()
	if len(names) == 0 && *stress == 0 {
		names = scenarioNames()
	}

	if err := run(os.Stdout, cfg, names, *stress, *threads, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads garnet.toml from dir, or searches upward from the
// working directory when dir is empty. Without a file the defaults apply.
func loadConfig(dir string) (*config.Config, error) {
	if dir != "" {
		return config.Load(dir)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

// run executes the named scenarios and an optional stress workload on one
// VM, then prints statistics and records a profile if a database is
// configured.
func run(w io.Writer, cfg *config.Config, names []string, stressIterations, threads int, verbose bool) error {
	ctx := context.Background()
	v := vm.NewVMWithOptions(cfg.VMOptions())

	var store *profile.Store
	if db := cfg.ProfileDatabase(); db != "" {
		var err error
		store, err = profile.Open(db)
		if err != nil {
			return err
		}
		defer store.Close()

		if cfg.Profile.WarmStart {
			snap, err := store.Latest(ctx)
			switch {
			case errors.Is(err, profile.ErrNoSnapshot):
				if verbose {
					fmt.Fprintf(w, "No stored profile, starting cold\n")
				}
			case err != nil:
				return err
			default:
				n := profile.Apply(v, snap)
				if verbose {
					fmt.Fprintf(w, "Warm start from profile %s (%s): %d frame-sending sites\n",
						snap.ID, humanize.Time(snap.Time()), n)
				}
			}
		}
	}

	for _, name := range names {
		sc, ok := scenarios[name]
		if !ok {
			return fmt.Errorf("unknown scenario %q (have %v)", name, scenarioNames())
		}
		fmt.Fprintf(w, "== %s ==\n", name)
		if err := sc(v, w); err != nil {
			return fmt.Errorf("scenario %s: %w", name, err)
		}
		fmt.Fprintln(w)
	}

	if stressIterations > 0 {
		if threads < 1 {
			threads = 1
		}
		fmt.Fprintf(w, "== stress (%d threads x %s iterations) ==\n", threads, humanize.Comma(int64(stressIterations)))
		res, err := runStress(ctx, v, threads, stressIterations)
		if err != nil {
			return fmt.Errorf("stress: %w", err)
		}
		printStress(w, res)
		fmt.Fprintln(w)
	}

	printStats(w, v.CallSiteStats())

	if store != nil {
		snap := profile.Capture(v)
		if err := store.Save(ctx, snap); err != nil {
			return err
		}
		fmt.Fprintf(w, "Recorded profile %s (%d sites, %d frame-sending)\n", snap.ID, len(snap.Sites), len(snap.FrameSenders()))
	}
	return nil
}

func printStress(w io.Writer, res stressResult) {
	rate := float64(res.Dispatches) / res.Elapsed.Seconds()
	fmt.Fprintf(w, "dispatches:     %s in %s (%s/s)\n",
		humanize.Comma(int64(res.Dispatches)), res.Elapsed.Round(time.Millisecond), humanize.Comma(int64(rate)))
	fmt.Fprintf(w, "redefinitions:  %s\n", humanize.Comma(int64(res.Redefinitions)))
	fmt.Fprintf(w, "stack walks:    %s\n", humanize.Comma(int64(res.StackWalks)))
}

func printStats(w io.Writer, stats vm.ICStats) {
	fmt.Fprintf(w, "call sites:     %d (%d uninitialized, %d monomorphic, %d polymorphic, %d megamorphic)\n",
		stats.TotalCallSites, stats.Uninitialized, stats.Monomorphic, stats.Polymorphic, stats.Megamorphic)
	fmt.Fprintf(w, "cache:          %s hits, %s misses (%.1f%% hit rate, %.1f%% monomorphic)\n",
		humanize.Comma(int64(stats.TotalHits)), humanize.Comma(int64(stats.TotalMisses)), stats.HitRate, stats.MonomorphicRate)
	fmt.Fprintf(w, "frame sending:  %d sites send frames, %d send special variables\n",
		stats.SendingFrames, stats.SendingVars)
}

func listStoredProfiles(w io.Writer, db string) error {
	if db == "" {
		return errors.New("no profile database configured (use -profile-db)")
	}
	store, err := profile.Open(db)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(context.Background())
	if err != nil {
		return err
	}
	for _, s := range list {
		fmt.Fprintf(w, "%s  %-16s  %4d sites  %s\n", s.ID, humanize.Time(s.TakenAt), s.Sites, humanize.Bytes(uint64(s.Size)))
	}
	return nil
}
