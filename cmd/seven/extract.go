package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/seven/internal/config"
	"github.com/bamsammich/seven/internal/engine"
	"github.com/bamsammich/seven/internal/event"
	"github.com/bamsammich/seven/internal/filter"
	"github.com/bamsammich/seven/internal/stats"
	"github.com/bamsammich/seven/internal/ui"
)

// filterFlag is a custom pflag.Value that preserves CLI ordering of
// --exclude and --include rules by appending to a shared filter.Chain.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "pattern" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

// runOpts are the flags shared by extract and test.
type runOpts struct {
	workers    int
	chain      *filter.Chain
	filterFile string
	minSize    string
	maxSize    string
	forceFeed  bool
	forceRate  bool
	noProgress bool
}

func (o *runOpts) register(fs *pflag.FlagSet) {
	o.chain = filter.NewChain()
	fs.IntVarP(&o.workers, "workers", "n", 0, "number of decode workers (default: min(NumCPU, 16))")
	fs.Var(&filterFlag{chain: o.chain}, "exclude", "exclude members matching PATTERN (repeatable)")
	fs.Var(&filterFlag{chain: o.chain, include: true}, "include", "include members matching PATTERN (repeatable)")
	fs.StringVar(&o.filterFile, "filter", "", "read filter rules from FILE")
	fs.StringVar(&o.minSize, "min-size", "", "skip members smaller than SIZE (e.g. 1M, 100K)")
	fs.StringVar(&o.maxSize, "max-size", "", "skip members larger than SIZE (e.g. 1G, 500M)")
	fs.BoolVar(&o.forceFeed, "feed", false, "force feed mode (one line per file)")
	fs.BoolVar(&o.forceRate, "rate", false, "force rate mode (sparkline + throughput)")
	fs.BoolVar(&o.noProgress, "no-progress", false, "disable progress display")
}

// buildFilter finishes the chain from --filter and the size flags. It
// returns nil when nothing would be filtered.
func (o *runOpts) buildFilter() (*filter.Chain, error) {
	if o.filterFile != "" {
		if err := o.chain.LoadFile(o.filterFile); err != nil {
			return nil, fmt.Errorf("load filter file: %w", err)
		}
	}
	if o.minSize != "" {
		n, err := filter.ParseSize(o.minSize)
		if err != nil {
			return nil, fmt.Errorf("invalid --min-size: %w", err)
		}
		o.chain.SetMinSize(n)
	}
	if o.maxSize != "" {
		n, err := filter.ParseSize(o.maxSize)
		if err != nil {
			return nil, fmt.Errorf("invalid --max-size: %w", err)
		}
		o.chain.SetMaxSize(n)
	}
	if o.chain.Empty() {
		return nil, nil
	}
	return o.chain, nil
}

func (o *runOpts) presenter(g *globalOpts, collector *stats.Collector, workers int) ui.Presenter {
	return ui.NewPresenter(ui.Config{
		Writer:     g.stdout,
		ErrWriter:  g.stderr,
		IsTTY:      ui.IsTTY(os.Stderr.Fd()) && g.stderr == os.Stderr,
		Quiet:      g.quiet,
		Verbose:    g.verbose,
		ForceFeed:  o.forceFeed,
		ForceRate:  o.forceRate,
		NoProgress: o.noProgress,
		Stats:      collector,
		Workers:    workers,
	})
}

// extractFlags are the extract-only flags that config defaults can fill.
type extractFlags struct {
	overwrite bool
	dryRun    bool
	noCRC     bool
	verify    bool
	noTimes   bool
	bwLimit   string
}

func newExtractCmd(g *globalOpts) *cobra.Command {
	var (
		opts runOpts
		ef   extractFlags
	)

	cmd := &cobra.Command{
		Use:     "extract ARCHIVE [DEST]",
		Aliases: []string{"x"},
		Short:   "Extract an archive into DEST (default: current directory)",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst := "."
			if len(args) == 2 {
				dst = args[1]
			}

			applyConfigDefaults(cmd, g.cfg.Defaults, &opts.workers, &ef)

			var bwLimit int64
			if ef.bwLimit != "" {
				n, err := filter.ParseSize(ef.bwLimit)
				if err != nil {
					return fmt.Errorf("invalid --bwlimit: %w", err)
				}
				bwLimit = n
			}
			chain, err := opts.buildFilter()
			if err != nil {
				return err
			}

			closeLog, err := setupLogging(g)
			if err != nil {
				return err
			}
			defer closeLog()

			workers := opts.workers
			if workers <= 0 {
				workers = engine.DefaultWorkers()
			}

			a, err := openArchive(args[0], g, workers)
			if err != nil {
				return err
			}
			defer a.Close()

			if ef.dryRun {
				slog.Info("dry run mode")
			}
			slog.Debug("starting extract",
				"archive", a.loc.String(),
				"dst", dst,
				"workers", workers,
				"folders", a.NumFolders(),
			)

			collector := stats.NewCollector()
			result := runWithPresenter(g, &opts, collector, workers, func(ctx context.Context, events chan<- event.Event) engine.Result {
				return engine.Run(ctx, engine.Config{
					Archive:       a.Archive,
					Dst:           dst,
					Filter:        chain,
					Events:        events,
					Stats:         collector,
					Workers:       workers,
					BWLimit:       bwLimit,
					Overwrite:     ef.overwrite,
					DryRun:        ef.dryRun,
					VerifyCRC:     !ef.noCRC,
					VerifyWritten: ef.verify,
					PreserveTimes: !ef.noTimes,
				})
			})

			if result.Err != nil {
				slog.Error("extract failed", "error", result.Err)
				if result.Stats.FilesExtracted > 0 {
					return &exitError{code: 1} // partial failure
				}
				return &exitError{code: 2}
			}
			return nil
		},
	}

	opts.register(cmd.Flags())
	f := cmd.Flags()
	f.BoolVar(&ef.overwrite, "overwrite", false, "replace files that already exist")
	f.BoolVar(&ef.dryRun, "dry-run", false, "show what would be extracted without writing")
	f.BoolVar(&ef.noCRC, "no-crc", false, "skip checking recorded CRCs")
	f.BoolVar(&ef.verify, "verify", false, "re-read written files and compare BLAKE3 hashes")
	f.BoolVar(&ef.noTimes, "no-times", false, "don't restore modification times")
	f.StringVar(&ef.bwLimit, "bwlimit", "", "write bandwidth limit (e.g. 100M, 1G)")

	return cmd
}

func newTestCmd(g *globalOpts) *cobra.Command {
	var opts runOpts

	cmd := &cobra.Command{
		Use:     "test ARCHIVE",
		Aliases: []string{"t"},
		Short:   "Decode every member and check its CRC without writing",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("workers") && g.cfg.Defaults.Workers != nil {
				opts.workers = *g.cfg.Defaults.Workers
			}
			chain, err := opts.buildFilter()
			if err != nil {
				return err
			}

			closeLog, err := setupLogging(g)
			if err != nil {
				return err
			}
			defer closeLog()

			workers := opts.workers
			if workers <= 0 {
				workers = engine.DefaultWorkers()
			}

			a, err := openArchive(args[0], g, workers)
			if err != nil {
				return err
			}
			defer a.Close()

			collector := stats.NewCollector()
			result := runWithPresenter(g, &opts, collector, workers, func(ctx context.Context, events chan<- event.Event) engine.Result {
				return engine.Test(ctx, engine.Config{
					Archive: a.Archive,
					Filter:  chain,
					Events:  events,
					Stats:   collector,
					Workers: workers,
				})
			})

			if result.Err != nil {
				slog.Error("test failed", "error", result.Err)
				return &exitError{code: 1}
			}
			return nil
		},
	}
	opts.register(cmd.Flags())
	return cmd
}

// runWithPresenter runs fn with the presenter consuming its events in the
// background, then prints the summary line.
func runWithPresenter(
	g *globalOpts,
	opts *runOpts,
	collector *stats.Collector,
	workers int,
	fn func(context.Context, chan<- event.Event) engine.Result,
) engine.Result {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := make(chan event.Event, 256)
	presenterEvents := (<-chan event.Event)(events)
	if g.logFile != "" {
		presenterEvents = teeEvents(events)
	}

	presenter := opts.presenter(g, collector, workers)
	var presenterErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		presenterErr = presenter.Run(presenterEvents)
	}()

	result := fn(ctx, events)
	stop()
	close(events)
	wg.Wait()
	if presenterErr != nil {
		fmt.Fprintf(g.stderr, "presenter: %v\n", presenterErr)
	}

	if !g.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(g.stderr, summary)
		}
	}
	return result
}

// applyConfigDefaults applies config file defaults for flags not explicitly
// set on the CLI.
func applyConfigDefaults(cmd *cobra.Command, defaults config.DefaultsConfig, workers *int, ef *extractFlags) {
	flags := cmd.Flags()
	if !flags.Changed("workers") && defaults.Workers != nil {
		*workers = *defaults.Workers
	}
	if !flags.Changed("verify") && defaults.Verify != nil {
		ef.verify = *defaults.Verify
	}
	if !flags.Changed("overwrite") && defaults.Overwrite != nil {
		ef.overwrite = *defaults.Overwrite
	}
	if !flags.Changed("no-crc") && defaults.CRC != nil {
		ef.noCRC = !*defaults.CRC
	}
	if !flags.Changed("no-times") && defaults.PreserveTimes != nil {
		ef.noTimes = !*defaults.PreserveTimes
	}
	if !flags.Changed("bwlimit") && defaults.BWLimit != nil {
		ef.bwLimit = *defaults.BWLimit
	}
}
