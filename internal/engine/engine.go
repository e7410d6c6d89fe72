// Package engine extracts and tests 7z archives with a pool of workers,
// one folder per task.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/bamsammich/seven/internal/event"
	"github.com/bamsammich/seven/internal/filter"
	"github.com/bamsammich/seven/internal/sevenzip"
	"github.com/bamsammich/seven/internal/stats"
)

// Config describes an extraction.
type Config struct {
	Archive *sevenzip.Archive
	Dst     string
	Filter  *filter.Chain
	Events  chan<- event.Event
	Stats   *stats.Collector
	Workers int
	// BWLimit caps aggregate write throughput in bytes/sec; 0 = unlimited.
	BWLimit       int64
	Overwrite     bool
	DryRun        bool
	VerifyCRC     bool
	VerifyWritten bool
	PreserveTimes bool
}

// Result is the outcome of an extraction or test.
type Result struct {
	Stats stats.Snapshot
	Err   error
}

// DefaultWorkers is the worker count used when Config.Workers is unset.
func DefaultWorkers() int {
	return min(runtime.NumCPU(), 16)
}

// Run extracts the selected members of cfg.Archive into cfg.Dst, blocking
// until complete.
func Run(ctx context.Context, cfg Config) Result {
	if cfg.Archive == nil {
		return Result{Err: errors.New("no archive")}
	}
	collector := cfg.Stats
	if collector == nil {
		collector = stats.NewCollector()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers()
	}

	if !cfg.DryRun {
		if err := os.MkdirAll(cfg.Dst, defaultDirMode); err != nil {
			return Result{Stats: collector.Snapshot(), Err: fmt.Errorf("create destination: %w", err)}
		}
	}

	plan := BuildPlan(cfg.Archive, cfg.Dst, cfg.Filter)
	collector.SetTotals(plan.TotalFiles, plan.TotalBytes)
	emitEvent(cfg.Events, event.Event{
		Type:      event.PlanComplete,
		Total:     plan.TotalFiles,
		TotalSize: plan.TotalBytes,
	})

	var errs errorList
	for _, r := range plan.Rejected {
		collector.AddFilesFailed(1)
		emitEvent(cfg.Events, event.Event{Type: event.FileFailed, Path: r.Name, Folder: -1, Error: r.Err})
		errs.add(r.Err)
	}
	for _, name := range plan.Anti {
		collector.AddFilesSkipped(1)
		emitEvent(cfg.Events, event.Event{Type: event.FileSkipped, Path: name, Folder: -1})
	}

	wp := NewWorkerPool(WorkerConfig{
		Archive:       cfg.Archive,
		NumWorkers:    cfg.Workers,
		Overwrite:     cfg.Overwrite,
		DryRun:        cfg.DryRun,
		VerifyCRC:     cfg.VerifyCRC,
		VerifyWritten: cfg.VerifyWritten,
		PreserveTimes: cfg.PreserveTimes,
		BWLimit:       cfg.BWLimit,
		Events:        cfg.Events,
		Stats:         collector,
	})
	defer wp.Close()

	for _, dir := range plan.Dirs {
		if err := wp.createDirectory(dir); err != nil {
			errs.add(err)
		}
	}

	wp.runAll(ctx, plan.Folders, &errs)

	// Directory times last, since writing children moves them.
	if cfg.PreserveTimes && !cfg.DryRun {
		for i := len(plan.Dirs) - 1; i >= 0; i-- {
			if err := setTimes(plan.Dirs[i].DstPath, plan.Dirs[i]); err != nil {
				errs.add(err)
			}
		}
	}

	if ctx.Err() != nil {
		errs.add(ctx.Err())
	}

	return Result{
		Stats: collector.Snapshot(),
		Err:   errs.err(),
	}
}

// Test decodes every selected member and checks recorded CRCs without
// writing anything.
func Test(ctx context.Context, cfg Config) Result {
	if cfg.Archive == nil {
		return Result{Err: errors.New("no archive")}
	}
	collector := cfg.Stats
	if collector == nil {
		collector = stats.NewCollector()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers()
	}

	plan := BuildPlan(cfg.Archive, "", cfg.Filter)
	collector.SetTotals(plan.TotalFiles, plan.TotalBytes)
	emitEvent(cfg.Events, event.Event{
		Type:      event.PlanComplete,
		Total:     plan.TotalFiles,
		TotalSize: plan.TotalBytes,
	})
	emitEvent(cfg.Events, event.Event{Type: event.VerifyStarted})

	wp := NewWorkerPool(WorkerConfig{
		Archive:    cfg.Archive,
		NumWorkers: cfg.Workers,
		TestOnly:   true,
		VerifyCRC:  true,
		Events:     cfg.Events,
		Stats:      collector,
	})
	defer wp.Close()

	var errs errorList
	wp.runAll(ctx, plan.Folders, &errs)
	if ctx.Err() != nil {
		errs.add(ctx.Err())
	}
	return Result{
		Stats: collector.Snapshot(),
		Err:   errs.err(),
	}
}

// errorList keeps the first error and counts the rest.
type errorList struct {
	first error
	count int
}

func (l *errorList) add(err error) {
	if err == nil {
		return
	}
	if l.first == nil {
		l.first = err
	}
	l.count++
}

func (l *errorList) err() error {
	if l.count > 1 {
		return fmt.Errorf("%w (and %d more errors)", l.first, l.count-1)
	}
	return l.first
}

func emitEvent(ch chan<- event.Event, e event.Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
