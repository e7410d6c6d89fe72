package ui

import (
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/bamsammich/seven/internal/stats"
)

// ANSI escape sequences.
const (
	ansiDim   = "\033[2m"
	ansiReset = "\033[0m"
)

// hudPresenter provides a rich TTY display with a scrolling feed of extracted
// members and a 2-line HUD that redraws in place.
type hudPresenter struct {
	w         io.Writer
	stats     *stats.Collector
	forceFeed bool
	forceRate bool
	workers   int

	// Internal state.
	hudDrawn     bool
	hudLineCount int // actual number of lines in the last HUD draw
	rateMode     bool
	rateSwitched bool // whether we've printed the switch notice
	busyWorkers  map[int]bool
	lastHUDDraw  time.Time
}

const (
	rateThreshHigh   = 200.0
	rateThreshLow    = 100.0
	sparklineWidth   = 20
	progressBarWidth = 20
	maxPathWidth     = 72
	hudMinInterval   = 50 * time.Millisecond // don't redraw faster than this
)

func (p *hudPresenter) Run(events <-chan Event) error {
	p.busyWorkers = make(map[int]bool)

	if p.forceRate {
		p.rateMode = true
	}

	// Fire first tick quickly to seed the ring buffer with initial speed data,
	// then switch to 1s interval.
	secTicker := time.NewTicker(250 * time.Millisecond)
	defer secTicker.Stop()
	firstTickDone := false

	// Redraw ticker for when no events are flowing (e.g., a large folder decoding).
	redrawTicker := time.NewTicker(100 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearHUD()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDrawHUD()

		case <-redrawTicker.C:
			p.maybeSwitch()
			p.drawHUD()

		case <-secTicker.C:
			p.stats.Tick()
			if !firstTickDone {
				firstTickDone = true
				secTicker.Reset(1 * time.Second)
			}
		}
	}
}

func (p *hudPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case FolderStarted, FileStarted:
		p.busyWorkers[ev.WorkerID] = true

	case FileCompleted:
		delete(p.busyWorkers, ev.WorkerID)
		if !p.rateMode {
			p.clearHUD()
			p.printFileCompleted(ev)
			p.drawHUD() // always redraw HUD after feed line
		}

	case FileFailed:
		delete(p.busyWorkers, ev.WorkerID)
		if !p.rateMode {
			p.clearHUD()
			p.printFileFailed(ev)
			p.drawHUD()
		}

	case FileSkipped:
		if !p.rateMode {
			p.clearHUD()
			p.printFileSkipped(ev)
			p.drawHUD()
		}

	case VerifyStarted:
		p.clearHUD()
		fmt.Fprintf(p.w, "%stesting archive...%s\n", ansiDim, ansiReset)

	case VerifyOK:
		// Silent; the feed line already covers the member.

	case VerifyFailed:
		p.clearHUD()
		fmt.Fprintf(p.w, "✗  %s  CRC MISMATCH\n", styledPath(ev.Path))
		p.drawHUD()
	}
}

func (p *hudPresenter) printFileCompleted(ev Event) {
	speed := p.stats.RollingSpeed(5)
	if speed > 0 {
		fmt.Fprintf(p.w, "✓  %s  %10s  %s\n",
			styledPath(ev.Path), FormatBytes(ev.Size), FormatRate(speed))
	} else {
		fmt.Fprintf(p.w, "✓  %s  %10s\n",
			styledPath(ev.Path), FormatBytes(ev.Size))
	}
}

func (p *hudPresenter) printFileFailed(ev Event) {
	errMsg := "error"
	if ev.Error != nil {
		errMsg = ev.Error.Error()
	}
	fmt.Fprintf(p.w, "✗  %s  %10s  %s\n",
		styledPath(ev.Path), FormatBytes(ev.Size), errMsg)
}

func (p *hudPresenter) printFileSkipped(ev Event) {
	fmt.Fprintf(p.w, "–  %s  %10s  %sskipped%s\n",
		styledPath(ev.Path), FormatBytes(ev.Size), ansiDim, ansiReset)
}

func (p *hudPresenter) maybeSwitch() {
	if p.forceFeed || p.forceRate {
		return
	}

	fps := p.stats.RollingFilesPerSec(2)

	if !p.rateMode && fps > rateThreshHigh {
		p.rateMode = true
		if !p.rateSwitched {
			p.rateSwitched = true
			p.clearHUD()
			fmt.Fprintf(p.w, "↯ rate view (%s files/s · use --feed to see individual files)\n",
				FormatCount(int64(fps)))
		}
	} else if p.rateMode && fps < rateThreshLow {
		p.rateMode = false
	}
}

// maybeDrawHUD redraws the HUD if enough time has passed since the last draw.
func (p *hudPresenter) maybeDrawHUD() {
	if time.Since(p.lastHUDDraw) < hudMinInterval {
		return
	}
	p.drawHUD()
}

func (p *hudPresenter) drawHUD() {
	snap := p.stats.Snapshot()

	// Clear previous HUD if drawn.
	p.clearHUD()

	var pct float64
	if snap.BytesTotal > 0 {
		pct = float64(snap.BytesExtracted) / float64(snap.BytesTotal)
	}

	speed := p.stats.RollingSpeed(10)
	decodeSpeed := p.stats.RollingDecodeSpeed(10)
	eta := p.stats.ETA()
	spark := Sparkline(p.stats.SparklineData(sparklineWidth), sparklineWidth)

	lines := 0

	// Rate mode: extra files/s line above the main HUD.
	if p.rateMode {
		fps := p.stats.RollingFilesPerSec(5)
		fmt.Fprintf(p.w, "files/s  %s/s   %s / %s done\n",
			FormatCount(int64(fps)),
			FormatCount(snap.FilesExtracted), FormatCount(snap.FilesTotal))
		lines++
	}

	// Line 1: write sparkline + decode/write rates + byte totals + folders.
	fmt.Fprintf(p.w, "       %s   %s   %s / %s   %s folders\n",
		spark, FormatThroughput(decodeSpeed, speed),
		FormatBytes(snap.BytesExtracted), FormatBytes(snap.BytesTotal),
		FormatCount(snap.FoldersDecoded))
	lines++

	// Line 2: progress bar (▪/□) + files + workers + eta.
	bar := ProgressBar(pct, progressBarWidth)
	line := fmt.Sprintf(" %3.0f%%  %s   %s / %s files",
		pct*100, bar,
		FormatCount(snap.FilesExtracted), FormatCount(snap.FilesTotal))
	if p.workers > 0 {
		line += "   " + WorkerIndicator(min(len(p.busyWorkers), p.workers), p.workers)
	}
	fmt.Fprintf(p.w, "%s   eta %s\n", line, FormatETA(eta))
	lines++

	p.hudDrawn = true
	p.hudLineCount = lines
	p.lastHUDDraw = time.Now()
}

func (p *hudPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	lines := p.hudLineCount
	if lines == 0 {
		lines = 2 // fallback
	}
	// Move cursor up N lines and clear to end of screen.
	fmt.Fprintf(p.w, "\033[%dA\033[J", lines)
	p.hudDrawn = false
}

func (p *hudPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

// styledPath returns the member name with the directory portion dimmed and
// the base name in normal weight.
func styledPath(name string) string {
	name = truncPath(name, maxPathWidth)
	dir, base := path.Split(name)
	if dir == "" {
		return base
	}
	return fmt.Sprintf("%s%s%s%s", ansiDim, dir, ansiReset, base)
}

// truncPath shortens a path to fit within maxLen bytes, keeping the tail.
func truncPath(p string, maxLen int) string {
	if len(p) <= maxLen {
		return p
	}
	if maxLen <= 3 {
		return p[:maxLen]
	}
	return "..." + p[len(p)-maxLen+3:]
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws the last width samples as block characters scaled to the
// largest of them. Missing history on the left is drawn as idle.
func Sparkline(samples []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}
	peak := 0.0
	if len(samples) > 0 {
		peak = slices.Max(samples)
	}

	var b strings.Builder
	for range width - len(samples) {
		b.WriteRune(sparkBlocks[0])
	}
	top := len(sparkBlocks) - 1
	for _, v := range samples {
		level := 0
		if peak > 0 && v > 0 {
			level = min(int(v/peak*float64(top)), top)
		}
		b.WriteRune(sparkBlocks[level])
	}
	return b.String()
}
