package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/seven/internal/event"
	"github.com/bamsammich/seven/internal/stats"
)

func newTestHUD(out *bytes.Buffer) *hudPresenter {
	collector := stats.NewCollector()
	collector.SetTotals(10, 10240)
	return &hudPresenter{
		w:           out,
		stats:       collector,
		forceFeed:   true,
		workers:     4,
		busyWorkers: make(map[int]bool),
	}
}

func runHUD(t *testing.T, p *hudPresenter, evs ...Event) string {
	t.Helper()
	events := make(chan Event, len(evs))
	for _, ev := range evs {
		events <- ev
	}
	close(events)
	require.NoError(t, p.Run(events))
	return p.w.(*bytes.Buffer).String()
}

func TestHudPresenterFileCompleted(t *testing.T) {
	var out bytes.Buffer
	output := runHUD(t, newTestHUD(&out),
		Event{Type: event.PlanComplete, Total: 10, TotalSize: 10240},
		Event{Type: event.FileCompleted, Path: "test.txt", Size: 1024},
	)

	assert.Contains(t, output, "✓  test.txt")
	assert.Contains(t, output, "1.0 KiB")
}

func TestHudPresenterFileCompletedStyledPath(t *testing.T) {
	var out bytes.Buffer
	output := runHUD(t, newTestHUD(&out),
		Event{Type: event.FileCompleted, Path: "some/dir/file.txt", Size: 1024},
	)

	// Directory part is dimmed, base name follows the reset.
	assert.Contains(t, output, ansiDim+"some/dir/"+ansiReset+"file.txt")
}

func TestHudPresenterFileFailed(t *testing.T) {
	var out bytes.Buffer
	output := runHUD(t, newTestHUD(&out),
		Event{Type: event.FileStarted, Path: "broken.bin", WorkerID: 2},
		Event{Type: event.FileFailed, Path: "broken.bin", Size: 10, WorkerID: 2, Error: assert.AnError},
	)

	assert.Contains(t, output, "✗  broken.bin")
	assert.Contains(t, output, assert.AnError.Error())
}

func TestHudPresenterFileSkipped(t *testing.T) {
	var out bytes.Buffer
	output := runHUD(t, newTestHUD(&out),
		Event{Type: event.FileSkipped, Path: "exists.txt"},
	)
	assert.Contains(t, output, "exists.txt")
	assert.Contains(t, output, "skipped")
}

func TestHudPresenterSummary(t *testing.T) {
	collector := stats.NewCollector()
	collector.AddFilesExtracted(500)
	collector.AddBytesExtracted(1024 * 1024 * 100)

	p := &hudPresenter{stats: collector, workers: 4}
	s := p.Summary()
	assert.Contains(t, s, "done ✓")
	assert.Contains(t, s, "files 500")
	assert.Contains(t, s, "size 100.0 MiB")
}

func TestHudPresenterSummaryWithVerify(t *testing.T) {
	collector := stats.NewCollector()
	collector.AddFilesExtracted(100)
	collector.AddBytesExtracted(1024 * 1024)
	collector.AddFilesVerified(99)
	collector.AddFilesVerifyFailed(1)

	p := &hudPresenter{stats: collector, workers: 4}
	s := p.Summary()
	assert.Contains(t, s, "done ✗")
	assert.Contains(t, s, "verified 99")
	assert.Contains(t, s, "errors 1")
}

func TestTruncPath(t *testing.T) {
	assert.Equal(t, "short", truncPath("short", 10))
	assert.Equal(t, "...long/path.txt", truncPath("a/very/long/path.txt", 16))
	assert.Equal(t, "abc", truncPath("abcdef", 3))
}

func TestStyledPath(t *testing.T) {
	assert.Equal(t, "file.txt", styledPath("file.txt"))
	assert.Equal(t, ansiDim+"dir/"+ansiReset+"file.txt", styledPath("dir/file.txt"))

	long := strings.Repeat("d/", 50) + "file.txt"
	styled := styledPath(long)
	assert.Contains(t, styled, "...")
	assert.True(t, strings.HasSuffix(styled, "file.txt"))
}

func TestHudClearHUDSequence(t *testing.T) {
	var out bytes.Buffer
	p := &hudPresenter{
		w:           &out,
		stats:       stats.NewCollector(),
		workers:     2,
		busyWorkers: make(map[int]bool),
	}

	p.drawHUD()
	assert.True(t, p.hudDrawn)
	assert.Equal(t, 2, p.hudLineCount)

	out.Reset()
	p.clearHUD()
	assert.Equal(t, "\033[2A\033[J", out.String())
	assert.False(t, p.hudDrawn)

	out.Reset()
	p.clearHUD()
	assert.Empty(t, out.String(), "second clear is a no-op")
}

func TestHudClearHUDRateMode(t *testing.T) {
	var out bytes.Buffer
	p := &hudPresenter{
		w:           &out,
		stats:       stats.NewCollector(),
		workers:     2,
		busyWorkers: make(map[int]bool),
		rateMode:    true,
	}

	p.drawHUD()
	assert.Equal(t, 3, p.hudLineCount)

	out.Reset()
	p.clearHUD()
	assert.Contains(t, out.String(), "\033[3A")
}

func TestHudWorkerIndicator(t *testing.T) {
	var out bytes.Buffer
	p := newTestHUD(&out)
	p.handleEvent(Event{Type: event.FolderStarted, WorkerID: 0})
	p.handleEvent(Event{Type: event.FileStarted, WorkerID: 1})

	out.Reset()
	p.drawHUD()
	assert.Contains(t, out.String(), "▪▪□□")

	p.handleEvent(Event{Type: event.FileCompleted, Path: "x", WorkerID: 1})
	out.Reset()
	p.drawHUD()
	assert.Contains(t, out.String(), "▪□□□")
}

func TestHudAlwaysRedrawsAfterFeedLine(t *testing.T) {
	var out bytes.Buffer
	output := runHUD(t, newTestHUD(&out),
		Event{Type: event.FileCompleted, Path: "a.txt", Size: 100, WorkerID: 0},
		Event{Type: event.FileCompleted, Path: "b.txt", Size: 200, WorkerID: 1},
	)

	assert.Contains(t, output, "a.txt")
	assert.Contains(t, output, "b.txt")
	assert.Contains(t, output, "□")
	assert.Contains(t, output, "folders")
}

func TestHudRateModeHidesFeed(t *testing.T) {
	var out bytes.Buffer
	p := newTestHUD(&out)
	p.forceFeed = false
	p.forceRate = true

	output := runHUD(t, p, Event{Type: event.FileCompleted, Path: "hidden.txt", Size: 1})
	assert.NotContains(t, output, "hidden.txt")
}

func TestHudPresenterVerifyStarted(t *testing.T) {
	var out bytes.Buffer
	output := runHUD(t, newTestHUD(&out), Event{Type: event.VerifyStarted})
	assert.Contains(t, output, "testing archive...")
}

func TestHudPresenterVerifyFailed(t *testing.T) {
	var out bytes.Buffer
	output := runHUD(t, newTestHUD(&out), Event{Type: event.VerifyFailed, Path: "bad/file.txt"})

	assert.Contains(t, output, "✗")
	assert.Contains(t, output, "file.txt")
	assert.Contains(t, output, "CRC MISMATCH")
}

func TestSparkline(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		width   int
		want    string
	}{
		{"idle", []float64{0, 0, 0, 0, 0}, 5, "▁▁▁▁▁"},
		{"padded history", []float64{100}, 5, "▁▁▁▁█"},
		{"ramp", []float64{0, 1, 2, 3, 4, 5, 6, 7}, 8, "▁▂▃▄▅▆▇█"},
		{"flat", []float64{5, 5, 5, 5}, 4, "████"},
		{"keeps newest", []float64{70, 0, 7, 70}, 3, "▁▁█"},
		{"no width", []float64{1, 2, 3}, 0, ""},
		{"no samples", nil, 3, "▁▁▁"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sparkline(tt.samples, tt.width))
		})
	}
}

func TestHudShowsDecodeAndWriteRates(t *testing.T) {
	var out bytes.Buffer
	p := newTestHUD(&out)
	p.stats.AddFolderDecoded(4 << 20)
	p.stats.AddBytesExtracted(1 << 20)
	p.stats.Tick()

	out.Reset()
	p.drawHUD()
	assert.Contains(t, out.String(), "decode 4.0 MiB/s · write 1.0 MiB/s")
}
