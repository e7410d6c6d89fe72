package ui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/bamsammich/seven/internal/sevenzip"
	"github.com/bamsammich/seven/internal/stats"
)

// ListTimeLayout is how member modification times are printed.
const ListTimeLayout = "2006-01-02 15:04:05"

var countPrinter = message.NewPrinter(language.English)

// FormatBytes wraps stats.FormatBytes for UI use.
func FormatBytes(b int64) string {
	return stats.FormatBytes(b)
}

// FormatRate formats a bytes-per-second rate in the same units as
// FormatBytes.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec < 1 {
		return "0 B/s"
	}
	return FormatBytes(int64(bytesPerSec)) + "/s"
}

// FormatThroughput shows decode and write rates side by side. Solid folders
// decode in bursts and are then written file by file, so the two differ.
func FormatThroughput(decode, write float64) string {
	return fmt.Sprintf("decode %s · write %s", FormatRate(decode), FormatRate(write))
}

// FormatCount formats an integer with comma separators.
func FormatCount(n int64) string {
	return countPrinter.Sprintf("%d", n)
}

// FormatDuration formats elapsed time concisely.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatETA is FormatDuration with "--" for an unknown estimate.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	return FormatDuration(d)
}

// FormatModTime renders a member's modification time in UTC, or blanks of
// the same width when the archive recorded none.
func FormatModTime(t time.Time) string {
	if t.IsZero() {
		return strings.Repeat(" ", len(ListTimeLayout))
	}
	return t.UTC().Format(ListTimeLayout)
}

// FormatAttributes renders an entry's attributes in the 7-Zip "DRHSA" style,
// or as a Unix mode string when p7zip stored one. Anti-items, which delete
// rather than create, get their own marker.
func FormatAttributes(e sevenzip.Entry) string {
	if e.IsAnti {
		return "anti......"
	}
	if mode, ok := e.UnixMode(); ok && mode&0o777 != 0 {
		m := os.FileMode(mode & 0o777)
		if e.IsDir {
			m |= os.ModeDir
		}
		return m.String()
	}

	var attr uint32
	if e.HasAttributes {
		attr = e.Attributes
	}
	flags := []struct {
		set  bool
		mark byte
	}{
		{e.IsDir || attr&sevenzip.AttrDirectory != 0, 'D'},
		{attr&sevenzip.AttrReadOnly != 0, 'R'},
		{attr&sevenzip.AttrHidden != 0, 'H'},
		{attr&sevenzip.AttrSystem != 0, 'S'},
		{attr&sevenzip.AttrArchive != 0, 'A'},
	}
	out := []byte("..........")
	for i, f := range flags {
		if f.set {
			out[i] = f.mark
		}
	}
	return string(out)
}

// meter draws filled of width cells as ▪ and the rest as □.
func meter(filled, width int) string {
	filled = max(0, min(filled, width))
	return strings.Repeat("▪", filled) + strings.Repeat("□", width-filled)
}

// ProgressBar renders a fraction of the bytes extracted.
func ProgressBar(pct float64, width int) string {
	if width <= 0 {
		return ""
	}
	pct = max(0, min(pct, 1))
	return meter(int(pct*float64(width)), width)
}

// WorkerIndicator shows which of total decode workers are busy.
func WorkerIndicator(busy, total int) string {
	return meter(busy, total)
}
