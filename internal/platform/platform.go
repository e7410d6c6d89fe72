// Package platform holds OS-specific helpers for writing extracted files.
package platform

import (
	"errors"
	"log/slog"
	"os"
)

// Preallocate reserves size bytes for f before it is written, leaving the
// file size alone. Filesystems that cannot reserve space are skipped
// silently; other failures are logged and the write goes ahead.
func Preallocate(f *os.File, size int64) {
	if size <= 0 {
		return
	}
	if err := preallocate(f, size); err != nil && !errors.Is(err, errors.ErrUnsupported) {
		slog.Debug("preallocate failed", "path", f.Name(), "size", size, "error", err)
	}
}
