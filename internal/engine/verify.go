package engine

import (
	"errors"
	"fmt"
)

// ErrWrittenMismatch is returned when a file on disk differs from the
// content decoded from the archive.
var ErrWrittenMismatch = errors.New("written file differs from archive content")

// verifyWritten re-reads path and compares its BLAKE3 digest with content's.
func verifyWritten(path string, content []byte) error {
	got, err := HashFile(path)
	if err != nil {
		return err
	}
	if want := HashBytes(content); got != want {
		return fmt.Errorf("%s: blake3 %s, want %s: %w", path, got, want, ErrWrittenMismatch)
	}
	return nil
}
