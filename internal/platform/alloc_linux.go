//go:build linux

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocate reserves blocks with fallocate(2). FALLOC_FL_KEEP_SIZE keeps
// a failed extraction from leaving a full-size file of zeros behind.
func preallocate(f *os.File, size int64) error {
	conn, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var allocErr error
	if err := conn.Control(func(fd uintptr) {
		allocErr = unix.Fallocate(int(fd), unix.FALLOC_FL_KEEP_SIZE, 0, size) //nolint:gosec // fd fits in int
	}); err != nil {
		return err
	}
	return allocErr
}
