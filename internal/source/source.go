// Package source opens archive bytes for random access, either from the local
// filesystem or from a remote host over SFTP.
package source

import (
	"fmt"
	"io"
	"os"
)

// Source is an open archive: random-access bytes with a known size.
type Source interface {
	io.ReaderAt
	io.Closer
	Size() int64
	Name() string
}

// Open opens loc for reading. Remote locations dial SSH with opts.
//
//nolint:ireturn // local and SFTP sources share the interface
func Open(loc Location, opts SSHOpts) (Source, error) {
	if loc.IsRemote() {
		return OpenSFTP(loc, opts)
	}
	return OpenLocal(loc.Path)
}

// Compile-time interface checks.
var (
	_ Source = (*LocalSource)(nil)
	_ Source = (*SFTPSource)(nil)
)

// LocalSource is an archive on the local filesystem.
type LocalSource struct {
	f    *os.File
	size int64
}

// OpenLocal opens the archive at path.
func OpenLocal(path string) (*LocalSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s: is a directory", path)
	}
	return &LocalSource{f: f, size: info.Size()}, nil
}

func (s *LocalSource) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }
func (s *LocalSource) Size() int64                              { return s.size }
func (s *LocalSource) Name() string                             { return s.f.Name() }
func (s *LocalSource) Close() error                             { return s.f.Close() }
