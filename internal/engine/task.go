package engine

import (
	"time"

	"github.com/bamsammich/seven/internal/sevenzip"
)

// FileType identifies the kind of archive entry.
type FileType int

const (
	Regular FileType = iota
	Dir
)

// FileTask describes a single entry to materialize.
type FileTask struct {
	Name    string // cleaned member name
	DstPath string
	ModTime time.Time
	AccTime time.Time
	File    *sevenzip.File
	Size    int64
	Mode    uint32
	Type    FileType
}

// FolderTask groups the selected files of one folder in substream order so
// the folder is decoded once. Folder is -1 for files without data.
type FolderTask struct {
	Files  []FileTask
	Folder int
}

// Size is the number of content bytes the task writes.
func (t FolderTask) Size() int64 {
	var n int64
	for _, f := range t.Files {
		n += f.Size
	}
	return n
}
