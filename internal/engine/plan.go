package engine

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bamsammich/seven/internal/filter"
	"github.com/bamsammich/seven/internal/sevenzip"
)

// ErrUnsafePath is returned for member names that would land outside the
// destination.
var ErrUnsafePath = errors.New("unsafe path")

const (
	defaultFileMode = 0o644
	defaultDirMode  = 0o755
)

// Plan is the work derived from an archive listing.
type Plan struct {
	Dirs    []FileTask
	Folders []FolderTask
	// Rejected holds members refused before any work starts.
	Rejected []Rejection
	// Anti lists anti items, which are never extracted.
	Anti       []string
	TotalFiles int64
	TotalBytes int64
}

// Rejection is a member that cannot be extracted.
type Rejection struct {
	Name string
	Err  error
}

// BuildPlan selects the archive members that pass f and groups them by
// folder. Directories come first in path order.
func BuildPlan(a *sevenzip.Archive, dst string, f *filter.Chain) Plan {
	var p Plan
	byFolder := make(map[int]int)

	for _, file := range a.Entries() {
		if file.Entry().IsAnti {
			p.Anti = append(p.Anti, file.Name())
		}
	}

	for _, file := range a.Files() {
		entry := file.Entry()
		name, err := cleanName(entry.Name)
		if err != nil {
			p.Rejected = append(p.Rejected, Rejection{Name: entry.Name, Err: err})
			continue
		}
		if !f.Empty() && !f.Match(name, entry.IsDir, int64(entry.Size)) {
			continue
		}

		task := FileTask{
			Name:    name,
			DstPath: filepath.Join(dst, filepath.FromSlash(name)),
			File:    file,
			Size:    int64(entry.Size),
			ModTime: entry.Modified,
			AccTime: entry.Accessed,
			Mode:    fileMode(entry),
		}
		if task.AccTime.IsZero() {
			task.AccTime = task.ModTime
		}

		if entry.IsDir {
			task.Type = Dir
			p.Dirs = append(p.Dirs, task)
			continue
		}

		folder := a.FolderOf(file)
		idx, ok := byFolder[folder]
		if !ok {
			idx = len(p.Folders)
			byFolder[folder] = idx
			p.Folders = append(p.Folders, FolderTask{Folder: folder})
		}
		p.Folders[idx].Files = append(p.Folders[idx].Files, task)
		p.TotalFiles++
		p.TotalBytes += task.Size
	}

	sort.SliceStable(p.Dirs, func(i, j int) bool { return p.Dirs[i].Name < p.Dirs[j].Name })
	sort.SliceStable(p.Folders, func(i, j int) bool {
		return folderOrder(p.Folders[i].Folder) < folderOrder(p.Folders[j].Folder)
	})
	for i := range p.Folders {
		files := p.Folders[i].Files
		sort.SliceStable(files, func(x, y int) bool {
			return files[x].File.Entry().Offset < files[y].File.Entry().Offset
		})
	}
	return p
}

// folderOrder puts the stream-less task last.
func folderOrder(folder int) int {
	if folder < 0 {
		return int(^uint(0) >> 1)
	}
	return folder
}

// cleanName turns a member name into a relative slash path and rejects
// names that escape the destination.
func cleanName(name string) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%q: NUL in name: %w", name, ErrUnsafePath)
	}
	// Archives written on Windows use backslashes.
	slashed := strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(slashed, "/") || hasDriveLetter(slashed) {
		return "", fmt.Errorf("%q: absolute path: %w", name, ErrUnsafePath)
	}
	for _, elem := range strings.Split(slashed, "/") {
		if elem == ".." {
			return "", fmt.Errorf("%q: parent reference: %w", name, ErrUnsafePath)
		}
	}
	cleaned := path.Clean(slashed)
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("%q: empty name: %w", name, ErrUnsafePath)
	}
	return cleaned, nil
}

func hasDriveLetter(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0] | 0x20
	return c >= 'a' && c <= 'z'
}

// fileMode picks permission bits from the p7zip Unix extension when present,
// else from the read-only attribute.
func fileMode(e sevenzip.Entry) uint32 {
	if mode, ok := e.UnixMode(); ok && mode&0o777 != 0 {
		return mode & 0o777
	}
	mode := uint32(defaultFileMode)
	if e.IsDir {
		mode = defaultDirMode
	}
	if e.HasAttributes && e.Attributes&sevenzip.AttrReadOnly != 0 && !e.IsDir {
		mode &^= 0o222
	}
	return mode
}
