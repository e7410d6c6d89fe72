package engine

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/bamsammich/seven/internal/event"
	"github.com/bamsammich/seven/internal/platform"
	"github.com/bamsammich/seven/internal/sevenzip"
	"github.com/bamsammich/seven/internal/stats"
)

// WorkerConfig controls worker behavior.
type WorkerConfig struct {
	Archive       *sevenzip.Archive
	Events        chan<- event.Event
	Stats         *stats.Collector
	NumWorkers    int
	BWLimit       int64
	Overwrite     bool
	DryRun        bool
	TestOnly      bool // decode and check CRCs, never write
	VerifyCRC     bool
	VerifyWritten bool
	PreserveTimes bool
}

// WorkerPool decodes folders and writes their files.
type WorkerPool struct {
	cfg     WorkerConfig
	limiter *rate.Limiter
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(cfg WorkerConfig) *WorkerPool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	wp := &WorkerPool{cfg: cfg}
	if cfg.BWLimit > 0 {
		wp.limiter = NewBWLimiter(cfg.BWLimit)
	}
	return wp
}

// Run starts workers that consume tasks. It blocks until all tasks are
// processed or the context is cancelled. Errors are sent to errs.
func (wp *WorkerPool) Run(ctx context.Context, tasks <-chan FolderTask, errs chan<- error) {
	var wg sync.WaitGroup
	for id := range wp.cfg.NumWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				if ctx.Err() != nil {
					return
				}
				for _, err := range wp.processFolder(ctx, id, task) {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
}

// runAll feeds folders to Run and collects every error into list.
func (wp *WorkerPool) runAll(ctx context.Context, folders []FolderTask, list *errorList) {
	tasks := make(chan FolderTask)
	errs := make(chan error, 64)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for err := range errs {
			list.add(err)
		}
	}()
	go func() {
		defer close(tasks)
		for _, t := range folders {
			select {
			case <-ctx.Done():
				return
			case tasks <- t:
			}
		}
	}()

	wp.Run(ctx, tasks, errs)
	close(errs)
	<-done
}

// Close removes any temporary files left by interrupted writes.
func (wp *WorkerPool) Close() {
	CleanupTmpFiles()
}

func (wp *WorkerPool) emit(e event.Event) {
	emitEvent(wp.cfg.Events, e)
}

func (wp *WorkerPool) processFolder(ctx context.Context, id int, task FolderTask) []error {
	pending := wp.pending(task)
	if len(pending) == 0 {
		return nil
	}

	if wp.cfg.DryRun {
		for _, f := range pending {
			wp.emit(event.Event{Type: event.FileCompleted, Path: f.Name, Size: f.Size, Folder: task.Folder, WorkerID: id})
		}
		return nil
	}

	var data []byte
	if task.Folder >= 0 {
		wp.emit(event.Event{Type: event.FolderStarted, Folder: task.Folder, WorkerID: id})
		decoded, err := wp.cfg.Archive.ReadFolder(task.Folder)
		if err != nil {
			err = fmt.Errorf("folder %d: %w", task.Folder, err)
			for _, f := range pending {
				wp.cfg.Stats.AddFilesFailed(1)
				wp.emit(event.Event{Type: event.FileFailed, Path: f.Name, Size: f.Size, Folder: task.Folder, Error: err, WorkerID: id})
			}
			return []error{err}
		}
		wp.cfg.Stats.AddFolderDecoded(int64(len(decoded)))
		wp.emit(event.Event{Type: event.FolderDecoded, Folder: task.Folder, Size: int64(len(decoded)), WorkerID: id})
		data = decoded
	}

	var errs []error
	for _, f := range pending {
		if ctx.Err() != nil {
			return errs
		}
		if err := wp.processFile(ctx, id, task.Folder, f, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// pending drops files that already exist when overwriting is off.
func (wp *WorkerPool) pending(task FolderTask) []FileTask {
	if wp.cfg.TestOnly || wp.cfg.Overwrite {
		return task.Files
	}
	files := make([]FileTask, 0, len(task.Files))
	for _, f := range task.Files {
		if _, err := os.Lstat(f.DstPath); err == nil {
			wp.cfg.Stats.AddFilesSkipped(1)
			wp.emit(event.Event{Type: event.FileSkipped, Path: f.Name, Size: f.Size, Folder: task.Folder})
			continue
		}
		files = append(files, f)
	}
	return files
}

func (wp *WorkerPool) processFile(ctx context.Context, id, folder int, f FileTask, data []byte) error {
	wp.emit(event.Event{Type: event.FileStarted, Path: f.Name, Size: f.Size, Folder: folder, WorkerID: id})

	content, err := substream(f, data)
	if err != nil {
		return wp.fail(id, folder, f, err)
	}

	if wp.cfg.VerifyCRC {
		if err := wp.checkCRC(id, folder, f, content); err != nil {
			if !wp.cfg.TestOnly {
				wp.emit(event.Event{Type: event.FileFailed, Path: f.Name, Size: f.Size, Folder: folder, Error: err, WorkerID: id})
			}
			return err
		}
	}

	if !wp.cfg.TestOnly {
		if err := wp.writeFile(ctx, f, content); err != nil {
			return wp.fail(id, folder, f, err)
		}
		if wp.cfg.VerifyWritten {
			if err := verifyWritten(f.DstPath, content); err != nil {
				wp.cfg.Stats.AddFilesVerifyFailed(1)
				wp.emit(event.Event{Type: event.VerifyFailed, Path: f.Name, Folder: folder, Error: err, WorkerID: id})
				return err
			}
		}
	}

	wp.cfg.Stats.AddFilesExtracted(1)
	wp.cfg.Stats.AddBytesExtracted(f.Size)
	wp.emit(event.Event{Type: event.FileCompleted, Path: f.Name, Size: f.Size, Folder: folder, WorkerID: id})
	return nil
}

func (wp *WorkerPool) fail(id, folder int, f FileTask, err error) error {
	wp.cfg.Stats.AddFilesFailed(1)
	wp.emit(event.Event{Type: event.FileFailed, Path: f.Name, Size: f.Size, Folder: folder, Error: err, WorkerID: id})
	return err
}

// checkCRC compares content with the recorded CRC, if any.
func (wp *WorkerPool) checkCRC(id, folder int, f FileTask, content []byte) error {
	entry := f.File.Entry()
	if !entry.HasCRC {
		return nil
	}
	if got := crc32.ChecksumIEEE(content); got != entry.CRC {
		wp.cfg.Stats.AddFilesVerifyFailed(1)
		err := fmt.Errorf("%s: crc %08x, want %08x: %w", f.Name, got, entry.CRC, sevenzip.ErrCRCMismatch)
		wp.emit(event.Event{Type: event.VerifyFailed, Path: f.Name, Folder: folder, Error: err, WorkerID: id})
		return err
	}
	wp.cfg.Stats.AddFilesVerified(1)
	wp.emit(event.Event{Type: event.VerifyOK, Path: f.Name, Folder: folder, WorkerID: id})
	return nil
}

// substream returns f's bytes within its decoded folder.
func substream(f FileTask, data []byte) ([]byte, error) {
	entry := f.File.Entry()
	if !entry.HasStream {
		return nil, nil
	}
	end := entry.Offset + entry.Size
	if end < entry.Offset || end > uint64(len(data)) {
		return nil, fmt.Errorf("%s: substream %d+%d past folder end %d: %w",
			f.Name, entry.Offset, entry.Size, len(data), sevenzip.ErrMalformedHeader)
	}
	return data[entry.Offset:end], nil
}

func (wp *WorkerPool) createDirectory(task FileTask) error {
	if wp.cfg.DryRun {
		wp.emit(event.Event{Type: event.DirCreated, Path: task.Name, Folder: -1})
		return nil
	}
	// Owner keeps write access until the directory is populated.
	perm := os.FileMode(task.Mode|0o700).Perm()
	if err := os.MkdirAll(task.DstPath, perm); err != nil {
		wp.cfg.Stats.AddFilesFailed(1)
		wp.emit(event.Event{Type: event.FileFailed, Path: task.Name, Folder: -1, Error: err})
		return fmt.Errorf("mkdir %s: %w", task.DstPath, err)
	}
	if err := os.Chmod(task.DstPath, perm); err != nil {
		return fmt.Errorf("chmod dir %s: %w", task.DstPath, err)
	}
	wp.cfg.Stats.AddDirsCreated(1)
	wp.emit(event.Event{Type: event.DirCreated, Path: task.Name, Folder: -1})
	return nil
}

// writeFile writes content to a temporary file beside the destination and
// renames it into place.
func (wp *WorkerPool) writeFile(ctx context.Context, task FileTask, content []byte) error {
	dir := filepath.Dir(task.DstPath)
	base := filepath.Base(task.DstPath)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.seven-tmp", base, uuid.New().String()[:8]))

	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		return fmt.Errorf("create parent dir %s: %w", dir, err)
	}

	RegisterTmp(tmpPath)
	defer func() {
		DeregisterTmp(tmpPath)
		_ = os.Remove(tmpPath) // no-op if rename succeeded
	}()

	fd, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, os.FileMode(task.Mode).Perm())
	if err != nil {
		return fmt.Errorf("create tmp %s: %w", tmpPath, err)
	}

	platform.Preallocate(fd, int64(len(content)))

	var w io.Writer = fd
	if wp.limiter != nil {
		w = &rateLimitedWriter{w: fd, limiter: wp.limiter, ctx: ctx}
	}
	if _, err := w.Write(content); err != nil {
		fd.Close()
		return fmt.Errorf("write %s: %w", task.Name, err)
	}

	// Exact mode regardless of umask.
	if err := unix.Fchmod(int(fd.Fd()), task.Mode&0o777); err != nil {
		fd.Close()
		return fmt.Errorf("fchmod %s: %w", tmpPath, err)
	}
	if err := fd.Close(); err != nil {
		return fmt.Errorf("close tmp %s: %w", tmpPath, err)
	}

	if wp.cfg.PreserveTimes {
		if err := setTimes(tmpPath, task); err != nil {
			return err
		}
	}

	if err := os.Rename(tmpPath, task.DstPath); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, task.DstPath, err)
	}
	return nil
}

// setTimes applies the entry's access and modification times to path.
func setTimes(path string, task FileTask) error {
	if task.ModTime.IsZero() {
		return nil
	}
	atime, err := unix.TimeToTimespec(task.AccTime)
	if err != nil {
		return fmt.Errorf("atime %s: %w", task.Name, err)
	}
	mtime, err := unix.TimeToTimespec(task.ModTime)
	if err != nil {
		return fmt.Errorf("mtime %s: %w", task.Name, err)
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, []unix.Timespec{atime, mtime}, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return fmt.Errorf("utimensat %s: %w", path, err)
	}
	return nil
}
