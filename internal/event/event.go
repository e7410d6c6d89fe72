package event

import (
	"log/slog"
	"time"
)

// Type identifies the kind of event.
type Type int

const (
	PlanComplete Type = iota + 1
	FolderStarted
	FolderDecoded
	FileStarted
	FileCompleted
	FileFailed
	FileSkipped
	DirCreated
	VerifyStarted
	VerifyOK
	VerifyFailed
)

var typeNames = [...]string{
	PlanComplete:  "PlanComplete",
	FolderStarted: "FolderStarted",
	FolderDecoded: "FolderDecoded",
	FileStarted:   "FileStarted",
	FileCompleted: "FileCompleted",
	FileFailed:    "FileFailed",
	FileSkipped:   "FileSkipped",
	DirCreated:    "DirCreated",
	VerifyStarted: "VerifyStarted",
	VerifyOK:      "VerifyOK",
	VerifyFailed:  "VerifyFailed",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from the engine.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // archive member name
	Size      int64  // file size, or decoded folder size
	Total     int64  // total files (PlanComplete)
	TotalSize int64  // total bytes (PlanComplete)
	Folder    int    // folder index, -1 for entries without data
	Error     error
	WorkerID  int
}

// Attrs returns the fields that matter for e's type, for structured logs.
func (e Event) Attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("type", e.Type.String())}
	if e.Type == PlanComplete {
		return append(attrs, slog.Int64("total", e.Total), slog.Int64("total_size", e.TotalSize))
	}
	if e.Path != "" {
		attrs = append(attrs, slog.String("path", e.Path))
	}
	if e.Size != 0 {
		attrs = append(attrs, slog.Int64("size", e.Size))
	}
	if e.Folder >= 0 && (e.Type == FolderStarted || e.Type == FolderDecoded || e.Path != "") {
		attrs = append(attrs, slog.Int("folder", e.Folder))
	}
	attrs = append(attrs, slog.Int("worker", e.WorkerID))
	if e.Error != nil {
		attrs = append(attrs, slog.String("error", e.Error.Error()))
	}
	return attrs
}
