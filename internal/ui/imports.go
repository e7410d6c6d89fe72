package ui

import "github.com/bamsammich/seven/internal/event"

// Event is the engine's progress event.
type Event = event.Event

// Re-export event types for convenience.
const (
	PlanComplete  = event.PlanComplete
	FolderStarted = event.FolderStarted
	FolderDecoded = event.FolderDecoded
	FileStarted   = event.FileStarted
	FileCompleted = event.FileCompleted
	FileFailed    = event.FileFailed
	FileSkipped   = event.FileSkipped
	DirCreated    = event.DirCreated
	VerifyStarted = event.VerifyStarted
	VerifyOK      = event.VerifyOK
	VerifyFailed  = event.VerifyFailed
)
