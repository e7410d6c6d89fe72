package event

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeString(t *testing.T) {
	for typ := PlanComplete; typ <= VerifyFailed; typ++ {
		assert.NotEqual(t, "Unknown", typ.String(), int(typ))
	}
	assert.Equal(t, "FolderDecoded", FolderDecoded.String())
	assert.Equal(t, "VerifyOK", VerifyOK.String())

	for _, typ := range []Type{0, -1, VerifyFailed + 1} {
		assert.Equal(t, "Unknown", typ.String())
	}
}

func attrMap(attrs []slog.Attr) map[string]any {
	m := make(map[string]any, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value.Any()
	}
	return m
}

func TestAttrs(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want map[string]any
	}{
		{
			name: "plan",
			ev:   Event{Type: PlanComplete, Total: 5, TotalSize: 4096, Folder: -1},
			want: map[string]any{"type": "PlanComplete", "total": int64(5), "total_size": int64(4096)},
		},
		{
			name: "folder decoded",
			ev:   Event{Type: FolderDecoded, Folder: 0, Size: 8192, WorkerID: 2},
			want: map[string]any{"type": "FolderDecoded", "size": int64(8192), "folder": int64(0), "worker": int64(2)},
		},
		{
			name: "member in a folder",
			ev:   Event{Type: FileCompleted, Path: "docs/guide.txt", Size: 10, Folder: 1, WorkerID: 1},
			want: map[string]any{
				"type": "FileCompleted", "path": "docs/guide.txt", "size": int64(10),
				"folder": int64(1), "worker": int64(1),
			},
		},
		{
			name: "empty member",
			ev:   Event{Type: FileCompleted, Path: "empty.txt", Folder: -1},
			want: map[string]any{"type": "FileCompleted", "path": "empty.txt", "worker": int64(0)},
		},
		{
			name: "failure",
			ev:   Event{Type: FileFailed, Path: "hello.txt", Folder: 0, Error: errors.New("crc mismatch")},
			want: map[string]any{
				"type": "FileFailed", "path": "hello.txt", "folder": int64(0),
				"worker": int64(0), "error": "crc mismatch",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, attrMap(tt.ev.Attrs()))
		})
	}
}
