package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/seven/internal/sevenzip"
)

func TestFormatRate(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{0, "0 B/s"},
		{-1, "0 B/s"},
		{0.5, "0 B/s"},
		{512, "512 B/s"},
		{1024, "1.0 KiB/s"},
		{1.5 * 1024 * 1024, "1.5 MiB/s"},
		{2.5 * 1024 * 1024 * 1024, "2.5 GiB/s"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRate(tt.input))
		})
	}
}

func TestFormatThroughput(t *testing.T) {
	assert.Equal(t, "decode 4.0 MiB/s · write 1.0 MiB/s", FormatThroughput(4<<20, 1<<20))
	assert.Equal(t, "decode 0 B/s · write 512 B/s", FormatThroughput(0, 512))
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		input time.Duration
		want  string
	}{
		{0, "--"},
		{-1 * time.Second, "--"},
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m 30s"},
		{3661 * time.Second, "1h 01m 01s"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatETA(tt.input))
		})
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1000000, "1,000,000"},
		{14302, "14,302"},
		{-1000, "-1,000"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCount(tt.input))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", FormatDuration(0))
	assert.Equal(t, "30s", FormatDuration(30*time.Second))
	assert.Equal(t, "3m 17s", FormatDuration(3*time.Minute+17*time.Second))
	assert.Equal(t, "1h 02m 03s", FormatDuration(1*time.Hour+2*time.Minute+3*time.Second))
}

func TestFormatModTime(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "2024-05-01 10:30:00", FormatModTime(ts))
	assert.Equal(t, "                   ", FormatModTime(time.Time{}))
	assert.Len(t, FormatModTime(time.Time{}), len(ListTimeLayout))
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "▪▪▪▪▪□□□□□", ProgressBar(0.5, 10))
	assert.Equal(t, "□□□□□□□□□□", ProgressBar(0, 10))
	assert.Equal(t, "▪▪▪▪▪▪▪▪▪▪", ProgressBar(1.0, 10))
	assert.Equal(t, "", ProgressBar(0.5, 0))
	assert.Equal(t, "▪▪▪▪▪▪▪▪▪▪", ProgressBar(1.5, 10))
	assert.Equal(t, "□□□□", ProgressBar(-1, 4))
}

func TestWorkerIndicator(t *testing.T) {
	assert.Equal(t, "▪▪▪□□□", WorkerIndicator(3, 6))
	assert.Equal(t, "□□□□", WorkerIndicator(0, 4))
	assert.Equal(t, "▪▪▪▪", WorkerIndicator(4, 4))
	assert.Equal(t, "▪▪", WorkerIndicator(5, 2), "busy is capped at total")
}

func TestFormatAttributes(t *testing.T) {
	tests := []struct {
		name  string
		entry sevenzip.Entry
		want  string
	}{
		{"none", sevenzip.Entry{}, ".........."},
		{"dir", sevenzip.Entry{IsDir: true}, "D........."},
		{"anti", sevenzip.Entry{IsAnti: true}, "anti......"},
		{
			"windows",
			sevenzip.Entry{HasAttributes: true, Attributes: sevenzip.AttrReadOnly | sevenzip.AttrHidden | sevenzip.AttrArchive},
			".RH.A.....",
		},
		{"system", sevenzip.Entry{HasAttributes: true, Attributes: sevenzip.AttrSystem}, "...S......"},
		{
			"unix file",
			sevenzip.Entry{HasAttributes: true, Attributes: 0o100640<<16 | sevenzip.AttrUnixExtension | sevenzip.AttrArchive},
			"-rw-r-----",
		},
		{
			"unix dir",
			sevenzip.Entry{IsDir: true, HasAttributes: true, Attributes: 0o040755<<16 | sevenzip.AttrUnixExtension | sevenzip.AttrDirectory},
			"drwxr-xr-x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAttributes(tt.entry))
		})
	}
}
