package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	const goroutines = 100
	const opsPerGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range opsPerGoroutine {
				c.AddFilesExtracted(1)
				c.AddFilesFailed(1)
				c.AddFilesSkipped(1)
				c.AddBytesExtracted(256)
				c.AddDirsCreated(1)
				c.AddFolderDecoded(512)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	expected := int64(goroutines * opsPerGoroutine)
	assert.Equal(t, expected, s.FilesExtracted)
	assert.Equal(t, expected, s.FilesFailed)
	assert.Equal(t, expected, s.FilesSkipped)
	assert.Equal(t, expected*256, s.BytesExtracted)
	assert.Equal(t, expected, s.DirsCreated)
	assert.Equal(t, expected, s.FoldersDecoded)
	assert.Equal(t, expected*512, s.BytesDecoded)
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{
		FilesExtracted: 10,
		FilesFailed:    1,
		FilesSkipped:   2,
		BytesExtracted: 4096,
		DirsCreated:    3,
		FoldersDecoded: 4,
	}
	expected := "extracted=10 failed=1 skipped=2 bytes=4096 dirs=3 folders=4"
	assert.Equal(t, expected, s.String())
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{1073741824, "1.0 GiB"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			require.Equal(t, tt.expected, FormatBytes(tt.input))
		})
	}
}

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	assert.False(t, c.startTime.IsZero())
	assert.InDelta(t, 0, c.Elapsed().Seconds(), 1)
}

func TestSetTotals(t *testing.T) {
	c := NewCollector()
	c.SetTotals(100, 1024*1024)
	s := c.Snapshot()
	assert.Equal(t, int64(100), s.FilesTotal)
	assert.Equal(t, int64(1024*1024), s.BytesTotal)
}

func TestVerifyCounters(t *testing.T) {
	c := NewCollector()
	c.AddFilesVerified(3)
	c.AddFilesVerifyFailed(1)
	s := c.Snapshot()
	assert.Equal(t, int64(3), s.FilesVerified)
	assert.Equal(t, int64(1), s.FilesVerifyFailed)
}

func TestTickAndRollingSpeed(t *testing.T) {
	c := NewCollector()

	// Five seconds of 1000 bytes/sec.
	for range 5 {
		c.AddBytesExtracted(1000)
		c.AddFilesExtracted(10)
		c.Tick()
	}

	assert.InDelta(t, 1000.0, c.RollingSpeed(5), 0.01)
	assert.InDelta(t, 10.0, c.RollingFilesPerSec(5), 0.01)
}

func TestRollingDecodeSpeedIsSeparate(t *testing.T) {
	c := NewCollector()

	// One 4000 byte folder decoded up front, then written over four seconds.
	c.AddFolderDecoded(4000)
	for range 4 {
		c.AddBytesExtracted(1000)
		c.Tick()
	}

	assert.InDelta(t, 1000.0, c.RollingDecodeSpeed(4), 0.01)
	assert.InDelta(t, 1000.0, c.RollingSpeed(4), 0.01)
	assert.InDelta(t, 0.0, c.RollingDecodeSpeed(3), 0.01, "nothing decoded after the first second")
}

func TestRollingSpeedPartialWindow(t *testing.T) {
	c := NewCollector()

	c.AddBytesExtracted(500)
	c.Tick()
	c.AddBytesExtracted(500)
	c.Tick()

	// Ask for 10 but only have 2.
	assert.InDelta(t, 500.0, c.RollingSpeed(10), 0.01)
}

func TestRollingSpeedNoSamples(t *testing.T) {
	c := NewCollector()
	assert.Equal(t, 0.0, c.RollingSpeed(5))
}

func TestRingWraparound(t *testing.T) {
	c := NewCollector()

	for range ringSize + 10 {
		c.AddBytesExtracted(100)
		c.Tick()
	}

	assert.InDelta(t, 100.0, c.RollingSpeed(ringSize*2), 0.01)
}

func TestETA(t *testing.T) {
	c := NewCollector()
	c.SetTotals(100, 10000)

	// 5000 bytes at 1000/sec.
	for range 5 {
		c.AddBytesExtracted(1000)
		c.Tick()
	}

	assert.InDelta(t, 5.0, c.ETA().Seconds(), 1.0)
}

func TestETANoSpeed(t *testing.T) {
	c := NewCollector()
	c.SetTotals(100, 10000)
	assert.Equal(t, time.Duration(0), c.ETA())
}

func TestETAComplete(t *testing.T) {
	c := NewCollector()
	c.SetTotals(1, 1000)
	c.AddBytesExtracted(1000)
	c.Tick()
	assert.Equal(t, time.Duration(0), c.ETA())
}

func TestSnapshotIncludesElapsed(t *testing.T) {
	c := NewCollector()
	time.Sleep(10 * time.Millisecond)
	s := c.Snapshot()
	assert.Greater(t, s.Elapsed, time.Duration(0))
}

func TestSparklineData(t *testing.T) {
	c := NewCollector()
	assert.Nil(t, c.SparklineData(5))

	for i := range 3 {
		c.AddBytesExtracted(int64(i+1) * 100)
		c.Tick()
	}

	assert.Equal(t, []float64{100, 200, 300}, c.SparklineData(5))
	assert.Equal(t, []float64{200, 300}, c.SparklineData(2))
}
