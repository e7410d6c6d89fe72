package platform

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreallocateThenWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	f, err := os.Create(path)
	require.NoError(t, err)

	data := bytes.Repeat([]byte("7z"), 4096)
	Preallocate(f, int64(len(data)))
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPreallocateZeroIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	f, err := os.Create(path)
	require.NoError(t, err)
	Preallocate(f, 0)
	require.NoError(t, f.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestPreallocateKeepsSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reserved")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	Preallocate(f, 1<<16)
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Zero(t, info.Size(), "space is reserved, not written")
}
