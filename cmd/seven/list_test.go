package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/seven/internal/sevenzip"
)

func TestList(t *testing.T) {
	code, stdout, _ := runCLI(t, "list", fixture("tree.7z"))
	require.Equal(t, 0, code)

	for _, name := range []string{"hello.txt", "docs/guide.txt", "docs/data.bin", "raw.txt", "empty.txt", "docs", "stale.txt"} {
		assert.Contains(t, stdout, name)
	}
	assert.Contains(t, stdout, "anti......")
	assert.Contains(t, stdout, "2024-05-01 10:00:00")

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "5 files, 1 folders, "), lines[len(lines)-1])
	assert.NotContains(t, stdout, "LZMA2", "methods only in the long form")
}

func TestList_Long(t *testing.T) {
	code, stdout, _ := runCLI(t, "list", "-l", fixture("tree.7z"))
	require.Equal(t, 0, code)

	assert.Contains(t, stdout, "Type = 7z\n")
	assert.Contains(t, stdout, "Version = 0.")
	assert.Contains(t, stdout, "Folders = 2\n")
	assert.Contains(t, stdout, "Encrypted = false\n")
	assert.Contains(t, stdout, "LZMA2")
	assert.Contains(t, stdout, "Copy")
}

func TestWriteListing(t *testing.T) {
	a, err := sevenzip.OpenFile(fixture("tree.7z"))
	require.NoError(t, err)
	defer a.Close()

	var buf bytes.Buffer
	writeListing(&buf, a, true)

	var hello string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.HasSuffix(line, " hello.txt") {
			hello = line
		}
	}
	require.NotEmpty(t, hello)
	assert.Contains(t, hello, "13  ", "size column")
	assert.Contains(t, hello, "LZMA2")
}
