package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDemuxRejectsMissingFile(t *testing.T) {
	err := runDemux(filepath.Join(t.TempDir(), "does-not-exist.mp4"))
	require.Error(t, err)
}

func TestRunDemuxReportsFormatError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.mp4")
	// Long enough to pass the minimal-first-chunk guard but not an ftyp box.
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o644))

	err := runDemux(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FORMAT_ERROR")
}
