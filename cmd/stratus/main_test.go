package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestLogWriterDefaultsToStderr(t *testing.T) {
	require.Equal(t, os.Stderr, logWriter(""))
}

func TestLogWriterRotatesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stratus.log")
	w := logWriter(path)
	lj, ok := w.(*lumberjack.Logger)
	require.True(t, ok)
	require.Equal(t, path, lj.Filename)
}
