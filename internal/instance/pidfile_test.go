package instance

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	m := NewMarker(filepath.Join(t.TempDir(), "run", "samantha.pid"))
	require.NoError(t, m.Acquire())

	pid, err := m.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	_, other := m.RunningElsewhere()
	assert.False(t, other, "own pid is not another listener")

	require.NoError(t, m.Release())
	_, err = os.Stat(m.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireOverwritesStaleFile(t *testing.T) {
	m := NewMarker(filepath.Join(t.TempDir(), "samantha.pid"))
	require.NoError(t, os.WriteFile(m.Path, []byte("999999999"), 0o644))

	require.NoError(t, m.Acquire())
	pid, _ := m.Read()
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireRejectsLiveOther(t *testing.T) {
	m := NewMarker(filepath.Join(t.TempDir(), "samantha.pid"))
	parent := os.Getppid()
	require.NoError(t, os.WriteFile(m.Path, []byte(strconv.Itoa(parent)), 0o644))

	err := m.Acquire()
	assert.True(t, errors.Is(err, ErrAlreadyRunning), "got %v", err)
}

func TestReleaseKeepsForeignFile(t *testing.T) {
	m := NewMarker(filepath.Join(t.TempDir(), "samantha.pid"))
	require.NoError(t, os.WriteFile(m.Path, []byte("12345"), 0o644))
	require.NoError(t, m.Release())
	_, err := os.Stat(m.Path)
	assert.NoError(t, err)
}

func TestReadInvalid(t *testing.T) {
	m := NewMarker(filepath.Join(t.TempDir(), "samantha.pid"))
	require.NoError(t, os.WriteFile(m.Path, []byte("nope"), 0o644))
	_, err := m.Read()
	assert.Error(t, err)
	assert.False(t, Alive(0))
}
