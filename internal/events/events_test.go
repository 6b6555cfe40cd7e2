package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestLogRecordsRunLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	l, err := Open(path, "run-1", 0)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.RunStarted(2, 3))
	require.NoError(t, l.SceneRetried(0))
	require.NoError(t, l.SceneCompleted(0, 3))
	require.NoError(t, l.SceneCompleted(1, 3))
	require.NoError(t, l.RunFinished(false, ""))

	entries := readEntries(t, path)
	require.Len(t, entries, 5)
	assert.Equal(t, TypeRunStarted, entries[0].Type)
	assert.Equal(t, -1, entries[0].SceneIndex)
	assert.Equal(t, "run-1", entries[0].RunID)
	assert.Equal(t, TypeSceneRetried, entries[1].Type)
	assert.Equal(t, 0, entries[1].SceneIndex)
	assert.Equal(t, float64(3), entries[2].Details["images"])
	assert.Equal(t, TypeRunDone, entries[4].Type)
}

func TestLogAbortCarriesReason(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	l, err := Open(path, "run-2", 0)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.RunFinished(true, "retry budget exhausted"))

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, TypeRunAborted, entries[0].Type)
	assert.Equal(t, "retry budget exhausted", entries[0].Details["reason"])
}

func TestLogAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	l1, err := Open(path, "run-1", 0)
	require.NoError(t, err)
	require.NoError(t, l1.RunStarted(1, 1))
	require.NoError(t, l1.Close())

	l2, err := Open(path, "run-2", 0)
	require.NoError(t, err)
	require.NoError(t, l2.RunStarted(1, 1))
	require.NoError(t, l2.Close())

	entries := readEntries(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, "run-1", entries[0].RunID)
	assert.Equal(t, "run-2", entries[1].RunID)
}

func TestLogRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	// Cap small enough that the second entry forces a rotation.
	l, err := Open(path, "run-1", 150)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.SceneCompleted(0, 1))
	require.NoError(t, l.SceneCompleted(1, 1))

	archives, err := os.ReadDir(filepath.Join(dir, "archive"))
	require.NoError(t, err)
	assert.Len(t, archives, 1)

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].SceneIndex)
}