package history_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dropdock/dropdock/internal/history"
)

func TestAddAndList(t *testing.T) {
	t.Parallel()

	s := openStore(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := range 3 {
		err := s.Add(t.Context(), history.Entry{
			FileName:   fmt.Sprintf("file-%d.txt", i),
			FileSize:   int64(i) * 100,
			TargetPath: "/uploads",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			Status:     history.StatusSuccess,
		})
		require.NoError(t, err, "Add should not have failed")
	}

	entries, err := s.List(t.Context())
	require.NoError(t, err, "List should not have failed")
	require.Len(t, entries, 3, "All added entries should be listed")
	assert.Equal(t, "file-2.txt", entries[0].FileName, "Entries should be listed newest first")
	assert.Equal(t, "file-0.txt", entries[2].FileName, "Entries should be listed newest first")
	assert.NotEmpty(t, entries[0].ID, "A missing ID should have been filled in")
}

func TestAddFillsTimestamp(t *testing.T) {
	t.Parallel()

	s := openStore(t)

	err := s.Add(t.Context(), history.Entry{
		FileName:   "a.txt",
		TargetPath: "/",
		Status:     history.StatusFailed,
	})
	require.NoError(t, err, "Add should not have failed")

	entries, err := s.List(t.Context())
	require.NoError(t, err, "List should not have failed")
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Timestamp.IsZero(), "A missing timestamp should have been filled in")
}

func TestPruneKeepsNewest(t *testing.T) {
	t.Parallel()

	s := openStore(t)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range 105 {
		err := s.Add(t.Context(), history.Entry{
			FileName:   fmt.Sprintf("file-%03d.txt", i),
			TargetPath: "/",
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			Status:     history.StatusSuccess,
		})
		require.NoError(t, err, "Add should not have failed")
	}

	entries, err := s.List(t.Context())
	require.NoError(t, err, "List should not have failed")
	require.Len(t, entries, 100, "History should be pruned to the entry cap")
	assert.Equal(t, "file-104.txt", entries[0].FileName, "Newest entry should survive pruning")
	assert.Equal(t, "file-005.txt", entries[99].FileName, "Oldest surviving entry should be the 5th")
}

func TestClear(t *testing.T) {
	t.Parallel()

	s := openStore(t)

	require.NoError(t, s.Add(t.Context(), history.Entry{FileName: "a.txt", TargetPath: "/", Status: history.StatusSuccess}))
	require.NoError(t, s.Clear(t.Context()), "Clear should not have failed")

	entries, err := s.List(t.Context())
	require.NoError(t, err, "List should not have failed")
	assert.Empty(t, entries, "History should be empty after clearing")
}

func TestExport(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	require.NoError(t, s.Add(t.Context(), history.Entry{
		FileName:   "report.pdf",
		FileSize:   2048,
		TargetPath: "/docs",
		Status:     history.StatusSuccess,
	}))

	var jsonOut bytes.Buffer
	require.NoError(t, s.Export(t.Context(), &jsonOut, "json"), "JSON export should not have failed")
	var jsonEntries []history.Entry
	require.NoError(t, json.Unmarshal(jsonOut.Bytes(), &jsonEntries), "JSON export should be valid JSON")
	require.Len(t, jsonEntries, 1)
	assert.Equal(t, "report.pdf", jsonEntries[0].FileName)

	var yamlOut bytes.Buffer
	require.NoError(t, s.Export(t.Context(), &yamlOut, "yaml"), "YAML export should not have failed")
	var yamlEntries []history.Entry
	require.NoError(t, yaml.Unmarshal(yamlOut.Bytes(), &yamlEntries), "YAML export should be valid YAML")
	require.Len(t, yamlEntries, 1)
	assert.Equal(t, "report.pdf", yamlEntries[0].FileName)

	err := s.Export(t.Context(), &bytes.Buffer{}, "xml")
	require.ErrorIs(t, err, history.ErrUnsupportedFormat, "Unknown format should be rejected")
}

func TestReopenKeepsEntries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.db")

	s, err := history.Open(t.Context(), path)
	require.NoError(t, err, "Setup: failed to open history database")
	require.NoError(t, s.Add(t.Context(), history.Entry{FileName: "a.txt", TargetPath: "/", Status: history.StatusSuccess}))
	require.NoError(t, s.Close(), "Close should not have failed")

	s, err = history.Open(t.Context(), path)
	require.NoError(t, err, "Reopening the history database should not fail")
	defer func() { require.NoError(t, s.Close()) }()

	entries, err := s.List(t.Context())
	require.NoError(t, err, "List should not have failed")
	require.Len(t, entries, 1, "Entries should survive reopening the database")
}

func openStore(t *testing.T) *history.Store {
	t.Helper()

	s, err := history.Open(t.Context(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err, "Setup: failed to open history database")
	t.Cleanup(func() {
		require.NoError(t, s.Close(), "Teardown: failed to close history database")
	})
	return s
}
