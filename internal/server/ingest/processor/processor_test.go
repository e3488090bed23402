package processor_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dropdock/dropdock/internal/server/ingest/models"
	"github.com/dropdock/dropdock/internal/server/ingest/processor"
)

type mockDB struct {
	mu sync.Mutex

	failCatalog bool
	failInvalid bool

	records []models.JournalModel
	invalid []string
}

func (db *mockDB) Catalog(_ context.Context, record *models.JournalModel) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.failCatalog {
		return fmt.Errorf("simulated catalog failure")
	}
	db.records = append(db.records, *record)
	return nil
}

func (db *mockDB) CatalogInvalid(_ context.Context, id, namespace, rawRecord string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.failInvalid {
		return fmt.Errorf("simulated invalid catalog failure")
	}
	db.invalid = append(db.invalid, rawRecord)
	return nil
}

func validRecord(namespace string) map[string]any {
	sum := sha256.Sum256([]byte("content"))
	return map[string]any{
		"id":          uuid.NewString(),
		"namespace":   namespace,
		"path":        "/docs/report.txt",
		"size":        7,
		"sha256":      hex.EncodeToString(sum[:]),
		"mime":        "text/plain; charset=utf-8",
		"mode":        "overwrite",
		"uploaded_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func writeJournal(t *testing.T, dir string, record any) string {
	t.Helper()
	data, err := json.Marshal(record)
	require.NoError(t, err, "Setup: failed to marshal record")
	return writeJournalRaw(t, dir, data)
}

func writeJournalRaw(t *testing.T, dir string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0700), "Setup: failed to create journal dir")
	path := filepath.Join(dir, uuid.NewString()+".json")
	require.NoError(t, os.WriteFile(path, data, 0600), "Setup: failed to write journal file")
	return path
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := processor.New("", &mockDB{})
	require.Error(t, err, "New should reject an empty journal directory")

	proc, err := processor.New(filepath.Join(t.TempDir(), "journal"), &mockDB{})
	require.NoError(t, err, "New should not return an error")
	require.NotNil(t, proc, "New should return a processor")
}

func TestProcess(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		mutate      func(map[string]any)
		raw         []byte
		failCatalog bool
		failInvalid bool

		wantErr       error
		wantCataloged int
		wantInvalid   int
		wantRemoved   bool
	}{
		"Valid record is cataloged": {
			wantCataloged: 1, wantRemoved: true,
		},
		"Record with extra fields is still cataloged": {
			mutate:        func(r map[string]any) { r["surprise"] = true },
			wantCataloged: 1, wantRemoved: true,
		},
		"Invalid JSON goes to the invalid catalog": {
			raw:         []byte(`{"id": "not closed`),
			wantInvalid: 1, wantRemoved: true,
		},
		"Bad checksum goes to the invalid catalog": {
			mutate:      func(r map[string]any) { r["sha256"] = "junk" },
			wantInvalid: 1, wantRemoved: true,
		},
		"Foreign namespace goes to the invalid catalog": {
			mutate:      func(r map[string]any) { r["namespace"] = "other" },
			wantInvalid: 1, wantRemoved: true,
		},
		"Unknown write mode goes to the invalid catalog": {
			mutate:      func(r map[string]any) { r["mode"] = "append" },
			wantInvalid: 1, wantRemoved: true,
		},
		"Empty file is discarded without cataloging": {
			raw:         []byte("  \n"),
			wantRemoved: true,
		},
		"Empty JSON object is discarded without cataloging": {
			raw:         []byte("{}"),
			wantRemoved: true,
		},
		"Catalog failure keeps the file and reports database errors": {
			failCatalog: true,
			wantErr:     processor.ErrDatabaseErrors,
		},
		"Invalid catalog failure reports database errors": {
			raw:         []byte(`{"id": "not closed`),
			failInvalid: true,
			wantErr:     processor.ErrDatabaseErrors,
			wantRemoved: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			journalDir := filepath.Join(t.TempDir(), "journal")
			nsDir := filepath.Join(journalDir, "alpha")

			var file string
			if tc.raw != nil {
				file = writeJournalRaw(t, nsDir, tc.raw)
			} else {
				record := validRecord("alpha")
				if tc.mutate != nil {
					tc.mutate(record)
				}
				file = writeJournal(t, nsDir, record)
			}

			db := &mockDB{failCatalog: tc.failCatalog, failInvalid: tc.failInvalid}
			proc, err := processor.New(journalDir, db)
			require.NoError(t, err, "Setup: New should not return an error")

			err = proc.Process(context.Background(), "alpha")
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr, "Process should return the expected error")
			} else {
				require.NoError(t, err, "Process should not return an error")
			}

			require.Len(t, db.records, tc.wantCataloged, "Unexpected number of cataloged records")
			require.Len(t, db.invalid, tc.wantInvalid, "Unexpected number of invalid records")

			_, statErr := os.Stat(file)
			if tc.wantRemoved {
				require.ErrorIs(t, statErr, os.ErrNotExist, "Journal file should be removed after processing")
			} else {
				require.NoError(t, statErr, "Journal file should be kept for a later retry")
			}
		})
	}
}

func TestProcessBelowFailureThreshold(t *testing.T) {
	t.Parallel()

	journalDir := filepath.Join(t.TempDir(), "journal")
	nsDir := filepath.Join(journalDir, "alpha")

	// One failure among ten attempts stays under the threshold.
	for range 9 {
		writeJournal(t, nsDir, validRecord("alpha"))
	}
	db := &mockDB{}
	proc, err := processor.New(journalDir, db)
	require.NoError(t, err, "Setup: New should not return an error")

	require.NoError(t, proc.Process(context.Background(), "alpha"), "Process should not return an error")
	require.Len(t, db.records, 9, "All records should be cataloged")
}

func TestProcessEmptyNamespace(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	proc, err := processor.New(filepath.Join(t.TempDir(), "journal"), db)
	require.NoError(t, err, "Setup: New should not return an error")

	require.NoError(t, proc.Process(context.Background(), "alpha"), "Processing an empty namespace should succeed")
	require.Empty(t, db.records, "Nothing should be cataloged")
}

func TestProcessCanceledContext(t *testing.T) {
	t.Parallel()

	journalDir := filepath.Join(t.TempDir(), "journal")
	writeJournal(t, filepath.Join(journalDir, "alpha"), validRecord("alpha"))

	db := &mockDB{}
	proc, err := processor.New(journalDir, db)
	require.NoError(t, err, "Setup: New should not return an error")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, proc.Process(ctx, "alpha"), context.Canceled, "Process should surface the context error")
	require.Empty(t, db.records, "Nothing should be cataloged after cancellation")
}
