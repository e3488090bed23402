package database_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dropdock/dropdock/internal/server/ingest/database"
	"github.com/dropdock/dropdock/internal/server/ingest/models"
	"github.com/dropdock/dropdock/internal/server/testutils"
)

func TestCatalogIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	t.Parallel()

	container := testutils.StartPostgresContainer(t)
	t.Cleanup(func() {
		if err := container.Stop(t.Context()); err != nil {
			t.Logf("Teardown: failed to stop container: %v", err)
		}
	})
	testutils.ApplyMigrations(t, container.DSN, "../../../../migrations")

	port, err := strconv.Atoi(container.Port)
	require.NoError(t, err, "Setup: failed to parse container port")
	db, err := database.New(t.Context(), database.Config{
		Host:     container.Host,
		Port:     port,
		User:     container.User,
		Password: container.Password,
		DBName:   container.Name,
		SSLMode:  "disable",
	})
	require.NoError(t, err, "Setup: failed to connect to database")
	t.Cleanup(func() {
		require.NoError(t, db.Close(), "Teardown: failed to close database")
	})

	record := &models.JournalModel{
		ID:         uuid.NewString(),
		Namespace:  "testns",
		Path:       "/docs/report.pdf",
		Size:       2048,
		SHA256:     "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		MIME:       "application/pdf",
		Mode:       "overwrite",
		UploadedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	err = db.Catalog(t.Context(), record)
	require.NoError(t, err, "Catalog should not have failed")
	require.Equal(t, 1, testutils.DBRowCount(t, container.DSN, "uploads"), "uploads table should contain the cataloged record")

	err = db.CatalogInvalid(t.Context(), uuid.NewString(), "testns", `{"not":"valid"}`)
	require.NoError(t, err, "CatalogInvalid should not have failed")
	require.Equal(t, 1, testutils.DBRowCount(t, container.DSN, "invalid_journal"), "invalid_journal table should contain the invalid record")
}
