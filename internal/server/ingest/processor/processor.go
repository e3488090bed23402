// Package processor provides the functionality to process journal records.
// It includes functions to validate, read, and process journal files, as well
// as catalog their contents in a PostgreSQL database.
package processor

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"

	"github.com/dropdock/dropdock/internal/server/ingest/models"
)

// ErrDatabaseErrors is returned when significant database errors occur during processing.
// It indicates more than a set threshold of catalog attempts have failed due to database issues.
var ErrDatabaseErrors = errors.New("database errors during processing surpassed threshold")

var (
	errNoValidData      = errors.New("journal record has no valid data")
	errUnexpectedFields = errors.New("journal record contains unexpected fields")
	errUploadFailed     = errors.New("failed to catalog record in PostgreSQL database")
)

type database interface {
	Catalog(ctx context.Context, record *models.JournalModel) error
	CatalogInvalid(ctx context.Context, id, namespace, rawRecord string) error
}

// Processor is responsible for processing journal records.
type Processor struct {
	journalDir string
	db         database
}

// New creates a new Processor instance.
func New(journalDir string, db database) (*Processor, error) {
	if journalDir == "" {
		return nil, fmt.Errorf("journalDir must be set")
	}

	if err := os.MkdirAll(journalDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create journalDir: %v", err)
	}

	return &Processor{
		journalDir: journalDir,
		db:         db,
	}, nil
}

// Process processes all journal files within the `journalDir/namespace` directory.
// It reads each file, decodes the JSON data into a JournalModel, and catalogs
// the record in a PostgreSQL database.
// After processing, it removes the file from the filesystem.
//
// It returns an error if a catastrophic failure occurs, or if the number of
// failed catalog attempts exceeds a threshold.
func (p Processor) Process(ctx context.Context, namespace string) (err error) {
	const minimumSuccessRate = 0.85

	dir := filepath.Join(p.journalDir, namespace)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %q: %v", dir, err)
	}

	files, err := getJSONFiles(dir)
	if err != nil {
		return fmt.Errorf("failed to get JSON files: %v", err)
	}

	var (
		attemptCount = 0
		failureCount = 0
	)
	defer func() {
		// Check if over threshold of catalog attempts failed
		if attemptCount > 0 && float64(failureCount)/float64(attemptCount) > (1-minimumSuccessRate) {
			err = errors.Join(ErrDatabaseErrors, err)
		}
	}()
	for _, file := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		recordID := getRecordID(file)
		procErr := p.processAndCatalog(ctx, file, namespace)

		if procErr == nil || errors.Is(procErr, errUnexpectedFields) || errors.Is(procErr, errUploadFailed) {
			attemptCount++
		}

		if errors.Is(procErr, errUploadFailed) {
			failureCount++
			continue // If cataloging fails, skip postProcessing
		}

		if procErr != nil {
			uploadAttempted, err := p.catalogInvalid(ctx, file, recordID, namespace)
			if err != nil {
				slog.Warn("Failed to catalog invalid record", "file", file, "err", err)
			}
			if uploadAttempted {
				attemptCount++
				if err != nil {
					failureCount++
				}
			}
		}

		if err := os.Remove(file); err != nil {
			slog.Warn("Failed to remove file after processing", "file", file, "err", err)
		}

		slog.Info("Finished processing file", "file", file)
	}

	return nil
}

// processAndCatalog processes a journal file, validates the record, and
// catalogs it in the database.
//
// If cataloging fails, it returns errUploadFailed.
// If any error other than errUnexpectedFields or errUploadFailed is returned,
// cataloging was not attempted.
func (p Processor) processAndCatalog(ctx context.Context, file, namespace string) error {
	record, err := processFile(file)
	if err != nil {
		slog.Warn("Failed to process file", "file", file, "err", err)
		return err
	}
	validationErr := validateRecord(record, namespace)
	switch {
	case errors.Is(validationErr, errUnexpectedFields):
		slog.Warn("Failed to fully process file", "file", file, "err", validationErr)
		fallthrough
	case validationErr == nil:
		if err := p.db.Catalog(ctx, record); err != nil {
			slog.Warn("Failed to catalog record in PostgreSQL", "file", file, "err", err)
			return errors.Join(errUploadFailed, err)
		}
		slog.Info("Successfully processed and cataloged file", "file", file)
		return validationErr
	default:
		slog.Warn("File processed with errors, skipping catalog", "file", file, "err", validationErr)
		return validationErr
	}
}

func validateRecord(record *models.JournalModel, namespace string) error {
	// Check if everything we expect (other than extras) is empty
	if record.ID == "" && record.Path == "" && record.SHA256 == "" && record.UploadedAt == "" {
		return errNoValidData
	}

	if err := uuid.Validate(record.ID); err != nil {
		return fmt.Errorf("record ID is not a valid UUID: %v", err)
	}
	if record.Namespace != namespace {
		return fmt.Errorf("record namespace %q does not match journal location %q", record.Namespace, namespace)
	}
	if !strings.HasPrefix(record.Path, "/") {
		return fmt.Errorf("record path %q is not absolute", record.Path)
	}
	if record.Size < 0 {
		return fmt.Errorf("record size %d is negative", record.Size)
	}
	if sum, err := hex.DecodeString(record.SHA256); err != nil || len(sum) != 32 {
		return fmt.Errorf("record checksum %q is not a SHA-256 digest", record.SHA256)
	}
	if record.Mode != "add" && record.Mode != "overwrite" {
		return fmt.Errorf("record mode %q is unknown", record.Mode)
	}
	if _, err := time.Parse(time.RFC3339Nano, record.UploadedAt); err != nil {
		return fmt.Errorf("record timestamp %q is invalid: %v", record.UploadedAt, err)
	}

	// Check no extra data
	if record.Extras != nil {
		return errors.Join(errUnexpectedFields, fmt.Errorf("unexpected fields: %v", record.Extras))
	}

	return nil
}

func getJSONFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.Type().IsRegular() && filepath.Ext(path) == ".json" {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// getRecordID extracts the record ID from the file path.
// If the file name does not contain a valid UUID, it logs a warning and generates a new UUID.
func getRecordID(file string) string {
	recordID := filepath.Base(file)
	recordID = strings.TrimSuffix(recordID, filepath.Ext(recordID))

	if err := uuid.Validate(recordID); err != nil {
		recordID = uuid.NewString()
		slog.Warn("Journal file has invalid UUID, generating a new one", "file", file, "UUID", recordID, "err", err)
	}

	return recordID
}

// processFile reads a JSON file and decodes it into a JournalModel.
// It returns an error if the file is invalid or does not match the expected structure.
func processFile(file string) (*models.JournalModel, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var jsonData map[string]any
	if err = json.Unmarshal(data, &jsonData); err != nil {
		return nil, errors.Join(errors.New("json file is invalid and could not be parsed"), err)
	}

	record := new(models.JournalModel)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           record,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %v", err)
	}

	if err = decoder.Decode(jsonData); err != nil {
		return nil, errors.Join(errors.New("file data does not match expected model structure"), err)
	}

	return record, nil
}

// catalogInvalid reads the invalid file and catalogs its content in the database as a string.
// It skips empty files or files that contain only whitespace, returning nil in those cases.
//
// If a catalog attempt was made, even if it failed, it returns true. Otherwise, it returns false.
func (p Processor) catalogInvalid(ctx context.Context, file, id, namespace string) (bool, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return false, fmt.Errorf("failed to re-read invalid file %q: %v", file, err)
	}

	if len(data) == 0 || strings.TrimSpace(string(data)) == "" {
		slog.Info("Skipping catalog of empty invalid file", "file", file)
		return false, nil // Skip empty files
	}

	var jsonFile = make(map[string]any)
	if err := json.Unmarshal(data, &jsonFile); err == nil {
		if len(jsonFile) == 0 {
			slog.Info("Skipping catalog of empty JSON file", "file", file)
			return false, nil // Skip empty JSON files
		}
	}

	if err := p.db.CatalogInvalid(ctx, id, namespace, string(data)); err != nil {
		return true, errors.Join(errUploadFailed, err)
	}
	return true, nil
}
