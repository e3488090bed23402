// Package history is the implementation of the upload history component.
// History entries are persisted in a local SQLite database so they survive
// across invocations, newest first, pruned to a fixed number of entries.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// maxEntries is the number of history entries kept after pruning.
const maxEntries = 100

// ErrUnsupportedFormat is returned when an export format is not recognized.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Status is the recorded outcome of an upload attempt.
type Status string

// Upload attempt outcomes.
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Entry is a single recorded upload attempt.
type Entry struct {
	bun.BaseModel `bun:"table:upload_history" json:"-" yaml:"-"`

	ID           string    `bun:"id,pk" json:"id" yaml:"id"`
	FileName     string    `bun:"file_name,notnull" json:"file_name" yaml:"file_name"`
	FileSize     int64     `bun:"file_size,notnull" json:"file_size" yaml:"file_size"`
	TargetPath   string    `bun:"target_path,notnull" json:"target_path" yaml:"target_path"`
	Timestamp    time.Time `bun:"timestamp,notnull" json:"timestamp" yaml:"timestamp"`
	Status       Status    `bun:"status,notnull" json:"status" yaml:"status"`
	ErrorMessage string    `bun:"error_message" json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// Store persists upload history entries.
type Store struct {
	db *bun.DB
}

// Open opens the history database at path, creating it if needed.
func Open(ctx context.Context, path string) (*Store, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %v", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.NewCreateTable().Model((*Entry)(nil)).IfNotExists().Exec(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history table: %v", err)
	}

	return &Store{db: db}, nil
}

// Add records an upload attempt and prunes the history to the entry cap.
// A missing ID or timestamp is filled in.
func (s *Store) Add(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	if _, err := s.db.NewInsert().Model(&e).Exec(ctx); err != nil {
		return fmt.Errorf("failed to record history entry: %v", err)
	}

	return s.prune(ctx)
}

// List returns all history entries, newest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if err := s.db.NewSelect().Model(&entries).OrderExpr("timestamp DESC, id DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list history entries: %v", err)
	}
	return entries, nil
}

// Clear removes all history entries.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.NewDelete().Model((*Entry)(nil)).Where("1=1").Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear history: %v", err)
	}
	return nil
}

// Export writes all history entries to w in the given format ("json" or "yaml").
func (s *Store) Export(ctx context.Context, w io.Writer, format string) error {
	entries, err := s.List(ctx)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		return yaml.NewEncoder(w).Encode(entries)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// prune removes the oldest entries beyond the cap.
func (s *Store) prune(ctx context.Context) error {
	count, err := s.db.NewSelect().Model((*Entry)(nil)).Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count history entries: %v", err)
	}
	if count <= maxEntries {
		return nil
	}

	oldest := s.db.NewSelect().Model((*Entry)(nil)).
		Column("id").
		OrderExpr("timestamp ASC, id ASC").
		Limit(count - maxEntries)
	if _, err := s.db.NewDelete().Model((*Entry)(nil)).Where("id IN (?)", oldest).Exec(ctx); err != nil {
		return fmt.Errorf("failed to prune history entries: %v", err)
	}
	return nil
}
