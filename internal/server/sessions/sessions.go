// Package sessions implements disk-backed upload sessions.
//
// A session accumulates the chunks of a large upload in a spool file until
// the client commits it to its final path. The spool file size is the source
// of truth for the session offset, so sessions survive a service restart.
package sessions

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const spoolExt = ".part"

var (
	// ErrNotFound is returned when the referenced session does not exist.
	ErrNotFound = errors.New("upload session not found")

	// ErrOffsetMismatch is returned when an append offset does not match the
	// amount of data already received.
	ErrOffsetMismatch = errors.New("session offset mismatch")

	// ErrInvalidID is returned when the session ID is not a valid UUID.
	ErrInvalidID = errors.New("invalid session ID")
)

// Store manages upload sessions spooled under a single directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates a session store spooling under dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %v", err)
	}
	return &Store{dir: dir}, nil
}

// Start creates a new session seeded with the first chunk and returns its ID
// and the resulting offset.
func (s *Store) Start(chunk []byte) (id string, offset int64, err error) {
	id = uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.spoolPath(id), chunk, 0600); err != nil {
		return "", 0, fmt.Errorf("failed to write session spool: %v", err)
	}

	slog.Debug("Upload session started", "session", id, "offset", len(chunk))
	return id, int64(len(chunk)), nil
}

// Append adds a chunk to an existing session. The offset must equal the
// number of bytes already received, otherwise ErrOffsetMismatch is returned
// along with the expected offset.
func (s *Store) Append(id string, offset int64, chunk []byte) (int64, error) {
	path, err := s.safeSpoolPath(id)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat session spool: %v", err)
	}
	if info.Size() != offset {
		return info.Size(), fmt.Errorf("%w: got %d, expected %d", ErrOffsetMismatch, offset, info.Size())
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return 0, fmt.Errorf("failed to open session spool: %v", err)
	}
	defer f.Close()
	if _, err := f.Write(chunk); err != nil {
		return 0, fmt.Errorf("failed to append to session spool: %v", err)
	}

	return offset + int64(len(chunk)), nil
}

// Commit finalizes a session and returns the path of the spool file holding
// the assembled upload. The caller owns the file from then on and is
// expected to move it into place.
func (s *Store) Commit(id string) (string, error) {
	path, err := s.safeSpoolPath(id)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	} else if err != nil {
		return "", fmt.Errorf("failed to stat session spool: %v", err)
	}

	slog.Debug("Upload session committed", "session", id)
	return path, nil
}

// Abort discards a session and its spooled data.
func (s *Store) Abort(id string) error {
	path, err := s.safeSpoolPath(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("failed to remove session spool: %v", err)
	}
	return nil
}

// CleanStale removes sessions whose spool files have not been touched for
// longer than maxAge, returning how many were removed.
func (s *Store) CleanStale(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read spool directory: %v", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs error
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != spoolExt {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		slog.Info("Removed stale upload session", "file", entry.Name())
		removed++
	}
	return removed, errs
}

func (s *Store) spoolPath(id string) string {
	return filepath.Join(s.dir, id+spoolExt)
}

// safeSpoolPath validates the ID before touching the filesystem so a crafted
// session ID cannot escape the spool directory.
func (s *Store) safeSpoolPath(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return s.spoolPath(id), nil
}
