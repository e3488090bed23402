package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dropdock/dropdock/internal/history"
	"github.com/dropdock/dropdock/internal/pathutils"
	"github.com/dropdock/dropdock/internal/remote"
)

// Upload uploads the given local files to the target folder on the server.
//
// Each file is validated against the settings before any bytes are sent.
// Files are uploaded concurrently and failures do not stop the remaining
// uploads; the returned error joins every per-file failure.
func (um Manager) Upload(ctx context.Context, files []string) error {
	slog.Debug("Uploading files", "count", len(files))

	if len(files) == 0 {
		return ErrNoFiles
	}

	if !um.dryRun && um.settings.CreateFolders {
		if err := um.client.CreateFolder(ctx, um.targetFolder); err != nil {
			return fmt.Errorf("failed to create target folder %s: %v", um.targetFolder, err)
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var uploadErr error
	for _, file := range files {
		wg.Add(1)
		go func(file string) {
			defer wg.Done()
			err := um.uploadFile(ctx, file)
			if err != nil {
				mu.Lock()
				defer mu.Unlock()
				uploadErr = errors.Join(uploadErr, fmt.Errorf("failed to upload %s: %w", file, err))
			}
		}(file)
	}
	wg.Wait()

	return uploadErr
}

// BackoffUpload behaves like Upload, but retries on transient request
// failures with an exponential backoff. It returns once the files have been
// uploaded, a non-retryable error occurs, or the retry window is exhausted.
func (um Manager) BackoffUpload(ctx context.Context, files []string) (err error) {
	slog.Debug("Uploading files with backoff", "count", len(files))

	backoff := um.retryInterval
	deadline := time.Now().Add(um.retryTimeout)
	for {
		err = um.Upload(ctx, files)
		if err == nil || !errors.Is(err, remote.ErrRequestFailed) {
			return err
		}
		if time.Now().Add(backoff).After(deadline) {
			return fmt.Errorf("retry window exhausted: %w", err)
		}

		slog.Warn("Upload failed, retrying", "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// uploadFile validates and uploads a single file, recording the outcome in
// the upload history.
func (um Manager) uploadFile(ctx context.Context, file string) error {
	info, err := os.Stat(file)
	if err != nil {
		return fmt.Errorf("failed to stat file: %v", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", file)
	}

	name := filepath.Base(file)
	target := pathutils.Join(um.targetFolder, name)

	if err := um.settings.ValidateFile(name, info.Size()); err != nil {
		um.record(ctx, name, info.Size(), target, err)
		return err
	}

	if um.dryRun {
		slog.Info("Dry run, skipping upload", "file", file, "target", target)
		return nil
	}

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open file: %v", err)
	}
	defer f.Close()

	if info.Size() >= um.sessionThreshold {
		err = um.uploadChunked(ctx, f, info.Size(), target)
	} else {
		_, err = um.client.Upload(ctx, target, f, um.writeMode())
	}
	um.record(ctx, name, info.Size(), target, err)
	return err
}

// uploadChunked streams a large file through an upload session, one chunk at
// a time, and commits it to its final path.
func (um Manager) uploadChunked(ctx context.Context, f io.Reader, size int64, target string) error {
	slog.Debug("Uploading file in chunks", "target", target, "size", size, "chunkSize", um.settings.ChunkSize)

	buf := make([]byte, um.settings.ChunkSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read first chunk: %v", err)
	}

	session, err := um.client.StartSession(ctx, buf[:n])
	if err != nil {
		return fmt.Errorf("failed to start upload session: %w", err)
	}

	for {
		n, err := io.ReadFull(f, buf)
		if n == 0 {
			break
		}
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("failed to read chunk: %v", err)
		}

		session, err = um.client.AppendSession(ctx, session, buf[:n])
		if err != nil {
			return fmt.Errorf("failed to append to upload session: %w", err)
		}
	}

	if _, err := um.client.CommitSession(ctx, session, target, um.writeMode()); err != nil {
		return fmt.Errorf("failed to commit upload session: %w", err)
	}
	return nil
}

func (um Manager) writeMode() remote.WriteMode {
	if um.settings.OverwriteExisting {
		return remote.ModeOverwrite
	}
	return remote.ModeAdd
}

// record appends an entry to the upload history. History failures are logged
// but never fail the upload itself.
func (um Manager) record(ctx context.Context, name string, size int64, target string, uploadErr error) {
	if um.history == nil {
		return
	}

	e := history.Entry{
		FileName:   name,
		FileSize:   size,
		TargetPath: target,
		Status:     history.StatusSuccess,
	}
	if uploadErr != nil {
		e.Status = history.StatusFailed
		e.ErrorMessage = uploadErr.Error()
	}

	if err := um.history.Add(ctx, e); err != nil {
		slog.Warn("Failed to record upload history", "file", name, "error", err)
	}
}
