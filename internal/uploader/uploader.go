// Package uploader implements the uploader component.
// The uploader component is responsible for validating local files and
// uploading them to the dropdock server, recording each attempt in the
// upload history.
package uploader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/dropdock/dropdock/internal/history"
	"github.com/dropdock/dropdock/internal/pathutils"
	"github.com/dropdock/dropdock/internal/remote"
	"github.com/dropdock/dropdock/internal/settings"
)

var (
	// ErrNoFiles is returned when there are no files to upload.
	ErrNoFiles = errors.New("no files to upload")

	// ErrEmptyTarget is returned when the passed target folder is incorrectly an empty string.
	ErrEmptyTarget = errors.New("target folder cannot be an empty string")
)

type apiClient interface {
	Upload(ctx context.Context, remotePath string, data io.Reader, mode remote.WriteMode) (remote.FileMetadata, error)
	StartSession(ctx context.Context, chunk []byte) (remote.Session, error)
	AppendSession(ctx context.Context, session remote.Session, chunk []byte) (remote.Session, error)
	CommitSession(ctx context.Context, session remote.Session, remotePath string, mode remote.WriteMode) (remote.FileMetadata, error)
	CreateFolder(ctx context.Context, remotePath string) error
}

type historyRecorder interface {
	Add(ctx context.Context, e history.Entry) error
}

// Manager is an abstraction of the uploader component.
type Manager struct {
	client   apiClient
	history  historyRecorder
	settings settings.Settings

	targetFolder string
	dryRun       bool

	sessionThreshold int64
	retryInterval    time.Duration
	retryTimeout     time.Duration
}

type options struct {
	sessionThreshold int64
	retryInterval    time.Duration
	retryTimeout     time.Duration
}

// Options represents an optional function to override Upload Manager default values.
type Options func(*options)

// WithSessionThreshold overrides the file size at which uploads switch to a
// chunked upload session.
func WithSessionThreshold(size int64) Options {
	return func(o *options) {
		o.sessionThreshold = size
	}
}

// WithRetryInterval overrides the initial wait between upload retries.
func WithRetryInterval(d time.Duration) Options {
	return func(o *options) {
		o.retryInterval = d
	}
}

// WithRetryTimeout overrides the total time budget for upload retries.
func WithRetryTimeout(d time.Duration) Options {
	return func(o *options) {
		o.retryTimeout = d
	}
}

// New returns a new uploader Manager.
//
// Files are uploaded into targetFolder on the server. If dryRun is true, the
// manager goes through the motions without contacting the server or recording
// history.
func New(client apiClient, hist historyRecorder, s settings.Settings, targetFolder string, dryRun bool, args ...Options) (Manager, error) {
	slog.Debug("Creating new uploader manager", "target", targetFolder, "dryRun", dryRun)

	if targetFolder == "" {
		return Manager{}, ErrEmptyTarget
	}

	opts := options{
		// Files at or beyond this size go through a chunked upload session.
		sessionThreshold: 150 * 1024 * 1024,
		retryInterval:    30 * time.Second,
		retryTimeout:     30 * time.Minute,
	}
	for _, opt := range args {
		opt(&opts)
	}

	if s.ChunkSize <= 0 {
		s.ChunkSize = settings.Default().ChunkSize
	}

	return Manager{
		client:   client,
		history:  hist,
		settings: s,

		targetFolder: pathutils.Normalize(targetFolder),
		dryRun:       dryRun,

		sessionThreshold: opts.sessionThreshold,
		retryInterval:    opts.retryInterval,
		retryTimeout:     opts.retryTimeout,
	}, nil
}
