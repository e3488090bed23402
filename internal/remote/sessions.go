package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dropdock/dropdock/internal/fileutils"
)

// ErrOffsetMismatch is returned when a session append does not match the
// offset recorded by the server.
var ErrOffsetMismatch = errors.New("session offset does not match server state")

// Session tracks the progress of a chunked upload.
type Session struct {
	ID     string `json:"session_id"`
	Offset int64  `json:"offset"`
}

// StartSession starts a chunked upload session with the first chunk.
func (c *Client) StartSession(ctx context.Context, chunk []byte) (Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("sessions", "", nil), bytes.NewReader(chunk))
	if err != nil {
		return Session{}, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	c.authorize(req)

	resp, err := c.transfer.Do(req)
	if err != nil {
		return Session{}, errors.Join(ErrRequestFailed, fmt.Errorf("failed to send HTTP request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return Session{}, statusErr(resp.StatusCode)
	}

	var session Session
	if err := fileutils.ParseJSON(resp.Body, &session); err != nil {
		return Session{}, fmt.Errorf("failed to parse session response: %v", err)
	}
	return session, nil
}

// AppendSession appends a chunk at the given offset, which must match the
// offset recorded by the server for the session.
func (c *Client) AppendSession(ctx context.Context, session Session, chunk []byte) (Session, error) {
	query := url.Values{"offset": {strconv.FormatInt(session.Offset, 10)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.endpoint("sessions", session.ID, query), bytes.NewReader(chunk))
	if err != nil {
		return Session{}, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	c.authorize(req)

	resp, err := c.transfer.Do(req)
	if err != nil {
		return Session{}, errors.Join(ErrRequestFailed, fmt.Errorf("failed to send HTTP request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return Session{}, ErrOffsetMismatch
	}
	if resp.StatusCode != http.StatusOK {
		return Session{}, statusErr(resp.StatusCode)
	}

	var updated Session
	if err := fileutils.ParseJSON(resp.Body, &updated); err != nil {
		return Session{}, fmt.Errorf("failed to parse session response: %v", err)
	}
	return updated, nil
}

// CommitSession finalizes a session into a file at remotePath.
func (c *Client) CommitSession(ctx context.Context, session Session, remotePath string, mode WriteMode) (FileMetadata, error) {
	query := url.Values{
		"path": {remotePath},
		"mode": {string(mode)},
	}
	endpoint := c.endpoint("sessions", session.ID+"/commit", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("failed to create request: %v", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return FileMetadata{}, errors.Join(ErrRequestFailed, fmt.Errorf("failed to send HTTP request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return FileMetadata{}, statusErr(resp.StatusCode)
	}

	var meta FileMetadata
	if err := fileutils.ParseJSON(resp.Body, &meta); err != nil {
		return FileMetadata{}, fmt.Errorf("failed to parse commit response: %v", err)
	}
	return meta, nil
}
