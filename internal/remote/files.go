package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/dropdock/dropdock/internal/fileutils"
)

// Upload uploads data to remotePath in a single request.
// The server rejects single requests beyond its configured size limit;
// larger files must go through an upload session.
func (c *Client) Upload(ctx context.Context, remotePath string, data io.Reader, mode WriteMode) (FileMetadata, error) {
	query := url.Values{"mode": {string(mode)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("files", remotePath, query), data)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	c.authorize(req)

	resp, err := c.transfer.Do(req)
	if err != nil {
		return FileMetadata{}, errors.Join(ErrRequestFailed, fmt.Errorf("failed to send HTTP request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return FileMetadata{}, statusErr(resp.StatusCode)
	}

	var meta FileMetadata
	if err := fileutils.ParseJSON(resp.Body, &meta); err != nil {
		return FileMetadata{}, fmt.Errorf("failed to parse upload response: %v", err)
	}
	return meta, nil
}

// List returns the entries of the folder at remotePath.
func (c *Client) List(ctx context.Context, remotePath string) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("entries", remotePath, nil), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Join(ErrRequestFailed, fmt.Errorf("failed to send HTTP request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusErr(resp.StatusCode)
	}

	var entries []Entry
	if err := fileutils.ParseJSON(resp.Body, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse folder listing: %v", err)
	}
	return entries, nil
}

// CreateFolder creates the folder at remotePath, including missing parents.
// Creating an existing folder is not an error.
func (c *Client) CreateFolder(ctx context.Context, remotePath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("folders", remotePath, nil), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Join(ErrRequestFailed, fmt.Errorf("failed to send HTTP request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return statusErr(resp.StatusCode)
	}
	return nil
}

// Download streams the file at remotePath into w, returning the number of
// bytes written.
func (c *Client) Download(ctx context.Context, remotePath string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("files", remotePath, nil), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %v", err)
	}
	c.authorize(req)

	resp, err := c.transfer.Do(req)
	if err != nil {
		return 0, errors.Join(ErrRequestFailed, fmt.Errorf("failed to send HTTP request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, statusErr(resp.StatusCode)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read file content: %v", err)
	}
	return n, nil
}

// Usage returns the storage usage of the client namespace.
func (c *Client) Usage(ctx context.Context) (Usage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("usage", "", nil), nil)
	if err != nil {
		return Usage{}, fmt.Errorf("failed to create request: %v", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return Usage{}, errors.Join(ErrRequestFailed, fmt.Errorf("failed to send HTTP request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Usage{}, statusErr(resp.StatusCode)
	}

	var usage Usage
	if err := fileutils.ParseJSON(resp.Body, &usage); err != nil {
		return Usage{}, fmt.Errorf("failed to parse usage response: %v", err)
	}
	return usage, nil
}

// ServerVersion returns the version reported by the server.
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	u := *c.baseURL
	u.Path = "/version"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Join(ErrRequestFailed, fmt.Errorf("failed to send HTTP request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusErr(resp.StatusCode)
	}

	var body struct {
		Version string `json:"version"`
	}
	if err := fileutils.ParseJSON(resp.Body, &body); err != nil {
		return "", fmt.Errorf("failed to parse version response: %v", err)
	}
	return body.Version, nil
}
