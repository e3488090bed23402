// Package remote implements the HTTP client for the dropdock server API.
package remote

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/dropdock/dropdock/internal/constants"
)

var (
	// ErrRequestFailed is returned when a request fails, either due to a network
	// error or an unexpected status code.
	ErrRequestFailed = errors.New("request to server failed")

	// ErrNotFound is returned when the requested path does not exist on the server.
	ErrNotFound = errors.New("path not found on server")

	// ErrConflict is returned when a write conflicts with an existing file.
	ErrConflict = errors.New("path already exists on server")

	// ErrQuotaExceeded is returned when an upload would exceed the namespace quota.
	ErrQuotaExceeded = errors.New("namespace quota exceeded")

	// ErrEmptyNamespace is returned when the passed namespace is incorrectly an empty string.
	ErrEmptyNamespace = errors.New("namespace cannot be an empty string")
)

// WriteMode controls how an upload behaves when the target already exists.
type WriteMode string

// Write modes supported by the server.
const (
	ModeAdd       WriteMode = "add"
	ModeOverwrite WriteMode = "overwrite"
)

// Entry is a folder listing entry.
type Entry struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	IsFolder bool      `json:"is_folder"`
	Size     int64     `json:"size,omitempty"`
	Modified time.Time `json:"modified,omitzero"`
}

// FileMetadata describes a stored file.
type FileMetadata struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	SHA256   string    `json:"sha256"`
	MIME     string    `json:"mime"`
	Modified time.Time `json:"modified"`
}

// Usage describes storage consumption for a namespace.
type Usage struct {
	Used  int64 `json:"used"`
	Quota int64 `json:"quota"`
}

// Percentage returns the used fraction of the quota in percent.
func (u Usage) Percentage() float64 {
	if u.Quota <= 0 {
		return 0
	}
	return float64(u.Used) / float64(u.Quota) * 100
}

// Client talks to a dropdock server for a single namespace.
type Client struct {
	baseURL   *url.URL
	namespace string
	token     string

	// client is used for metadata requests, transfer for uploads and downloads.
	client   *http.Client
	transfer *http.Client
}

type options struct {
	baseServerURL  string
	requestTimeout time.Duration
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// WithBaseURL overrides the server base URL.
func WithBaseURL(u string) Options {
	return func(o *options) {
		o.baseServerURL = u
	}
}

// New returns a new Client for the given namespace.
// token is sent as a bearer token on every request.
func New(namespace, token string, args ...Options) (*Client, error) {
	if namespace == "" {
		return nil, ErrEmptyNamespace
	}

	opts := options{
		baseServerURL:  constants.DefaultServerURL,
		requestTimeout: 10 * time.Second,
	}
	for _, opt := range args {
		opt(&opts)
	}

	u, err := url.Parse(opts.baseServerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base server URL %s: %v", opts.baseServerURL, err)
	}

	return &Client{
		baseURL:   u,
		namespace: namespace,
		token:     token,

		client:   &http.Client{Timeout: opts.requestTimeout},
		transfer: &http.Client{},
	}, nil
}

// endpoint builds the URL for an API resource under the client namespace.
// remotePath must be "" or a normalized remote path.
func (c *Client) endpoint(resource, remotePath string, query url.Values) string {
	u := *c.baseURL
	u.Path = path.Join(u.Path, "v1", c.namespace, resource, remotePath)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// statusErr maps an unexpected response status to a client error.
func statusErr(status int) error {
	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusInsufficientStorage:
		return ErrQuotaExceeded
	default:
		return errors.Join(ErrRequestFailed, fmt.Errorf("unexpected status code: %d", status))
	}
}
