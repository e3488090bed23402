// Package config provides a configuration manager that loads and watches a JSON configuration file.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/dropdock/dropdock/internal/fileutils"
)

// Provider is an interface that defines methods to access configuration values.
type Provider interface {
	AllowList() []string
	IsAllowed(namespace string) bool
	Quota(namespace string) int64
}

// Conf represents the configuration structure.
//
// AllowedList names the namespaces that may store files. Quotas maps a
// namespace to its storage quota; namespaces without an entry fall
// back to DefaultQuota. A quota of zero means unlimited.
type Conf struct {
	AllowedList  []string            `json:"allowList"`
	Quotas       map[string]ByteSize `json:"quotas"`
	DefaultQuota ByteSize            `json:"defaultQuota"`
}

// ByteSize is a byte count that unmarshals from a plain JSON number or a
// string with a unit suffix, such as "500MB" or "2GiB".
type ByteSize int64

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*b = ByteSize(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("quota must be a number or a string with a unit suffix: %s", data)
	}

	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	value, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid quota %q: %v", s, err)
	}

	bytes, err := fileutils.ConvertUnitToBytes(strings.TrimSpace(s[i:]), value)
	if err != nil {
		return fmt.Errorf("invalid quota %q: %v", s, err)
	}
	*b = ByteSize(bytes)
	return nil
}

// Manager is a struct that manages the configuration.
type Manager struct {
	config     Conf
	lock       sync.RWMutex
	configPath string

	log *slog.Logger
}

type options struct {
	Logger *slog.Logger
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// New creates a new configuration manager with the specified path.
func New(path string, args ...Options) *Manager {
	opts := options{
		Logger: slog.Default(),
	}

	for _, opt := range args {
		opt(&opts)
	}

	return &Manager{
		configPath: path,
		log:        opts.Logger,
	}
}

// Load reads the configuration from the specified file and updates the internal state.
func (cm *Manager) Load() error {
	file, err := os.Open(cm.configPath)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer file.Close()

	var newConfig Conf
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&newConfig); err != nil {
		return fmt.Errorf("decoding config JSON: %w", err)
	}

	cm.lock.Lock()
	cm.config = newConfig
	cm.lock.Unlock()

	cm.log.Info("Configuration loaded", "config", cm.config)
	return nil
}

// Watch starts watching the configuration file for changes.
//
// It returns two channels: one for configuration changes which result in a successful load and another for unrecoverable watcher errors.
func (cm *Manager) Watch(ctx context.Context) (changes <-chan struct{}, errors <-chan error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	configDir, _ := filepath.Split(cm.configPath)
	if configDir == "" {
		configDir = "."
	}
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", configDir, err)
	}

	cm.log.Info("Watching configuration directory", "dir", configDir)
	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)

	// Initial load of the configuration
	if err := cm.Load(); err != nil {
		cm.log.Warn("Error loading initial config", "err", err)
	}

	go func() {
		defer close(changesCh)
		defer close(errorsCh)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				cm.log.Info("Configuration watcher stopped")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					errorsCh <- fmt.Errorf("watcher events channel closed unexpectedly")
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				if event.Name != cm.configPath {
					continue
				}

				cm.log.Debug("Configuration file changed. Reloading...")
				if err := cm.Load(); err != nil {
					cm.log.Warn("Error reloading config", "err", err)
					continue
				}

				select {
				case changesCh <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					errorsCh <- fmt.Errorf("watcher errors channel closed unexpectedly")
					return
				}
				cm.log.Warn("Watcher error", "err", err)
			}
		}
	}()

	return changesCh, errorsCh, nil
}

// AllowList returns the allowed namespaces from the configuration.
func (cm *Manager) AllowList() []string {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return cm.config.AllowedList
}

// IsAllowed reports whether the given namespace may store files.
func (cm *Manager) IsAllowed(namespace string) bool {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	for _, ns := range cm.config.AllowedList {
		if ns == namespace {
			return true
		}
	}
	return false
}

// Quota returns the storage quota in bytes for the given namespace.
// A return value of zero means the namespace is not limited.
func (cm *Manager) Quota(namespace string) int64 {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	if q, ok := cm.config.Quotas[namespace]; ok {
		return int64(q)
	}
	return int64(cm.config.DefaultQuota)
}
