// Package settings is the implementation of the client upload settings component.
// Settings are stored in a TOML file under the user configuration directory and
// drive per-file validation before an upload is attempted.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ubuntu/decorate"

	"github.com/dropdock/dropdock/internal/constants"
)

var (
	// ErrFileTooLarge is returned when a file exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file exceeds the maximum size limit")

	// ErrExtensionNotAllowed is returned when a file extension is not in the allow list.
	ErrExtensionNotAllowed = errors.New("file type is not allowed")
)

// Settings holds the upload settings.
type Settings struct {
	MaxFileSizeMB     int64  `toml:"max_file_size_mb"`
	AllowedExtensions string `toml:"allowed_extensions"`
	ChunkSize         int64  `toml:"chunk_size"`
	CreateFolders     bool   `toml:"create_folders_if_not_exist"`
	OverwriteExisting bool   `toml:"overwrite_existing"`
}

// Manager reads and writes the settings file.
type Manager struct {
	path string
}

// Default returns the settings used when no file exists.
func Default() Settings {
	return Settings{
		MaxFileSizeMB:     500,
		AllowedExtensions: "*",
		ChunkSize:         4 * 1024 * 1024,
		CreateFolders:     true,
		OverwriteExisting: true,
	}
}

// New returns a new settings Manager.
// path is the folder the settings file is stored in.
func New(path string) *Manager {
	return &Manager{path: path}
}

// Load reads the settings file, returning defaults if it does not exist.
func (m Manager) Load() (Settings, error) {
	s := Default()

	data, err := os.ReadFile(m.file())
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings file: %v", err)
	}

	if err := toml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings file: %v", err)
	}

	return s, nil
}

// Save writes the settings to the settings file, creating the folder if needed.
func (m Manager) Save(s Settings) (err error) {
	defer decorate.OnError(&err, "could not save settings:")

	if err := os.MkdirAll(m.path, 0750); err != nil {
		return err
	}

	f, err := os.Create(m.file())
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(s)
}

func (m Manager) file() string {
	return filepath.Join(m.path, constants.SettingsFileName)
}

// MaxFileSize returns the size limit in bytes.
func (s Settings) MaxFileSize() int64 {
	return s.MaxFileSizeMB * 1024 * 1024
}

// ValidateFile checks name and size against the extension allow list and the
// size limit.
func (s Settings) ValidateFile(name string, size int64) error {
	if !s.extensionAllowed(name) {
		return fmt.Errorf("%w: %s", ErrExtensionNotAllowed, filepath.Ext(name))
	}
	if size > s.MaxFileSize() {
		return fmt.Errorf("%w of %d MB: %s", ErrFileTooLarge, s.MaxFileSizeMB, name)
	}
	return nil
}

func (s Settings) extensionAllowed(name string) bool {
	if strings.TrimSpace(s.AllowedExtensions) == "*" {
		return true
	}

	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range strings.Split(s.AllowedExtensions, ",") {
		if strings.ToLower(strings.TrimSpace(allowed)) == ext {
			return true
		}
	}
	return false
}
