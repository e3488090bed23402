// Package constants is responsible for defining the constants used in the application.
// It also provides utility functions to get the default configuration and cache paths.
package constants

import (
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// CmdName is the name of the client command line tool.
	CmdName = "dropdock"

	// WebServiceCmdName is the name of the web service command.
	WebServiceCmdName = "dropdock-server"

	// IngestServiceCmdName is the name of the ingest service command.
	IngestServiceCmdName = "dropdock-ingest"

	// DefaultAppFolder is the name of the default root folder.
	DefaultAppFolder = "dropdock"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelInfo

	// CredentialsFileName is the base name of the client credentials file.
	CredentialsFileName = "credentials.ini"

	// SettingsFileName is the base name of the client settings file.
	SettingsFileName = "settings.toml"

	// HistoryDBFileName is the base name of the local upload history database.
	HistoryDBFileName = "history.db"

	// JournalExt is the extension of upload journal entries written by the web service.
	JournalExt = ".json"

	// DefaultServerURL is the default base URL of the dropdock server.
	DefaultServerURL = "http://localhost:8080"

	// DefaultServiceFilesDir is the default directory the web service stores uploaded files in.
	DefaultServiceFilesDir = "/var/lib/dropdock/files"

	// DefaultServiceJournalDir is the default directory the web service journals uploads to.
	DefaultServiceJournalDir = "/var/lib/dropdock/journal"

	// DefaultServiceSpoolDir is the default directory for in-flight upload sessions.
	DefaultServiceSpoolDir = "/var/lib/dropdock/spool"
)

// Version is the version of the application.
var Version = "Dev"

type options struct {
	baseDir func() (string, error)
}

type option func(*options)

// GetDefaultConfigPath is the default path to the configuration directory.
func GetDefaultConfigPath(opts ...option) string {
	o := options{baseDir: os.UserConfigDir}
	for _, opt := range opts {
		opt(&o)
	}

	return filepath.Join(getBaseDir(o.baseDir), DefaultAppFolder)
}

// GetDefaultCachePath is the default path to the cache directory.
func GetDefaultCachePath(opts ...option) string {
	o := options{baseDir: os.UserCacheDir}
	for _, opt := range opts {
		opt(&o)
	}

	return filepath.Join(getBaseDir(o.baseDir), DefaultAppFolder)
}

// getBaseDir is a helper function to handle the case where the baseDir function returns an error, and instead return an empty string.
func getBaseDir(baseDirFunc func() (string, error)) string {
	dir, err := baseDirFunc()
	if err != nil {
		return ""
	}
	return dir
}
