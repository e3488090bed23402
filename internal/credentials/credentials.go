// Package credentials loads the client API credentials.
//
// Credentials are stored in an INI file under the user configuration
// directory, one profile per section. The default profile is "default".
package credentials

import (
	"errors"
	"fmt"
	"path/filepath"

	"gopkg.in/ini.v1"

	"github.com/dropdock/dropdock/internal/constants"
)

var (
	// ErrNoProfile is returned when the requested profile section does not exist.
	ErrNoProfile = errors.New("credentials profile not found")

	// ErrIncomplete is returned when a profile is missing required keys.
	ErrIncomplete = errors.New("credentials profile is incomplete")
)

// DefaultProfile is the profile used when none is specified.
const DefaultProfile = "default"

// Credentials holds the API credentials for a single profile.
type Credentials struct {
	AppKey       string
	AppSecret    string
	RefreshToken string

	// Endpoint optionally overrides the server base URL for this profile.
	Endpoint string
}

type options struct {
	path string
}

// Options represents an optional function to override Load default values.
type Options func(*options)

// WithPath overrides the path of the credentials file.
func WithPath(path string) Options {
	return func(o *options) {
		o.path = path
	}
}

// Load reads the credentials for the given profile.
// An empty profile selects the default profile.
func Load(profile string, args ...Options) (Credentials, error) {
	opts := options{
		path: filepath.Join(constants.GetDefaultConfigPath(), constants.CredentialsFileName),
	}
	for _, opt := range args {
		opt(&opts)
	}

	if profile == "" {
		profile = DefaultProfile
	}

	file, err := ini.Load(opts.path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials file %s: %v", opts.path, err)
	}

	section, err := file.GetSection(profile)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %q in %s", ErrNoProfile, profile, opts.path)
	}

	creds := Credentials{
		AppKey:       section.Key("app_key").String(),
		AppSecret:    section.Key("app_secret").String(),
		RefreshToken: section.Key("refresh_token").String(),
		Endpoint:     section.Key("endpoint").String(),
	}

	if creds.AppKey == "" || creds.AppSecret == "" || creds.RefreshToken == "" {
		return Credentials{}, fmt.Errorf("%w: profile %q requires app_key, app_secret and refresh_token", ErrIncomplete, profile)
	}

	return creds, nil
}
