package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// InitViperConfig loads the configuration for cmd into vip.
//
// With an explicit --config flag only that file is considered. Otherwise a
// file named after the command is searched in the working directory, the
// user configuration directory and the system configuration directory.
// Environment variables prefixed with the upper-cased command name override
// file values, with underscores standing in for nested keys.
func InitViperConfig(cmdName string, cmd *cobra.Command, vip *viper.Viper) error {
	if explicit, err := cmd.Flags().GetString("config"); err == nil && explicit != "" {
		vip.SetConfigFile(explicit)
	} else {
		vip.SetConfigName(cmdName)
		for _, dir := range configDirs(cmdName) {
			vip.AddConfigPath(dir)
		}
	}

	if err := vip.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("invalid configuration file: %w", err)
		}
		slog.Info("No configuration file found, using defaults, environment variables and flags")
	} else {
		slog.Info("Using configuration file", "file", vip.ConfigFileUsed())
	}

	vip.SetEnvPrefix(cmdName)
	vip.AutomaticEnv()

	// AutomaticEnv alone does not surface env-only values when unmarshalling
	// into a struct, so bind every matching variable explicitly.
	// More context on https://github.com/spf13/viper/pull/1429.
	prefix := strings.ToUpper(strings.ReplaceAll(cmdName, "-", "_")) + "_"
	for _, e := range os.Environ() {
		name, _, _ := strings.Cut(e, "=")
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		key := strings.ReplaceAll(strings.TrimPrefix(name, prefix), "_", ".")
		if err := vip.BindEnv(key, name); err != nil {
			return fmt.Errorf("could not bind environment variable %s: %w", name, err)
		}
	}

	return nil
}

// configDirs returns the directories searched for a configuration file, in
// order of preference.
func configDirs(cmdName string) []string {
	dirs := []string{"."}

	if userDir, err := os.UserConfigDir(); err != nil {
		slog.Warn("Failed to get user configuration directory, not searching it", "error", err)
	} else {
		dirs = append(dirs, filepath.Join(userDir, cmdName))
	}

	if runtime.GOOS == "windows" {
		dirs = append(dirs, filepath.Join(`C:\ProgramData`, cmdName))
	} else {
		dirs = append(dirs, filepath.Join("/etc", cmdName))
	}

	return dirs
}

// InstallConfigFlag adds a config flag to the command.
func InstallConfigFlag(cmd *cobra.Command) *string {
	return cmd.PersistentFlags().String("config", "", "use a specific configuration file")
}
