// Package commands contains the commands of the dropdock client.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dropdock/dropdock/internal/cli"
	"github.com/dropdock/dropdock/internal/constants"
	"github.com/dropdock/dropdock/internal/credentials"
	"github.com/dropdock/dropdock/internal/history"
	"github.com/dropdock/dropdock/internal/remote"
	"github.com/dropdock/dropdock/internal/settings"
	"github.com/dropdock/dropdock/internal/uploader"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	newUploader newUploader
	newClient   newClient
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	Namespace string
	Profile   string
	ServerURL string
	ConfigDir string
	CacheDir  string

	Upload  uploadConfig
	History historyConfig
}

type uploadConfig struct {
	Target string
	DryRun bool
	Retry  bool
}

type historyConfig struct {
	Format string
}

// uploadManager carries out uploads to the server.
type uploadManager interface {
	Upload(ctx context.Context, files []string) error
	BackoffUpload(ctx context.Context, files []string) error
}

type (
	newUploader func(client *remote.Client, hist *history.Store, s settings.Settings, targetFolder string, dryRun bool) (uploadManager, error)
	newClient   func(namespace, token string, args ...remote.Options) (*remote.Client, error)
)

type options struct {
	newUploader newUploader
	newClient   newClient
}

// Options represents an optional function to override App default values.
type Options func(*options)

// New registers commands and returns a new App.
func New(args ...Options) (*App, error) {
	opts := options{
		newUploader: func(client *remote.Client, hist *history.Store, s settings.Settings, targetFolder string, dryRun bool) (uploadManager, error) {
			return uploader.New(client, hist, s, targetFolder, dryRun)
		},
		newClient: remote.New,
	}
	for _, opt := range args {
		opt(&opts)
	}

	a := App{
		newUploader: opts.newUploader,
		newClient:   opts.newClient,
	}
	a.cmd = &cobra.Command{
		Use:           constants.CmdName + " [COMMAND]",
		Short:         "dropdock file uploader",
		Long:          "dropdock uploads files to a dropdock server, browses and creates remote folders, and keeps a local history of uploads.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			slog.Debug("got app config", "config", a.config)

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Update logging after loading config if necessary
			return nil
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	installUploadCmd(&a)
	installListCmd(&a)
	installFolderCmd(&a)
	installDownloadCmd(&a)
	installUsageCmd(&a)
	installHistoryCmd(&a)
	installManifestCmd(&a)
	installPreviewCmd(&a)
	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")

	cmd.PersistentFlags().StringVarP(&app.config.Namespace, "namespace", "N", "", "server namespace to operate on")
	cmd.PersistentFlags().StringVarP(&app.config.Profile, "profile", "p", "", "credentials profile to use")
	cmd.PersistentFlags().StringVarP(&app.config.ServerURL, "server-url", "s", "", "base URL of the dropdock server")
	cmd.PersistentFlags().StringVar(&app.config.ConfigDir, "config-dir", constants.GetDefaultConfigPath(), "directory credentials and settings are read from")
	cmd.PersistentFlags().StringVar(&app.config.CacheDir, "cache-dir", constants.GetDefaultCachePath(), "directory the upload history is stored in")

	if err := cmd.MarkPersistentFlagDirname("config-dir"); err != nil {
		panic(fmt.Sprintf("failed to mark config-dir flag as directory: %v", err))
	}
	if err := cmd.MarkPersistentFlagDirname("cache-dir"); err != nil {
		panic(fmt.Sprintf("failed to mark cache-dir flag as directory: %v", err))
	}
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// RootCmd returns a copy of the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

// client builds a server client from the loaded credentials profile.
func (a App) client() (*remote.Client, error) {
	creds, err := credentials.Load(a.config.Profile,
		credentials.WithPath(filepath.Join(a.config.ConfigDir, constants.CredentialsFileName)))
	if err != nil {
		return nil, err
	}

	serverURL := a.config.ServerURL
	if serverURL == "" {
		serverURL = creds.Endpoint
	}

	var cArgs []remote.Options
	if serverURL != "" {
		cArgs = append(cArgs, remote.WithBaseURL(serverURL))
	}

	return a.newClient(a.config.Namespace, creds.RefreshToken, cArgs...)
}

// settings loads the upload settings from the config directory.
func (a App) settings() (settings.Settings, error) {
	return settings.New(a.config.ConfigDir).Load()
}

// history opens the local upload history database.
func (a App) history(ctx context.Context) (*history.Store, error) {
	if err := os.MkdirAll(a.config.CacheDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %v", err)
	}
	return history.Open(ctx, filepath.Join(a.config.CacheDir, constants.HistoryDBFileName))
}
