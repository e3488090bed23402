package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func installUploadCmd(app *App) {
	uploadCmd := &cobra.Command{
		Use:   "upload FILE [FILE...]",
		Short: "Upload files to the server",
		Long: `Upload files to the dropdock server.

Files larger than the session threshold are sent in chunks through an upload
session. Every attempt is recorded in the local upload history.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Running upload command")
			return app.uploadRun(cmd.Context(), args)
		},
	}

	uploadCmd.Flags().StringVarP(&app.config.Upload.Target, "target", "t", "/", "remote folder to upload into")
	uploadCmd.Flags().BoolVarP(&app.config.Upload.DryRun, "dry-run", "d", false, "go through the motions of doing an upload, but do not communicate with the server or modify local files")
	uploadCmd.Flags().BoolVarP(&app.config.Upload.Retry, "retry", "r", false, "keep retrying uploads that fail with transient server errors")

	app.cmd.AddCommand(uploadCmd)
}

// uploadRun runs the upload command.
func (a App) uploadRun(ctx context.Context, files []string) error {
	s, err := a.settings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %v", err)
	}

	client, err := a.client()
	if err != nil {
		return fmt.Errorf("failed to create server client: %v", err)
	}

	hist, err := a.history(ctx)
	if err != nil {
		return fmt.Errorf("failed to open upload history: %v", err)
	}
	defer func() {
		if err := hist.Close(); err != nil {
			slog.Warn("Failed to close upload history", "error", err)
		}
	}()

	u, err := a.newUploader(client, hist, s, a.config.Upload.Target, a.config.Upload.DryRun)
	if err != nil {
		return fmt.Errorf("failed to create uploader: %v", err)
	}

	if a.config.Upload.Retry {
		return u.BackoffUpload(ctx, files)
	}
	return u.Upload(ctx, files)
}
