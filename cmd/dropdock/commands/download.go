package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/dropdock/dropdock/internal/fileutils"
	"github.com/dropdock/dropdock/internal/pathutils"
)

func installDownloadCmd(app *App) {
	downloadCmd := &cobra.Command{
		Use:   "download PATH [LOCAL]",
		Short: "Download a file from the server",
		Long: `Download a file from the dropdock server.

If no local destination is provided, the file is written to the current
directory under its remote name.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remotePath := pathutils.Normalize(args[0])
			local := path.Base(remotePath)
			if len(args) == 2 {
				local = args[1]
			}

			slog.Debug("Running download command", "path", remotePath, "local", local)
			return app.downloadRun(cmd.Context(), remotePath, local)
		},
	}

	app.cmd.AddCommand(downloadCmd)
}

// downloadRun runs the download command.
func (a App) downloadRun(ctx context.Context, remotePath, local string) (err error) {
	client, err := a.client()
	if err != nil {
		return fmt.Errorf("failed to create server client: %v", err)
	}

	f, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", local, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	n, err := client.Download(ctx, remotePath, f)
	if err != nil {
		return fmt.Errorf("failed to download %s: %v", remotePath, err)
	}

	fmt.Printf("Downloaded %s (%s)\n", remotePath, fileutils.FormatBytes(n))
	return nil
}
