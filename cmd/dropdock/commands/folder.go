package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dropdock/dropdock/internal/pathutils"
	"github.com/dropdock/dropdock/internal/remote"
)

func installFolderCmd(app *App) {
	folderCmd := &cobra.Command{
		Use:     "mkdir PATH",
		Aliases: []string{"create-folder"},
		Short:   "Create a remote folder",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running mkdir command", "path", args[0])
			return app.folderRun(cmd.Context(), pathutils.Normalize(args[0]))
		},
	}

	app.cmd.AddCommand(folderCmd)
}

// folderRun runs the mkdir command.
func (a App) folderRun(ctx context.Context, remotePath string) error {
	client, err := a.client()
	if err != nil {
		return fmt.Errorf("failed to create server client: %v", err)
	}

	if err := client.CreateFolder(ctx, remotePath); err != nil {
		if errors.Is(err, remote.ErrConflict) {
			return fmt.Errorf("a file already exists at %s", remotePath)
		}
		return fmt.Errorf("failed to create folder %s: %v", remotePath, err)
	}

	fmt.Printf("Created folder %s\n", remotePath)
	return nil
}
