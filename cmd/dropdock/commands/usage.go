package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dropdock/dropdock/internal/fileutils"
)

func installUsageCmd(app *App) {
	usageCmd := &cobra.Command{
		Use:   "usage",
		Short: "Show storage usage for the namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running usage command")
			return app.usageRun(cmd.Context())
		},
	}

	app.cmd.AddCommand(usageCmd)
}

// usageRun runs the usage command.
func (a App) usageRun(ctx context.Context) error {
	client, err := a.client()
	if err != nil {
		return fmt.Errorf("failed to create server client: %v", err)
	}

	u, err := client.Usage(ctx)
	if err != nil {
		return fmt.Errorf("failed to get storage usage: %v", err)
	}

	if u.Quota <= 0 {
		fmt.Printf("Used: %s (no quota)\n", fileutils.FormatBytes(u.Used))
		return nil
	}

	fmt.Printf("Used: %s of %s (%.1f%%)\n",
		fileutils.FormatBytes(u.Used), fileutils.FormatBytes(u.Quota), u.Percentage())
	return nil
}
