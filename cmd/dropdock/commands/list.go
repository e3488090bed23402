package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dropdock/dropdock/internal/fileutils"
	"github.com/dropdock/dropdock/internal/pathutils"
	"github.com/dropdock/dropdock/internal/remote"
)

func installListCmd(app *App) {
	listCmd := &cobra.Command{
		Use:     "list [PATH]",
		Aliases: []string{"ls"},
		Short:   "List the contents of a remote folder",
		Long: `List the contents of a remote folder.

If no path is provided, the namespace root is listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remotePath := "/"
			if len(args) == 1 {
				remotePath = pathutils.Normalize(args[0])
			}

			slog.Debug("Running list command", "path", remotePath)
			return app.listRun(cmd.Context(), remotePath)
		},
	}

	app.cmd.AddCommand(listCmd)
}

// listRun runs the list command.
func (a App) listRun(ctx context.Context, remotePath string) error {
	client, err := a.client()
	if err != nil {
		return fmt.Errorf("failed to create server client: %v", err)
	}

	entries, err := client.List(ctx, remotePath)
	if err != nil {
		return fmt.Errorf("failed to list %s: %v", remotePath, err)
	}

	// Folders first, then case-insensitive by name.
	slices.SortStableFunc(entries, func(a, b remote.Entry) int {
		if a.IsFolder != b.IsFolder {
			if a.IsFolder {
				return -1
			}
			return 1
		}
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	for _, e := range entries {
		if e.IsFolder {
			fmt.Fprintf(w, "d\t-\t%s\n", e.Name)
			continue
		}
		fmt.Fprintf(w, "-\t%s\t%s\n", fileutils.FormatBytes(e.Size), e.Name)
	}
	return w.Flush()
}
