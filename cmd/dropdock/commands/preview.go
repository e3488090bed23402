package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dropdock/dropdock/internal/preview"
)

func installPreviewCmd(app *App) {
	previewCmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Preview a local file before uploading it",
		Long: `Preview a local file before uploading it.

Images are summarized by format and dimensions, text files by their first
lines, and CSV files by their first rows.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running preview command", "file", args[0])
			return app.previewRun(args[0])
		},
	}

	app.cmd.AddCommand(previewCmd)
}

// previewRun prints a short preview of the file contents.
func (a App) previewRun(file string) error {
	if !preview.CanPreview(file) {
		return fmt.Errorf("no preview available for %s", file)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %v", file, err)
	}

	out, err := preview.For(file, data)
	if err != nil {
		return fmt.Errorf("failed to preview %s: %v", file, err)
	}

	fmt.Println(out)
	return nil
}
