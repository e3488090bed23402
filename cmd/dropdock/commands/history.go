package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dropdock/dropdock/internal/fileutils"
	"github.com/dropdock/dropdock/internal/history"
)

func installHistoryCmd(app *App) {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show the local upload history",
		Long:  "Show the local upload history. The history keeps the most recent upload attempts, successful or not.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running history command")
			return app.historyListRun(cmd.Context())
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all upload history entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running history clear command")
			return app.historyClearRun(cmd.Context())
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the upload history to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running history export command", "format", app.config.History.Format)
			return app.historyExportRun(cmd.Context())
		},
	}
	exportCmd.Flags().StringVarP(&app.config.History.Format, "format", "f", "json", "export format (json or yaml)")

	historyCmd.AddCommand(clearCmd)
	historyCmd.AddCommand(exportCmd)
	app.cmd.AddCommand(historyCmd)
}

// historyListRun prints the recorded upload attempts.
func (a App) historyListRun(ctx context.Context) (err error) {
	hist, err := a.history(ctx)
	if err != nil {
		return fmt.Errorf("failed to open upload history: %v", err)
	}
	defer func() {
		if cerr := hist.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	entries, err := hist.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list upload history: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	for _, e := range entries {
		detail := e.TargetPath
		if e.Status == history.StatusFailed {
			detail = e.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.Status, e.FileName, fileutils.FormatBytes(e.FileSize), detail)
	}
	return w.Flush()
}

// historyClearRun removes all recorded upload attempts.
func (a App) historyClearRun(ctx context.Context) (err error) {
	hist, err := a.history(ctx)
	if err != nil {
		return fmt.Errorf("failed to open upload history: %v", err)
	}
	defer func() {
		if cerr := hist.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := hist.Clear(ctx); err != nil {
		return err
	}
	fmt.Println("Upload history cleared")
	return nil
}

// historyExportRun writes the history to stdout in the configured format.
func (a App) historyExportRun(ctx context.Context) (err error) {
	hist, err := a.history(ctx)
	if err != nil {
		return fmt.Errorf("failed to open upload history: %v", err)
	}
	defer func() {
		if cerr := hist.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return hist.Export(ctx, os.Stdout, a.config.History.Format)
}
