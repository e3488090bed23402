package commands

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dropdock/dropdock/internal/manifest"
)

func installManifestCmd(app *App) {
	manifestCmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect dependency manifests",
	}

	checkCmd := &cobra.Command{
		Use:   "check FILE",
		Short: "Parse a dependency manifest and report lint findings",
		Long: `Parse a dependency manifest and report lint findings.

The command fails if the manifest cannot be parsed or if any requirement
deviates from the minimum-only (>=) constraint convention.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running manifest check command", "file", args[0])
			return app.manifestCheckRun(args[0])
		},
	}

	showCmd := &cobra.Command{
		Use:   "show FILE",
		Short: "Show the requirements declared in a dependency manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running manifest show command", "file", args[0])
			return app.manifestShowRun(args[0])
		},
	}

	manifestCmd.AddCommand(checkCmd)
	manifestCmd.AddCommand(showCmd)
	app.cmd.AddCommand(manifestCmd)
}

// manifestCheckRun parses and lints a dependency manifest.
func (a App) manifestCheckRun(file string) error {
	m, err := manifest.ParseFile(file)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %v", file, err)
	}

	issues := m.Lint()
	for _, issue := range issues {
		fmt.Fprintf(os.Stderr, "%s:%d: %s: %s\n", file, issue.Line, issue.Name, issue.Msg)
	}
	if len(issues) > 0 {
		return fmt.Errorf("%d lint finding(s) in %s", len(issues), file)
	}

	fmt.Printf("%s: %d requirements, no findings\n", file, len(m.Requirements))
	return nil
}

// manifestShowRun prints the requirements of a dependency manifest per section.
func (a App) manifestShowRun(file string) error {
	m, err := manifest.ParseFile(file)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %v", file, err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	for _, r := range m.Requirements {
		fmt.Fprintf(w, "%s\t%s\t%s%s\n", r.Section, r.Name, r.Op, r.Raw)
	}
	return w.Flush()
}
