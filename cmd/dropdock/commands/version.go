package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dropdock/dropdock/internal/constants"
	"github.com/dropdock/dropdock/internal/remote"
)

func (a *App) installVersion() {
	var server bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Returns the version of " + constants.CmdName + " and exits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("%s\t%s\n", constants.CmdName, constants.Version)
			if !server {
				return nil
			}
			return a.serverVersionRun(cmd)
		},
	}
	cmd.Flags().BoolVar(&server, "server", false, "also query the server version")

	a.cmd.AddCommand(cmd)
}

// serverVersionRun queries and prints the server version.
func (a App) serverVersionRun(cmd *cobra.Command) error {
	client, err := a.client()
	if err != nil {
		if errors.Is(err, remote.ErrEmptyNamespace) {
			slog.Warn("No namespace configured, querying server version anonymously is not supported")
		}
		return fmt.Errorf("failed to create server client: %v", err)
	}

	v, err := client.ServerVersion(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get server version: %v", err)
	}

	fmt.Printf("server\t%s\n", v)
	return nil
}
