package commands_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropdock/dropdock/cmd/dropdock/commands"
	"github.com/dropdock/dropdock/internal/constants"
)

func TestUsageError(t *testing.T) {
	t.Parallel()

	app, err := commands.New()
	require.NoError(t, err)

	// Before a command parses successfully usage errors are reported.
	assert.True(t, app.UsageError())
}

func TestRootCmd(t *testing.T) {
	t.Parallel()

	app, err := commands.New()
	require.NoError(t, err)

	cmd := app.RootCmd()

	assert.NotNil(t, cmd, "Returned root cmd should not be nil")
	assert.Equal(t, constants.CmdName, cmd.Name())
}
