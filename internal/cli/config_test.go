package cli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/dropdock/dropdock/internal/cli"
)

type testConfig struct {
	Verbosity int
	Nested    struct {
		Value string
	}
}

func newTestCmd(t *testing.T) (*cobra.Command, *viper.Viper) {
	t.Helper()
	cmd := &cobra.Command{Use: "dropdock-test", Run: func(*cobra.Command, []string) {}}
	cli.InstallConfigFlag(cmd)
	return cmd, viper.New()
}

func TestInitViperConfig(t *testing.T) {
	tests := map[string]struct {
		content    string
		noFile     bool
		env        map[string]string
		wantErr    bool
		wantConfig testConfig
	}{
		"Explicit config file": {
			content: "verbosity: 2\nnested:\n  value: from-file\n",
			wantConfig: testConfig{
				Verbosity: 2,
				Nested:    struct{ Value string }{Value: "from-file"},
			},
		},
		"Missing config file is tolerated": {
			noFile: true,
		},
		"Invalid config file": {
			content: "verbosity: [unclosed\n",
			wantErr: true,
		},
		"Environment variables override nested keys": {
			content: "nested:\n  value: from-file\n",
			env:     map[string]string{"DROPDOCK_TEST_NESTED_VALUE": "from-env", "DROPDOCK_TEST_VERBOSITY": "1"},
			wantConfig: testConfig{
				Verbosity: 1,
				Nested:    struct{ Value string }{Value: "from-env"},
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cmd, vip := newTestCmd(t)
			if !tc.noFile {
				path := filepath.Join(t.TempDir(), "dropdock-test.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tc.content), 0600),
					"Setup: failed to write config file")
				require.NoError(t, cmd.PersistentFlags().Set("config", path),
					"Setup: failed to set config flag")
			}

			err := cli.InitViperConfig("dropdock-test", cmd, vip)
			if tc.wantErr {
				require.Error(t, err, "InitViperConfig should return an error")
				return
			}
			require.NoError(t, err, "InitViperConfig should not return an error")

			var got testConfig
			require.NoError(t, vip.Unmarshal(&got), "Unmarshal should not return an error")
			require.Equal(t, tc.wantConfig, got, "Unexpected configuration")
		})
	}
}
