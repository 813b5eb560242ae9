package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvision(t *testing.T) {
	cmd := Provision()

	require.NotNil(t, cmd)
	assert.Equal(t, "provision <config-file>", cmd.Use)
	assert.NotNil(t, cmd.RunE)
}

func TestProvision_Flags(t *testing.T) {
	cmd := Provision()

	tests := []struct {
		name     string
		defValue string
	}{
		{"dry-run", "false"},
		{"skip-backups", "false"},
		{"output-dir", "."},
		{"metrics-file", ""},
		{"plain", "false"},
		{"log-format", "text"},
		{"strict-host-key", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := cmd.Flags().Lookup(tt.name)
			require.NotNil(t, flag, "flag %s missing", tt.name)
			assert.Equal(t, tt.defValue, flag.DefValue)
		})
	}

	assert.Equal(t, "o", cmd.Flags().Lookup("output-dir").Shorthand)
}

func TestProvision_RequiresConfigPath(t *testing.T) {
	cmd := Provision()
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())

	cmd = Provision()
	cmd.SetArgs([]string{"a.yaml", "b.yaml"})
	assert.Error(t, cmd.Execute())
}
