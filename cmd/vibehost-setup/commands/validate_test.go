package commands

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	cmd := Validate()

	require.NotNil(t, cmd)
	assert.Equal(t, "validate <config-file>", cmd.Use)
}

func TestValidate_MissingFile(t *testing.T) {
	cmd := Validate()
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, cmd.Execute())
}

func TestValidate_RequiresOneArg(t *testing.T) {
	cmd := Validate()
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}
