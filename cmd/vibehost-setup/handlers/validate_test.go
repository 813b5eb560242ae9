package handlers

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	vhtest "github.com/conway-vibehost/vibehost-setup/internal/testing"
)

func TestValidate_PrintsAddressPlan(t *testing.T) {
	saveAndRestoreFactories(t)
	out := &bytes.Buffer{}
	stdout = out
	loadConfigFile = func(string) (*config.Config, error) { return vhtest.MinimalConfig(), nil }

	require.NoError(t, Validate("vibehost.yaml"))

	output := out.String()
	assert.Contains(t, output, "Configuration vibehost.yaml is valid")
	assert.Regexp(t, `dev:\s+public 203\.0\.113\.11\s+private 10\.10\.10\.2`, output)
	assert.Regexp(t, `postgres:\s+public -\s+private 10\.10\.10\.5`, output)
}

func TestValidate_LoadError(t *testing.T) {
	saveAndRestoreFactories(t)
	loadConfigFile = func(string) (*config.Config, error) {
		return nil, errors.New("configuration validation failed: host is required")
	}

	err := Validate("broken.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host is required")
}
