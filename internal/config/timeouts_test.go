package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadTimeouts_Defaults(t *testing.T) {
	timeouts := LoadTimeouts()

	assert.Equal(t, 10*time.Second, timeouts.SSHDial)
	assert.Equal(t, 120*time.Second, timeouts.ContainerReady)
	assert.Equal(t, 2*time.Second, timeouts.ReadyPoll)
	assert.Equal(t, 30*time.Minute, timeouts.Command)
	assert.Equal(t, 3, timeouts.RetryMaxAttempts)
	assert.Equal(t, 2*time.Second, timeouts.RetryInitialDelay)
}

func TestLoadTimeouts_EnvOverrides(t *testing.T) {
	t.Setenv("VIBEHOST_TIMEOUT_CONTAINER_READY", "5m")
	t.Setenv("VIBEHOST_RETRY_MAX_ATTEMPTS", "7")

	timeouts := LoadTimeouts()

	assert.Equal(t, 5*time.Minute, timeouts.ContainerReady)
	assert.Equal(t, 7, timeouts.RetryMaxAttempts)
}

func TestLoadTimeouts_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("VIBEHOST_TIMEOUT_SSH_DIAL", "soon")
	t.Setenv("VIBEHOST_TIMEOUT_READY_POLL", "-1s")
	t.Setenv("VIBEHOST_RETRY_MAX_ATTEMPTS", "0")

	timeouts := LoadTimeouts()

	assert.Equal(t, 10*time.Second, timeouts.SSHDial)
	assert.Equal(t, 2*time.Second, timeouts.ReadyPoll)
	assert.Equal(t, 3, timeouts.RetryMaxAttempts)
}
