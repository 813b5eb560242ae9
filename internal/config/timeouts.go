package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds all configurable timeout values.
// These values can be customized via environment variables.
type Timeouts struct {
	SSHDial           time.Duration // Timeout for establishing one SSH connection
	ContainerReady    time.Duration // Timeout for a launched workload to finish booting
	ReadyPoll         time.Duration // Interval between readiness probes
	Command           time.Duration // Upper bound for a single remote command
	RetryMaxAttempts  int           // Maximum number of connection attempts
	RetryInitialDelay time.Duration // Initial delay between connection attempts
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - VIBEHOST_TIMEOUT_SSH_DIAL (default: 10s)
//   - VIBEHOST_TIMEOUT_CONTAINER_READY (default: 120s)
//   - VIBEHOST_TIMEOUT_READY_POLL (default: 2s)
//   - VIBEHOST_TIMEOUT_COMMAND (default: 30m)
//   - VIBEHOST_RETRY_MAX_ATTEMPTS (default: 3)
//   - VIBEHOST_RETRY_INITIAL_DELAY (default: 2s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		SSHDial:           parseDuration("VIBEHOST_TIMEOUT_SSH_DIAL", 10*time.Second),
		ContainerReady:    parseDuration("VIBEHOST_TIMEOUT_CONTAINER_READY", 120*time.Second),
		ReadyPoll:         parseDuration("VIBEHOST_TIMEOUT_READY_POLL", 2*time.Second),
		Command:           parseDuration("VIBEHOST_TIMEOUT_COMMAND", 30*time.Minute),
		RetryMaxAttempts:  parseInt("VIBEHOST_RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay: parseDuration("VIBEHOST_RETRY_INITIAL_DELAY", 2*time.Second),
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}

	return i
}
