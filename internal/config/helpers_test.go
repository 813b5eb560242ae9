package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testAdminKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8g admin@laptop"

const validYAML = `
server:
  host: 203.0.113.10
  auth_method: password
  ssh_password: hunter2
admin:
  username: ops
  ssh_public_key: "` + testAdminKey + `"
network:
  interface: enp0s31f6
  gateway: 203.0.113.1
  netmask: 255.255.255.192
  ips:
    host: 203.0.113.10
    dev: 203.0.113.11
    staging: 203.0.113.12
    prod: 203.0.113.13
resources:
  dev:      {memory: 16GB, cpu_allowance: 30%}
  staging:  {memory: 8GB, cpu_allowance: 20%}
  prod:     {memory: 16GB, cpu_allowance: 30%, cpu_priority: 8}
  postgres: {memory: 16GB, cpu_allowance: 20%}
postgres:
  databases:
    - {name: app_dev, user: app_dev}
    - {name: app_staging, user: app_staging, password: generate}
    - {name: app_prod, user: app_prod, password: s3cret-but-long-enough}
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vibehost.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// validConfig returns a decoded configuration that passes Validate.
func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Decode(writeConfig(t, validYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}
