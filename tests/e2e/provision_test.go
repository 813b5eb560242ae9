//go:build e2e

// Package e2e provisions a real server and checks the result from the
// admin account.
package e2e

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conway-vibehost/vibehost-setup/cmd/vibehost-setup/handlers"
	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
)

// TestE2EProvisionTwice provisions a freshly installed Debian server, runs
// the provisioning a second time and verifies the workloads from the admin
// account. The server is left provisioned.
//
// Environment variables:
//
//	VIBEHOST_E2E_CONFIG - Required, path to a configuration file for a disposable server
//
// Example:
//
//	VIBEHOST_E2E_CONFIG=e2e.yaml go test -v -timeout=90m -tags=e2e ./tests/e2e/
func TestE2EProvisionTwice(t *testing.T) {
	path := os.Getenv("VIBEHOST_E2E_CONFIG")
	if path == "" {
		t.Skip("VIBEHOST_E2E_CONFIG not set, skipping e2e test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Minute)
	defer cancel()

	out := t.TempDir()
	opts := handlers.ProvisionOptions{
		ConfigPath:  path,
		OutputDir:   out,
		MetricsFile: filepath.Join(out, "vibehost.prom"),
		Plain:       true,
		Version:     "e2e",
	}

	t.Log("First run...")
	require.NoError(t, handlers.Provision(ctx, opts))

	t.Log("Second run...")
	require.NoError(t, handlers.Provision(ctx, opts))

	handoffs, err := filepath.Glob(filepath.Join(out, "handoff-*.md"))
	require.NoError(t, err)
	require.Len(t, handoffs, 1, "both runs write the same handoff file")
	info, err := os.Stat(handoffs[0])
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	admin, err := ssh.NewClient(&ssh.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.SSHPort,
		User:           cfg.Admin.Username,
		PrivateKeyPath: cfg.Admin.SSHPrivateKeyPath,
	})
	require.NoError(t, err)
	defer func() { _ = admin.Close() }()

	t.Run("workloads running", func(t *testing.T) {
		listing, err := ssh.Output(ctx, admin, "incus list --format csv -c ns")
		require.NoError(t, err)
		for _, w := range config.Workloads {
			assert.Contains(t, listing, w+",RUNNING")
		}
	})

	t.Run("root login disabled", func(t *testing.T) {
		sshd, err := ssh.Output(ctx, admin, "sshd -T")
		require.NoError(t, err)
		assert.Contains(t, sshd, "permitrootlogin no")
		assert.Contains(t, sshd, "passwordauthentication no")
	})

	t.Run("postgres reachable on private network", func(t *testing.T) {
		res, err := ssh.Probe(ctx, admin, "incus exec dev -- pg_isready -h "+cfg.Network.Private.Postgres)
		require.NoError(t, err)
		assert.True(t, res.OK(), strings.TrimSpace(res.Stderr))
	})
}
