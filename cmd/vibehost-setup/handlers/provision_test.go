package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/handoff"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh/sshtest"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning/preflight"
	vhtest "github.com/conway-vibehost/vibehost-setup/internal/testing"
)

// stubPhase is a pipeline phase with scripted behavior.
type stubPhase struct {
	name string
	run  func(ctx *provisioning.Context) error
}

func (p *stubPhase) Name() string { return p.name }

func (p *stubPhase) Provision(ctx *provisioning.Context) error {
	if p.run == nil {
		return nil
	}
	return p.run(ctx)
}

type nopCloser struct{ closed *bool }

func (c nopCloser) Close() error {
	if c.closed != nil {
		*c.closed = true
	}
	return nil
}

func saveAndRestoreFactories(t *testing.T) {
	t.Helper()
	origLoadConfigFile := loadConfigFile
	origConnectHost := connectHost
	origVerifyAdminLogin := verifyAdminLogin
	origPromptPassword := promptPassword
	origIsInteractiveTTY := isInteractiveTTY
	origRunDashboard := runDashboard
	origNewProvisioningContext := newProvisioningContext
	origWriteHandoff := writeHandoff
	origNow := now
	origStdout := stdout
	origBuildPhases := buildPhases
	origRunPreflight := runPreflight

	t.Cleanup(func() {
		loadConfigFile = origLoadConfigFile
		connectHost = origConnectHost
		verifyAdminLogin = origVerifyAdminLogin
		promptPassword = origPromptPassword
		isInteractiveTTY = origIsInteractiveTTY
		runDashboard = origRunDashboard
		newProvisioningContext = origNewProvisioningContext
		writeHandoff = origWriteHandoff
		now = origNow
		stdout = origStdout
		buildPhases = origBuildPhases
		runPreflight = origRunPreflight
	})
}

// fakeRun wires every factory to in-memory doubles and returns the output buffer.
func fakeRun(t *testing.T, cfg *config.Config, phases ...provisioning.Phase) (*bytes.Buffer, *sshtest.Fake) {
	t.Helper()
	saveAndRestoreFactories(t)

	fake := sshtest.New()
	out := &bytes.Buffer{}
	loadConfigFile = func(string) (*config.Config, error) { return cfg, nil }
	connectHost = func(context.Context, *ssh.Config, *ssh.Config) (ssh.Executor, io.Closer, error) {
		return fake, nopCloser{}, nil
	}
	verifyAdminLogin = func(context.Context, *ssh.Config) error { return nil }
	isInteractiveTTY = func() bool { return false }
	now = func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }
	stdout = out
	buildPhases = func(ProvisionOptions) []provisioning.Phase { return phases }
	return out, fake
}

func TestProvision_WritesHandoffAndSummary(t *testing.T) {
	cfg := vhtest.MinimalConfig()
	out, _ := fakeRun(t, cfg, &stubPhase{name: "database", run: func(ctx *provisioning.Context) error {
		ctx.State.SetDatabasePassword("app_dev", "generated-secret")
		ctx.Warn("database connectivity test from dev to app_dev failed, verify manually")
		return nil
	}})
	dir := t.TempDir()

	err := Provision(context.Background(), ProvisionOptions{ConfigPath: "vibehost.yaml", OutputDir: dir})
	require.NoError(t, err)

	path := filepath.Join(dir, "handoff-203-0-113-10-20261019.md")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "generated-secret")

	output := out.String()
	assert.Contains(t, output, "Provisioning complete!")
	assert.Contains(t, output, path)
	assert.Contains(t, output, "ssh ops@203.0.113.10")
	assert.Contains(t, output, "ssh root@203.0.113.11")
	assert.Contains(t, output, "[database] database connectivity test")
}

func TestProvision_FailureNamesPhaseAndSkipsHandoff(t *testing.T) {
	out, _ := fakeRun(t, vhtest.MinimalConfig(),
		&stubPhase{name: "host"},
		&stubPhase{name: "incus", run: func(ctx *provisioning.Context) error {
			return ctx.Step("initialize incus", func() error { return errors.New("incus admin init failed") })
		}},
		&stubPhase{name: "network", run: func(*provisioning.Context) error {
			t.Fatal("phases after a failure must not run")
			return nil
		}},
	)
	handoffWritten := false
	writeHandoff = func(string, *config.Config, *provisioning.State, handoff.Options) (string, error) {
		handoffWritten = true
		return "", nil
	}

	err := Provision(context.Background(), ProvisionOptions{ConfigPath: "vibehost.yaml", OutputDir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provisioning failed")

	var phaseErr *provisioning.PhaseError
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, "incus", phaseErr.Phase)
	assert.Equal(t, "initialize incus", phaseErr.Operation)

	assert.False(t, handoffWritten)
	assert.Contains(t, out.String(), "Phase:     incus")
	assert.Contains(t, out.String(), "Operation: initialize incus")
	assert.NotContains(t, out.String(), "Provisioning complete!")
}

func TestProvision_MetricsWrittenOnFailure(t *testing.T) {
	fakeRun(t, vhtest.MinimalConfig(), &stubPhase{name: "host", run: func(*provisioning.Context) error {
		return errors.New("boom")
	}})
	metrics := filepath.Join(t.TempDir(), "vibehost.prom")

	err := Provision(context.Background(), ProvisionOptions{ConfigPath: "c.yaml", MetricsFile: metrics})
	require.Error(t, err)

	content, readErr := os.ReadFile(metrics)
	require.NoError(t, readErr)
	assert.Contains(t, string(content), `provisioning_phase_total{phase="host",result="failure"} 1`)
}

func TestProvision_DryRunChangesNothing(t *testing.T) {
	out, fake := fakeRun(t, vhtest.MinimalConfig())
	buildPhases = func(ProvisionOptions) []provisioning.Phase {
		t.Fatal("dry run must not start the pipeline")
		return nil
	}
	runPreflight = func(_ context.Context, exec ssh.Executor, _ *config.Config) (*preflight.Report, error) {
		assert.Same(t, fake, exec)
		return &preflight.Report{
			OS: preflight.OSInfo{PrettyName: "Debian GNU/Linux 13 (trixie)"},
			Findings: []preflight.Finding{
				{Check: "memory", Severity: preflight.SeverityWarning, Message: "less than 8 GB of memory"},
			},
		}, nil
	}
	writeHandoff = func(string, *config.Config, *provisioning.State, handoff.Options) (string, error) {
		t.Fatal("dry run must not write a handoff document")
		return "", nil
	}
	metrics := filepath.Join(t.TempDir(), "vibehost.prom")

	require.NoError(t, Provision(context.Background(), ProvisionOptions{ConfigPath: "c.yaml", DryRun: true, MetricsFile: metrics}))
	assert.Contains(t, out.String(), "DRY RUN")
	assert.Contains(t, out.String(), "memory: less than 8 GB of memory")
	assert.Empty(t, fake.Commands())
	assert.NoFileExists(t, metrics)
}

func TestProvision_DryRunFailsOnBlockingFindings(t *testing.T) {
	out, _ := fakeRun(t, vhtest.MinimalConfig())
	runPreflight = func(context.Context, ssh.Executor, *config.Config) (*preflight.Report, error) {
		return &preflight.Report{Findings: []preflight.Finding{
			{Check: "os", Severity: preflight.SeverityError, Message: "Ubuntu 20.04 is not supported"},
		}}, nil
	}

	err := Provision(context.Background(), ProvisionOptions{ConfigPath: "c.yaml", DryRun: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server is not ready")
	assert.Contains(t, err.Error(), "Ubuntu 20.04 is not supported")
	assert.Contains(t, out.String(), "os: Ubuntu 20.04 is not supported")
}

func TestProvision_DryRunReportsTransportError(t *testing.T) {
	fakeRun(t, vhtest.MinimalConfig())
	runPreflight = func(context.Context, ssh.Executor, *config.Config) (*preflight.Report, error) {
		return nil, ssh.ErrConnection
	}

	err := Provision(context.Background(), ProvisionOptions{ConfigPath: "c.yaml", DryRun: true})
	require.ErrorIs(t, err, ssh.ErrConnection)
	assert.Contains(t, err.Error(), "preflight checks failed")
}

func TestProvision_ConnectionFailure(t *testing.T) {
	fakeRun(t, vhtest.MinimalConfig())
	connectHost = func(context.Context, *ssh.Config, *ssh.Config) (ssh.Executor, io.Closer, error) {
		return nil, nil, ssh.ErrConnection
	}
	buildPhases = func(ProvisionOptions) []provisioning.Phase {
		t.Fatal("no phase may run without a connection")
		return nil
	}

	err := Provision(context.Background(), ProvisionOptions{ConfigPath: "c.yaml"})
	require.ErrorIs(t, err, ssh.ErrConnection)
	assert.Contains(t, err.Error(), "failed to connect to 203.0.113.10")
}

func TestProvision_SessionClosed(t *testing.T) {
	fakeRun(t, vhtest.MinimalConfig())
	closed := false
	connectHost = func(context.Context, *ssh.Config, *ssh.Config) (ssh.Executor, io.Closer, error) {
		return sshtest.New(), nopCloser{closed: &closed}, nil
	}

	require.NoError(t, Provision(context.Background(), ProvisionOptions{ConfigPath: "c.yaml", OutputDir: t.TempDir()}))
	assert.True(t, closed)
}

func TestProvision_WiresContext(t *testing.T) {
	var verified *ssh.Config
	var sawHost ssh.Executor
	var sawVersion string
	_, fake := fakeRun(t, vhtest.MinimalConfig(), &stubPhase{name: "host", run: func(ctx *provisioning.Context) error {
		sawHost = ctx.Host
		sawVersion = ctx.Version
		return ctx.VerifyAdminLogin(ctx)
	}})
	verifyAdminLogin = func(_ context.Context, admin *ssh.Config) error {
		verified = admin
		return nil
	}

	require.NoError(t, Provision(context.Background(), ProvisionOptions{ConfigPath: "c.yaml", OutputDir: t.TempDir(), Version: "1.2.3"}))
	assert.Same(t, fake, sawHost)
	assert.Equal(t, "1.2.3", sawVersion)
	require.NotNil(t, verified)
	assert.Equal(t, "ops", verified.User)
}

func TestProvision_JSONOutput(t *testing.T) {
	out, _ := fakeRun(t, vhtest.MinimalConfig(), &stubPhase{name: "host"})

	require.NoError(t, Provision(context.Background(), ProvisionOptions{
		ConfigPath: "c.yaml", OutputDir: t.TempDir(), LogFormat: LogFormatJSON,
	}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "{"), lines[0])
	assert.Contains(t, out.String(), `"phase":"host"`)
}

func TestProvision_DashboardOnTerminal(t *testing.T) {
	fakeRun(t, vhtest.MinimalConfig(), &stubPhase{name: "host"}, &stubPhase{name: "incus"})
	isInteractiveTTY = func() bool { return true }
	var shown []string
	runDashboard = func(ctx context.Context, host string, phases []string, runFn func(context.Context, provisioning.Observer) error) error {
		shown = phases
		return runFn(ctx, &vhtest.RecordingObserver{})
	}

	require.NoError(t, Provision(context.Background(), ProvisionOptions{ConfigPath: "c.yaml", OutputDir: t.TempDir()}))
	assert.Equal(t, []string{"host", "incus"}, shown)
}

func TestLoadConfig_PromptsForPassword(t *testing.T) {
	saveAndRestoreFactories(t)
	cfg := vhtest.MinimalConfig()
	cfg.Server.SSHPassword = ""
	loadConfigFile = func(string) (*config.Config, error) { return cfg, nil }
	isInteractiveTTY = func() bool { return true }
	promptPassword = func(_ context.Context, user, host string) (string, error) {
		assert.Equal(t, "root", user)
		assert.Equal(t, "203.0.113.10", host)
		return "typed", nil
	}

	got, err := loadConfig(context.Background(), "c.yaml")
	require.NoError(t, err)
	assert.Equal(t, "typed", got.Server.SSHPassword)
}

func TestLoadConfig_MissingPasswordWithoutTerminal(t *testing.T) {
	saveAndRestoreFactories(t)
	cfg := vhtest.MinimalConfig()
	cfg.Server.SSHPassword = ""
	loadConfigFile = func(string) (*config.Config, error) { return cfg, nil }
	isInteractiveTTY = func() bool { return false }

	_, err := loadConfig(context.Background(), "c.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VIBEHOST_SERVER_SSH_PASSWORD")
}

func TestLoadConfig_Error(t *testing.T) {
	saveAndRestoreFactories(t)
	loadConfigFile = func(string) (*config.Config, error) { return nil, errors.New("config file not found: x.yaml") }

	_, err := loadConfig(context.Background(), "x.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestOutputMode(t *testing.T) {
	tests := []struct {
		name string
		opts ProvisionOptions
		tty  bool
		want string
	}{
		{"terminal", ProvisionOptions{}, true, outputTUI},
		{"pipe", ProvisionOptions{}, false, outputPlain},
		{"plain flag", ProvisionOptions{Plain: true}, true, outputPlain},
		{"json wins", ProvisionOptions{LogFormat: LogFormatJSON}, true, outputJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outputMode(tt.opts, tt.tty))
		})
	}
}

func TestSSHConfigs(t *testing.T) {
	cfg := vhtest.MinimalConfig()
	initial, admin := sshConfigs(cfg, false)
	assert.Equal(t, "root", initial.User)
	assert.Equal(t, "hunter2", initial.Password)
	assert.Empty(t, initial.PrivateKeyPath)
	assert.Equal(t, "ops", admin.User)
	assert.Equal(t, cfg.Admin.SSHPrivateKeyPath, admin.PrivateKeyPath)
	assert.Empty(t, admin.Password)

	cfg.Server.AuthMethod = config.AuthSSHKey
	cfg.Server.SSHKeyPath = "/home/me/.ssh/provider"
	initial, admin = sshConfigs(cfg, true)
	assert.Equal(t, "/home/me/.ssh/provider", initial.PrivateKeyPath)
	assert.Empty(t, initial.Password)
	assert.True(t, initial.StrictHostKey)
	assert.True(t, admin.StrictHostKey)
}
