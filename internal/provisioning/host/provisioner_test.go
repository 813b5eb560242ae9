package host

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh/sshtest"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	vhtest "github.com/conway-vibehost/vibehost-setup/internal/testing"
)

const originalSSHD = "# stock debian config\nPermitRootLogin yes\n"

// freshHost returns a fake server where the admin user does not exist yet.
func freshHost() *sshtest.Fake {
	f := vhtest.NewHostFixture().Fake()
	f.On(`^id -u 'ops'$`, ssh.Result{ExitCode: 1})
	f.SetFile(SSHDConfigPath, []byte(originalSSHD))
	f.SetFile(sourcesList, []byte("deb http://deb.debian.org/debian bookworm main non-free-firmware\n"))
	return f
}

// markConverged makes package and firewall probes report the applied state.
func markConverged(f *sshtest.Fake) {
	f.On(`^id -u 'ops'$`, ssh.Result{})
	f.On(`^dpkg-query -W`, ssh.Result{Stdout: "install ok installed"})
	f.On(`^ufw status$`, ssh.Result{Stdout: "Status: active\n"})
	f.On(`^grep -qsw contrib`, ssh.Result{})
}

func indexOf(items []string, want string) int {
	for i, it := range items {
		if it == want {
			return i
		}
	}
	return -1
}

func TestProvision_FreshHost(t *testing.T) {
	f := freshHost()
	f.On(`^grep -qsw contrib`, ssh.Result{ExitCode: 1})
	cfg := vhtest.MinimalConfig()
	ctx, obs := vhtest.NewContext(t, cfg, f)

	require.NoError(t, NewProvisioner().Provision(ctx))

	assert.True(t, f.Ran(`^useradd -m -s /bin/bash 'ops'$`))
	assert.True(t, f.Ran(`^usermod -aG sudo 'ops'$`))
	assert.True(t, f.Ran(`main contrib non-free-firmware`))
	assert.True(t, f.Ran(`^ufw allow 22/tcp$`))
	assert.True(t, f.Ran(`^ufw --force enable$`))
	assert.True(t, f.Ran(`install\.crowdsec\.net`))
	assert.True(t, f.Ran(`^sysctl --system$`))

	sudoers, ok := f.File("/etc/sudoers.d/ops")
	require.True(t, ok)
	assert.Equal(t, "ops ALL=(ALL) NOPASSWD:ALL\n", string(sudoers.Content))
	assert.Equal(t, 0o440, int(sudoers.Spec.Mode))

	keys, ok := f.File(AuthorizedKeysPath("ops"))
	require.True(t, ok)
	assert.Equal(t, vhtest.AdminKey+"\n", string(keys.Content))
	assert.Equal(t, 0o600, int(keys.Spec.Mode))
	assert.Equal(t, "ops", keys.Spec.Owner)

	sshd, ok := f.File(SSHDConfigPath)
	require.True(t, ok)
	assert.Contains(t, string(sshd.Content), "AllowUsers ops root\n")

	// The admin key is in place before sshd_config is replaced, and the
	// restart only follows validation.
	writes := f.Writes()
	assert.Less(t, indexOf(writes, AuthorizedKeysPath("ops")), indexOf(writes, SSHDConfigPath))
	cmds := f.Commands()
	validate := indexOf(cmds, sshdValidate)
	restart := indexOf(cmds, sshdRestart)
	require.NotEqual(t, -1, validate)
	assert.Greater(t, restart, validate)

	assert.Positive(t, obs.Count(provisioning.EventResourceCreated))
}

func TestProvision_RerunIsNoOp(t *testing.T) {
	f := freshHost()
	ctx, _ := vhtest.NewContext(t, vhtest.MinimalConfig(), f)
	require.NoError(t, NewProvisioner().Provision(ctx))

	markConverged(f)
	f.Reset()
	ctx2, obs := vhtest.NewContext(t, vhtest.MinimalConfig(), f)
	require.NoError(t, NewProvisioner().Provision(ctx2))

	assert.False(t, f.Ran(`^useradd`))
	assert.False(t, f.Ran(`install\.crowdsec\.net`))
	assert.False(t, f.Ran(`^ufw --force enable$`))
	assert.False(t, f.Ran(`^sysctl --system$`))
	assert.False(t, f.Ran(`^`+sshdRestart+`$`))
	assert.Empty(t, f.Writes())
	assert.Zero(t, obs.Count(provisioning.EventResourceCreated))
}

func TestProvision_RerunRestartsSSHAfterFailedRestart(t *testing.T) {
	f := freshHost()
	f.On(`^`+sshdRestart+`$`, ssh.Result{ExitCode: 1, Stderr: "Job for ssh.service failed"})
	ctx, _ := vhtest.NewContext(t, vhtest.MinimalConfig(), f)

	require.Error(t, NewProvisioner().Provision(ctx))
	sshd, _ := f.File(SSHDConfigPath)
	assert.Contains(t, string(sshd.Content), "PermitRootLogin no")
	_, pending := f.File(provisioning.PendingMarker("sshd"))
	require.True(t, pending)

	markConverged(f)
	f.On(`^`+sshdRestart+`$`, ssh.Result{})
	f.Reset()
	ctx2, _ := vhtest.NewContext(t, vhtest.MinimalConfig(), f)
	require.NoError(t, NewProvisioner().Provision(ctx2))

	assert.True(t, f.Ran(`^`+sshdRestart+`$`))
	assert.Greater(t, indexOf(f.Commands(), sshdRestart), indexOf(f.Commands(), sshdValidate))
	assert.NotContains(t, f.Writes(), SSHDConfigPath)
	_, pending = f.File(provisioning.PendingMarker("sshd"))
	assert.False(t, pending)

	f.Reset()
	ctx3, _ := vhtest.NewContext(t, vhtest.MinimalConfig(), f)
	require.NoError(t, NewProvisioner().Provision(ctx3))
	assert.False(t, f.Ran(`^`+sshdRestart+`$`))
}

func TestProvision_RerunLoadsSysctlAfterFailedLoad(t *testing.T) {
	f := freshHost()
	f.On(`^sysctl --system$`, ssh.Result{ExitCode: 255, Stderr: "sysctl: permission denied"})
	ctx, _ := vhtest.NewContext(t, vhtest.MinimalConfig(), f)

	require.Error(t, NewProvisioner().Provision(ctx))
	_, written := f.File(SysctlConfPath)
	require.True(t, written)

	markConverged(f)
	f.On(`^sysctl --system$`, ssh.Result{})
	f.Reset()
	ctx2, _ := vhtest.NewContext(t, vhtest.MinimalConfig(), f)
	require.NoError(t, NewProvisioner().Provision(ctx2))

	assert.True(t, f.Ran(`^sysctl --system$`))
	assert.NotContains(t, f.Writes(), SysctlConfPath)
}

func TestProvision_KeepsExistingAuthorizedKeys(t *testing.T) {
	f := freshHost()
	other := "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIBESExQVFhcYGRobHB0eHyAhIiMkJSYnKCkqKywtLi8w other@host"
	f.SetFile(AuthorizedKeysPath("ops"), []byte(other))
	ctx, _ := vhtest.NewContext(t, vhtest.MinimalConfig(), f)

	require.NoError(t, NewProvisioner().Provision(ctx))

	keys, _ := f.File(AuthorizedKeysPath("ops"))
	assert.Equal(t, other+"\n"+vhtest.AdminKey+"\n", string(keys.Content))
}

func TestProvision_LiveLoginFailureRefusesHardening(t *testing.T) {
	f := freshHost()
	ctx, _ := vhtest.NewContext(t, vhtest.MinimalConfig(), f)
	ctx.VerifyAdminLogin = func(context.Context) error { return errors.New("permission denied (publickey)") }

	err := NewProvisioner().Provision(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, provisioning.ErrLockoutRisk)

	sshd, _ := f.File(SSHDConfigPath)
	assert.Equal(t, originalSSHD, string(sshd.Content))
	assert.False(t, f.Ran(`^`+sshdRestart+`$`))
}

func TestProvision_InvalidSSHDConfigRollsBack(t *testing.T) {
	f := freshHost()
	f.On(`^/usr/sbin/sshd -t$`, ssh.Result{ExitCode: 255, Stderr: "/etc/ssh/sshd_config line 3: Bad configuration option"})
	ctx, _ := vhtest.NewContext(t, vhtest.MinimalConfig(), f)

	err := NewProvisioner().Provision(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, provisioning.ErrValidationRollback)
	assert.Contains(t, err.Error(), "Bad configuration option")

	sshd, _ := f.File(SSHDConfigPath)
	assert.Equal(t, originalSSHD, string(sshd.Content))
	assert.False(t, f.Ran(`^`+sshdRestart+`$`))
}

func TestProvision_WarnsWithoutLiveLoginCheck(t *testing.T) {
	f := freshHost()
	ctx, _ := vhtest.NewContext(t, vhtest.MinimalConfig(), f)

	require.NoError(t, NewProvisioner().Provision(ctx))

	var warned bool
	for _, n := range ctx.State.Notes() {
		if strings.Contains(n.Message, "not tested live") {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestAllowUsers(t *testing.T) {
	tests := []struct {
		name    string
		sshUser string
		want    []string
	}{
		{name: "root login kept as fallback", sshUser: "root", want: []string{"ops", "root"}},
		{name: "same user", sshUser: "ops", want: []string{"ops"}},
		{name: "empty", sshUser: "", want: []string{"ops"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := vhtest.NewConfigBuilder().WithSSHUser(tt.sshUser).Build()
			assert.Equal(t, tt.want, AllowUsers(cfg))
		})
	}
}
