package container

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh/sshtest"
)

func TestChannel_ExecuteWrapsCommand(t *testing.T) {
	host := sshtest.New().
		On(`^incus exec dev -- bash -c 'whoami'$`, ssh.Result{Stdout: "root\n"})
	ch := New(host, "dev")

	res, err := ch.Execute(context.Background(), "whoami", ssh.ExecOptions{Capture: true})
	require.NoError(t, err)
	assert.Equal(t, "root\n", res.Stdout)

	calls := host.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "incus info dev", calls[0].Command)
	assert.True(t, calls[1].Options.Privileged)
}

func TestChannel_QuotingSurvivesTwoShells(t *testing.T) {
	host := sshtest.New()
	ch := New(host, "prod")

	_, err := ch.Execute(context.Background(), `echo 'it''s' "$HOME" && grep -q "a'b" /f`, ssh.ExecOptions{})
	require.NoError(t, err)

	cmds := host.Commands()
	assert.Equal(t,
		`incus exec prod -- bash -c 'echo '"'"'it'"'"''"'"'s'"'"' "$HOME" && grep -q "a'"'"'b" /f'`,
		cmds[len(cmds)-1])
}

func TestChannel_MissingWorkload(t *testing.T) {
	host := sshtest.New().On(`^incus info staging$`, ssh.Result{ExitCode: 1, Stderr: "Error: Instance not found"})
	ch := New(host, "staging")

	_, err := ch.Execute(context.Background(), "true", ssh.ExecOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkloadNotFound)
	assert.NotErrorIs(t, err, ssh.ErrCommandFailure)
	assert.False(t, host.Ran(`^incus exec`))
}

func TestChannel_CommandFailureIsDistinct(t *testing.T) {
	host := sshtest.New().On(`^incus exec dev`, ssh.Result{ExitCode: 2, Stderr: "E: Unable to locate package foo"})
	ch := New(host, "dev")

	_, err := ch.Execute(context.Background(), "apt-get install -y foo", ssh.ExecOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ssh.ErrCommandFailure)
	assert.NotErrorIs(t, err, ErrWorkloadNotFound)

	var cmdErr *ssh.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "[dev] apt-get install -y foo", cmdErr.Command)
}

func TestChannel_WorkloadDeletedMidRun(t *testing.T) {
	deleted := false
	host := sshtest.New().
		OnFunc(`^incus info dev$`, func(string) ssh.Result {
			if deleted {
				return ssh.Result{ExitCode: 1}
			}
			return ssh.Result{}
		}).
		OnFunc(`^incus exec dev`, func(string) ssh.Result {
			return ssh.Result{ExitCode: 1, Stderr: "Error: Instance not found"}
		})
	ch := New(host, "dev")
	require.NoError(t, ch.ensureExists(context.Background()))
	deleted = true

	_, err := ch.Execute(context.Background(), "true", ssh.ExecOptions{})
	assert.ErrorIs(t, err, ErrWorkloadNotFound)
}

func TestChannel_Materialize(t *testing.T) {
	host := sshtest.New().
		On(`id -u`, ssh.Result{Stdout: "0\n"}).
		On(`id -g`, ssh.Result{Stdout: "0\n"})
	ch := New(host, "dev")

	err := ch.Materialize(context.Background(), "/etc/systemd/network/eth0.network", []byte("[Match]\n"),
		ssh.FileSpec{Mode: 0o644, Owner: "root", Group: "root"})
	require.NoError(t, err)

	writes := host.Writes()
	require.Len(t, writes, 1)
	assert.Regexp(t, `^/tmp/vibehost-push-`, writes[0])

	staged, ok := host.File(writes[0])
	require.True(t, ok)
	assert.Equal(t, "[Match]\n", string(staged.Content))

	assert.True(t, host.Ran(`^incus file push --mode 0644 --uid 0 --gid 0 '/tmp/vibehost-push-[^']+' 'dev/etc/systemd/network/eth0.network'$`))
	assert.True(t, host.Ran(`^rm -f '/tmp/vibehost-push-`))
}

func TestChannel_AppendAndExists(t *testing.T) {
	host := sshtest.New().
		On(`test -e`, ssh.Result{ExitCode: 1})
	ch := New(host, "prod")
	ctx := context.Background()

	require.NoError(t, ch.Append(ctx, "/root/.bashrc", []byte("alias ll='ls -l'\n")))
	calls := host.Calls()
	last := calls[len(calls)-1]
	assert.Contains(t, last.Command, "tee -a")
	assert.Equal(t, "alias ll='ls -l'\n", last.Stdin)

	ok, err := ch.Exists(ctx, "/root/.bashrc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseStatus(t *testing.T) {
	t.Parallel()
	info := "Name: dev\nStatus: RUNNING\nType: container\n"

	assert.Equal(t, StatusRunning, ParseStatus(info))
	assert.Empty(t, ParseStatus("garbage"))
}
