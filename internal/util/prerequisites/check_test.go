package prerequisites

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh/sshtest"
)

func TestCheck_AllFound(t *testing.T) {
	t.Parallel()
	fake := sshtest.New()
	fake.OnFunc(`^command -v `, func(cmd string) ssh.Result {
		return ssh.Result{Stdout: "/usr/bin/x\n"}
	})

	results, err := CheckAll(context.Background(), fake)

	require.NoError(t, err)
	assert.NoError(t, results.Error())
	assert.Len(t, results.Results, len(HostTools())+len(OptionalTools()))
	assert.Equal(t, "/usr/bin/x", results.Results[0].Path)
}

func TestCheck_MissingRequired(t *testing.T) {
	t.Parallel()
	fake := sshtest.New()
	fake.On(`^command -v `, ssh.Result{Stdout: "/usr/bin/x\n"})
	fake.On(`^command -v 'sshd'$`, ssh.Result{ExitCode: 1})

	results, err := Check(context.Background(), fake, HostTools())

	require.NoError(t, err)
	require.Error(t, results.Error())
	assert.Contains(t, results.Error().Error(), "sshd (package openssh-server)")
}

func TestCheck_MissingOptionalIsNotAnError(t *testing.T) {
	t.Parallel()
	fake := sshtest.New()
	fake.On(`^command -v `, ssh.Result{ExitCode: 1})

	results, err := Check(context.Background(), fake, OptionalTools())

	require.NoError(t, err)
	assert.Len(t, results.Missing, len(OptionalTools()))
	assert.NoError(t, results.Error())
}
