package provisioning

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh/sshtest"
)

func TestEnsure_PresentNeverApplies(t *testing.T) {
	t.Parallel()
	applied := false

	ran, err := Ensure(context.Background(),
		func(context.Context) (bool, error) { return true, nil },
		func(context.Context) error { applied = true; return nil },
	)

	require.NoError(t, err)
	assert.False(t, ran)
	assert.False(t, applied)
}

func TestEnsure_AbsentApplies(t *testing.T) {
	t.Parallel()
	applied := false

	ran, err := Ensure(context.Background(),
		func(context.Context) (bool, error) { return false, nil },
		func(context.Context) error { applied = true; return nil },
	)

	require.NoError(t, err)
	assert.True(t, ran)
	assert.True(t, applied)
}

func TestEnsure_ProbeErrorSkipsApply(t *testing.T) {
	t.Parallel()
	applied := false
	probeErr := errors.New("connection reset")

	_, err := Ensure(context.Background(),
		func(context.Context) (bool, error) { return false, probeErr },
		func(context.Context) error { applied = true; return nil },
	)

	require.ErrorIs(t, err, probeErr)
	assert.False(t, applied)
}

func TestEnsure_ExistsFromApplyIsSkip(t *testing.T) {
	t.Parallel()

	ran, err := Ensure(context.Background(),
		func(context.Context) (bool, error) { return false, nil },
		func(context.Context) error { return ErrResourceExists },
	)

	require.NoError(t, err)
	assert.False(t, ran)
}

func TestEnsureResource_EventsAndMetrics(t *testing.T) {
	t.Parallel()
	observer := NewMockObserver()
	ctx := newTestContext(observer)
	ctx.enterPhase("incus")

	require.NoError(t, ctx.EnsureResource("profile", "dev",
		func(context.Context) (bool, error) { return false, nil },
		func(context.Context) error { return nil },
	))
	require.NoError(t, ctx.EnsureResource("profile", "prod",
		func(context.Context) (bool, error) { return true, nil },
		func(context.Context) error { t.Fatal("apply must not run"); return nil },
	))
	err := ctx.EnsureResource("profile", "staging",
		func(context.Context) (bool, error) { return false, nil },
		func(context.Context) error { return errors.New("invalid limits") },
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "profile staging: invalid limits")

	created := observer.eventsOfType(EventResourceCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "profile/dev", created[0].Resource)
	assert.Equal(t, "incus", created[0].Phase)
	assert.Len(t, observer.eventsOfType(EventResourceExists), 1)
	assert.Len(t, observer.eventsOfType(EventResourceFailed), 1)
	assert.Len(t, observer.eventsOfType(EventResourceCreating), 2)
}

func TestEnsureFile(t *testing.T) {
	t.Parallel()
	fake := sshtest.New()
	ctx := newTestContext(NewMockObserver())
	spec := ssh.FileSpec{Mode: 0o644}

	require.NoError(t, ctx.EnsureFile(fake, "/etc/motd", []byte("hello\n"), spec))
	require.NoError(t, ctx.EnsureFile(fake, "/etc/motd", []byte("hello\n"), spec))

	assert.Equal(t, []string{"/etc/motd"}, fake.Writes(), "second write must be skipped")

	require.NoError(t, ctx.EnsureFile(fake, "/etc/motd", []byte("changed\n"), spec))
	file, ok := fake.File("/etc/motd")
	require.True(t, ok)
	assert.Equal(t, "changed\n", string(file.Content))
}

func TestCommandProbes(t *testing.T) {
	t.Parallel()
	fake := sshtest.New()
	fake.On(`^incus storage show default$`, ssh.Result{ExitCode: 1, Stderr: "not found"})
	fake.On(`^incus profile list`, ssh.Result{Stdout: "default\ndev\n"})

	ok, err := CommandSucceeds(fake, "incus storage show default")(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = OutputContains(fake, "incus profile list --format csv", "dev")(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = OutputContains(fake, "incus profile list --format csv", "prod")(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
