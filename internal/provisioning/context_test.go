package provisioning

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh/sshtest"
)

func TestNewContext(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Server: config.ServerConfig{Host: "203.0.113.10"}}
	fake := sshtest.New()
	observer := NewMockObserver()

	ctx := NewContext(context.Background(), cfg, fake, observer)

	require.NotNil(t, ctx)
	assert.Same(t, cfg, ctx.Config)
	assert.NotNil(t, ctx.State)
	assert.NotEmpty(t, ctx.State.RunID)
	assert.NotNil(t, ctx.Timeouts)
	assert.NotNil(t, ctx.Metrics)
	assert.Equal(t, observer, ctx.Observer)
}

func TestContext_WorkloadIsCached(t *testing.T) {
	t.Parallel()
	ctx := NewContext(context.Background(), &config.Config{}, sshtest.New(), NewMockObserver())

	dev := ctx.Workload("dev")

	assert.Same(t, dev, ctx.Workload("dev"))
	assert.NotSame(t, dev, ctx.Workload("prod"))
	assert.Equal(t, "dev", dev.Name())
}

func TestContext_StepRecordsFirstFailure(t *testing.T) {
	t.Parallel()
	observer := NewMockObserver()
	ctx := newTestContext(observer)
	ctx.enterPhase("database")

	require.NoError(t, ctx.Step("install", func() error { return nil }))
	err := ctx.Step("create roles", func() error { return errors.New("role exists") })
	_ = ctx.Step("cleanup", func() error { return errors.New("later") })

	require.Error(t, err)
	assert.Equal(t, "create roles: role exists", err.Error())
	assert.Equal(t, "create roles", ctx.failedOperation())
	ops := observer.eventsOfType(EventOperationStarted)
	require.Len(t, ops, 3)
	assert.Equal(t, "database", ops[0].Phase)
}

func TestContext_Warn(t *testing.T) {
	t.Parallel()
	observer := NewMockObserver()
	ctx := newTestContext(observer)
	ctx.enterPhase("backups")

	ctx.Warn("offsite %s", "disabled")

	assert.Equal(t, []Note{{Phase: "backups", Message: "offsite disabled"}}, ctx.State.Notes())
	assert.Len(t, observer.eventsOfType(EventValidationWarning), 1)
}
