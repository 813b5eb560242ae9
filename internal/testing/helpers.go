package testing

import (
	"context"
	"testing"
	"time"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
)

// TestContext returns a context with a reasonable timeout for tests.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// NewContext returns a provisioning context bound to host with short
// readiness timeouts and a recording observer.
func NewContext(t *testing.T, cfg *config.Config, host ssh.Executor) (*provisioning.Context, *RecordingObserver) {
	t.Helper()
	obs := &RecordingObserver{}
	ctx := provisioning.NewContext(TestContext(t), cfg, host, obs)
	ctx.Timeouts.ContainerReady = 200 * time.Millisecond
	ctx.Timeouts.ReadyPoll = 10 * time.Millisecond
	ctx.Timeouts.RetryInitialDelay = time.Millisecond
	return ctx, obs
}
