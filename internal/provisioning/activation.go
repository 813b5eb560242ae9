package provisioning

import (
	"context"
	"fmt"
	"path"

	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
)

// PendingDir holds one marker per service whose configuration was written
// but not yet applied to the running process.
const PendingDir = "/var/lib/vibehost-setup/pending"

// PendingMarker returns the marker path for a named activation.
func PendingMarker(name string) string {
	return path.Join(PendingDir, name)
}

// Activation ties a service restart or reload to the files it consumes.
// The marker is recorded before the first tracked write and cleared only
// after Complete succeeds, so a run that stops in between still activates
// the service on the next run even though every file already matches.
type Activation struct {
	exec    ssh.Executor
	name    string
	pending bool
}

// NewActivation looks for a marker left behind by an interrupted run.
func (c *Context) NewActivation(exec ssh.Executor, name string) (*Activation, error) {
	pending, err := exec.Exists(c, PendingMarker(name))
	if err != nil {
		return nil, fmt.Errorf("checking pending %s activation: %w", name, err)
	}
	if pending {
		c.Printf("[%s] %s was left unapplied by a previous run", c.Phase(), name)
	}
	return &Activation{exec: exec, name: name, pending: pending}, nil
}

// Pending reports whether Complete still has work to do.
func (a *Activation) Pending() bool {
	return a.pending
}

// Track returns apply with the marker recorded ahead of it.
func (a *Activation) Track(apply Apply) Apply {
	return func(ctx context.Context) error {
		if !a.pending {
			if err := ssh.Run(ctx, a.exec, "mkdir -p "+ssh.Quote(PendingDir)); err != nil {
				return err
			}
			if err := a.exec.Materialize(ctx, PendingMarker(a.name), []byte(a.name+"\n"), ssh.FileSpec{Mode: 0o600}); err != nil {
				return fmt.Errorf("recording pending %s activation: %w", a.name, err)
			}
			a.pending = true
		}
		return apply(ctx)
	}
}

// Complete runs activate when a tracked write happened in this or an
// earlier run, then clears the marker.
func (a *Activation) Complete(ctx context.Context, activate Apply) error {
	if !a.pending {
		return nil
	}
	if err := activate(ctx); err != nil {
		return err
	}
	if err := ssh.Run(ctx, a.exec, "rm -f "+ssh.Quote(PendingMarker(a.name))); err != nil {
		return fmt.Errorf("clearing pending %s activation: %w", a.name, err)
	}
	a.pending = false
	return nil
}
