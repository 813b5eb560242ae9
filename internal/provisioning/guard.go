package provisioning

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
)

// Probe reports whether a resource is already present.
type Probe func(ctx context.Context) (bool, error)

// Apply creates a resource.
type Apply func(ctx context.Context) error

// Ensure runs apply only when probe reports the resource absent. It returns
// whether apply ran. A probe error is returned without calling apply, and
// an apply that reports ErrResourceExists counts as a skip.
func Ensure(ctx context.Context, probe Probe, apply Apply) (bool, error) {
	present, err := probe(ctx)
	if err != nil {
		return false, fmt.Errorf("probe failed: %w", err)
	}
	if present {
		return false, nil
	}
	if err := apply(ctx); err != nil {
		if errors.Is(err, ErrResourceExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// EnsureResource is Ensure with events and metrics for a named resource.
func (c *Context) EnsureResource(kind, name string, probe Probe, apply Apply) error {
	phase := c.Phase()
	start := time.Now()

	applied, err := Ensure(c, probe, func(ctx context.Context) error {
		if c.Observer != nil {
			LogResourceCreating(c.Observer, phase, kind, name)
		}
		return apply(ctx)
	})
	switch {
	case err != nil:
		c.Metrics.ObserveResource(kind, "failed")
		if c.Observer != nil {
			LogResourceFailed(c.Observer, phase, kind, name, err)
		}
		return fmt.Errorf("%s %s: %w", kind, name, err)
	case applied:
		c.Metrics.ObserveResource(kind, "created")
		if c.Observer != nil {
			LogResourceCreated(c.Observer, phase, kind, name, time.Since(start))
		}
	default:
		c.Metrics.ObserveResource(kind, "skipped")
		if c.Observer != nil {
			LogResourceExists(c.Observer, phase, kind, name)
		}
	}
	return nil
}

// PathExists probes for a path through exec.
func PathExists(exec ssh.Executor, path string) Probe {
	return func(ctx context.Context) (bool, error) {
		return exec.Exists(ctx, path)
	}
}

// CommandSucceeds probes by running command and checking its exit status.
func CommandSucceeds(exec ssh.Executor, command string) Probe {
	return func(ctx context.Context) (bool, error) {
		res, err := ssh.Probe(ctx, exec, command)
		if err != nil {
			return false, err
		}
		return res.OK(), nil
	}
}

// OutputContains probes by running command and looking for needle in stdout.
func OutputContains(exec ssh.Executor, command, needle string) Probe {
	return func(ctx context.Context) (bool, error) {
		res, err := ssh.Probe(ctx, exec, command)
		if err != nil {
			return false, err
		}
		return res.OK() && strings.Contains(res.Stdout, needle), nil
	}
}

// OutputEquals probes by comparing the trimmed stdout of command with want.
func OutputEquals(exec ssh.Executor, command, want string) Probe {
	return func(ctx context.Context) (bool, error) {
		res, err := ssh.Probe(ctx, exec, command)
		if err != nil {
			return false, err
		}
		return res.OK() && strings.TrimSpace(res.Stdout) == want, nil
	}
}

// EnsureFile writes content to path unless the file already holds exactly
// that content.
func (c *Context) EnsureFile(exec ssh.Executor, path string, content []byte, spec ssh.FileSpec) error {
	return c.EnsureResource("file", path, FileMatches(exec, path, content), func(ctx context.Context) error {
		return exec.Materialize(ctx, path, content, spec)
	})
}

// FileMatches probes whether path exists with exactly content.
func FileMatches(exec ssh.Executor, path string, content []byte) Probe {
	return func(ctx context.Context) (bool, error) {
		exists, err := exec.Exists(ctx, path)
		if err != nil || !exists {
			return false, err
		}
		current, err := exec.ReadFile(ctx, path)
		if err != nil {
			return false, err
		}
		return bytes.Equal(current, content), nil
	}
}
