package provisioning

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/container"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
)

// Context carries everything a phase needs. It embeds context.Context so it
// can be passed directly to blocking remote operations.
type Context struct {
	context.Context

	Config   *config.Config
	State    *State
	Observer Observer
	Timeouts *config.Timeouts
	Metrics  *Metrics

	// Host is the privileged command channel to the server.
	Host ssh.Executor

	// VerifyAdminLogin, when set, opens a fresh login as the admin user with
	// the admin key. A nil func skips the live check.
	VerifyAdminLogin func(ctx context.Context) error

	// Version is the tool version recorded on the workloads it creates.
	Version string

	mu        sync.Mutex
	phase     string
	operation string
	workloads map[string]*container.Channel
}

// NewContext creates a provisioning context for one run.
func NewContext(ctx context.Context, cfg *config.Config, host ssh.Executor, observer Observer) *Context {
	return &Context{
		Context:  ctx,
		Config:   cfg,
		State:    NewState(uuid.NewString()),
		Observer: observer,
		Timeouts: config.LoadTimeouts(),
		Metrics:  NewMetrics(),
		Host:     host,
	}
}

// Workload returns the command channel into the named container.
// Channels are cached so the existence probe runs once per workload.
func (c *Context) Workload(name string) *container.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.workloads == nil {
		c.workloads = make(map[string]*container.Channel)
	}
	ch, ok := c.workloads[name]
	if !ok {
		ch = container.New(c.Host, name)
		c.workloads[name] = ch
	}
	return ch
}

// Phase returns the name of the phase currently running.
func (c *Context) Phase() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Context) enterPhase(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = name
	c.operation = ""
}

func (c *Context) failedOperation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.operation
}

// Step runs one named operation of the current phase. The name is reported
// to the observer and, on failure, becomes PhaseError.Operation.
func (c *Context) Step(name string, fn func() error) error {
	phase := c.Phase()
	if c.Observer != nil {
		LogOperation(c.Observer, phase, name)
	}
	err := fn()
	c.Metrics.ObserveOperation(phase, err)
	if err != nil {
		c.mu.Lock()
		if c.operation == "" {
			c.operation = name
		}
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Printf logs through the observer.
func (c *Context) Printf(format string, v ...interface{}) {
	if c.Observer != nil {
		c.Observer.Printf(format, v...)
	}
}

// Warn records an advisory note and reports it as a warning event.
func (c *Context) Warn(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	phase := c.Phase()
	if c.State != nil {
		c.State.AddNote(phase, msg)
	}
	if c.Observer != nil {
		LogValidationWarning(c.Observer, phase, msg)
	}
}
