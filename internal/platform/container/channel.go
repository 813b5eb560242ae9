package container

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
)

// ErrWorkloadNotFound reports that the named workload does not exist on the host.
var ErrWorkloadNotFound = errors.New("workload not found")

// Status values reported by incus info.
const (
	StatusRunning = "RUNNING"
	StatusStopped = "STOPPED"
)

// Channel executes inside one workload.
type Channel struct {
	host ssh.Executor
	name string

	mu       sync.Mutex
	verified bool
}

var _ ssh.Executor = (*Channel)(nil)

// New returns a channel for the named workload.
func New(host ssh.Executor, name string) *Channel {
	return &Channel{host: host, name: name}
}

// Name returns the workload name.
func (c *Channel) Name() string {
	return c.name
}

// QuoteForBash quotes a command so it can be passed as a single argument to bash -c.
func QuoteForBash(command string) string {
	return ssh.Quote(command)
}

// Command returns the host command that runs command inside the workload.
func (c *Channel) Command(command string) string {
	return fmt.Sprintf("incus exec %s -- bash -c %s", c.name, QuoteForBash(command))
}

// Execute runs command inside the workload. The host side always runs privileged.
func (c *Channel) Execute(ctx context.Context, command string, opts ssh.ExecOptions) (*ssh.Result, error) {
	if err := c.ensureExists(ctx); err != nil {
		return nil, err
	}
	hostOpts := opts
	hostOpts.Privileged = true
	res, err := c.host.Execute(ctx, c.Command(command), hostOpts)
	if err != nil {
		var cmdErr *ssh.CommandError
		if errors.As(err, &cmdErr) && looksLikeMissingInstance(cmdErr.Stderr) {
			if missing, probeErr := c.missing(ctx); probeErr == nil && missing {
				return nil, fmt.Errorf("%w: %s", ErrWorkloadNotFound, c.name)
			}
		}
		if cmdErr != nil {
			// Report the inner command rather than the incus wrapper.
			shown := command
			if opts.Sensitive {
				shown = "<redacted>"
			}
			return res, &ssh.CommandError{
				Command:  fmt.Sprintf("[%s] %s", c.name, shown),
				ExitCode: cmdErr.ExitCode,
				Stderr:   cmdErr.Stderr,
			}
		}
		return res, err
	}
	return res, nil
}

// ensureExists probes the workload once per channel.
func (c *Channel) ensureExists(ctx context.Context) error {
	c.mu.Lock()
	verified := c.verified
	c.mu.Unlock()
	if verified {
		return nil
	}
	missing, err := c.missing(ctx)
	if err != nil {
		return err
	}
	if missing {
		return fmt.Errorf("%w: %s", ErrWorkloadNotFound, c.name)
	}
	c.mu.Lock()
	c.verified = true
	c.mu.Unlock()
	return nil
}

func (c *Channel) missing(ctx context.Context) (bool, error) {
	res, err := ssh.Probe(ctx, c.host, "incus info "+c.name)
	if err != nil {
		return false, err
	}
	return !res.OK(), nil
}

func looksLikeMissingInstance(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "not found") || strings.Contains(s, "instance not running")
}

// Exists reports whether path exists inside the workload.
func (c *Channel) Exists(ctx context.Context, p string) (bool, error) {
	res, err := c.Execute(ctx, "test -e "+ssh.Quote(p), ssh.ExecOptions{TolerateFailure: true})
	if err != nil {
		return false, err
	}
	return res.OK(), nil
}

// ReadFile returns the content of a file inside the workload.
func (c *Channel) ReadFile(ctx context.Context, p string) ([]byte, error) {
	res, err := c.Execute(ctx, "cat "+ssh.Quote(p), ssh.ExecOptions{Capture: true})
	if err != nil {
		return nil, err
	}
	return []byte(res.Stdout), nil
}

// Materialize writes a file inside the workload. The content is staged in a
// host temp file and pushed with incus file push, which replaces the target
// in one transfer.
func (c *Channel) Materialize(ctx context.Context, p string, content []byte, spec ssh.FileSpec) error {
	if err := c.ensureExists(ctx); err != nil {
		return err
	}
	tmp := "/tmp/vibehost-push-" + uuid.NewString()
	if err := c.host.Materialize(ctx, tmp, content, ssh.FileSpec{Mode: 0o600}); err != nil {
		return err
	}
	defer func() {
		_, _ = c.host.Execute(context.WithoutCancel(ctx), "rm -f "+ssh.Quote(tmp),
			ssh.ExecOptions{Privileged: true, TolerateFailure: true})
	}()

	mode := spec.Mode
	if mode == 0 {
		mode = 0o644
	}
	if _, err := c.Execute(ctx, "mkdir -p "+ssh.Quote(path.Dir(p)), ssh.ExecOptions{}); err != nil {
		return fmt.Errorf("%w: %s/%s: %w", ssh.ErrWrite, c.name, p, err)
	}
	push := fmt.Sprintf("incus file push --mode %04o", mode.Perm())
	if spec.Owner != "" {
		uid, err := c.lookupID(ctx, "-u", spec.Owner)
		if err != nil {
			return err
		}
		push += " --uid " + uid
	}
	if spec.Group != "" {
		gid, err := c.lookupID(ctx, "-g", spec.Group)
		if err != nil {
			return err
		}
		push += " --gid " + gid
	}
	push += " " + ssh.Quote(tmp) + " " + ssh.Quote(c.name+p)

	if _, err := c.host.Execute(ctx, push, ssh.ExecOptions{Privileged: true}); err != nil {
		return fmt.Errorf("%w: %s/%s: %w", ssh.ErrWrite, c.name, p, err)
	}
	return nil
}

func (c *Channel) lookupID(ctx context.Context, flag, name string) (string, error) {
	res, err := c.Execute(ctx, "id "+flag+" "+ssh.Quote(name), ssh.ExecOptions{Capture: true})
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s inside %s: %w", name, c.name, err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Append adds content to a file inside the workload.
func (c *Channel) Append(ctx context.Context, p string, content []byte) error {
	cmd := fmt.Sprintf("mkdir -p %s && tee -a %s > /dev/null", ssh.Quote(path.Dir(p)), ssh.Quote(p))
	if _, err := c.Execute(ctx, cmd, ssh.ExecOptions{Stdin: bytes.NewReader(content)}); err != nil {
		return fmt.Errorf("%w: %s/%s: %w", ssh.ErrWrite, c.name, p, err)
	}
	return nil
}

// Status returns the workload status as reported by incus info, e.g. RUNNING.
func (c *Channel) Status(ctx context.Context) (string, error) {
	res, err := ssh.Probe(ctx, c.host, "incus info "+c.name)
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", fmt.Errorf("%w: %s", ErrWorkloadNotFound, c.name)
	}
	return ParseStatus(res.Stdout), nil
}

// ParseStatus extracts the Status field from incus info output.
func ParseStatus(info string) string {
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if v, ok := strings.CutPrefix(line, "Status:"); ok {
			return strings.ToUpper(strings.TrimSpace(v))
		}
	}
	return ""
}
