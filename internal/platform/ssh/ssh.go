package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/conway-vibehost/vibehost-setup/internal/util/retry"
)

type sudoMode int

const (
	sudoUnknown sudoMode = iota
	sudoNoPassword
	sudoWithPassword
)

// Client executes commands on a remote server via SSH.
// It parses the private key once during construction and dials the
// connection on first use. The connection is reused until Close.
type Client struct {
	config *Config
	signer ssh.Signer

	mu   sync.Mutex
	conn *ssh.Client
	sftp *sftp.Client
	// sftpFailed disables SFTP after the subsystem was refused once.
	sftpFailed bool
	sudo       sudoMode
	closed     bool
}

var _ Executor = (*Client)(nil)

// NewClient creates a new SSH client, resolving host aliases and validating credentials.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("config host cannot be empty")
	}

	// Copy config to avoid mutating caller's struct
	configCopy := *cfg
	configCopy.resolveAlias()

	if configCopy.User == "" {
		return nil, fmt.Errorf("config user cannot be empty")
	}
	hasKey := len(configCopy.PrivateKey) > 0 || configCopy.PrivateKeyPath != ""
	if hasKey == (configCopy.Password != "") {
		return nil, fmt.Errorf("config needs exactly one of password or private key")
	}

	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.MaxRetries == 0 {
		configCopy.MaxRetries = defaultMaxRetries
	}
	if configCopy.RetryDelay == 0 {
		configCopy.RetryDelay = defaultRetryDelay
	}
	if configCopy.KnownHostsPath == "" {
		configCopy.KnownHostsPath = filepath.Join(homeDir(), ".ssh", "known_hosts")
	}

	signer, err := configCopy.parseSigner()
	if err != nil {
		return nil, err
	}

	return &Client{
		config: &configCopy,
		signer: signer,
	}, nil
}

// User returns the login identity.
func (c *Client) User() string {
	return c.config.User
}

// Address returns the resolved host:port.
func (c *Client) Address() string {
	return c.config.address()
}

// Connect dials the server if no connection is open yet.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.client(ctx)
	return err
}

func (c *Client) client(ctx context.Context) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("%w: client is closed", ErrConnection)
	}
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

// connect establishes SSH connection with retry logic.
// Authentication and host key failures are not retried.
func (c *Client) connect(ctx context.Context) (*ssh.Client, error) {
	hostKeyCallback := c.config.HostKeyCallback
	if hostKeyCallback == nil {
		cb, err := knownHostsCallback(c.config.KnownHostsPath, c.config.StrictHostKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnection, err)
		}
		hostKeyCallback = cb
	}

	config := &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            c.config.authMethods(c.signer),
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}

	addr := c.config.address()
	var client *ssh.Client

	err := retry.WithExponentialBackoff(ctx, func() error {
		var dialErr error
		client, dialErr = dial(ctx, addr, config)
		if dialErr == nil {
			return nil
		}
		var mismatch *HostKeyMismatchError
		var unknown *UnknownHostError
		if errors.As(dialErr, &mismatch) || errors.As(dialErr, &unknown) {
			return retry.Fatal(dialErr)
		}
		if isAuthError(dialErr) {
			return retry.Fatal(fmt.Errorf("%w for %s@%s: %w", ErrAuthentication, c.config.User, addr, dialErr))
		}
		return dialErr
	},
		retry.WithMaxRetries(c.config.MaxRetries),
		retry.WithInitialDelay(c.config.RetryDelay),
		retry.WithMaxDelay(defaultMaxDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s@%s: %w", ErrConnection, c.config.User, addr, err)
	}

	return client, nil
}

func dial(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: config.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func isAuthError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "no supported methods remain")
}

// Execute runs a command on the remote host.
// A non-zero exit is returned as *CommandError unless opts.TolerateFailure is set.
func (c *Client) Execute(ctx context.Context, command string, opts ExecOptions) (*Result, error) {
	conn, err := c.client(ctx)
	if err != nil {
		return nil, err
	}

	full, stdin, err := c.wrap(ctx, conn, command, opts)
	if err != nil {
		return nil, err
	}

	res, err := runSession(ctx, conn, full, stdin, opts.Capture)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 && !opts.TolerateFailure {
		shown := command
		if opts.Sensitive {
			shown = "<redacted>"
		}
		return res, &CommandError{Command: shown, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return res, nil
}

// wrap applies privilege escalation. Root logins pass through unchanged.
func (c *Client) wrap(ctx context.Context, conn *ssh.Client, command string, opts ExecOptions) (string, io.Reader, error) {
	if !opts.Privileged || c.config.User == "root" {
		return command, opts.Stdin, nil
	}

	mode, err := c.sudoMode(ctx, conn)
	if err != nil {
		return "", nil, err
	}
	inner := "bash -c " + Quote(command)
	if mode == sudoNoPassword {
		return "sudo -n " + inner, opts.Stdin, nil
	}
	// sudo -S consumes the first line of stdin; the command sees the rest.
	stdin := io.Reader(strings.NewReader(c.config.Password + "\n"))
	if opts.Stdin != nil {
		stdin = io.MultiReader(stdin, opts.Stdin)
	}
	return "sudo -S -p '' " + inner, stdin, nil
}

// sudoMode probes once whether sudo works without a password.
func (c *Client) sudoMode(ctx context.Context, conn *ssh.Client) (sudoMode, error) {
	c.mu.Lock()
	mode := c.sudo
	c.mu.Unlock()
	if mode != sudoUnknown {
		return mode, nil
	}

	res, err := runSession(ctx, conn, "sudo -n true", nil, false)
	if err != nil {
		return sudoUnknown, err
	}
	switch {
	case res.OK():
		mode = sudoNoPassword
	case c.config.Password != "":
		mode = sudoWithPassword
	default:
		return sudoUnknown, fmt.Errorf("%w: %s cannot use sudo without a password and no password is configured",
			ErrCommandFailure, c.config.User)
	}

	c.mu.Lock()
	c.sudo = mode
	c.mu.Unlock()
	return mode, nil
}

// runSession executes one command on a fresh session.
// Cancelling ctx kills the remote command.
func runSession(ctx context.Context, conn *ssh.Client, command string, stdin io.Reader, capture bool) (*Result, error) {
	session, err := conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create session: %w", ErrConnection, err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	if capture {
		session.Stdout = &stdout
	} else {
		session.Stdout = io.Discard
	}
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = stdin
	}

	if err := session.Start(command); err != nil {
		return nil, fmt.Errorf("%w: failed to start command: %w", ErrConnection, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if err == nil {
			return res, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		return nil, fmt.Errorf("%w: command did not complete: %w", ErrConnection, err)
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return nil, ctx.Err()
	}
}

// Exists reports whether path exists on the host.
func (c *Client) Exists(ctx context.Context, p string) (bool, error) {
	res, err := c.Execute(ctx, "test -e "+Quote(p), ExecOptions{Privileged: true, TolerateFailure: true})
	if err != nil {
		return false, err
	}
	return res.OK(), nil
}

// ReadFile returns the content of a file readable by root.
func (c *Client) ReadFile(ctx context.Context, p string) ([]byte, error) {
	res, err := c.Execute(ctx, "cat "+Quote(p), ExecOptions{Privileged: true, Capture: true})
	if err != nil {
		return nil, err
	}
	return []byte(res.Stdout), nil
}

// Materialize writes content to path atomically: the bytes are uploaded to a
// private temporary file, installed next to the destination with the
// requested mode and ownership, and renamed over it.
func (c *Client) Materialize(ctx context.Context, p string, content []byte, spec FileSpec) error {
	tmp := "/tmp/.vibehost-" + uuid.NewString()
	if err := c.upload(ctx, tmp, content); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, p, err)
	}

	mode := spec.Mode
	if mode == 0 {
		mode = 0o644
	}
	staged := p + ".vibehost-tmp"
	install := fmt.Sprintf("install -m %04o", mode.Perm())
	if spec.Owner != "" {
		install += " -o " + Quote(spec.Owner)
	}
	if spec.Group != "" {
		install += " -g " + Quote(spec.Group)
	}
	script := fmt.Sprintf("%s %s %s && mv -f %s %s; rc=$?; rm -f %s; exit $rc",
		install, Quote(tmp), Quote(staged), Quote(staged), Quote(p), Quote(tmp))

	if _, err := c.Execute(ctx, script, ExecOptions{Privileged: true}); err != nil {
		// The temp file is owned by the login user, so remove it without privileges too.
		_, _ = c.Execute(ctx, "rm -f "+Quote(tmp), ExecOptions{TolerateFailure: true})
		return fmt.Errorf("%w: %s: %w", ErrWrite, p, err)
	}
	return nil
}

// upload places content at tmp with mode 0600, preferring SFTP and falling
// back to streaming over stdin when the subsystem is unavailable.
func (c *Client) upload(ctx context.Context, tmp string, content []byte) error {
	if sc := c.sftpClient(ctx); sc != nil {
		f, err := sc.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL)
		if err == nil {
			if err := f.Chmod(0o600); err != nil {
				_ = f.Close()
				return fmt.Errorf("failed to chmod %s: %w", tmp, err)
			}
			if _, err := f.Write(content); err != nil {
				_ = f.Close()
				_ = sc.Remove(tmp)
				return fmt.Errorf("failed to upload %s: %w", tmp, err)
			}
			return f.Close()
		}
	}

	cmd := fmt.Sprintf("umask 077 && cat > %s", Quote(tmp))
	_, err := c.Execute(ctx, cmd, ExecOptions{Stdin: bytes.NewReader(content)})
	return err
}

func (c *Client) sftpClient(ctx context.Context) *sftp.Client {
	conn, err := c.client(ctx)
	if err != nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sftp != nil || c.sftpFailed {
		return c.sftp
	}
	sc, err := sftp.NewClient(conn)
	if err != nil {
		c.sftpFailed = true
		return nil
	}
	c.sftp = sc
	return sc
}

// Append adds content to the end of path, creating it if needed.
func (c *Client) Append(ctx context.Context, p string, content []byte) error {
	cmd := fmt.Sprintf("mkdir -p %s && tee -a %s > /dev/null", Quote(path.Dir(p)), Quote(p))
	if _, err := c.Execute(ctx, cmd, ExecOptions{Privileged: true, Stdin: bytes.NewReader(content)}); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, p, err)
	}
	return nil
}

// Close closes the SFTP subsystem and the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true

	var errs []error
	if c.sftp != nil {
		errs = append(errs, c.sftp.Close())
		c.sftp = nil
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
		c.conn = nil
	}
	return errors.Join(errs...)
}
