package ssh

import (
	"context"
	"io"
	"os"
	"strings"
)

// ExecOptions controls a single command execution.
type ExecOptions struct {
	// Privileged runs the command as root.
	Privileged bool
	// TolerateFailure returns a non-zero exit as a normal Result instead of a *CommandError.
	TolerateFailure bool
	// Capture keeps stdout in the Result. Stderr is always kept for diagnostics.
	Capture bool
	// Stdin is fed to the command when set.
	Stdin io.Reader
	// Sensitive hides the command text in errors because it carries secrets.
	Sensitive bool
}

// FileSpec describes the permissions of a materialized file.
type FileSpec struct {
	Mode  os.FileMode
	Owner string
	Group string
}

// Executor is the command channel every provisioning step runs through.
// *Client implements it for a host; container.Channel implements it for a workload.
type Executor interface {
	Execute(ctx context.Context, command string, opts ExecOptions) (*Result, error)
	Exists(ctx context.Context, path string) (bool, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Materialize(ctx context.Context, path string, content []byte, spec FileSpec) error
	Append(ctx context.Context, path string, content []byte) error
}

// Quote wraps s in single quotes for a POSIX shell. Embedded single quotes
// are closed, emitted inside double quotes, and reopened.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Run executes a privileged command that must succeed.
func Run(ctx context.Context, exec Executor, command string) error {
	_, err := exec.Execute(ctx, command, ExecOptions{Privileged: true})
	return err
}

// Output executes a privileged command that must succeed and returns its trimmed stdout.
func Output(ctx context.Context, exec Executor, command string) (string, error) {
	res, err := exec.Execute(ctx, command, ExecOptions{Privileged: true, Capture: true})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Probe executes a privileged command whose failure is expected information.
func Probe(ctx context.Context, exec Executor, command string) (*Result, error) {
	return exec.Execute(ctx, command, ExecOptions{Privileged: true, TolerateFailure: true, Capture: true})
}
