package ssh

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConnection reports that the channel could not be established.
	ErrConnection = errors.New("ssh connection failed")
	// ErrAuthentication reports that the server rejected every offered credential.
	ErrAuthentication = errors.New("ssh authentication rejected")
	// ErrCommandFailure reports a non-zero exit that was not tolerated.
	ErrCommandFailure = errors.New("remote command failed")
	// ErrWrite reports a failed file materialization or append.
	ErrWrite = errors.New("remote write failed")
)

const stderrTailLines = 15

// Result is the outcome of one remote command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK reports whether the command exited zero.
func (r *Result) OK() bool {
	return r != nil && r.ExitCode == 0
}

// CommandError describes a command that exited non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command exited with status %d: %s", e.ExitCode, e.Command)
	if tail := tail(e.Stderr, stderrTailLines); tail != "" {
		msg += "\n" + tail
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return ErrCommandFailure
}

// tail returns the last n non-empty lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// HostKeyMismatchError is returned when the server presents a key that
// differs from the one recorded in known_hosts.
type HostKeyMismatchError struct {
	Hostname     string
	ReceivedType string
	KnownHosts   string
	WantTypes    []string
}

func (e *HostKeyMismatchError) Error() string {
	want := "unknown"
	if len(e.WantTypes) > 0 {
		want = strings.Join(e.WantTypes, ", ")
	}
	return fmt.Sprintf("host key mismatch for %s: server sent %s key, %s records %s (remove the entry with: ssh-keygen -R %s)",
		e.Hostname, e.ReceivedType, e.KnownHosts, want, e.Hostname)
}

// UnknownHostError is returned in strict mode when the host is not in known_hosts.
type UnknownHostError struct {
	Hostname   string
	KnownHosts string
}

func (e *UnknownHostError) Error() string {
	return fmt.Sprintf("host %s is not in %s and strict host key checking is enabled", e.Hostname, e.KnownHosts)
}
