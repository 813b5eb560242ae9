package provisioning

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	gossh "golang.org/x/crypto/ssh"

	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
)

// BackupSuffix is appended to a guarded file's path for its pre-change copy.
const BackupSuffix = ".vibehost-backup"

// SafetyGate protects changes that can lock the operator out of the host.
// No guarded change is attempted until the admin key has been confirmed.
type SafetyGate struct {
	Exec               ssh.Executor
	AuthorizedKeysPath string
	ExpectedKey        string

	// LoginCheck, when set, performs a live key login as the admin user.
	LoginCheck func(ctx context.Context) error
}

// GuardedChange describes a file rewrite that must pass Validate before
// Restart is issued.
type GuardedChange struct {
	Path     string
	Content  []byte
	Spec     ssh.FileSpec
	Validate string
	Restart  string
}

// VerifyKeyLogin confirms the admin key is installed (and, when configured,
// usable) before any lockout-prone change.
func (g *SafetyGate) VerifyKeyLogin(ctx context.Context) error {
	want, _, _, _, err := gossh.ParseAuthorizedKey([]byte(g.ExpectedKey))
	if err != nil {
		return fmt.Errorf("%w: admin public key does not parse: %v", ErrLockoutRisk, err)
	}

	exists, err := g.Exec.Exists(ctx, g.AuthorizedKeysPath)
	if err != nil {
		return fmt.Errorf("%w: checking %s: %v", ErrLockoutRisk, g.AuthorizedKeysPath, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s does not exist", ErrLockoutRisk, g.AuthorizedKeysPath)
	}

	data, err := g.Exec.ReadFile(ctx, g.AuthorizedKeysPath)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrLockoutRisk, g.AuthorizedKeysPath, err)
	}
	if !containsKey(data, want) {
		return fmt.Errorf("%w: admin key not present in %s", ErrLockoutRisk, g.AuthorizedKeysPath)
	}

	if g.LoginCheck != nil {
		if err := g.LoginCheck(ctx); err != nil {
			return fmt.Errorf("%w: admin key login failed: %v", ErrLockoutRisk, err)
		}
	}
	return nil
}

// containsKey reports whether any authorized_keys line carries want,
// ignoring options and comments. Lines that do not parse never match.
func containsKey(data []byte, want gossh.PublicKey) bool {
	wantBytes := want.Marshal()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, _, _, _, err := gossh.ParseAuthorizedKey([]byte(line))
		if err != nil {
			continue
		}
		if bytes.Equal(key.Marshal(), wantBytes) {
			return true
		}
	}
	return false
}

// ApplyGuarded verifies key login, backs up the current file, writes the
// new content and runs the validator. A failing validator restores the
// exact previous bytes and Restart is never issued.
// It returns false when the file already held the new content.
func (g *SafetyGate) ApplyGuarded(ctx context.Context, change GuardedChange) (bool, error) {
	if err := g.VerifyKeyLogin(ctx); err != nil {
		return false, err
	}

	existed, err := g.Exec.Exists(ctx, change.Path)
	if err != nil {
		return false, err
	}

	var original []byte
	if existed {
		original, err = g.Exec.ReadFile(ctx, change.Path)
		if err != nil {
			return false, fmt.Errorf("reading %s: %w", change.Path, err)
		}
		if bytes.Equal(original, change.Content) {
			return false, nil
		}
		backup := change.Path + BackupSuffix
		if err := ssh.Run(ctx, g.Exec, fmt.Sprintf("cp -p %s %s", ssh.Quote(change.Path), ssh.Quote(backup))); err != nil {
			return false, fmt.Errorf("backing up %s: %w", change.Path, err)
		}
	}

	if err := g.Exec.Materialize(ctx, change.Path, change.Content, change.Spec); err != nil {
		return false, err
	}

	if change.Validate != "" {
		res, err := ssh.Probe(ctx, g.Exec, change.Validate)
		if err != nil {
			return false, err
		}
		if !res.OK() {
			if rerr := g.restore(ctx, change, existed, original); rerr != nil {
				return false, fmt.Errorf("%w (restore failed: %v): %s", ErrValidationRollback, rerr, strings.TrimSpace(res.Stderr))
			}
			return false, fmt.Errorf("%w: %s: %s", ErrValidationRollback, change.Validate, strings.TrimSpace(res.Stderr))
		}
	}

	if change.Restart != "" {
		if err := ssh.Run(ctx, g.Exec, change.Restart); err != nil {
			return true, fmt.Errorf("restarting after %s change: %w", change.Path, err)
		}
	}
	return true, nil
}

// Activate restarts the service for a guarded file that is already in
// place, after confirming the admin key again and re-running Validate.
// Nothing is written or restored.
func (g *SafetyGate) Activate(ctx context.Context, change GuardedChange) error {
	if err := g.VerifyKeyLogin(ctx); err != nil {
		return err
	}
	if change.Validate != "" {
		res, err := ssh.Probe(ctx, g.Exec, change.Validate)
		if err != nil {
			return err
		}
		if !res.OK() {
			return fmt.Errorf("%s rejects %s: %s", change.Validate, change.Path, strings.TrimSpace(res.Stderr))
		}
	}
	if change.Restart == "" {
		return nil
	}
	if err := ssh.Run(ctx, g.Exec, change.Restart); err != nil {
		return fmt.Errorf("restarting after %s change: %w", change.Path, err)
	}
	return nil
}

func (g *SafetyGate) restore(ctx context.Context, change GuardedChange, existed bool, original []byte) error {
	if !existed {
		return ssh.Run(ctx, g.Exec, "rm -f "+ssh.Quote(change.Path))
	}
	return g.Exec.Materialize(ctx, change.Path, original, change.Spec)
}

// AuthorizedKeyPresent probes whether path lists key.
func AuthorizedKeyPresent(exec ssh.Executor, path, key string) Probe {
	return func(ctx context.Context) (bool, error) {
		want, _, _, _, err := gossh.ParseAuthorizedKey([]byte(key))
		if err != nil {
			return false, fmt.Errorf("invalid public key: %w", err)
		}
		exists, err := exec.Exists(ctx, path)
		if err != nil || !exists {
			return false, err
		}
		data, err := exec.ReadFile(ctx, path)
		if err != nil {
			return false, err
		}
		return containsKey(data, want), nil
	}
}
