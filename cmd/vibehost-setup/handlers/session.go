package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
)

// sshConfigs derives the initial and admin login identities from cfg.
func sshConfigs(cfg *config.Config, strictHostKey bool) (initial, admin *ssh.Config) {
	s := cfg.Server
	initial = &ssh.Config{
		Host:          s.Host,
		Port:          s.SSHPort,
		User:          s.SSHUser,
		UseAgent:      true,
		StrictHostKey: strictHostKey || s.StrictHostKey,
	}
	switch s.AuthMethod {
	case config.AuthSSHKey:
		initial.PrivateKeyPath = s.SSHKeyPath
	default:
		initial.Password = s.SSHPassword
	}

	admin = &ssh.Config{
		Host:           s.Host,
		Port:           s.SSHPort,
		User:           cfg.Admin.Username,
		PrivateKeyPath: cfg.Admin.SSHPrivateKeyPath,
		UseAgent:       true,
		StrictHostKey:  initial.StrictHostKey,
	}
	return initial, admin
}

// connectSession logs in to the host and returns the privileged channel
// together with the session that owns it.
func connectSession(ctx context.Context, initial, admin *ssh.Config) (ssh.Executor, io.Closer, error) {
	session := ssh.NewSession(initial, admin)
	host, err := session.Host(ctx)
	if err != nil {
		_ = session.Close()
		return nil, nil, err
	}
	return host, session, nil
}

// verifyAdminKeyLogin opens a fresh connection as the admin identity.
func verifyAdminKeyLogin(ctx context.Context, admin *ssh.Config) error {
	client, err := ssh.NewClient(admin)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Connect(ctx)
}

// ensurePassword fills in a missing SSH password, prompting when a
// terminal is attached.
func ensurePassword(ctx context.Context, cfg *config.Config) error {
	s := &cfg.Server
	if s.AuthMethod != config.AuthPassword || s.SSHPassword != "" {
		return nil
	}
	if !isInteractiveTTY() {
		return fmt.Errorf("no SSH password for %s@%s: set %s_SERVER_SSH_PASSWORD", s.SSHUser, s.Host, config.EnvPrefix)
	}
	password, err := promptPassword(ctx, s.SSHUser, s.Host)
	if err != nil {
		return fmt.Errorf("failed to read SSH password: %w", err)
	}
	s.SSHPassword = password
	return nil
}

func promptForPassword(ctx context.Context, user, host string) (string, error) {
	var password string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("SSH password for %s@%s", user, host)).
				Description("Used for the initial login only; root login is disabled afterwards").
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("password is required")
					}
					return nil
				}),
		),
	).RunWithContext(ctx)
	return password, err
}

func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
