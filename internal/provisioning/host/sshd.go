package host

import (
	"context"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/templates"
)

// Paths and commands of the guarded sshd change.
const (
	SSHDConfigPath = "/etc/ssh/sshd_config"
	sshdValidate   = "/usr/sbin/sshd -t"
	sshdRestart    = "systemctl restart ssh"
)

// AllowUsers returns the accounts permitted to log in after hardening:
// the admin, plus the initial login user when it is a different account.
func AllowUsers(cfg *config.Config) []string {
	users := []string{cfg.Admin.Username}
	if u := cfg.Server.SSHUser; u != "" && u != cfg.Admin.Username {
		users = append(users, u)
	}
	return users
}

// RenderSSHDConfig renders the hardened sshd_config for cfg.
func RenderSSHDConfig(cfg *config.Config) ([]byte, error) {
	port := cfg.Server.SSHPort
	if port == 0 {
		port = config.DefaultSSHPort
	}
	return templates.Render("host/sshd_config.tmpl", map[string]any{
		"Port":       port,
		"AllowUsers": AllowUsers(cfg),
	})
}

// hardenSSH writes the hardened sshd_config behind the safety gate and
// restarts sshd. The restart is tracked separately from the write, so a run
// that stopped after writing restarts sshd on the next run.
func hardenSSH(ctx *provisioning.Context) error {
	content, err := RenderSSHDConfig(ctx.Config)
	if err != nil {
		return err
	}

	gate := &provisioning.SafetyGate{
		Exec:               ctx.Host,
		AuthorizedKeysPath: AuthorizedKeysPath(ctx.Config.Admin.Username),
		ExpectedKey:        ctx.Config.Admin.SSHPublicKey,
		LoginCheck:         ctx.VerifyAdminLogin,
	}
	change := provisioning.GuardedChange{
		Path:     SSHDConfigPath,
		Content:  content,
		Spec:     ssh.FileSpec{Mode: 0o644, Owner: "root", Group: "root"},
		Validate: sshdValidate,
		Restart:  sshdRestart,
	}

	act, err := ctx.NewActivation(ctx.Host, "sshd")
	if err != nil {
		return err
	}
	probe := provisioning.FileMatches(ctx.Host, SSHDConfigPath, content)
	err = ctx.EnsureResource("file", SSHDConfigPath, probe, act.Track(func(c context.Context) error {
		if gate.LoginCheck == nil {
			ctx.Warn("admin key login was not tested live; only authorized_keys was checked")
		}
		write := change
		write.Restart = ""
		_, err := gate.ApplyGuarded(c, write)
		return err
	}))
	if err != nil {
		return err
	}
	return act.Complete(ctx, func(c context.Context) error {
		return gate.Activate(c, change)
	})
}
