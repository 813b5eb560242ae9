package host

import (
	"context"
	"fmt"

	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/templates"
)

// HomeDir returns the home directory created for user.
func HomeDir(user string) string {
	return "/home/" + user
}

// AuthorizedKeysPath returns the admin's authorized_keys file.
func AuthorizedKeysPath(user string) string {
	return HomeDir(user) + "/.ssh/authorized_keys"
}

func createAdmin(ctx *provisioning.Context) error {
	user := ctx.Config.Admin.Username
	q := ssh.Quote(user)

	err := ctx.EnsureResource("user", user, provisioning.CommandSucceeds(ctx.Host, "id -u "+q), func(c context.Context) error {
		return ssh.Run(c, ctx.Host, "useradd -m -s /bin/bash "+q)
	})
	if err != nil {
		return err
	}
	if err := ssh.Run(ctx, ctx.Host, "usermod -aG sudo "+q); err != nil {
		return err
	}

	sudoers, err := templates.Render("host/sudoers.tmpl", map[string]any{"Username": user})
	if err != nil {
		return err
	}
	sudoersPath := "/etc/sudoers.d/" + user
	if err := ctx.EnsureFile(ctx.Host, sudoersPath, sudoers, ssh.FileSpec{Mode: 0o440, Owner: "root", Group: "root"}); err != nil {
		return err
	}
	if err := ssh.Run(ctx, ctx.Host, "visudo -cf "+ssh.Quote(sudoersPath)); err != nil {
		return fmt.Errorf("sudoers file rejected: %w", err)
	}

	sshDir := HomeDir(user) + "/.ssh"
	if err := ssh.Run(ctx, ctx.Host, fmt.Sprintf("install -d -m 700 -o %s -g %s %s", q, q, ssh.Quote(sshDir))); err != nil {
		return err
	}

	return installAdminKey(ctx, user)
}

// installAdminKey adds the admin key and repairs ownership of ~/.ssh.
func installAdminKey(ctx *provisioning.Context, user string) error {
	path := AuthorizedKeysPath(user)
	spec := ssh.FileSpec{Mode: 0o600, Owner: user, Group: user}
	if err := ctx.EnsureAuthorizedKey(ctx.Host, path, ctx.Config.Admin.SSHPublicKey, spec); err != nil {
		return err
	}

	q := ssh.Quote(user)
	return ssh.Run(ctx, ctx.Host, fmt.Sprintf("chown -R %s:%s %s && chmod 600 %s",
		q, q, ssh.Quote(HomeDir(user)+"/.ssh"), ssh.Quote(path)))
}
