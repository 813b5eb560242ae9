package host

import (
	"context"
	"fmt"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
)

// configureFirewall enables ufw with SSH as the only inbound service.
// Existing rules are kept so later phases' bridge rules survive re-runs.
func configureFirewall(ctx *provisioning.Context) error {
	if err := ctx.EnsurePackages(ctx.Host, "ufw", "ufw"); err != nil {
		return err
	}

	port := ctx.Config.Server.SSHPort
	if port == 0 {
		port = config.DefaultSSHPort
	}
	// Allowed before enabling so the current session survives.
	if err := ssh.Run(ctx, ctx.Host, fmt.Sprintf("ufw allow %d/tcp", port)); err != nil {
		return err
	}

	probe := provisioning.OutputContains(ctx.Host, "ufw status", "Status: active")
	return ctx.EnsureResource("firewall", "ufw", probe, func(c context.Context) error {
		for _, cmd := range []string{
			"ufw default deny incoming",
			"ufw default allow outgoing",
			"ufw --force enable",
		} {
			if err := ssh.Run(c, ctx.Host, cmd); err != nil {
				return err
			}
		}
		return nil
	})
}
