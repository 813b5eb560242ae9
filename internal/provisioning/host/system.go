package host

import (
	"context"
	"fmt"

	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/templates"
)

const (
	sourcesList    = "/etc/apt/sources.list"
	debianSources  = "/etc/apt/sources.list.d/debian.sources"
	autoUpgrades   = "/etc/apt/apt.conf.d/20auto-upgrades"
	SysctlConfPath = "/etc/sysctl.d/99-vibehost-incus.conf"
)

// enableContrib adds the contrib component needed for ZFS. Both the
// one-line and the deb822 source formats are handled.
func enableContrib(ctx *provisioning.Context) error {
	probe := provisioning.CommandSucceeds(ctx.Host,
		fmt.Sprintf("grep -qsw contrib %s %s", sourcesList, debianSources))

	return ctx.EnsureResource("apt-component", "contrib", probe, func(c context.Context) error {
		oneLine := fmt.Sprintf(`if [ -f %[1]s ]; then sed -i -e 's/main non-free-firmware/main contrib non-free-firmware/g' -e 's/^\(deb.*\) main$/\1 main contrib/' %[1]s; fi`, sourcesList)
		if err := ssh.Run(c, ctx.Host, oneLine); err != nil {
			return err
		}
		deb822 := fmt.Sprintf(`if [ -f %[1]s ]; then sed -i 's/^Components: main/Components: main contrib/' %[1]s; fi`, debianSources)
		return ssh.Run(c, ctx.Host, deb822)
	})
}

func updateSystem(ctx *provisioning.Context) error {
	if err := provisioning.AptUpdate(ctx, ctx.Host); err != nil {
		return err
	}
	return ssh.Run(ctx, ctx.Host, "DEBIAN_FRONTEND=noninteractive apt-get upgrade -y -q -o Dpkg::Options::=--force-confold")
}

func installCrowdSec(ctx *provisioning.Context) error {
	packages := []string{"crowdsec", "crowdsec-firewall-bouncer-iptables"}
	probe := provisioning.PackagesInstalled(ctx.Host, packages...)

	err := ctx.EnsureResource("service", "crowdsec", probe, func(c context.Context) error {
		if err := provisioning.AptInstall(c, ctx.Host, "curl"); err != nil {
			return err
		}
		if err := ssh.Run(c, ctx.Host, "curl -fsSL https://install.crowdsec.net | bash"); err != nil {
			return fmt.Errorf("adding CrowdSec repository: %w", err)
		}
		if err := provisioning.AptUpdate(c, ctx.Host); err != nil {
			return err
		}
		return provisioning.AptInstall(c, ctx.Host, packages...)
	})
	if err != nil {
		return err
	}
	return ssh.Run(ctx, ctx.Host, "systemctl enable --now crowdsec crowdsec-firewall-bouncer")
}

func configureUpgrades(ctx *provisioning.Context) error {
	if err := ctx.EnsurePackages(ctx.Host, "unattended-upgrades", "unattended-upgrades", "apt-listchanges"); err != nil {
		return err
	}
	content, err := templates.Raw("host/20auto-upgrades")
	if err != nil {
		return err
	}
	if err := ctx.EnsureFile(ctx.Host, autoUpgrades, content, ssh.FileSpec{Mode: 0o644}); err != nil {
		return err
	}
	return ssh.Run(ctx, ctx.Host, "systemctl enable --now unattended-upgrades")
}

// configureKernel writes the incus sysctl profile and loads it whenever the
// file changed in this run or an earlier run stopped before loading it.
func configureKernel(ctx *provisioning.Context) error {
	content, err := templates.Raw("host/99-vibehost-incus.conf")
	if err != nil {
		return err
	}
	act, err := ctx.NewActivation(ctx.Host, "sysctl")
	if err != nil {
		return err
	}
	probe := provisioning.FileMatches(ctx.Host, SysctlConfPath, content)
	err = ctx.EnsureResource("file", SysctlConfPath, probe, act.Track(func(c context.Context) error {
		return ctx.Host.Materialize(c, SysctlConfPath, content, ssh.FileSpec{Mode: 0o644})
	}))
	if err != nil {
		return err
	}
	return act.Complete(ctx, func(c context.Context) error {
		return ssh.Run(c, ctx.Host, "sysctl --system")
	})
}
