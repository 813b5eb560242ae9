package incus

import (
	"context"
	"fmt"

	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning/preflight"
)

// Debian releases from this one on ship incus in the main archive.
const debianWithIncus = 13

const zabblyKeyring = "/etc/apt/keyrings/zabbly.gpg"

// ZabblyListPath returns the apt source file for a Zabbly channel.
func ZabblyListPath(channel string) string {
	return fmt.Sprintf("/etc/apt/sources.list.d/zabbly-incus-%s.list", channel)
}

func installZFS(ctx *provisioning.Context) error {
	if ctx.Config.Storage.Driver != "zfs" {
		ctx.Printf("[%s] Storage driver %s does not need ZFS", phase, ctx.Config.Storage.Driver)
		return nil
	}

	probe := provisioning.PackagesInstalled(ctx.Host, "zfsutils-linux", "zfs-dkms")
	err := ctx.EnsureResource("packages", "zfs", probe, func(c context.Context) error {
		// Headers for the running kernel are needed to build the module.
		if err := ssh.Run(c, ctx.Host, "DEBIAN_FRONTEND=noninteractive apt-get install -y -q linux-headers-$(uname -r) zfsutils-linux zfs-dkms"); err != nil {
			return err
		}
		return ssh.Run(c, ctx.Host, "dkms autoinstall")
	})
	if err != nil {
		return err
	}

	return ctx.EnsureResource("kernel-module", "zfs", provisioning.CommandSucceeds(ctx.Host, "grep -qw '^zfs' /proc/modules"),
		func(c context.Context) error {
			return ssh.Run(c, ctx.Host, "modprobe zfs")
		})
}

func installIncus(ctx *provisioning.Context) error {
	data, err := ctx.Host.ReadFile(ctx, "/etc/os-release")
	if err != nil {
		return fmt.Errorf("reading os-release: %w", err)
	}
	osInfo := preflight.ParseOSRelease(string(data))
	ctx.Printf("[%s] Detected Debian %s (%s)", phase, osInfo.VersionID, osInfo.Codename)

	if osInfo.Major() < debianWithIncus {
		if err := addZabblyRepository(ctx, osInfo.Codename); err != nil {
			return err
		}
	}
	return ctx.EnsurePackages(ctx.Host, "incus", "incus", "incus-client")
}

// addZabblyRepository adds the incus packages maintained by the incus
// developers for releases that predate incus in Debian.
func addZabblyRepository(ctx *provisioning.Context, codename string) error {
	channel := ctx.Config.Incus.Channel
	listPath := ZabblyListPath(channel)

	return ctx.EnsureResource("apt-repository", "zabbly-incus-"+channel, provisioning.PathExists(ctx.Host, listPath),
		func(c context.Context) error {
			if err := provisioning.AptInstall(c, ctx.Host, "curl", "gpg"); err != nil {
				return err
			}
			key := fmt.Sprintf("install -d -m 755 /etc/apt/keyrings && rm -f %[1]s && curl -fsSL https://pkgs.zabbly.com/key.asc | gpg --batch --dearmor -o %[1]s", zabblyKeyring)
			if err := ssh.Run(c, ctx.Host, key); err != nil {
				return fmt.Errorf("importing Zabbly key: %w", err)
			}
			line := fmt.Sprintf("deb [signed-by=%s] https://pkgs.zabbly.com/incus/%s %s main\n", zabblyKeyring, channel, codename)
			if err := ctx.Host.Materialize(c, listPath, []byte(line), ssh.FileSpec{Mode: 0o644}); err != nil {
				return err
			}
			return provisioning.AptUpdate(c, ctx.Host)
		})
}
