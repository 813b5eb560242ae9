package devenv

import (
	"context"
	"fmt"

	"github.com/conway-vibehost/vibehost-setup/internal/platform/container"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
)

// installPython installs the distribution python3 for system tooling, uv,
// the configured interpreter through uv and the global packages.
func installPython(ctx *provisioning.Context, dev *container.Channel) error {
	py := ctx.Config.DevSetup.Python
	if err := ctx.EnsurePackages(dev, "dev/python3", "python3", "python3-venv", "python3-pip"); err != nil {
		return err
	}
	err := ctx.EnsureResource("alternative", "python", provisioning.PathExists(dev, "/usr/bin/python"), func(c context.Context) error {
		return ssh.Run(c, dev, "update-alternatives --install /usr/bin/python python /usr/bin/python3 1")
	})
	if err != nil {
		return err
	}

	err = ctx.EnsureResource("tool", "dev/uv", provisioning.PathExists(dev, uvPath), func(c context.Context) error {
		return ssh.Run(c, dev, "curl -LsSf https://astral.sh/uv/install.sh | sh")
	})
	if err != nil {
		return err
	}

	if py.Version != "" {
		probe := provisioning.CommandSucceeds(dev, fmt.Sprintf("%s python find %s", uvPath, ssh.Quote(py.Version)))
		err := ctx.EnsureResource("python", py.Version, probe, func(c context.Context) error {
			return ssh.Run(c, dev, fmt.Sprintf("%s python install %s", uvPath, ssh.Quote(py.Version)))
		})
		if err != nil {
			return err
		}
	}

	for _, pkg := range py.GlobalPackages {
		probe := provisioning.CommandSucceeds(dev, fmt.Sprintf("%s pip show --system %s", uvPath, ssh.Quote(pkg)))
		err := ctx.EnsureResource("pip-package", pkg, probe, func(c context.Context) error {
			return ssh.Run(c, dev, fmt.Sprintf("%s pip install --system --break-system-packages %s", uvPath, ssh.Quote(pkg)))
		})
		if err != nil {
			return err
		}
	}
	ctx.Printf("[%s] Python %s with %d global packages", phase, py.Version, len(py.GlobalPackages))
	return nil
}

// installNode installs Node.js from the NodeSource repository of the
// configured major version and the global npm packages.
func installNode(ctx *provisioning.Context, dev *container.Channel) error {
	node := ctx.Config.DevSetup.Node
	probe := provisioning.OutputContains(dev, "node --version", "v"+node.Version+".")
	err := ctx.EnsureResource("tool", "dev/node-"+node.Version, probe, func(c context.Context) error {
		if err := ssh.Run(c, dev, fmt.Sprintf("curl -fsSL https://deb.nodesource.com/setup_%s.x | bash -", node.Version)); err != nil {
			return err
		}
		return provisioning.AptInstall(c, dev, "nodejs")
	})
	if err != nil {
		return err
	}

	for _, pkg := range node.GlobalPackages {
		probe := provisioning.CommandSucceeds(dev, "npm ls -g --depth=0 "+ssh.Quote(pkg))
		err := ctx.EnsureResource("npm-package", pkg, probe, func(c context.Context) error {
			return ssh.Run(c, dev, "npm install -g "+ssh.Quote(pkg))
		})
		if err != nil {
			return err
		}
	}
	ctx.Printf("[%s] Node.js %s with %d global packages", phase, node.Version, len(node.GlobalPackages))
	return nil
}
