package provisioning

import (
	"context"
	"strings"

	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
)

const aptGet = "DEBIAN_FRONTEND=noninteractive apt-get"

// AptUpdate refreshes package lists.
func AptUpdate(ctx context.Context, exec ssh.Executor) error {
	return ssh.Run(ctx, exec, aptGet+" update -q")
}

// AptInstall installs packages non-interactively, keeping local config files.
func AptInstall(ctx context.Context, exec ssh.Executor, packages ...string) error {
	if len(packages) == 0 {
		return nil
	}
	quoted := make([]string, len(packages))
	for i, p := range packages {
		quoted[i] = ssh.Quote(p)
	}
	return ssh.Run(ctx, exec, aptGet+" install -y -q -o Dpkg::Options::=--force-confold "+strings.Join(quoted, " "))
}

// PackagesInstalled probes whether every package is installed.
func PackagesInstalled(exec ssh.Executor, packages ...string) Probe {
	return func(ctx context.Context) (bool, error) {
		for _, p := range packages {
			res, err := ssh.Probe(ctx, exec, "dpkg-query -W -f='${Status}' "+ssh.Quote(p))
			if err != nil {
				return false, err
			}
			if !res.OK() || !strings.Contains(res.Stdout, "install ok installed") {
				return false, nil
			}
		}
		return true, nil
	}
}

// EnsurePackages installs packages as one resource unless all of them are
// already installed. Package lists are refreshed first, since fresh
// workloads ship without them.
func (c *Context) EnsurePackages(exec ssh.Executor, name string, packages ...string) error {
	return c.EnsureResource("packages", name, PackagesInstalled(exec, packages...), func(ctx context.Context) error {
		if err := AptUpdate(ctx, exec); err != nil {
			return err
		}
		return AptInstall(ctx, exec, packages...)
	})
}
