package devenv

import (
	"context"
	"fmt"
	"slices"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/container"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/templates"
)

const phase = "devenv"

// Paths of the files managed in the dev workload.
const (
	BashrcPath          = "/root/.bashrc"
	SetupUserPath       = "/root/setup-user.sh"
	SetupClaudeCodePath = "/usr/local/bin/setup-claude-code"
	uvPath              = "/root/.local/bin/uv"
)

// Markers delimiting the managed block in BashrcPath.
const (
	BashrcBegin = "# >>> vibehost dev environment >>>"
	BashrcEnd   = "# <<< vibehost dev environment <<<"
)

// basePackages are needed by the installers and the shell profile.
var basePackages = []string{"ca-certificates", "curl", "git"}

// Provisioner handles the dev workload environment.
type Provisioner struct{}

// NewProvisioner creates a new devenv provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	dev := ctx.Workload(config.WorkloadDev)
	steps := []struct {
		name string
		fn   func(*provisioning.Context, *container.Channel) error
	}{
		{"install system packages", installPackages},
		{"install python", installPython},
		{"install node", installNode},
		{"install extras", installExtras},
		{"configure shell", configureShell},
		{"create setup scripts", createScripts},
	}
	for _, s := range steps {
		if err := ctx.Step(s.name, func() error { return s.fn(ctx, dev) }); err != nil {
			return err
		}
	}
	return nil
}

// Packages returns the system packages installed in the dev workload.
func Packages(cfg *config.Config) []string {
	pkgs := slices.Clone(basePackages)
	for _, p := range cfg.DevSetup.Packages {
		if !slices.Contains(pkgs, p) {
			pkgs = append(pkgs, p)
		}
	}
	return pkgs
}

func installPackages(ctx *provisioning.Context, dev *container.Channel) error {
	pkgs := Packages(ctx.Config)
	if err := ctx.EnsurePackages(dev, "dev/system", pkgs...); err != nil {
		return err
	}
	ctx.Printf("[%s] %d system packages present", phase, len(pkgs))
	return nil
}

func installExtras(ctx *provisioning.Context, dev *container.Channel) error {
	extras := ctx.Config.DevSetup.Extras
	if extras.Docker {
		probe := provisioning.CommandSucceeds(dev, "command -v docker")
		err := ctx.EnsureResource("tool", "dev/docker", probe, func(c context.Context) error {
			if err := ssh.Run(c, dev, "curl -fsSL https://get.docker.com | sh"); err != nil {
				return err
			}
			return ssh.Run(c, dev, "systemctl enable --now docker")
		})
		if err != nil {
			return err
		}
	}
	if extras.Certbot {
		if err := ctx.EnsurePackages(dev, "dev/certbot", "certbot"); err != nil {
			return err
		}
	}
	if extras.ClaudeCode {
		script, err := templates.Raw("devenv/setup-claude-code.sh")
		if err != nil {
			return err
		}
		if err := ctx.EnsureFile(dev, SetupClaudeCodePath, script, ssh.FileSpec{Mode: 0o755}); err != nil {
			return err
		}
		ctx.Printf("[%s] Claude Code is installed per user with %s", phase, SetupClaudeCodePath)
	}
	return nil
}

// Bashrc renders the managed shell profile block.
func Bashrc(cfg *config.Config) ([]byte, error) {
	return templates.Render("devenv/bashrc.tmpl", map[string]any{
		"Begin":    BashrcBegin,
		"End":      BashrcEnd,
		"Hostname": config.WorkloadDev,
		"Docker":   cfg.DevSetup.Extras.Docker,
	})
}

func configureShell(ctx *provisioning.Context, dev *container.Channel) error {
	block, err := Bashrc(ctx.Config)
	if err != nil {
		return err
	}
	probe := provisioning.CommandSucceeds(dev, fmt.Sprintf("grep -qxF %s %s", ssh.Quote(BashrcBegin), BashrcPath))
	err = ctx.EnsureResource("shell-profile", "dev"+BashrcPath, probe, func(c context.Context) error {
		return dev.Append(c, BashrcPath, append([]byte("\n"), block...))
	})
	if err != nil {
		return err
	}

	for _, kv := range [][2]string{{"init.defaultBranch", "main"}, {"pull.rebase", "false"}} {
		key, value := kv[0], kv[1]
		probe := provisioning.OutputEquals(dev, "git config --global --get "+key, value)
		err := ctx.EnsureResource("git-config", key, probe, func(c context.Context) error {
			return ssh.Run(c, dev, fmt.Sprintf("git config --global %s %s", key, ssh.Quote(value)))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func createScripts(ctx *provisioning.Context, dev *container.Channel) error {
	script, err := templates.Raw("devenv/setup-user.sh")
	if err != nil {
		return err
	}
	return ctx.EnsureFile(dev, SetupUserPath, script, ssh.FileSpec{Mode: 0o755})
}
