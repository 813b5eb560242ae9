package containers

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/container"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/util/labels"
	"github.com/conway-vibehost/vibehost-setup/internal/util/naming"
	"github.com/conway-vibehost/vibehost-setup/internal/util/retry"
)

const phase = "containers"

// Provisioner handles workload creation.
type Provisioner struct{}

// NewProvisioner creates a new containers provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	for _, w := range config.Workloads {
		if err := ctx.Step("launch "+w, func() error { return launch(ctx, w) }); err != nil {
			return err
		}
	}
	for _, w := range config.Workloads {
		if err := ctx.Step("wait for "+w, func() error { return WaitReady(ctx, w) }); err != nil {
			return err
		}
	}
	for _, w := range config.Workloads {
		if err := ctx.Step("configure network in "+w, func() error { return configureNetwork(ctx, w) }); err != nil {
			return err
		}
	}
	for _, w := range config.Workloads {
		if w == config.WorkloadPostgres {
			continue
		}
		if err := ctx.Step("enable ssh in "+w, func() error { return setupSSH(ctx, w) }); err != nil {
			return err
		}
	}
	return nil
}

// Profiles returns the profiles a workload is launched with.
func Profiles(workload string) []string {
	profiles := []string{naming.DefaultProfile, naming.ResourceProfile(workload)}
	if slices.Contains(config.PublicWorkloads, workload) {
		profiles = append(profiles, naming.DockerProfile, naming.PublicProfile(workload))
	}
	return append(profiles, naming.PrivateProfile(workload))
}

// LaunchCommand returns the incus launch command for a workload.
func LaunchCommand(ctx *provisioning.Context, workload string) string {
	args := []string{"incus", "launch", ssh.Quote("images:" + ctx.Config.Containers.Image(workload)), workload}
	for _, p := range Profiles(workload) {
		args = append(args, "-p", p)
	}
	flags := labels.NewLabelBuilder(workload).
		WithRunIDIfSet(ctx.State.RunID).
		WithVersionIfSet(ctx.Version).
		Flags()
	for i := 0; i < len(flags); i += 2 {
		args = append(args, flags[i], ssh.Quote(flags[i+1]))
	}
	return strings.Join(args, " ")
}

func launch(ctx *provisioning.Context, workload string) error {
	probe := provisioning.CommandSucceeds(ctx.Host, "incus info "+workload)
	return ctx.EnsureResource("container", workload, probe, func(c context.Context) error {
		return ssh.Run(c, ctx.Host, LaunchCommand(ctx, workload))
	})
}

// WaitReady polls until the workload is running and has finished booting:
// cloud-init reports boot-finished, or the image has no cloud-init and
// answers a trivial command.
func WaitReady(ctx *provisioning.Context, workload string) error {
	ch := ctx.Workload(workload)
	err := retry.Until(ctx, ctx.Timeouts.ContainerReady, ctx.Timeouts.ReadyPoll, func(c context.Context) (bool, error) {
		status, err := ch.Status(c)
		if err != nil || status != container.StatusRunning {
			return false, err
		}
		if ok, err := ch.Exists(c, "/var/lib/cloud/instance/boot-finished"); err == nil && ok {
			return true, nil
		}
		res, err := ch.Execute(c, "command -v cloud-init", ssh.ExecOptions{TolerateFailure: true})
		if err != nil {
			return false, err
		}
		if res.OK() {
			return false, nil
		}
		res, err = ch.Execute(c, "echo ready", ssh.ExecOptions{TolerateFailure: true, Capture: true})
		if err != nil {
			return false, err
		}
		return res.OK() && strings.TrimSpace(res.Stdout) == "ready", nil
	})
	if err != nil {
		return fmt.Errorf("%s did not become ready: %w", workload, err)
	}
	ctx.Printf("[%s] %s is ready", phase, workload)
	return nil
}

func setupSSH(ctx *provisioning.Context, workload string) error {
	ch := ctx.Workload(workload)
	if err := ctx.EnsurePackages(ch, workload+"/openssh-server", "openssh-server"); err != nil {
		return err
	}
	if err := ssh.Run(ctx, ch, "install -d -m 700 /root/.ssh"); err != nil {
		return err
	}
	if err := ctx.EnsureAuthorizedKey(ch, "/root/.ssh/authorized_keys", ctx.Config.Admin.SSHPublicKey, ssh.FileSpec{Mode: 0o600}); err != nil {
		return err
	}

	probe := provisioning.CommandSucceeds(ch, "grep -qx 'PermitRootLogin prohibit-password' /etc/ssh/sshd_config")
	err := ctx.EnsureResource("sshd-setting", workload+"/PermitRootLogin", probe, func(c context.Context) error {
		if err := ssh.Run(c, ch, `sed -i -E 's/^#?PermitRootLogin.*/PermitRootLogin prohibit-password/' /etc/ssh/sshd_config`); err != nil {
			return err
		}
		return ssh.Run(c, ch, "grep -qx 'PermitRootLogin prohibit-password' /etc/ssh/sshd_config || echo 'PermitRootLogin prohibit-password' >> /etc/ssh/sshd_config")
	})
	if err != nil {
		return err
	}
	return ssh.Run(ctx, ch, "systemctl enable ssh && systemctl restart ssh")
}
