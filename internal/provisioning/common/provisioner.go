package common

import (
	"context"
	"slices"
	"strings"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/container"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
)

const phase = "common"

// sshRules are allow rules that keep the in-workload SSH server reachable.
var sshRules = []string{"22", "22/tcp", "ssh", "OpenSSH"}

// Provisioner handles the shared workload setup.
type Provisioner struct{}

// NewProvisioner creates a new common setup provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	common := ctx.Config.CommonSetup
	for _, w := range common.Containers {
		if err := ctx.Step("apply common setup to "+w, func() error { return apply(ctx, w) }); err != nil {
			return err
		}
	}
	return nil
}

func apply(ctx *provisioning.Context, workload string) error {
	common := ctx.Config.CommonSetup
	ch := ctx.Workload(workload)

	pkgs := slices.Clone(common.Packages)
	if !slices.Contains(pkgs, "ufw") {
		pkgs = append(pkgs, "ufw")
	}
	if err := ctx.EnsurePackages(ch, workload+"/common", pkgs...); err != nil {
		return err
	}

	if workload != config.WorkloadPostgres && !slices.ContainsFunc(common.Firewall.Allow, func(r string) bool {
		return slices.Contains(sshRules, r)
	}) {
		ctx.Warn("the firewall of %s does not allow SSH", workload)
	}

	for _, rule := range common.Firewall.Allow {
		err := ctx.EnsureResource("firewall-rule", workload+"/"+rule, RuleAdded(ch, rule), func(c context.Context) error {
			return ssh.Run(c, ch, "ufw allow "+rule)
		})
		if err != nil {
			return err
		}
	}
	return enableFirewall(ctx, ch)
}

// RuleAdded probes whether ufw already carries an allow rule.
func RuleAdded(exec ssh.Executor, rule string) provisioning.Probe {
	want := "ufw allow " + rule
	return func(ctx context.Context) (bool, error) {
		res, err := ssh.Probe(ctx, exec, "ufw show added")
		if err != nil || !res.OK() {
			return false, err
		}
		for _, line := range strings.Split(res.Stdout, "\n") {
			if strings.TrimSpace(line) == want {
				return true, nil
			}
		}
		return false, nil
	}
}

func enableFirewall(ctx *provisioning.Context, ch *container.Channel) error {
	probe := provisioning.OutputContains(ch, "ufw status", "Status: active")
	return ctx.EnsureResource("firewall", ch.Name()+"/ufw", probe, func(c context.Context) error {
		for _, cmd := range []string{
			"ufw default deny incoming",
			"ufw default allow outgoing",
			"ufw --force enable",
		} {
			if err := ssh.Run(c, ch, cmd); err != nil {
				return err
			}
		}
		return nil
	})
}
