package host

import (
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
)

const phase = "host"

// Provisioner handles host hardening.
type Provisioner struct{}

// NewProvisioner creates a new host provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface.
// SSH hardening runs last because it disables the login this run may be using.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	steps := []struct {
		name string
		fn   func(*provisioning.Context) error
	}{
		{"enable contrib repository", enableContrib},
		{"update system packages", updateSystem},
		{"create admin user", createAdmin},
		{"configure firewall", configureFirewall},
		{"install crowdsec", installCrowdSec},
		{"configure unattended upgrades", configureUpgrades},
		{"configure kernel parameters", configureKernel},
		{"harden ssh", hardenSSH},
	}

	for _, s := range steps {
		if err := ctx.Step(s.name, func() error { return s.fn(ctx) }); err != nil {
			return err
		}
	}

	ctx.Printf("[%s] Host hardened, root login disabled", phase)
	return nil
}
