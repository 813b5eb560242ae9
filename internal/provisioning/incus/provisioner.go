package incus

import (
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
)

const phase = "incus"

// Provisioner handles incus installation and profile setup.
type Provisioner struct{}

// NewProvisioner creates a new incus provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	if err := ctx.Step("install zfs", func() error { return installZFS(ctx) }); err != nil {
		return err
	}
	if err := ctx.Step("install incus", func() error { return installIncus(ctx) }); err != nil {
		return err
	}
	if err := ctx.Step("initialize incus", func() error { return initialize(ctx) }); err != nil {
		return err
	}
	if err := ctx.Step("create resource profiles", func() error { return createResourceProfiles(ctx) }); err != nil {
		return err
	}
	if err := ctx.Step("create docker profile", func() error { return createDockerProfile(ctx) }); err != nil {
		return err
	}
	return ctx.Step("verify incus", func() error { return Verify(ctx, ctx.Host) })
}
