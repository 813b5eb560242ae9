package preflight

import (
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
)

// Provisioner runs the preflight checks as the first pipeline phase.
type Provisioner struct {
	report *Report
}

// NewProvisioner creates a new preflight provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// Report returns the findings of the last Provision call.
func (p *Provisioner) Report() *Report {
	return p.report
}

// Provision implements the provisioning.Phase interface. Warnings are
// recorded as notes; any error finding fails the phase before the host
// has been touched.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	err := ctx.Step("inspect host", func() error {
		report, err := Run(ctx, ctx.Host, ctx.Config)
		p.report = report
		return err
	})
	if err != nil {
		return err
	}

	ctx.Printf("[%s] %s, %d MB memory, %d CPUs, %d GB free disk", phase,
		p.report.OS.PrettyName, p.report.Resources.MemoryMB, p.report.Resources.CPUs, p.report.Resources.DiskFreeGB)

	for _, f := range p.report.Warnings() {
		ctx.Warn("%s: %s", f.Check, f.Message)
	}

	return ctx.Step("evaluate findings", func() error {
		for _, f := range p.report.Errors() {
			provisioning.LogValidationError(ctx.Observer, phase, f.Check+": "+f.Message)
		}
		return p.report.Err()
	})
}
