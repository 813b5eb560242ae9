package network

import (
	"context"
	"fmt"
	"strings"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/util/naming"
)

const phase = "network"

// Provisioner handles network and network profile creation.
type Provisioner struct{}

// NewProvisioner creates a new network provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	if err := ctx.Step("create private network", func() error { return createPrivateNetwork(ctx) }); err != nil {
		return err
	}
	if err := ctx.Step("create public network", func() error { return createPublicNetwork(ctx) }); err != nil {
		return err
	}
	if err := ctx.Step("create public profiles", func() error { return createPublicProfiles(ctx) }); err != nil {
		return err
	}
	if err := ctx.Step("create private profiles", func() error { return createPrivateProfiles(ctx) }); err != nil {
		return err
	}
	if err := ctx.Step("allow bridge traffic", func() error { return allowBridges(ctx) }); err != nil {
		return err
	}
	return ctx.Step("verify network", func() error { return Verify(ctx, ctx.Host) })
}

func networkExists(exec ssh.Executor, name string) provisioning.Probe {
	return provisioning.CommandSucceeds(exec, "incus network show "+ssh.Quote(name))
}

func createPrivateNetwork(ctx *provisioning.Context) error {
	gateway, err := ctx.Config.Network.PrivateGatewayCIDR()
	if err != nil {
		return err
	}
	return ctx.EnsureResource("network", naming.PrivateNetwork, networkExists(ctx.Host, naming.PrivateNetwork),
		func(c context.Context) error {
			return ssh.Run(c, ctx.Host, fmt.Sprintf(
				"incus network create %s --type=bridge ipv4.address=%s ipv4.nat=true ipv6.address=none",
				naming.PrivateNetwork, gateway))
		})
}

func createPublicNetwork(ctx *provisioning.Context) error {
	parent := ctx.Config.Network.Interface
	return ctx.EnsureResource("network", naming.PublicNetwork, networkExists(ctx.Host, naming.PublicNetwork),
		func(c context.Context) error {
			return ssh.Run(c, ctx.Host, fmt.Sprintf(
				"incus network create %s --type=macvlan parent=%s", naming.PublicNetwork, ssh.Quote(parent)))
		})
}

// ensureNIC creates profile (when missing) and adds a nic device to it
// unless the profile already has a device of that name.
func ensureNIC(ctx *provisioning.Context, profile, device string, props ...string) error {
	q := ssh.Quote(profile)
	err := ctx.EnsureResource("profile", profile, provisioning.CommandSucceeds(ctx.Host, "incus profile show "+q),
		func(c context.Context) error {
			return ssh.Run(c, ctx.Host, "incus profile create "+q)
		})
	if err != nil {
		return err
	}

	probe := provisioning.OutputContains(ctx.Host, "incus profile device show "+q, device+":")
	return ctx.EnsureResource("nic", profile+"/"+device, probe, func(c context.Context) error {
		return ssh.Run(c, ctx.Host, fmt.Sprintf("incus profile device add %s %s nic %s", q, device, strings.Join(props, " ")))
	})
}

// createPublicProfiles attaches eth0 on the macvlan network. The address
// itself is configured inside the workload by the containers phase.
func createPublicProfiles(ctx *provisioning.Context) error {
	for _, w := range config.PublicWorkloads {
		if err := ensureNIC(ctx, naming.PublicProfile(w), "eth0",
			"network="+naming.PublicNetwork, "name=eth0"); err != nil {
			return err
		}
		ctx.Printf("[%s] %s -> %s", phase, naming.PublicProfile(w), ctx.Config.Network.PublicAddress(w))
	}
	return nil
}

// createPrivateProfiles attaches eth1 on the private bridge with a DHCP
// reservation for the workload's fixed address.
func createPrivateProfiles(ctx *provisioning.Context) error {
	for _, w := range config.Workloads {
		addr, err := ctx.Config.Network.PrivateAddress(w)
		if err != nil {
			return err
		}
		if err := ensureNIC(ctx, naming.PrivateProfile(w), "eth1",
			"network="+naming.PrivateNetwork, "name=eth1", "ipv4.address="+addr); err != nil {
			return err
		}
	}
	return nil
}

// BridgeRules returns the ufw rules that let workload traffic through
// ufw's routed-deny default.
func BridgeRules(bridge string) []string {
	return []string{
		"ufw allow in on " + bridge,
		"ufw allow out on " + bridge,
		"ufw route allow in on " + bridge,
		"ufw route allow out on " + bridge,
	}
}

func allowBridges(ctx *provisioning.Context) error {
	for _, bridge := range []string{naming.DefaultBridge, naming.PrivateNetwork} {
		rules := BridgeRules(bridge)
		probe := func(c context.Context) (bool, error) {
			added, err := ssh.Output(c, ctx.Host, "ufw show added")
			if err != nil {
				return false, err
			}
			for _, r := range rules {
				if !strings.Contains(added, r) {
					return false, nil
				}
			}
			return true, nil
		}
		err := ctx.EnsureResource("firewall-rule", bridge, probe, func(c context.Context) error {
			for _, r := range rules {
				if err := ssh.Run(c, ctx.Host, r); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Verify checks both networks and every network profile.
func Verify(ctx context.Context, exec ssh.Executor) error {
	for _, n := range []string{naming.PrivateNetwork, naming.PublicNetwork} {
		ok, err := networkExists(exec, n)(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("network verification failed: %s not found", n)
		}
	}

	check := func(profile, device string) error {
		ok, err := provisioning.OutputContains(exec, "incus profile device show "+ssh.Quote(profile), device+":")(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("network verification failed: profile %s has no %s device", profile, device)
		}
		return nil
	}
	for _, w := range config.PublicWorkloads {
		if err := check(naming.PublicProfile(w), "eth0"); err != nil {
			return err
		}
	}
	for _, w := range config.Workloads {
		if err := check(naming.PrivateProfile(w), "eth1"); err != nil {
			return err
		}
	}
	return nil
}
