package containers

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/templates"
)

// Paths of the systemd-networkd units written into workloads.
const (
	Eth0NetworkPath = "/etc/systemd/network/eth0.network"
	Eth1NetworkPath = "/etc/systemd/network/eth1.network"
)

// Public resolvers configured on the public interface.
var nameservers = []string{"1.1.1.1", "8.8.8.8"}

// publicAddress returns the workload's public address with its prefix
// length, or "" when it has none.
func publicAddress(cfg *config.Config, workload string) (string, error) {
	if !slices.Contains(config.PublicWorkloads, workload) {
		return "", nil
	}
	prefix, err := cfg.Network.PublicPrefixLength()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%d", cfg.Network.PublicAddress(workload), prefix), nil
}

// detectCloudInit records whether the workload's image runs cloud-init.
func detectCloudInit(ctx *provisioning.Context, workload string) (bool, error) {
	res, err := ssh.Probe(ctx, ctx.Workload(workload), "command -v cloud-init >/dev/null && test -d /var/lib/cloud")
	if err != nil {
		return false, err
	}
	ctx.State.SetCloudInit(workload, res.OK())
	return res.OK(), nil
}

func configureNetwork(ctx *provisioning.Context, workload string) error {
	cloudInit, err := detectCloudInit(ctx, workload)
	if err != nil {
		return err
	}
	if cloudInit {
		return configureCloudInit(ctx, workload)
	}
	return configureNetworkd(ctx, workload)
}

// NetworkdUnits returns the systemd-networkd units for a workload keyed by path.
func NetworkdUnits(cfg *config.Config, workload string) (map[string][]byte, error) {
	units := make(map[string][]byte, 2)

	addr, err := publicAddress(cfg, workload)
	if err != nil {
		return nil, err
	}
	if addr != "" {
		prefix, _ := cfg.Network.PublicPrefixLength()
		eth0, err := templates.Render("containers/eth0.network.tmpl", map[string]any{
			"Address":      cfg.Network.PublicAddress(workload),
			"PrefixLength": prefix,
			"Gateway":      cfg.Network.Gateway,
		})
		if err != nil {
			return nil, err
		}
		units[Eth0NetworkPath] = eth0
	}

	eth1, err := templates.Raw("containers/eth1.network")
	if err != nil {
		return nil, err
	}
	units[Eth1NetworkPath] = eth1
	return units, nil
}

// configureNetworkd writes the networkd units and restarts networkd when
// one of them changed in this run or an earlier run stopped before the
// restart.
func configureNetworkd(ctx *provisioning.Context, workload string) error {
	ch := ctx.Workload(workload)
	units, err := NetworkdUnits(ctx.Config, workload)
	if err != nil {
		return err
	}

	act, err := ctx.NewActivation(ch, "systemd-networkd")
	if err != nil {
		return err
	}
	for _, path := range slices.Sorted(maps.Keys(units)) {
		content := units[path]
		err := ctx.EnsureResource("file", workload+":"+path, provisioning.FileMatches(ch, path, content),
			act.Track(func(c context.Context) error {
				return ch.Materialize(c, path, content, ssh.FileSpec{Mode: 0o644})
			}))
		if err != nil {
			return err
		}
	}
	return act.Complete(ctx, func(c context.Context) error {
		return ssh.Run(c, ch, "systemctl restart systemd-networkd")
	})
}

// NetworkConfig is a cloud-init network config (version 2).
type NetworkConfig struct {
	Version   int                 `yaml:"version"`
	Ethernets map[string]Ethernet `yaml:"ethernets"`
}

// Ethernet is one interface of a NetworkConfig.
type Ethernet struct {
	DHCP4       bool         `yaml:"dhcp4"`
	Addresses   []string     `yaml:"addresses,omitempty"`
	Routes      []Route      `yaml:"routes,omitempty"`
	Nameservers *Nameservers `yaml:"nameservers,omitempty"`
}

// Route is a static route.
type Route struct {
	To  string `yaml:"to"`
	Via string `yaml:"via"`
}

// Nameservers lists resolvers.
type Nameservers struct {
	Addresses []string `yaml:"addresses"`
}

// CloudInitNetworkConfig renders the cloud-init network config of a workload.
func CloudInitNetworkConfig(cfg *config.Config, workload string) ([]byte, error) {
	nc := NetworkConfig{
		Version:   2,
		Ethernets: map[string]Ethernet{"eth1": {DHCP4: true}},
	}
	addr, err := publicAddress(cfg, workload)
	if err != nil {
		return nil, err
	}
	if addr != "" {
		nc.Ethernets["eth0"] = Ethernet{
			Addresses:   []string{addr},
			Routes:      []Route{{To: "default", Via: cfg.Network.Gateway}},
			Nameservers: &Nameservers{Addresses: nameservers},
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(nc); err != nil {
		return nil, fmt.Errorf("failed to encode network config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// configureCloudInit sets cloud-init.network-config and restarts the
// workload unless its public address is already up.
func configureCloudInit(ctx *provisioning.Context, workload string) error {
	doc, err := CloudInitNetworkConfig(ctx.Config, workload)
	if err != nil {
		return err
	}
	want := strings.TrimSpace(string(doc))
	probe := provisioning.OutputEquals(ctx.Host, "incus config get "+workload+" cloud-init.network-config", want)
	err = ctx.EnsureResource("network-config", workload, probe, func(c context.Context) error {
		return ssh.Run(c, ctx.Host, fmt.Sprintf("incus config set %s cloud-init.network-config=%s", workload, ssh.Quote(want)))
	})
	if err != nil {
		return err
	}

	addr := ctx.Config.Network.PublicAddress(workload)
	if addr == "" {
		return nil
	}
	up, err := provisioning.OutputContains(ctx.Workload(workload), "ip -4 -o addr show dev eth0", " "+addr+"/")(ctx)
	if err != nil || up {
		return err
	}
	ctx.Printf("[%s] Restarting %s to apply its network config", phase, workload)
	if err := ssh.Run(ctx, ctx.Host, "incus restart "+workload); err != nil {
		return err
	}
	return WaitReady(ctx, workload)
}
