package incus

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/util/naming"
)

// Preseed is the document accepted by `incus admin init --preseed`.
type Preseed struct {
	Config       map[string]string `yaml:"config"`
	Networks     []PreseedNetwork  `yaml:"networks"`
	StoragePools []PreseedPool     `yaml:"storage_pools"`
	Profiles     []PreseedProfile  `yaml:"profiles"`
}

// PreseedNetwork is a managed network.
type PreseedNetwork struct {
	Name        string            `yaml:"name"`
	Type        string            `yaml:"type"`
	Description string            `yaml:"description"`
	Config      map[string]string `yaml:"config"`
}

// PreseedPool is a storage pool.
type PreseedPool struct {
	Name        string            `yaml:"name"`
	Driver      string            `yaml:"driver"`
	Description string            `yaml:"description"`
	Config      map[string]string `yaml:"config"`
}

// PreseedProfile is a profile with its devices.
type PreseedProfile struct {
	Name        string                       `yaml:"name"`
	Description string                       `yaml:"description"`
	Config      map[string]string            `yaml:"config"`
	Devices     map[string]map[string]string `yaml:"devices"`
}

// BuildPreseed returns the preseed for storage: a dedicated block device
// when Device is set, else a loopback file of Size.
func BuildPreseed(storage config.StorageConfig) *Preseed {
	poolConfig := map[string]string{}
	switch {
	case storage.Device != "":
		poolConfig["source"] = storage.Device
	case storage.Driver != "dir":
		poolConfig["size"] = storage.Size
	}

	return &Preseed{
		Config: map[string]string{},
		Networks: []PreseedNetwork{{
			Name: naming.DefaultBridge,
			Type: "bridge",
			Config: map[string]string{
				"ipv4.address": "auto",
				"ipv6.address": "none",
			},
		}},
		StoragePools: []PreseedPool{{
			Name:   naming.StoragePool,
			Driver: storage.Driver,
			Config: poolConfig,
		}},
		Profiles: []PreseedProfile{{
			Name:        naming.DefaultProfile,
			Description: "Default profile",
			Config:      map[string]string{},
			Devices: map[string]map[string]string{
				"root": {"path": "/", "pool": naming.StoragePool, "type": "disk"},
				"eth0": {"name": "eth0", "network": naming.DefaultBridge, "type": "nic"},
			},
		}},
	}
}

// Marshal renders the preseed as YAML.
func (p *Preseed) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("failed to encode preseed: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func initialize(ctx *provisioning.Context) error {
	storage := ctx.Config.Storage
	probe := provisioning.OutputContains(ctx.Host, "incus storage list -f csv", naming.StoragePool+",")

	return ctx.EnsureResource("storage-pool", naming.StoragePool, probe, func(c context.Context) error {
		if storage.Device != "" {
			if err := prepareDevice(c, ctx, storage.Device); err != nil {
				return err
			}
		}
		preseed, err := BuildPreseed(storage).Marshal()
		if err != nil {
			return err
		}
		_, err = ctx.Host.Execute(c, "incus admin init --preseed", ssh.ExecOptions{
			Privileged: true,
			Stdin:      bytes.NewReader(preseed),
		})
		if err != nil {
			return err
		}
		if storage.Device != "" {
			ctx.Printf("[%s] Incus initialized with %s on %s", phase, storage.Driver, storage.Device)
		} else {
			ctx.Printf("[%s] Incus initialized with %s loopback (%s)", phase, storage.Driver, storage.Size)
		}
		return nil
	})
}

// prepareDevice unmounts the device, drops its fstab entries and wipes
// existing signatures so the pool can claim it.
func prepareDevice(c context.Context, ctx *provisioning.Context, device string) error {
	q := ssh.Quote(device)
	mounts, err := ssh.Output(c, ctx.Host, "lsblk -n -o MOUNTPOINT "+q+" 2>/dev/null | grep -v '^$' || true")
	if err != nil {
		return err
	}
	for _, m := range strings.Split(mounts, "\n") {
		if m = strings.TrimSpace(m); m == "" {
			continue
		}
		ctx.Printf("[%s] Unmounting %s", phase, m)
		if err := ssh.Run(c, ctx.Host, "umount "+ssh.Quote(m)); err != nil {
			return err
		}
	}

	base := path.Base(device)
	if err := ssh.Run(c, ctx.Host, fmt.Sprintf("sed -i '\\|%s|d' /etc/fstab", base)); err != nil {
		return err
	}
	return ssh.Run(c, ctx.Host, "wipefs -a "+q)
}
