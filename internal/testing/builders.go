package testing

import (
	"maps"
	"slices"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
)

// AdminKey is the admin public key used by built configs.
const AdminKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8g admin@laptop"

// ConfigBuilder provides a fluent interface for constructing test configs.
// Each method returns a new builder (immutable) for chaining.
type ConfigBuilder struct {
	cfg config.Config
}

// NewConfigBuilder creates a new ConfigBuilder with a config that passes Validate.
func NewConfigBuilder() *ConfigBuilder {
	pool := func(mem, cpu string) config.ResourcePool {
		return config.ResourcePool{Memory: mem, CPUAllowance: cpu, CPUPriority: config.DefaultCPUPriority}
	}
	return &ConfigBuilder{
		cfg: config.Config{
			Server: config.ServerConfig{
				Host:        "203.0.113.10",
				AuthMethod:  config.AuthPassword,
				SSHUser:     config.DefaultSSHUser,
				SSHPassword: "hunter2",
				SSHPort:     config.DefaultSSHPort,
			},
			Admin: config.AdminConfig{
				Username:     "ops",
				SSHPublicKey: AdminKey,
			},
			Network: config.NetworkConfig{
				Interface: "enp0s31f6",
				Gateway:   "203.0.113.1",
				Netmask:   "255.255.255.192",
				IPs: config.NetworkIPs{
					Host:    "203.0.113.10",
					Dev:     "203.0.113.11",
					Staging: "203.0.113.12",
					Prod:    "203.0.113.13",
				},
				Private: config.PrivateNetwork{
					Subnet:   config.DefaultPrivateSubnet,
					Gateway:  config.DefaultPrivateGateway,
					Postgres: config.DefaultPrivatePostgres,
				},
			},
			Resources: config.ResourcesConfig{
				Dev:      pool("16GB", "30%"),
				Staging:  pool("8GB", "20%"),
				Prod:     pool("16GB", "30%"),
				Postgres: pool("16GB", "20%"),
			},
			Postgres: config.PostgresConfig{
				Version: config.DefaultPostgresVersion,
				Databases: []config.DatabaseConfig{
					{Name: "app_dev", User: "app_dev", Password: config.GeneratePassword},
				},
			},
			Backups: config.BackupsConfig{
				Snapshots: config.SnapshotConfig{
					Enabled:       true,
					RetentionDays: config.DefaultSnapshotRetentionDays,
					Schedule:      config.DefaultSnapshotSchedule,
				},
				Offsite: config.OffsiteConfig{
					Provider:       config.ProviderHetzner,
					SSHKeyPath:     config.DefaultStorageBoxKeyPath,
					RetentionWeeks: config.DefaultOffsiteRetentionWeeks,
					Schedule:       config.DefaultOffsiteSchedule,
				},
			},
			DevSetup: config.DevSetupConfig{
				Packages: []string{"git", "tmux"},
				Python:   config.RuntimeSetup{Version: config.DefaultPythonVersion},
				Node:     config.RuntimeSetup{Version: config.DefaultNodeVersion},
				Extras:   config.ExtrasConfig{ClaudeCode: true, Docker: true, Certbot: true},
			},
			Containers: config.ContainersConfig{DefaultImage: config.DefaultImage},
			CommonSetup: config.CommonSetupConfig{
				Containers: []string{config.WorkloadDev, config.WorkloadStaging, config.WorkloadProd},
				Packages:   []string{"curl", "htop"},
				Firewall:   config.FirewallConfig{Allow: []string{"22/tcp", "80/tcp", "443/tcp"}},
			},
			Storage: config.StorageConfig{Driver: config.DefaultStorageDriver, Size: config.DefaultStorageSize},
			Incus:   config.IncusConfig{Channel: config.DefaultIncusChannel},
		},
	}
}

// WithDatabases replaces the database list with generated-password databases
// whose role matches the database name.
func (b *ConfigBuilder) WithDatabases(names ...string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Postgres.Databases = nil
	for _, n := range names {
		newBuilder.cfg.Postgres.Databases = append(newBuilder.cfg.Postgres.Databases,
			config.DatabaseConfig{Name: n, User: n, Password: config.GeneratePassword})
	}
	return newBuilder
}

// WithSSHUser sets the initial login user.
func (b *ConfigBuilder) WithSSHUser(user string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Server.SSHUser = user
	return newBuilder
}

// WithStorageDevice backs the storage pool with a block device.
func (b *ConfigBuilder) WithStorageDevice(device string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Storage.Device = device
	return newBuilder
}

// WithExtras sets the dev workload extras.
func (b *ConfigBuilder) WithExtras(extras config.ExtrasConfig) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.DevSetup.Extras = extras
	return newBuilder
}

// WithStorageBox enables offsite backups to a storage box.
func (b *ConfigBuilder) WithStorageBox(host, user string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Backups.Offsite.Enabled = true
	newBuilder.cfg.Backups.Offsite.Provider = config.ProviderHetzner
	newBuilder.cfg.Backups.Offsite.StorageBoxHost = host
	newBuilder.cfg.Backups.Offsite.StorageBoxUser = user
	return newBuilder
}

// WithObjectStorage enables offsite backups to an S3-compatible bucket.
func (b *ConfigBuilder) WithObjectStorage(endpoint, bucket string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Backups.Offsite.Enabled = true
	newBuilder.cfg.Backups.Offsite.Provider = config.ProviderObjectStorage
	newBuilder.cfg.Backups.Offsite.ObjectStorage = config.ObjectStorageConfig{
		Endpoint:  endpoint,
		Region:    "eu-central",
		Bucket:    bucket,
		AccessKey: "AKIATEST",
		SecretKey: "secret-test-key",
	}
	return newBuilder
}

// WithoutSnapshots disables local snapshots.
func (b *ConfigBuilder) WithoutSnapshots() *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Backups.Snapshots.Enabled = false
	return newBuilder
}

// Build returns the constructed config.
func (b *ConfigBuilder) Build() *config.Config {
	return &b.clone().cfg
}

// clone creates a deep copy of the builder for immutability.
func (b *ConfigBuilder) clone() *ConfigBuilder {
	newCfg := b.cfg
	newCfg.Postgres.Databases = slices.Clone(b.cfg.Postgres.Databases)
	newCfg.DevSetup.Packages = slices.Clone(b.cfg.DevSetup.Packages)
	newCfg.DevSetup.Python.GlobalPackages = slices.Clone(b.cfg.DevSetup.Python.GlobalPackages)
	newCfg.DevSetup.Node.GlobalPackages = slices.Clone(b.cfg.DevSetup.Node.GlobalPackages)
	newCfg.CommonSetup.Containers = slices.Clone(b.cfg.CommonSetup.Containers)
	newCfg.CommonSetup.Packages = slices.Clone(b.cfg.CommonSetup.Packages)
	newCfg.CommonSetup.Firewall.Allow = slices.Clone(b.cfg.CommonSetup.Firewall.Allow)
	newCfg.Containers.Overrides = maps.Clone(b.cfg.Containers.Overrides)
	return &ConfigBuilder{cfg: newCfg}
}

// MinimalConfig returns a valid config for simple tests.
func MinimalConfig() *config.Config {
	return NewConfigBuilder().Build()
}
