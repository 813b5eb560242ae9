package config

// Authentication methods for the initial login.
const (
	AuthPassword = "password"
	AuthSSHKey   = "ssh_key"
)

// Offsite backup providers.
const (
	ProviderHetzner       = "hetzner"
	ProviderObjectStorage = "object-storage"
)

// GeneratePassword is the sentinel value that requests a generated database password.
const GeneratePassword = "generate"

// Config is the full provisioning configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Admin       AdminConfig       `mapstructure:"admin" yaml:"admin"`
	Network     NetworkConfig     `mapstructure:"network" yaml:"network"`
	Resources   ResourcesConfig   `mapstructure:"resources" yaml:"resources"`
	Postgres    PostgresConfig    `mapstructure:"postgres" yaml:"postgres"`
	Backups     BackupsConfig     `mapstructure:"backups" yaml:"backups"`
	DevSetup    DevSetupConfig    `mapstructure:"dev_setup" yaml:"dev_setup"`
	Containers  ContainersConfig  `mapstructure:"containers" yaml:"containers"`
	CommonSetup CommonSetupConfig `mapstructure:"common_setup" yaml:"common_setup"`
	Storage     StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Incus       IncusConfig       `mapstructure:"incus" yaml:"incus"`
}

// ServerConfig describes how to reach the bare server for the first time.
type ServerConfig struct {
	Host       string `mapstructure:"host" yaml:"host"`
	AuthMethod string `mapstructure:"auth_method" yaml:"auth_method"`
	SSHUser    string `mapstructure:"ssh_user" yaml:"ssh_user"`
	// SSHPassword is usually supplied through VIBEHOST_SERVER_SSH_PASSWORD.
	SSHPassword   string `mapstructure:"ssh_password" yaml:"ssh_password,omitempty"`
	SSHKeyPath    string `mapstructure:"ssh_key_path" yaml:"ssh_key_path,omitempty"`
	SSHPort       int    `mapstructure:"ssh_port" yaml:"ssh_port"`
	StrictHostKey bool   `mapstructure:"strict_host_key" yaml:"strict_host_key"`
}

// AdminConfig describes the admin account created on the host.
type AdminConfig struct {
	Username     string `mapstructure:"username" yaml:"username"`
	SSHPublicKey string `mapstructure:"ssh_public_key" yaml:"ssh_public_key"`
	// SSHPrivateKeyPath is the local key matching SSHPublicKey. It is used
	// to log in as the admin once root login has been disabled.
	SSHPrivateKeyPath string `mapstructure:"ssh_private_key_path" yaml:"ssh_private_key_path"`
}

// NetworkIPs holds the public address assignments.
type NetworkIPs struct {
	Host    string `mapstructure:"host" yaml:"host"`
	Dev     string `mapstructure:"dev" yaml:"dev"`
	Staging string `mapstructure:"staging" yaml:"staging"`
	Prod    string `mapstructure:"prod" yaml:"prod"`
	Spare   string `mapstructure:"spare" yaml:"spare,omitempty"`
}

// PrivateNetwork describes the bridge shared by all workloads.
type PrivateNetwork struct {
	Subnet   string `mapstructure:"subnet" yaml:"subnet"`
	Gateway  string `mapstructure:"gateway" yaml:"gateway"`
	Postgres string `mapstructure:"postgres" yaml:"postgres"`
}

// NetworkConfig describes the host uplink and address plan.
type NetworkConfig struct {
	Interface string         `mapstructure:"interface" yaml:"interface"`
	Gateway   string         `mapstructure:"gateway" yaml:"gateway"`
	Netmask   string         `mapstructure:"netmask" yaml:"netmask"`
	IPs       NetworkIPs     `mapstructure:"ips" yaml:"ips"`
	Private   PrivateNetwork `mapstructure:"private" yaml:"private"`
}

// ResourcePool is the resource limit set applied to one workload.
type ResourcePool struct {
	Memory       string `mapstructure:"memory" yaml:"memory"`
	CPUAllowance string `mapstructure:"cpu_allowance" yaml:"cpu_allowance"`
	CPUPriority  int    `mapstructure:"cpu_priority" yaml:"cpu_priority"`
}

// ResourcesConfig holds one pool per workload.
type ResourcesConfig struct {
	Dev      ResourcePool `mapstructure:"dev" yaml:"dev"`
	Staging  ResourcePool `mapstructure:"staging" yaml:"staging"`
	Prod     ResourcePool `mapstructure:"prod" yaml:"prod"`
	Postgres ResourcePool `mapstructure:"postgres" yaml:"postgres"`
}

// DatabaseConfig declares one database and its owning role.
type DatabaseConfig struct {
	Name     string `mapstructure:"name" yaml:"name"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
}

// Generated reports whether the password should be generated (and retained) on the host.
func (d DatabaseConfig) Generated() bool {
	return d.Password == "" || d.Password == GeneratePassword
}

// PostgresConfig describes the database workload.
type PostgresConfig struct {
	Version   string           `mapstructure:"version" yaml:"version"`
	Databases []DatabaseConfig `mapstructure:"databases" yaml:"databases"`
}

// SnapshotConfig controls local incus snapshots and database dumps.
type SnapshotConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
	Schedule      string `mapstructure:"schedule" yaml:"schedule"`
}

// ObjectStorageConfig is used when the offsite provider is S3-compatible object storage.
type ObjectStorageConfig struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Region    string `mapstructure:"region" yaml:"region"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key,omitempty"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key,omitempty"`
}

// OffsiteConfig controls weekly exports shipped off the host.
type OffsiteConfig struct {
	Enabled        bool                `mapstructure:"enabled" yaml:"enabled"`
	Provider       string              `mapstructure:"provider" yaml:"provider"`
	StorageBoxHost string              `mapstructure:"storagebox_host" yaml:"storagebox_host,omitempty"`
	StorageBoxUser string              `mapstructure:"storagebox_user" yaml:"storagebox_user,omitempty"`
	SSHKeyPath     string              `mapstructure:"ssh_key_path" yaml:"ssh_key_path"`
	RetentionWeeks int                 `mapstructure:"retention_weeks" yaml:"retention_weeks"`
	Schedule       string              `mapstructure:"schedule" yaml:"schedule"`
	ObjectStorage  ObjectStorageConfig `mapstructure:"object_storage" yaml:"object_storage"`
}

// BackupsConfig groups snapshot and offsite policy.
type BackupsConfig struct {
	Snapshots SnapshotConfig `mapstructure:"snapshots" yaml:"snapshots"`
	Offsite   OffsiteConfig  `mapstructure:"offsite" yaml:"offsite"`
}

// RuntimeSetup is a language runtime installed in the dev workload.
type RuntimeSetup struct {
	Version        string   `mapstructure:"version" yaml:"version"`
	GlobalPackages []string `mapstructure:"global_packages" yaml:"global_packages"`
}

// ExtrasConfig toggles optional tooling in the dev workload.
type ExtrasConfig struct {
	ClaudeCode bool `mapstructure:"claude_code" yaml:"claude_code"`
	Docker     bool `mapstructure:"docker" yaml:"docker"`
	Certbot    bool `mapstructure:"certbot" yaml:"certbot"`
}

// DevSetupConfig describes the developer workload environment.
type DevSetupConfig struct {
	Packages []string     `mapstructure:"packages" yaml:"packages"`
	Python   RuntimeSetup `mapstructure:"python" yaml:"python"`
	Node     RuntimeSetup `mapstructure:"node" yaml:"node"`
	Extras   ExtrasConfig `mapstructure:"extras" yaml:"extras"`
}

// ContainersConfig selects the image for each workload.
type ContainersConfig struct {
	DefaultImage string            `mapstructure:"default_image" yaml:"default_image"`
	Overrides    map[string]string `mapstructure:"overrides" yaml:"overrides"`
}

// Image returns the image for a workload, honoring overrides.
func (c ContainersConfig) Image(workload string) string {
	if img, ok := c.Overrides[workload]; ok && img != "" {
		return img
	}
	return c.DefaultImage
}

// FirewallConfig is the in-workload ufw allow list.
type FirewallConfig struct {
	Allow []string `mapstructure:"allow" yaml:"allow"`
}

// CommonSetupConfig is applied to every listed workload.
type CommonSetupConfig struct {
	Containers []string       `mapstructure:"containers" yaml:"containers"`
	Packages   []string       `mapstructure:"packages" yaml:"packages"`
	Firewall   FirewallConfig `mapstructure:"firewall" yaml:"firewall"`
}

// StorageConfig selects the incus storage pool backing.
// With Device empty a loopback file of Size is used.
type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	Device string `mapstructure:"device" yaml:"device,omitempty"`
	Size   string `mapstructure:"size" yaml:"size"`
}

// IncusConfig selects the package channel used on Debian 12.
type IncusConfig struct {
	Channel string `mapstructure:"channel" yaml:"channel"`
}
