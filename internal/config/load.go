package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. VIBEHOST_SERVER_SSH_PASSWORD.
const EnvPrefix = "VIBEHOST"

// secretKeys are bound to the environment even when absent from the file,
// so credentials can stay out of the YAML document.
var secretKeys = []string{
	"server.ssh_password",
	"server.ssh_key_path",
	"backups.offsite.object_storage.access_key",
	"backups.offsite.object_storage.secret_key",
}

// LoadFile reads, decodes, defaults and validates the configuration at path.
func LoadFile(path string) (*Config, error) {
	cfg, err := Decode(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Decode reads the configuration at path and applies defaults without validating it.
func Decode(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range secretKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Extras default to enabled; a partial extras block only flips what it names.
	cfg := Config{
		DevSetup: DevSetupConfig{
			Extras: ExtrasConfig{ClaudeCode: true, Docker: true, Certbot: true},
		},
	}
	hook := mapstructure.ComposeDecodeHookFunc(
		extrasListHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.ssh_user", DefaultSSHUser)
	v.SetDefault("server.ssh_port", DefaultSSHPort)

	v.SetDefault("network.private.subnet", DefaultPrivateSubnet)
	v.SetDefault("network.private.gateway", DefaultPrivateGateway)
	v.SetDefault("network.private.postgres", DefaultPrivatePostgres)

	v.SetDefault("postgres.version", DefaultPostgresVersion)

	v.SetDefault("backups.snapshots.enabled", true)
	v.SetDefault("backups.snapshots.retention_days", DefaultSnapshotRetentionDays)
	v.SetDefault("backups.snapshots.schedule", DefaultSnapshotSchedule)
	v.SetDefault("backups.offsite.enabled", false)
	v.SetDefault("backups.offsite.provider", ProviderHetzner)
	v.SetDefault("backups.offsite.ssh_key_path", DefaultStorageBoxKeyPath)
	v.SetDefault("backups.offsite.retention_weeks", DefaultOffsiteRetentionWeeks)
	v.SetDefault("backups.offsite.schedule", DefaultOffsiteSchedule)

	v.SetDefault("dev_setup.python.version", DefaultPythonVersion)
	v.SetDefault("dev_setup.node.version", DefaultNodeVersion)

	v.SetDefault("containers.default_image", DefaultImage)

	v.SetDefault("storage.driver", DefaultStorageDriver)
	v.SetDefault("storage.size", DefaultStorageSize)

	v.SetDefault("incus.channel", DefaultIncusChannel)
}

// applyDefaults fills values that cannot be expressed as viper defaults.
// Slices are handled here because decoding merges into an existing slice
// instead of replacing it.
func applyDefaults(cfg *Config) {
	for i := range cfg.Postgres.Databases {
		if cfg.Postgres.Databases[i].Password == "" {
			cfg.Postgres.Databases[i].Password = GeneratePassword
		}
	}
	if cfg.Resources.Dev.CPUPriority == 0 {
		cfg.Resources.Dev.CPUPriority = DefaultCPUPriority
	}
	if cfg.Resources.Staging.CPUPriority == 0 {
		cfg.Resources.Staging.CPUPriority = DefaultCPUPriority
	}
	if cfg.Resources.Prod.CPUPriority == 0 {
		cfg.Resources.Prod.CPUPriority = DefaultCPUPriority
	}
	if cfg.Resources.Postgres.CPUPriority == 0 {
		cfg.Resources.Postgres.CPUPriority = DefaultCPUPriority
	}
	if cfg.CommonSetup.Containers == nil {
		cfg.CommonSetup.Containers = []string{WorkloadDev, WorkloadStaging, WorkloadProd}
	}
	if cfg.CommonSetup.Firewall.Allow == nil {
		cfg.CommonSetup.Firewall.Allow = []string{"22/tcp", "80/tcp", "443/tcp"}
	}
	if cfg.Admin.SSHPrivateKeyPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Admin.SSHPrivateKeyPath = filepath.Join(home, ".ssh", "id_ed25519")
		}
	}
	cfg.Admin.SSHPrivateKeyPath = expandHome(cfg.Admin.SSHPrivateKeyPath)
	cfg.Server.SSHKeyPath = expandHome(cfg.Server.SSHKeyPath)
}

// extrasListHook accepts the list-of-maps form of dev_setup.extras:
//
//	extras:
//	  - docker: true
//	  - certbot: false
func extrasListHook() mapstructure.DecodeHookFuncType {
	extrasType := reflect.TypeOf(ExtrasConfig{})
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != extrasType || from.Kind() != reflect.Slice {
			return data, nil
		}
		items, ok := data.([]any)
		if !ok {
			return data, nil
		}
		merged := make(map[string]any, len(items))
		for _, item := range items {
			switch m := item.(type) {
			case map[string]any:
				for k, v := range m {
					merged[k] = v
				}
			case map[any]any:
				for k, v := range m {
					merged[fmt.Sprint(k)] = v
				}
			}
		}
		return merged, nil
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
