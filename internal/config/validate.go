package config

import (
	"fmt"
	"maps"
	"net"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/crypto/ssh"
)

var (
	// identifierPattern matches database and role names that need no quoting in SQL.
	identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	// usernamePattern matches portable Unix account names.
	usernamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)
	// firewallRulePattern matches ufw port rules such as 22/tcp or 60000:61000/udp.
	firewallRulePattern = regexp.MustCompile(`^[0-9]{1,5}(:[0-9]{1,5})?(/(tcp|udp))?$`)
	// packagePattern matches apt, pip and npm package specs without shell metacharacters.
	packagePattern = regexp.MustCompile(`^[A-Za-z0-9@][A-Za-z0-9@._+:/=<>~-]*$`)
	// versionPattern matches runtime and package versions.
	versionPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)
)

// Validate checks the configuration for errors and returns the first one found.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := c.validateAdmin(); err != nil {
		return fmt.Errorf("admin validation failed: %w", err)
	}
	if err := c.validateNetwork(); err != nil {
		return fmt.Errorf("network validation failed: %w", err)
	}
	if err := c.validateResources(); err != nil {
		return fmt.Errorf("resources validation failed: %w", err)
	}
	if err := c.validatePostgres(); err != nil {
		return fmt.Errorf("postgres validation failed: %w", err)
	}
	if err := c.validateBackups(); err != nil {
		return fmt.Errorf("backups validation failed: %w", err)
	}
	if err := c.validateSetup(); err != nil {
		return fmt.Errorf("setup validation failed: %w", err)
	}
	if c.Storage.Driver != DefaultStorageDriver {
		return fmt.Errorf("storage validation failed: unsupported driver %q", c.Storage.Driver)
	}
	return nil
}

func (c *Config) validateServer() error {
	s := c.Server
	if s.Host == "" {
		return fmt.Errorf("host is required")
	}
	if s.SSHUser == "" {
		return fmt.Errorf("ssh_user is required")
	}
	if s.SSHPort < 1 || s.SSHPort > 65535 {
		return fmt.Errorf("ssh_port %d out of range", s.SSHPort)
	}
	switch s.AuthMethod {
	case AuthPassword:
		// A missing password is prompted for at run time.
	case AuthSSHKey:
		if s.SSHKeyPath == "" {
			return fmt.Errorf("ssh_key_path required when auth_method is %q", AuthSSHKey)
		}
	default:
		return fmt.Errorf("auth_method must be %q or %q, got %q", AuthPassword, AuthSSHKey, s.AuthMethod)
	}
	return nil
}

func (c *Config) validateAdmin() error {
	a := c.Admin
	if !usernamePattern.MatchString(a.Username) {
		return fmt.Errorf("username %q is not a valid account name", a.Username)
	}
	if a.Username == "root" {
		return fmt.Errorf("username must not be root")
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(a.SSHPublicKey)); err != nil {
		return fmt.Errorf("ssh_public_key is not a valid authorized key: %w", err)
	}
	return nil
}

func (c *Config) validateNetwork() error {
	n := c.Network
	if n.Interface == "" {
		return fmt.Errorf("interface is required")
	}
	if _, err := PrefixLength(n.Netmask); err != nil {
		return err
	}

	public := map[string]string{
		"gateway":     n.Gateway,
		"ips.host":    n.IPs.Host,
		"ips.dev":     n.IPs.Dev,
		"ips.staging": n.IPs.Staging,
		"ips.prod":    n.IPs.Prod,
	}
	if n.IPs.Spare != "" {
		public["ips.spare"] = n.IPs.Spare
	}
	seen := make(map[string]string, len(public))
	for _, field := range slices.Sorted(maps.Keys(public)) {
		ip := public[field]
		if !isIPv4(ip) {
			return fmt.Errorf("%s: invalid IPv4 address %q", field, ip)
		}
		if field == "gateway" {
			continue
		}
		if other, dup := seen[ip]; dup {
			return fmt.Errorf("%s and %s share the address %s", other, field, ip)
		}
		seen[ip] = field
	}

	if _, _, err := net.ParseCIDR(n.Private.Subnet); err != nil {
		return fmt.Errorf("private.subnet: %w", err)
	}
	addrs, err := n.PrivateAddresses()
	if err != nil {
		return fmt.Errorf("private addresses: %w", err)
	}
	inside := map[string]string{"private.gateway": n.Private.Gateway}
	for w, addr := range addrs {
		inside["private address of "+w] = addr
	}
	used := make(map[string]string, len(inside))
	for _, field := range slices.Sorted(maps.Keys(inside)) {
		ip := inside[field]
		ok, err := CIDRContains(n.Private.Subnet, ip)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if !ok {
			return fmt.Errorf("%s %s is outside %s", field, ip, n.Private.Subnet)
		}
		if other, dup := used[ip]; dup {
			return fmt.Errorf("%s and %s share the address %s", other, field, ip)
		}
		used[ip] = field
	}
	return nil
}

func (c *Config) validateResources() error {
	for _, w := range Workloads {
		pool, _ := c.Resources.Pool(w)
		if _, err := ParseMemoryMB(pool.Memory); err != nil {
			return fmt.Errorf("%s.memory: %w", w, err)
		}
		if _, err := ParseCPUAllowance(pool.CPUAllowance); err != nil {
			return fmt.Errorf("%s.cpu_allowance: %w", w, err)
		}
		if pool.CPUPriority < 0 || pool.CPUPriority > 10 {
			return fmt.Errorf("%s.cpu_priority must be between 0 and 10, got %d", w, pool.CPUPriority)
		}
	}
	return nil
}

func (c *Config) validatePostgres() error {
	if !versionPattern.MatchString(c.Postgres.Version) {
		return fmt.Errorf("invalid version %q", c.Postgres.Version)
	}
	if len(c.Postgres.Databases) == 0 {
		return fmt.Errorf("at least one database is required")
	}
	names := make(map[string]bool, len(c.Postgres.Databases))
	// A password belongs to the role, so databases sharing a user must agree on it.
	rolePasswords := make(map[string]string, len(c.Postgres.Databases))
	for _, db := range c.Postgres.Databases {
		if !identifierPattern.MatchString(db.Name) {
			return fmt.Errorf("database name %q must match %s", db.Name, identifierPattern)
		}
		if !identifierPattern.MatchString(db.User) {
			return fmt.Errorf("database user %q must match %s", db.User, identifierPattern)
		}
		if names[db.Name] {
			return fmt.Errorf("database %q declared twice", db.Name)
		}
		names[db.Name] = true
		if pw, ok := rolePasswords[db.User]; ok && pw != db.Password {
			return fmt.Errorf("databases sharing user %q must use the same password", db.User)
		}
		rolePasswords[db.User] = db.Password
	}
	return nil
}

func (c *Config) validateBackups() error {
	snap := c.Backups.Snapshots
	if snap.Enabled {
		if snap.RetentionDays < 1 {
			return fmt.Errorf("snapshots.retention_days must be positive")
		}
		if err := validateCron(snap.Schedule); err != nil {
			return fmt.Errorf("snapshots.schedule: %w", err)
		}
	}

	off := c.Backups.Offsite
	if !off.Enabled {
		return nil
	}
	if off.RetentionWeeks < 1 {
		return fmt.Errorf("offsite.retention_weeks must be positive")
	}
	if err := validateCron(off.Schedule); err != nil {
		return fmt.Errorf("offsite.schedule: %w", err)
	}
	switch off.Provider {
	case ProviderHetzner:
		if off.StorageBoxHost == "" {
			return fmt.Errorf("storagebox_host required when offsite backups enabled")
		}
		if off.StorageBoxUser == "" {
			return fmt.Errorf("storagebox_user required when offsite backups enabled")
		}
	case ProviderObjectStorage:
		if off.ObjectStorage.Endpoint == "" || off.ObjectStorage.Bucket == "" {
			return fmt.Errorf("object_storage.endpoint and object_storage.bucket required for provider %q", ProviderObjectStorage)
		}
		if off.ObjectStorage.AccessKey == "" || off.ObjectStorage.SecretKey == "" {
			return fmt.Errorf("object_storage credentials required (set %s_BACKUPS_OFFSITE_OBJECT_STORAGE_ACCESS_KEY and _SECRET_KEY)", EnvPrefix)
		}
	default:
		return fmt.Errorf("unsupported offsite provider %q", off.Provider)
	}
	return nil
}

func (c *Config) validateSetup() error {
	for _, w := range c.CommonSetup.Containers {
		if !slices.Contains(Workloads, w) {
			return fmt.Errorf("common_setup.containers: unknown workload %q", w)
		}
	}
	for _, rule := range c.CommonSetup.Firewall.Allow {
		if !firewallRulePattern.MatchString(rule) {
			return fmt.Errorf("common_setup.firewall.allow: invalid rule %q", rule)
		}
	}
	pkgs := slices.Concat(c.CommonSetup.Packages, c.DevSetup.Packages,
		c.DevSetup.Python.GlobalPackages, c.DevSetup.Node.GlobalPackages)
	for _, p := range pkgs {
		if !packagePattern.MatchString(p) {
			return fmt.Errorf("invalid package name %q", p)
		}
	}
	if !versionPattern.MatchString(c.DevSetup.Python.Version) {
		return fmt.Errorf("dev_setup.python.version: invalid version %q", c.DevSetup.Python.Version)
	}
	if !versionPattern.MatchString(c.DevSetup.Node.Version) {
		return fmt.Errorf("dev_setup.node.version: invalid version %q", c.DevSetup.Node.Version)
	}
	for w := range c.Containers.Overrides {
		if !slices.Contains(Workloads, w) {
			return fmt.Errorf("containers.overrides: unknown workload %q", w)
		}
	}
	return nil
}

// Warnings returns advisory findings that do not block provisioning.
func (c *Config) Warnings() []string {
	var warnings []string

	total := 0
	for _, w := range Workloads {
		pool, _ := c.Resources.Pool(w)
		n, err := ParseCPUAllowance(pool.CPUAllowance)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Invalid CPU allowance format: %s", pool.CPUAllowance))
			continue
		}
		total += n
	}
	if total > 100 {
		warnings = append(warnings, fmt.Sprintf(
			"Total CPU allowance (%d%%) exceeds 100%% - containers may compete for resources", total))
	}

	if !c.Backups.Offsite.Enabled {
		warnings = append(warnings, "Offsite backups are disabled - only local snapshots will exist")
	}
	if !c.Backups.Snapshots.Enabled {
		warnings = append(warnings, "Local snapshots are disabled")
	}
	if c.Server.AuthMethod == AuthPassword && c.Server.SSHUser != "root" {
		warnings = append(warnings, fmt.Sprintf(
			"ssh_user %q is not root - privileged commands will use sudo", c.Server.SSHUser))
	}
	for _, db := range c.Postgres.Databases {
		if !db.Generated() && len(db.Password) < 16 {
			warnings = append(warnings, fmt.Sprintf("Database %s uses a short password", db.Name))
		}
	}
	return warnings
}

// validateCron checks the shape of a five-field cron expression.
func validateCron(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return fmt.Errorf("cron expression %q must have 5 fields", expr)
	}
	for _, f := range fields {
		if strings.ContainsAny(f, "'\"`$;&|") {
			return fmt.Errorf("cron expression %q contains invalid characters", expr)
		}
	}
	return nil
}

func isIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}
