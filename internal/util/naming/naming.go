package naming

import "fmt"

const (
	// PrivateNetwork is the bridge carrying workload-to-workload traffic.
	PrivateNetwork = "vibenet-private"
	// PublicNetwork is the macvlan network giving workloads public addresses.
	PublicNetwork = "vibenet-public"
	// DefaultBridge is the NAT bridge created by incus admin init.
	DefaultBridge = "incusbr0"
	// StoragePool is the ZFS pool created by incus admin init.
	StoragePool = "default"
	// DefaultProfile is incus' built-in profile.
	DefaultProfile = "default"
	// DockerProfile enables nesting and syscall interception for Docker.
	DockerProfile = "docker-ready"
)

// ResourceProfile returns the limits profile of a workload.
func ResourceProfile(workload string) string {
	if workload == "postgres" {
		return "db-pool"
	}
	return fmt.Sprintf("%s-pool", workload)
}

// PublicProfile returns the eth0 macvlan profile of a workload.
func PublicProfile(workload string) string {
	return fmt.Sprintf("public-%s", workload)
}

// PrivateProfile returns the eth1 private bridge profile of a workload.
func PrivateProfile(workload string) string {
	return fmt.Sprintf("private-%s", workload)
}

// SnapshotPrefix starts the name of every scheduled snapshot. The date
// stamp (YYYYMMDD) follows it.
const SnapshotPrefix = "daily-"

// CredentialFile returns where a database role's generated password is
// retained on the host.
func CredentialFile(role string) string {
	return fmt.Sprintf("/etc/vibehost/credentials/%s.password", role)
}

// HandoffFile returns the handoff document name for a host and date (YYYYMMDD).
func HandoffFile(host, date string) string {
	dashed := make([]byte, 0, len(host))
	for i := 0; i < len(host); i++ {
		c := host[i]
		if c == '.' || c == ':' {
			c = '-'
		}
		dashed = append(dashed, c)
	}
	return fmt.Sprintf("handoff-%s-%s.md", dashed, date)
}
