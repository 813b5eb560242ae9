package config

import (
	"fmt"
	"net"
)

// PrefixLength converts a dotted IPv4 netmask such as 255.255.255.192 into
// its prefix length (26). Non-contiguous masks are rejected.
func PrefixLength(netmask string) (int, error) {
	ip := net.ParseIP(netmask)
	if ip == nil || ip.To4() == nil {
		return 0, fmt.Errorf("invalid netmask %q", netmask)
	}
	ones, bits := net.IPMask(ip.To4()).Size()
	if bits == 0 {
		return 0, fmt.Errorf("netmask %q is not contiguous", netmask)
	}
	return ones, nil
}

// PublicPrefixLength returns the prefix length of the configured public netmask.
func (n NetworkConfig) PublicPrefixLength() (int, error) {
	return PrefixLength(n.Netmask)
}

// PublicAddress returns the public IP for a workload, or "" for workloads
// that are only reachable on the private network.
func (n NetworkConfig) PublicAddress(workload string) string {
	switch workload {
	case WorkloadDev:
		return n.IPs.Dev
	case WorkloadStaging:
		return n.IPs.Staging
	case WorkloadProd:
		return n.IPs.Prod
	default:
		return ""
	}
}

// PrivateAddress returns the address a workload gets on the private bridge.
// Application workloads are numbered from the start of the subnet; postgres
// uses its configured address.
func (n NetworkConfig) PrivateAddress(workload string) (string, error) {
	if workload == WorkloadPostgres {
		return n.Private.Postgres, nil
	}
	hostnum, ok := privateHostNumbers[workload]
	if !ok {
		return "", fmt.Errorf("unknown workload %q", workload)
	}
	return CIDRHost(n.Private.Subnet, hostnum)
}

// PrivateAddresses returns the private address of every workload.
func (n NetworkConfig) PrivateAddresses() (map[string]string, error) {
	out := make(map[string]string, len(Workloads))
	for _, w := range Workloads {
		addr, err := n.PrivateAddress(w)
		if err != nil {
			return nil, err
		}
		out[w] = addr
	}
	return out, nil
}

// PrivateGatewayCIDR returns the gateway in CIDR form, as set on the bridge.
func (n NetworkConfig) PrivateGatewayCIDR() (string, error) {
	_, network, err := net.ParseCIDR(n.Private.Subnet)
	if err != nil {
		return "", fmt.Errorf("invalid private subnet: %w", err)
	}
	ones, _ := network.Mask.Size()
	return fmt.Sprintf("%s/%d", n.Private.Gateway, ones), nil
}
