package config

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// CIDRHost returns the address at position hostnum inside prefix, counting
// from the network address. Negative positions count back from the end of
// the range (-1 is the broadcast address). Host bits set in prefix are
// ignored. Only IPv4 prefixes are accepted.
func CIDRHost(prefix string, hostnum int) (string, error) {
	p, err := parseIPv4Prefix(prefix)
	if err != nil {
		return "", err
	}

	size := uint64(1) << (32 - p.Bits())
	var offset uint64
	switch {
	case hostnum >= 0 && uint64(hostnum) < size:
		offset = uint64(hostnum)
	case hostnum < 0 && uint64(-hostnum) <= size:
		offset = size - uint64(-hostnum)
	default:
		return "", fmt.Errorf("host number %d outside %s (%d addresses)", hostnum, p, size)
	}

	base := p.Addr().As4()
	// #nosec G115 -- offset < 2^32 because size <= 2^32
	n := binary.BigEndian.Uint32(base[:]) + uint32(offset)
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], n)
	return netip.AddrFrom4(out).String(), nil
}

// CIDRContains reports whether ip lies inside prefix.
func CIDRContains(prefix, ip string) (bool, error) {
	p, err := netip.ParsePrefix(prefix)
	if err != nil {
		return false, fmt.Errorf("invalid CIDR prefix: %w", err)
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false, fmt.Errorf("invalid IP address %q", ip)
	}
	return p.Masked().Contains(addr), nil
}

func parseIPv4Prefix(prefix string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(prefix)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid CIDR prefix: %w", err)
	}
	if !p.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("only IPv4 prefixes are supported, got %s", prefix)
	}
	return p.Masked(), nil
}
