// Package netutil provides reachability checks run from the operator's
// machine before any remote work starts.
package netutil

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// DialTimeout bounds a single TCP probe.
const DialTimeout = 5 * time.Second

// CheckPort makes one TCP connection attempt to host:port.
func CheckPort(ctx context.Context, host string, port int) error {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("port %s is closed or filtered: %w", address, err)
	}
	_ = conn.Close()
	return nil
}

// PingStats summarizes an ICMP probe.
type PingStats struct {
	Sent     int
	Received int
	Loss     float64
	AvgRTT   time.Duration
}

// Ping sends count echo requests to host. Unprivileged (UDP) mode is used
// first; raw sockets are tried when the kernel refuses it.
func Ping(ctx context.Context, host string, count int, timeout time.Duration) (*PingStats, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return nil, fmt.Errorf("failed to create pinger: %w", err)
	}
	pinger.Count = count
	pinger.Interval = 200 * time.Millisecond
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)

	if err := pinger.RunWithContext(ctx); err != nil {
		pinger, perr := probing.NewPinger(host)
		if perr != nil {
			return nil, fmt.Errorf("failed to create pinger: %w", perr)
		}
		pinger.Count = count
		pinger.Interval = 200 * time.Millisecond
		pinger.Timeout = timeout
		pinger.SetPrivileged(true)
		if perr := pinger.RunWithContext(ctx); perr != nil {
			return nil, fmt.Errorf("ping %s: %w", host, err)
		}
		return statsOf(pinger.Statistics()), nil
	}
	return statsOf(pinger.Statistics()), nil
}

func statsOf(s *probing.Statistics) *PingStats {
	return &PingStats{
		Sent:     s.PacketsSent,
		Received: s.PacketsRecv,
		Loss:     s.PacketLoss,
		AvgRTT:   s.AvgRtt,
	}
}
