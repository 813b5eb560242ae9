// Package network creates the workload networks and their profiles.
//
// Workloads share the vibenet-private bridge and reach the internet through
// it; dev, staging and prod additionally get a public address on the
// vibenet-public macvlan network bound to the host uplink.
package network
