// Package incus installs and initializes the container runtime.
//
// It installs ZFS and incus (from Debian on trixie and later, from the
// Zabbly repository on bookworm), initializes the storage pool and default
// bridge from a preseed document, and creates the per-workload resource
// profiles plus the docker-ready profile.
package incus
