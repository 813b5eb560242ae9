// Package containers launches the workloads and configures their networking.
//
// Each workload is launched from its configured image with its resource,
// network and (for application workloads) docker-ready profiles. Once a
// workload answers commands its interfaces are configured, through
// systemd-networkd files or the cloud-init network config depending on what
// the image supports, and SSH is enabled in every workload except postgres.
package containers
