// Package naming provides consistent names for the incus resources and
// host files created during provisioning.
//
// Resource profiles follow {workload}-pool (the database workload uses
// db-pool), NIC profiles follow public-{workload} and private-{workload},
// and networks are prefixed with vibenet.
package naming
