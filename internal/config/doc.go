// Package config defines the typed configuration for provisioning a
// dedicated server into a container host.
//
// A [Config] is produced once by [Load], which reads the YAML document,
// applies environment overrides and defaults, and runs [Config.Validate].
// Everything downstream (phases, calculators, the handoff renderer)
// consumes the validated struct and never re-reads raw input.
//
// The package also carries the small deterministic calculators derived
// from the configuration: netmask to prefix conversion, private address
// assignment per workload ([CIDRHost]), memory size parsing, and password
// generation for databases declared with "generate".
package config
