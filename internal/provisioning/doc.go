// Package provisioning sequences the idempotent remote operations that turn
// a bare server into a container host.
//
// # Subpackages
//
//   - preflight/: connectivity, OS and resource checks (the whole of --dry-run)
//   - host/: admin account, firewall, intrusion prevention, kernel tuning, SSH hardening
//   - incus/: ZFS, incus installation, storage pool and resource profiles
//   - network/: private bridge, public macvlan and per-workload NIC profiles
//   - containers/: workload launch, readiness and in-workload networking
//   - database/: PostgreSQL install, tuning, roles and databases
//   - devenv/: developer tooling in the dev workload
//   - common/: packages and firewall shared by application workloads
//   - backups/: snapshot and offsite scripts, keys and cron schedule
//
// # Core Types
//
// Pipeline runs an ordered list of Phase values and stops at the first
// failure, returning a *PhaseError that names the phase and the operation.
// Context carries the validated configuration, the host channel, the
// observer and the State accumulator. Ensure and Context.EnsureResource
// implement check-then-act for every named resource, and SafetyGate guards
// the one irreversible change (disabling password login).
package provisioning
