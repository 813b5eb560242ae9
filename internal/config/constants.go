package config

// Workload names. They double as incus instance names.
const (
	WorkloadDev      = "dev"
	WorkloadStaging  = "staging"
	WorkloadProd     = "prod"
	WorkloadPostgres = "postgres"
)

// Workloads lists every managed workload in launch order.
var Workloads = []string{WorkloadDev, WorkloadStaging, WorkloadProd, WorkloadPostgres}

// PublicWorkloads are the workloads that get a public address on the macvlan network.
var PublicWorkloads = []string{WorkloadDev, WorkloadStaging, WorkloadProd}

// Default values applied by Load.
const (
	DefaultSSHUser               = "root"
	DefaultSSHPort               = 22
	DefaultPrivateSubnet         = "10.10.10.0/24"
	DefaultPrivateGateway        = "10.10.10.1"
	DefaultPrivatePostgres       = "10.10.10.5"
	DefaultCPUPriority           = 5
	DefaultPostgresVersion       = "16"
	DefaultSnapshotRetentionDays = 7
	DefaultSnapshotSchedule      = "0 2 * * *"
	DefaultStorageBoxKeyPath     = "/root/.ssh/storagebox_key"
	DefaultOffsiteRetentionWeeks = 4
	DefaultOffsiteSchedule       = "0 3 * * 0"
	DefaultPythonVersion         = "3.12"
	DefaultNodeVersion           = "20"
	DefaultImage                 = "debian/13"
	DefaultStorageDriver         = "zfs"
	DefaultStorageSize           = "100GiB"
	DefaultIncusChannel          = "lts-6.0"
	DefaultPasswordLength        = 32
)

// privateHostNumbers are the host offsets inside the private subnet for the
// application workloads. Postgres is configured explicitly.
var privateHostNumbers = map[string]int{
	WorkloadDev:     2,
	WorkloadStaging: 3,
	WorkloadProd:    4,
}
