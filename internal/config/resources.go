package config

import (
	"fmt"
	"strconv"
	"strings"
)

// memoryUnits maps suffixes to a megabyte multiplier. Longest suffixes first.
var memoryUnits = []struct {
	suffix string
	factor int
}{
	{"GIB", 1024},
	{"MIB", 1},
	{"GB", 1024},
	{"MB", 1},
	{"G", 1024},
	{"M", 1},
}

// ParseMemoryMB parses a memory size such as "16GB", "512M" or "8GiB" into
// megabytes. A bare number is interpreted as gigabytes.
func ParseMemoryMB(s string) (int, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	factor := 1024
	for _, u := range memoryUnits {
		if strings.HasSuffix(v, u.suffix) {
			v = strings.TrimSpace(strings.TrimSuffix(v, u.suffix))
			factor = u.factor
			break
		}
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid memory size %q", s)
	}
	return n * factor, nil
}

// ParseCPUAllowance parses a percentage allowance such as "40%".
func ParseCPUAllowance(s string) (int, error) {
	v := strings.TrimSpace(s)
	if !strings.HasSuffix(v, "%") {
		return 0, fmt.Errorf("invalid CPU allowance %q: expected a percentage such as 25%%", s)
	}
	n, err := strconv.Atoi(strings.TrimSuffix(v, "%"))
	if err != nil || n <= 0 || n > 100 {
		return 0, fmt.Errorf("invalid CPU allowance %q: must be between 1%% and 100%%", s)
	}
	return n, nil
}

// Pool returns the resource pool for a workload.
func (r ResourcesConfig) Pool(workload string) (ResourcePool, bool) {
	switch workload {
	case WorkloadDev:
		return r.Dev, true
	case WorkloadStaging:
		return r.Staging, true
	case WorkloadProd:
		return r.Prod, true
	case WorkloadPostgres:
		return r.Postgres, true
	default:
		return ResourcePool{}, false
	}
}
