package labels

import (
	"fmt"
	"maps"
	"slices"
)

// Standard keys, all under the user. namespace incus reserves for
// free-form metadata.
const (
	// KeyRole identifies the workload role (dev, staging, prod, postgres).
	KeyRole = "user.vibehost.role"

	// KeyManagedBy identifies the management system.
	KeyManagedBy = "user.vibehost.managed-by"

	// KeyRunID records the run that created the instance.
	KeyRunID = "user.vibehost.run-id"

	// KeyVersion records the tool version that created the instance.
	KeyVersion = "user.vibehost.version"
)

// ManagedBy is the value of KeyManagedBy.
const ManagedBy = "vibehost-setup"

// LabelBuilder provides a fluent interface for building instance config keys.
type LabelBuilder struct {
	labels map[string]string
}

// NewLabelBuilder creates a builder with the role and manager pre-set.
func NewLabelBuilder(role string) *LabelBuilder {
	return &LabelBuilder{
		labels: map[string]string{
			KeyRole:      role,
			KeyManagedBy: ManagedBy,
		},
	}
}

// WithRunIDIfSet adds the run ID only if it is non-empty.
func (lb *LabelBuilder) WithRunIDIfSet(runID string) *LabelBuilder {
	if runID != "" {
		lb.labels[KeyRunID] = runID
	}
	return lb
}

// WithVersionIfSet adds the tool version only if it is non-empty.
func (lb *LabelBuilder) WithVersionIfSet(version string) *LabelBuilder {
	if version != "" {
		lb.labels[KeyVersion] = version
	}
	return lb
}

// Build returns a copy of the labels map.
func (lb *LabelBuilder) Build() map[string]string {
	return maps.Clone(lb.labels)
}

// Flags renders the labels as incus launch --config arguments in key order.
func (lb *LabelBuilder) Flags() []string {
	flags := make([]string, 0, len(lb.labels)*2)
	for _, k := range slices.Sorted(maps.Keys(lb.labels)) {
		flags = append(flags, "-c", fmt.Sprintf("%s=%s", k, lb.labels[k]))
	}
	return flags
}
