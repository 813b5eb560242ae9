package incus

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/util/labels"
	"github.com/conway-vibehost/vibehost-setup/internal/util/naming"
)

// DockerProfileConfig are the security settings Docker needs inside a
// container on ZFS.
var DockerProfileConfig = map[string]string{
	"security.nesting":                     "true",
	"security.syscalls.intercept.mknod":    "true",
	"security.syscalls.intercept.setxattr": "true",
}

// ResourceProfileConfig returns the limit keys of a workload's profile.
func ResourceProfileConfig(pool config.ResourcePool) map[string]string {
	return map[string]string{
		"limits.memory":        pool.Memory,
		"limits.cpu.allowance": pool.CPUAllowance,
		"limits.cpu.priority":  strconv.Itoa(pool.CPUPriority),
		labels.KeyManagedBy:    labels.ManagedBy,
	}
}

func createResourceProfiles(ctx *provisioning.Context) error {
	for _, w := range config.Workloads {
		pool, _ := ctx.Config.Resources.Pool(w)
		if err := EnsureProfile(ctx, naming.ResourceProfile(w), ResourceProfileConfig(pool)); err != nil {
			return err
		}
	}
	return nil
}

func createDockerProfile(ctx *provisioning.Context) error {
	cfg := maps.Clone(DockerProfileConfig)
	cfg[labels.KeyManagedBy] = labels.ManagedBy
	return EnsureProfile(ctx, naming.DockerProfile, cfg)
}

// EnsureProfile creates the profile when missing and sets every key whose
// current value differs.
func EnsureProfile(ctx *provisioning.Context, name string, keys map[string]string) error {
	q := ssh.Quote(name)
	err := ctx.EnsureResource("profile", name, provisioning.CommandSucceeds(ctx.Host, "incus profile show "+q),
		func(c context.Context) error {
			return ssh.Run(c, ctx.Host, "incus profile create "+q)
		})
	if err != nil {
		return err
	}

	for _, k := range slices.Sorted(maps.Keys(keys)) {
		v := keys[k]
		probe := provisioning.OutputEquals(ctx.Host, fmt.Sprintf("incus profile get %s %s", q, ssh.Quote(k)), v)
		err := ctx.EnsureResource("profile-key", name+"/"+k, probe, func(c context.Context) error {
			return ssh.Run(c, ctx.Host, fmt.Sprintf("incus profile set %s %s", q, ssh.Quote(k+"="+v)))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Verify checks the storage pool and every profile this phase creates.
func Verify(ctx context.Context, exec ssh.Executor) error {
	pools, err := ssh.Probe(ctx, exec, "incus storage list -f csv")
	if err != nil {
		return err
	}
	if !pools.OK() || !strings.Contains(pools.Stdout, naming.StoragePool+",") {
		return fmt.Errorf("incus verification failed: storage pool %q not found", naming.StoragePool)
	}

	profiles, err := ssh.Probe(ctx, exec, "incus profile list -f csv")
	if err != nil {
		return err
	}
	if !profiles.OK() {
		return fmt.Errorf("incus verification failed: cannot list profiles: %s", strings.TrimSpace(profiles.Stderr))
	}
	have := csvNames(profiles.Stdout)
	required := []string{naming.DockerProfile}
	for _, w := range config.Workloads {
		required = append(required, naming.ResourceProfile(w))
	}
	for _, p := range required {
		if !have[p] {
			return fmt.Errorf("incus verification failed: profile %q not found", p)
		}
	}
	return nil
}

// csvNames returns the first column of incus CSV output.
func csvNames(out string) map[string]bool {
	names := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		name, _, _ := strings.Cut(strings.TrimSpace(line), ",")
		if name != "" {
			names[name] = true
		}
	}
	return names
}
