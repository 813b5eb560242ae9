package provisioning

import (
	"context"

	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
)

// EnsureAuthorizedKey adds key to the authorized_keys file at path without
// dropping keys that are already there. A missing file is created with spec.
func (c *Context) EnsureAuthorizedKey(exec ssh.Executor, path, key string, spec ssh.FileSpec) error {
	return c.EnsureResource("authorized-key", path, AuthorizedKeyPresent(exec, path, key), func(ctx context.Context) error {
		exists, err := exec.Exists(ctx, path)
		if err != nil {
			return err
		}
		if !exists {
			return exec.Materialize(ctx, path, []byte(key+"\n"), spec)
		}
		current, err := exec.ReadFile(ctx, path)
		if err != nil {
			return err
		}
		line := key + "\n"
		if len(current) > 0 && current[len(current)-1] != '\n' {
			line = "\n" + line
		}
		return exec.Append(ctx, path, []byte(line))
	})
}
