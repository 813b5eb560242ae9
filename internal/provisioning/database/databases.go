package database

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/util/naming"
)

const psql = "runuser -u postgres -- psql -v ON_ERROR_STOP=1 -X -q"

// quoteIdent quotes a SQL identifier.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// quoteLiteral quotes a SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// catalogHas probes a catalog query that returns 1 when the object exists.
func catalogHas(pg ssh.Executor, query string) provisioning.Probe {
	return provisioning.OutputEquals(pg, "runuser -u postgres -- psql -X -tAc "+ssh.Quote(query), "1")
}

// runSQL feeds statements to psql on stdin so passwords never appear in a
// command line.
func runSQL(ctx context.Context, pg ssh.Executor, sql string) error {
	_, err := pg.Execute(ctx, psql, ssh.ExecOptions{Stdin: bytes.NewBufferString(sql), Sensitive: true})
	return err
}

// Password returns the password of a database's role. Generated passwords
// are retained per role: read from the host credential file when present
// and written there otherwise.
func Password(ctx *provisioning.Context, db config.DatabaseConfig) (string, error) {
	if !db.Generated() {
		return db.Password, nil
	}
	file := naming.CredentialFile(db.User)
	exists, err := ctx.Host.Exists(ctx, file)
	if err != nil {
		return "", err
	}
	if exists {
		data, err := ctx.Host.ReadFile(ctx, file)
		if err != nil {
			return "", err
		}
		if pw := strings.TrimSpace(string(data)); pw != "" {
			return pw, nil
		}
	}

	pw, err := config.NewPassword(config.DefaultPasswordLength)
	if err != nil {
		return "", err
	}
	if err := ssh.Run(ctx, ctx.Host, "install -d -m 700 "+ssh.Quote(path.Dir(file))); err != nil {
		return "", err
	}
	if err := ctx.Host.Materialize(ctx, file, []byte(pw+"\n"), ssh.FileSpec{Mode: 0o600, Owner: "root", Group: "root"}); err != nil {
		return "", fmt.Errorf("failed to retain password for role %s: %w", db.User, err)
	}
	return pw, nil
}

func createDatabases(ctx *provisioning.Context, pg ssh.Executor) error {
	roles := make(map[string]string)
	for _, db := range ctx.Config.Postgres.Databases {
		password, ok := roles[db.User]
		if !ok {
			var err error
			if password, err = Password(ctx, db); err != nil {
				return err
			}
			if err := ensureRole(ctx, pg, db.User, password); err != nil {
				return err
			}
			roles[db.User] = password
		}
		ctx.State.SetDatabasePassword(db.Name, password)

		dbExists := catalogHas(pg, fmt.Sprintf("SELECT 1 FROM pg_database WHERE datname = %s", quoteLiteral(db.Name)))
		err := ctx.EnsureResource("database", db.Name, dbExists, func(c context.Context) error {
			return ssh.Run(c, pg, fmt.Sprintf("runuser -u postgres -- createdb -O %s %s", db.User, db.Name))
		})
		if err != nil {
			return err
		}

		if err := runSQL(ctx, pg, fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s;\n", quoteIdent(db.Name), quoteIdent(db.User))); err != nil {
			return err
		}
		ctx.Printf("[%s] Database %s ready (user: %s)", phase, db.Name, db.User)
	}
	return nil
}

// ensureRole creates a login role, or sets an existing role's password to
// the retained one.
func ensureRole(ctx *provisioning.Context, pg ssh.Executor, role, password string) error {
	exists := catalogHas(pg, fmt.Sprintf("SELECT 1 FROM pg_roles WHERE rolname = %s", quoteLiteral(role)))
	created := false
	err := ctx.EnsureResource("database-role", role, exists, func(c context.Context) error {
		created = true
		return runSQL(c, pg, fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s;\n", quoteIdent(role), quoteLiteral(password)))
	})
	if err != nil || created {
		return err
	}
	return runSQL(ctx, pg, fmt.Sprintf("ALTER ROLE %s WITH LOGIN PASSWORD %s;\n", quoteIdent(role), quoteLiteral(password)))
}
