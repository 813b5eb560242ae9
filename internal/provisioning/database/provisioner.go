package database

import (
	"context"
	"fmt"
	"path"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/templates"
	"github.com/conway-vibehost/vibehost-setup/internal/util/retry"
)

const phase = "database"

const hbaMarker = "# vibehost: Allow connections from private network"

// Provisioner handles PostgreSQL setup.
type Provisioner struct{}

// NewProvisioner creates a new database provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// ConfDir returns the cluster configuration directory for a server version.
func ConfDir(version string) string {
	return fmt.Sprintf("/etc/postgresql/%s/main", version)
}

// Provision implements the provisioning.Phase interface.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	pg := ctx.Workload(config.WorkloadPostgres)
	version := ctx.Config.Postgres.Version

	if err := ctx.Step("install postgresql", func() error {
		pkgs := []string{"postgresql-" + version, "postgresql-contrib"}
		return ctx.EnsurePackages(pg, "postgres/postgresql-"+version, pkgs...)
	}); err != nil {
		return err
	}

	act, err := ctx.NewActivation(pg, "postgresql")
	if err != nil {
		return err
	}
	if err := ctx.Step("configure postgresql", func() error { return configure(ctx, pg, act) }); err != nil {
		return err
	}

	if err := ctx.Step("restart postgresql", func() error {
		err := act.Complete(ctx, func(c context.Context) error {
			ctx.Printf("[%s] Restarting PostgreSQL to apply configuration", phase)
			return ssh.Run(c, pg, "systemctl restart postgresql")
		})
		if err != nil {
			return err
		}
		return waitAccepting(ctx, pg)
	}); err != nil {
		return err
	}

	if err := ctx.Step("create databases", func() error { return createDatabases(ctx, pg) }); err != nil {
		return err
	}

	return ctx.Step("test connectivity from dev", func() error {
		testConnectivity(ctx)
		return nil
	})
}

// configure writes the listen address, the pg_hba entry and the tuning
// file. Every write is tracked by act.
func configure(ctx *provisioning.Context, pg ssh.Executor, act *provisioning.Activation) error {
	cfg := ctx.Config
	dir := ConfDir(cfg.Postgres.Version)

	listen, err := templates.Render("database/listen.conf.tmpl", map[string]any{"Address": cfg.Network.Private.Postgres})
	if err != nil {
		return err
	}
	listenPath := path.Join(dir, "conf.d", "10-vibehost-listen.conf")
	if err := ctx.EnsureResource("file", "postgres:"+listenPath, provisioning.FileMatches(pg, listenPath, listen),
		act.Track(func(c context.Context) error {
			return pg.Materialize(c, listenPath, listen, ssh.FileSpec{Mode: 0o644, Owner: "postgres", Group: "postgres"})
		})); err != nil {
		return err
	}

	hba, err := templates.Render("database/pg_hba.tmpl", map[string]any{"Subnet": cfg.Network.Private.Subnet})
	if err != nil {
		return err
	}
	hbaPath := path.Join(dir, "pg_hba.conf")
	probe := provisioning.CommandSucceeds(pg, "grep -qF "+ssh.Quote(hbaMarker)+" "+ssh.Quote(hbaPath))
	if err := ctx.EnsureResource("pg-hba-entry", cfg.Network.Private.Subnet, probe,
		act.Track(func(c context.Context) error {
			return pg.Append(c, hbaPath, append([]byte("\n"), hba...))
		})); err != nil {
		return err
	}

	memoryMB, err := config.ParseMemoryMB(cfg.Resources.Postgres.Memory)
	if err != nil {
		return fmt.Errorf("postgres pool memory: %w", err)
	}
	tuning := CalculateTuning(memoryMB)
	content, err := tuning.Render()
	if err != nil {
		return err
	}
	tuningPath := path.Join(dir, "conf.d", "99-vibehost-tuning.conf")
	if err := ctx.EnsureResource("file", "postgres:"+tuningPath, provisioning.FileMatches(pg, tuningPath, content),
		act.Track(func(c context.Context) error {
			return pg.Materialize(c, tuningPath, content, ssh.FileSpec{Mode: 0o644, Owner: "postgres", Group: "postgres"})
		})); err != nil {
		return err
	}
	ctx.Printf("[%s] shared_buffers=%dMB effective_cache_size=%dMB work_mem=%dMB maintenance_work_mem=%dMB",
		phase, tuning.SharedBuffersMB, tuning.EffectiveCacheSizeMB, tuning.WorkMemMB, tuning.MaintenanceWorkMemMB)
	return nil
}

func waitAccepting(ctx *provisioning.Context, pg ssh.Executor) error {
	return retry.Until(ctx, ctx.Timeouts.ContainerReady, ctx.Timeouts.ReadyPoll, func(c context.Context) (bool, error) {
		res, err := pg.Execute(c, "pg_isready -q", ssh.ExecOptions{TolerateFailure: true})
		if err != nil {
			return false, err
		}
		return res.OK(), nil
	})
}

// testConnectivity logs into the first database from the dev workload over
// the private network. Failures are reported as notes.
func testConnectivity(ctx *provisioning.Context) {
	dbs := ctx.Config.Postgres.Databases
	if len(dbs) == 0 {
		return
	}
	db := dbs[0]
	dev := ctx.Workload(config.WorkloadDev)
	if err := ctx.EnsurePackages(dev, "dev/postgresql-client", "postgresql-client"); err != nil {
		ctx.Warn("could not install postgresql-client in dev: %v", err)
		return
	}
	password, _ := ctx.State.DatabasePassword(db.Name)
	cmd := fmt.Sprintf("PGPASSWORD=%s psql -h %s -U %s -d %s -tAc 'SELECT 1'",
		ssh.Quote(password), ctx.Config.Network.Private.Postgres, db.User, db.Name)
	res, err := dev.Execute(ctx, cmd, ssh.ExecOptions{TolerateFailure: true, Sensitive: true})
	if err != nil || !res.OK() {
		ctx.Warn("database connectivity test from dev to %s failed, verify manually", db.Name)
		return
	}
	ctx.Printf("[%s] Database connectivity verified from dev", phase)
}
