package backups

import (
	"context"
	"fmt"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/templates"
	"github.com/conway-vibehost/vibehost-setup/internal/util/naming"
)

const phase = "backups"

// Host paths managed by this phase.
const (
	SnapshotScriptPath = "/usr/local/bin/vibehost-snapshot"
	OffsiteScriptPath  = "/usr/local/bin/vibehost-offsite-backup"
	CronPath           = "/etc/cron.d/vibehost-backups"
	RcloneConfigPath   = "/root/.config/rclone/vibehost.conf"
	DumpDir            = "/var/lib/incus/backups/postgres"
	ExportDir          = "/var/lib/incus/backups/offsite"
)

// Provisioner handles backup configuration.
type Provisioner struct{}

// NewProvisioner creates a new backups provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	steps := []struct {
		name string
		fn   func(*provisioning.Context) error
	}{
		{"create backup directories", createDirectories},
		{"prepare storage box key", prepareStorageBoxKey},
		{"create snapshot script", createSnapshotScript},
		{"create offsite script", createOffsiteScript},
		{"configure cron", configureCron},
		{"test offsite connectivity", testConnectivity},
		{"run initial snapshot", runInitialSnapshot},
	}
	for _, s := range steps {
		if err := ctx.Step(s.name, func() error { return s.fn(ctx) }); err != nil {
			return err
		}
	}
	return nil
}

func offsiteProvider(cfg *config.Config) string {
	if !cfg.Backups.Offsite.Enabled {
		return ""
	}
	if cfg.Backups.Offsite.Provider == "" {
		return config.ProviderHetzner
	}
	return cfg.Backups.Offsite.Provider
}

func createDirectories(ctx *provisioning.Context) error {
	probe := provisioning.CommandSucceeds(ctx.Host, fmt.Sprintf("test -d %s && test -d %s", DumpDir, ExportDir))
	return ctx.EnsureResource("directory", "backups", probe, func(c context.Context) error {
		return ssh.Run(c, ctx.Host, fmt.Sprintf("install -d -m 700 %s %s", DumpDir, ExportDir))
	})
}

// SnapshotScript renders the daily snapshot and dump script.
func SnapshotScript(cfg *config.Config) ([]byte, error) {
	dbs := make([]string, 0, len(cfg.Postgres.Databases))
	for _, db := range cfg.Postgres.Databases {
		dbs = append(dbs, db.Name)
	}
	return templates.Render("backups/vibehost-snapshot.tmpl", map[string]any{
		"RetentionDays":    cfg.Backups.Snapshots.RetentionDays,
		"DumpDir":          DumpDir,
		"SnapshotPrefix":   naming.SnapshotPrefix,
		"Containers":       config.Workloads,
		"Databases":        dbs,
		"DatabaseWorkload": config.WorkloadPostgres,
	})
}

func createSnapshotScript(ctx *provisioning.Context) error {
	if !ctx.Config.Backups.Snapshots.Enabled {
		ctx.Printf("[%s] Snapshots disabled, skipping", phase)
		return nil
	}
	script, err := SnapshotScript(ctx.Config)
	if err != nil {
		return err
	}
	return ctx.EnsureFile(ctx.Host, SnapshotScriptPath, script, ssh.FileSpec{Mode: 0o755})
}

// CronJob is one line of the backup crontab.
type CronJob struct {
	Schedule string
	Command  string
	Log      string
}

// Crontab renders the cron.d file, or nil when no job is enabled.
func Crontab(cfg *config.Config) ([]byte, error) {
	var jobs []CronJob
	if cfg.Backups.Snapshots.Enabled {
		jobs = append(jobs, CronJob{cfg.Backups.Snapshots.Schedule, SnapshotScriptPath, "/var/log/vibehost-snapshot.log"})
	}
	if cfg.Backups.Offsite.Enabled {
		jobs = append(jobs, CronJob{cfg.Backups.Offsite.Schedule, OffsiteScriptPath, "/var/log/vibehost-offsite.log"})
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return templates.Render("backups/cron.tmpl", map[string]any{"Jobs": jobs})
}

func configureCron(ctx *provisioning.Context) error {
	crontab, err := Crontab(ctx.Config)
	if err != nil || crontab == nil {
		return err
	}
	return ctx.EnsureFile(ctx.Host, CronPath, crontab, ssh.FileSpec{Mode: 0o644, Owner: "root", Group: "root"})
}

func runInitialSnapshot(ctx *provisioning.Context) error {
	if !ctx.Config.Backups.Snapshots.Enabled {
		return nil
	}
	ctx.Printf("[%s] Running initial snapshot", phase)
	res, err := ctx.Host.Execute(ctx, SnapshotScriptPath, ssh.ExecOptions{Privileged: true, TolerateFailure: true, Capture: true})
	if err != nil {
		return err
	}
	if !res.OK() {
		ctx.Warn("initial snapshot exited with %d, check %s manually", res.ExitCode, SnapshotScriptPath)
		return nil
	}
	ctx.Printf("[%s] Initial snapshot complete", phase)
	return nil
}
