package handoff

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/templates"
	"github.com/conway-vibehost/vibehost-setup/internal/util/naming"
)

// Workload is one row of the workload table.
type Workload struct {
	Name      string
	PublicIP  string
	PrivateIP string
	Image     string
	Memory    string
	CPU       string
	SSH       bool
}

// Database is one row of the database table.
type Database struct {
	Name     string
	User     string
	Password string
}

// Document is the data rendered into the handoff template.
type Document struct {
	Date          string
	RunID         string
	HostIP        string
	AdminUser     string
	SpareIP       string
	PrivateSubnet string
	Workloads     []Workload

	PostgresVersion string
	PostgresIP      string
	Databases       []Database

	PythonVersion  string
	PythonPackages []string
	NodeVersion    string
	NodePackages   []string
	Extras         config.ExtrasConfig

	FirewallContainers []string
	FirewallRules      []string

	BackupsConfigured   bool
	SnapshotsEnabled    bool
	SnapshotSchedule    string
	SnapshotRetention   int
	OffsiteEnabled      bool
	OffsiteTarget       string
	OffsiteSchedule     string
	OffsiteRetention    int
	StorageBoxPublicKey string

	Notes []provisioning.Note
}

// Options carries run facts that are not part of the configuration.
type Options struct {
	Now         time.Time
	SkipBackups bool
}

// hostIP is the address the document is named after.
func hostIP(cfg *config.Config) string {
	if cfg.Network.IPs.Host != "" {
		return cfg.Network.IPs.Host
	}
	return cfg.Server.Host
}

// New assembles the document from the configuration and the run state.
func New(cfg *config.Config, state *provisioning.State, opts Options) (*Document, error) {
	doc := &Document{
		Date:               opts.Now.Format("2006-01-02"),
		RunID:              state.RunID,
		HostIP:             hostIP(cfg),
		AdminUser:          cfg.Admin.Username,
		SpareIP:            cfg.Network.IPs.Spare,
		PrivateSubnet:      cfg.Network.Private.Subnet,
		PostgresVersion:    cfg.Postgres.Version,
		PostgresIP:         cfg.Network.Private.Postgres,
		PythonVersion:      cfg.DevSetup.Python.Version,
		PythonPackages:     cfg.DevSetup.Python.GlobalPackages,
		NodeVersion:        cfg.DevSetup.Node.Version,
		NodePackages:       cfg.DevSetup.Node.GlobalPackages,
		Extras:             cfg.DevSetup.Extras,
		FirewallContainers: cfg.CommonSetup.Containers,
		FirewallRules:      cfg.CommonSetup.Firewall.Allow,
		BackupsConfigured:  !opts.SkipBackups,
		Notes:              state.Notes(),
	}

	for _, w := range config.Workloads {
		private, err := cfg.Network.PrivateAddress(w)
		if err != nil {
			return nil, err
		}
		pool, _ := cfg.Resources.Pool(w)
		doc.Workloads = append(doc.Workloads, Workload{
			Name:      w,
			PublicIP:  cfg.Network.PublicAddress(w),
			PrivateIP: private,
			Image:     cfg.Containers.Image(w),
			Memory:    pool.Memory,
			CPU:       pool.CPUAllowance,
			SSH:       slices.Contains(config.PublicWorkloads, w),
		})
	}

	passwords := state.DatabasePasswords()
	for _, db := range cfg.Postgres.Databases {
		pw, ok := passwords[db.Name]
		if !ok {
			pw = db.Password
		}
		doc.Databases = append(doc.Databases, Database{Name: db.Name, User: db.User, Password: pw})
	}

	snap := cfg.Backups.Snapshots
	doc.SnapshotsEnabled = snap.Enabled
	doc.SnapshotSchedule = snap.Schedule
	doc.SnapshotRetention = snap.RetentionDays

	off := cfg.Backups.Offsite
	if off.Enabled {
		doc.OffsiteEnabled = true
		doc.OffsiteSchedule = off.Schedule
		doc.OffsiteRetention = off.RetentionWeeks
		if off.Provider == config.ProviderObjectStorage {
			doc.OffsiteTarget = fmt.Sprintf("bucket %s at %s", off.ObjectStorage.Bucket, off.ObjectStorage.Endpoint)
		} else {
			doc.OffsiteTarget = fmt.Sprintf("storage box %s@%s", off.StorageBoxUser, off.StorageBoxHost)
		}
	}
	doc.StorageBoxPublicKey = state.StorageBoxPublicKey()
	return doc, nil
}

// Render returns the handoff document as markdown.
func Render(cfg *config.Config, state *provisioning.State, opts Options) ([]byte, error) {
	doc, err := New(cfg, state, opts)
	if err != nil {
		return nil, err
	}
	return templates.Render("handoff/handoff.md.tmpl", doc)
}

// FileName returns the document's file name, e.g. handoff-203-0-113-10-20261019.md.
func FileName(cfg *config.Config, now time.Time) string {
	return naming.HandoffFile(hostIP(cfg), now.Format("20060102"))
}

// Write renders the document into dir with owner-only permissions and
// returns its path.
func Write(dir string, cfg *config.Config, state *provisioning.State, opts Options) (string, error) {
	content, err := Render(cfg, state, opts)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, FileName(cfg, opts.Now))
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return "", fmt.Errorf("failed to write handoff document: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, 0o600); err != nil {
		return "", fmt.Errorf("failed to restrict handoff document: %w", err)
	}
	return path, nil
}
