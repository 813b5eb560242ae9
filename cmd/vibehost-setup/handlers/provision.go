// Package handlers implements the business logic for CLI commands.
//
// Handlers are called by the cobra commands in the commands package and can
// be tested independently of the CLI framework.
package handlers

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/handoff"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning/backups"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning/common"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning/containers"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning/database"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning/devenv"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning/host"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning/incus"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning/network"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning/preflight"
	"github.com/conway-vibehost/vibehost-setup/internal/ui/tui"
)

// ProvisionOptions are the flags of the provision command.
type ProvisionOptions struct {
	ConfigPath    string
	DryRun        bool
	SkipBackups   bool
	OutputDir     string
	MetricsFile   string
	Plain         bool
	LogFormat     string
	StrictHostKey bool
	Version       string
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadConfigFile loads and validates the configuration.
	loadConfigFile = config.LoadFile

	// connectHost opens the privileged channel to the server.
	connectHost = connectSession

	// verifyAdminLogin proves the admin key works before password login is disabled.
	verifyAdminLogin = verifyAdminKeyLogin

	// promptPassword asks for the initial SSH password.
	promptPassword = promptForPassword

	// isInteractiveTTY reports whether stdout is a terminal.
	isInteractiveTTY = stdoutIsTerminal

	// runDashboard shows the TUI while a run is in progress.
	runDashboard = tui.Run

	// runPreflight inspects the host for --dry-run.
	runPreflight = preflight.Run

	// newProvisioningContext creates the context handed to every phase.
	newProvisioningContext = provisioning.NewContext

	// writeHandoff renders the handoff document to the output directory.
	writeHandoff = handoff.Write

	// now is the clock used for the handoff date.
	now = time.Now

	// stdout receives summaries and JSON events.
	stdout io.Writer = os.Stdout
)

// buildPhases returns the ordered pipeline for a run.
var buildPhases = func(opts ProvisionOptions) []provisioning.Phase {
	phases := []provisioning.Phase{
		preflight.NewProvisioner(),
		host.NewProvisioner(),
		incus.NewProvisioner(),
		network.NewProvisioner(),
		containers.NewProvisioner(),
		database.NewProvisioner(),
		devenv.NewProvisioner(),
		common.NewProvisioner(),
	}
	if !opts.SkipBackups {
		phases = append(phases, backups.NewProvisioner())
	}
	return phases
}

// Provision turns the server described by the configuration into a container host.
//
// The workflow:
//  1. Loads and validates the configuration, prompting for a missing SSH password
//  2. Logs in to the server (falling back to the admin identity on re-runs)
//  3. Runs the phase pipeline, stopping at the first failing phase
//  4. Writes the metrics textfile, if requested, whatever the outcome
//  5. Writes the handoff document and prints how to connect
//
// With DryRun the preflight checks run on their own, the pipeline is never
// started and nothing is changed.
func Provision(ctx context.Context, opts ProvisionOptions) error {
	cfg, err := loadConfig(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		log.Printf("Warning: %s", w)
	}

	initial, admin := sshConfigs(cfg, opts.StrictHostKey)
	log.Printf("Connecting to %s as %s...", cfg.Server.Host, initial.User)
	hostExec, session, err := connectHost(ctx, initial, admin)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.Server.Host, err)
	}
	defer session.Close()

	if opts.DryRun {
		return dryRun(ctx, cfg, hostExec)
	}

	phases := buildPhases(opts)
	start := time.Now()
	pctx, runErr := runPipeline(ctx, cfg, hostExec, admin, phases, opts)

	if opts.MetricsFile != "" {
		if err := pctx.Metrics.WriteToTextfile(opts.MetricsFile); err != nil {
			log.Printf("Warning: failed to write metrics to %s: %v", opts.MetricsFile, err)
		}
	}

	if runErr != nil {
		printFailure(stdout, runErr, pctx.State)
		return fmt.Errorf("provisioning failed: %w", runErr)
	}

	path, err := writeHandoff(opts.OutputDir, cfg, pctx.State, handoff.Options{Now: now(), SkipBackups: opts.SkipBackups})
	if err != nil {
		return err
	}
	printSuccess(stdout, cfg, pctx.State, path, time.Since(start))
	return nil
}

// dryRun prints the preflight report. Blocking findings fail the command.
func dryRun(ctx context.Context, cfg *config.Config, hostExec ssh.Executor) error {
	report, err := runPreflight(ctx, hostExec, cfg)
	if err != nil {
		return fmt.Errorf("preflight checks failed: %w", err)
	}
	printDryRun(stdout, cfg, report)
	if err := report.Err(); err != nil {
		return fmt.Errorf("server is not ready: %w", err)
	}
	return nil
}

// loadConfig loads the configuration and completes the login credentials.
func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	cfg, err := loadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log.Printf("Using config: %s", path)
	if err := ensurePassword(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runPipeline executes phases with the observer matching the output mode.
// The returned context is never nil so metrics and state stay available
// after a failure.
func runPipeline(
	ctx context.Context,
	cfg *config.Config,
	hostExec ssh.Executor,
	admin *ssh.Config,
	phases []provisioning.Phase,
	opts ProvisionOptions,
) (*provisioning.Context, error) {
	newContext := func(ctx context.Context, obs provisioning.Observer) *provisioning.Context {
		pctx := newProvisioningContext(ctx, cfg, hostExec, obs)
		pctx.Version = opts.Version
		pctx.VerifyAdminLogin = func(ctx context.Context) error {
			return verifyAdminLogin(ctx, admin)
		}
		return pctx
	}

	switch outputMode(opts, isInteractiveTTY()) {
	case outputJSON:
		pctx := newContext(ctx, provisioning.NewJSONObserver(stdout))
		return pctx, provisioning.NewPipeline(phases...).Run(pctx)

	case outputTUI:
		names := make([]string, 0, len(phases))
		for _, p := range phases {
			names = append(names, p.Name())
		}
		var pctx *provisioning.Context
		err := runDashboard(ctx, cfg.Server.Host, names, func(ctx context.Context, obs provisioning.Observer) error {
			pctx = newContext(ctx, obs)
			return provisioning.NewPipeline(phases...).Run(pctx)
		})
		if pctx == nil {
			pctx = newContext(ctx, provisioning.NewConsoleObserver())
		}
		return pctx, err

	default:
		var obs provisioning.Observer = provisioning.NewConsoleObserver()
		if isInteractiveTTY() {
			bar := newProgressObserver(obs, os.Stderr, len(phases))
			defer bar.finish()
			obs = bar
		}
		pctx := newContext(ctx, obs)
		return pctx, provisioning.NewPipeline(phases...).Run(pctx)
	}
}
