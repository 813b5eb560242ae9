package commands

import (
	"github.com/spf13/cobra"

	"github.com/conway-vibehost/vibehost-setup/cmd/vibehost-setup/handlers"
)

// Provision returns the command that provisions a server.
//
// Environment variables:
//
//	VIBEHOST_SERVER_SSH_PASSWORD: initial SSH password (prompted for when unset on a terminal)
//	VIBEHOST_BACKUPS_OFFSITE_OBJECT_STORAGE_ACCESS_KEY / _SECRET_KEY: object storage credentials
func Provision() *cobra.Command {
	opts := handlers.ProvisionOptions{}

	cmd := &cobra.Command{
		Use:   "provision <config-file>",
		Short: "Provision the server described by a configuration file",
		Long: `Provision a dedicated server from a YAML configuration file.

The run hardens the host, installs incus, creates the networks and
workloads, sets up PostgreSQL, the dev environment and backups, and
finally writes a handoff document with addresses and credentials.

Every phase checks what is already in place, so a failed or interrupted
run can simply be started again.

Examples:
  # Check the server without changing anything
  vibehost-setup provision vibehost.yaml --dry-run

  # Provision and write the handoff document to ./out
  vibehost-setup provision vibehost.yaml -o out

  # Machine-readable progress for CI logs
  vibehost-setup provision vibehost.yaml --log-format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ConfigPath = args[0]
			opts.Version = version
			return handlers.Provision(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Validate config and check the server without making changes")
	cmd.Flags().BoolVar(&opts.SkipBackups, "skip-backups", false, "Skip backup configuration")
	cmd.Flags().StringVarP(&opts.OutputDir, "output-dir", "o", ".", "Directory for the handoff document")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "Write run metrics in Prometheus textfile format to this path")
	cmd.Flags().BoolVar(&opts.Plain, "plain", false, "Print log lines instead of the interactive dashboard")
	cmd.Flags().StringVar(&opts.LogFormat, "log-format", handlers.LogFormatText, "Log format: text or json")
	cmd.Flags().BoolVar(&opts.StrictHostKey, "strict-host-key", false, "Reject servers missing from known_hosts")

	return cmd
}
