// Package commands defines the CLI command structure and flag bindings.
//
// Command execution is delegated to handler functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the vibehost-setup CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vibehost-setup",
		Short:         "One-shot provisioning for dedicated servers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(Provision())
	cmd.AddCommand(Validate())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}
