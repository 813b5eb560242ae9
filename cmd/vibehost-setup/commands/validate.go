package commands

import (
	"github.com/spf13/cobra"

	"github.com/conway-vibehost/vibehost-setup/cmd/vibehost-setup/handlers"
)

// Validate returns the command that checks a configuration file offline.
func Validate() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file without connecting",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return handlers.Validate(args[0])
		},
	}
}
