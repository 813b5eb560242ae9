package commands

import "github.com/spf13/cobra"

// Completion returns the completion command for shell autocompletion.
func Completion() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for vibehost-setup.

To load completions:

Bash:
  $ source <(vibehost-setup completion bash)
  # To load completions for each session, execute once:
  # Linux:
  $ vibehost-setup completion bash > /etc/bash_completion.d/vibehost-setup
  # macOS:
  $ vibehost-setup completion bash > $(brew --prefix)/etc/bash_completion.d/vibehost-setup

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc
  # To load completions for each session, execute once:
  $ vibehost-setup completion zsh > "${fpath[1]}/_vibehost-setup"
  # You will need to start a new shell for this setup to take effect.

Fish:
  $ vibehost-setup completion fish | source
  # To load completions for each session, execute once:
  $ vibehost-setup completion fish > ~/.config/fish/completions/vibehost-setup.fish

PowerShell:
  PS> vibehost-setup completion powershell | Out-String | Invoke-Expression
  # To load completions for every new session, run:
  PS> vibehost-setup completion powershell > vibehost-setup.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
