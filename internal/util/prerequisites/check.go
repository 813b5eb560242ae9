// Package prerequisites checks that the commands provisioning relies on
// are present on the target host.
package prerequisites

import (
	"context"
	"fmt"
	"strings"

	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
)

// Tool represents a host command that may be required.
type Tool struct {
	// Name is the binary name to look for in PATH.
	Name string

	// Required indicates if this tool is mandatory.
	Required bool

	// Description explains what the tool is used for.
	Description string

	// Package is the Debian package that provides the tool.
	Package string
}

// HostTools returns the commands every phase assumes exist.
func HostTools() []Tool {
	return []Tool{
		{Name: "bash", Required: true, Description: "Runs every remote command", Package: "bash"},
		{Name: "apt-get", Required: true, Description: "Installs packages", Package: "apt"},
		{Name: "systemctl", Required: true, Description: "Manages services", Package: "systemd"},
		{Name: "install", Required: true, Description: "Places uploaded files atomically", Package: "coreutils"},
		{Name: "tee", Required: true, Description: "Appends to files", Package: "coreutils"},
		{Name: "sed", Required: true, Description: "Edits apt sources", Package: "sed"},
		{Name: "grep", Required: true, Description: "Idempotency probes", Package: "grep"},
		{Name: "sshd", Required: true, Description: "Validates the hardened SSH configuration", Package: "openssh-server"},
	}
}

// OptionalTools returns commands installed on demand when missing.
func OptionalTools() []Tool {
	return []Tool{
		{Name: "curl", Description: "Fetches third-party repository keys", Package: "curl"},
		{Name: "gpg", Description: "Dearmors repository keys", Package: "gpg"},
		{Name: "sftp", Description: "Uploads offsite backups", Package: "openssh-client"},
	}
}

// CheckResult contains the result of checking a single tool.
type CheckResult struct {
	Tool  Tool
	Found bool
	Path  string
}

// CheckResults contains the results of checking multiple tools.
type CheckResults struct {
	Results []CheckResult
	Missing []Tool
}

// Error returns an error if any required tools are missing.
func (r *CheckResults) Error() error {
	var missing []string
	for _, tool := range r.Missing {
		if tool.Required {
			missing = append(missing, fmt.Sprintf("%s (package %s)", tool.Name, tool.Package))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
}

// Check looks each tool up with `command -v` on the host.
func Check(ctx context.Context, exec ssh.Executor, tools []Tool) (*CheckResults, error) {
	results := &CheckResults{}

	for _, tool := range tools {
		result := CheckResult{Tool: tool}

		res, err := ssh.Probe(ctx, exec, "command -v "+ssh.Quote(tool.Name))
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", tool.Name, err)
		}
		if res.OK() && strings.TrimSpace(res.Stdout) != "" {
			result.Found = true
			result.Path = strings.TrimSpace(res.Stdout)
		} else {
			results.Missing = append(results.Missing, tool)
		}

		results.Results = append(results.Results, result)
	}

	return results, nil
}

// CheckAll checks the host and optional tools.
func CheckAll(ctx context.Context, exec ssh.Executor) (*CheckResults, error) {
	host := HostTools()
	optional := OptionalTools()
	all := make([]Tool, 0, len(host)+len(optional))
	all = append(all, host...)
	all = append(all, optional...)
	return Check(ctx, exec, all)
}
