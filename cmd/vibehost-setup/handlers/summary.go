package handlers

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning/preflight"
	"github.com/conway-vibehost/vibehost-setup/internal/ui/tui"
)

var (
	palette = tui.DefaultPalette

	successBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(palette.Applied).
			Padding(0, 1)

	failureBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(palette.Broken).
			Padding(0, 1)

	headingStyle = lipgloss.NewStyle().Bold(true)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(palette.Heading)
	warnStyle    = lipgloss.NewStyle().Foreground(palette.FollowUp)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(palette.Broken)
	dimStyle     = lipgloss.NewStyle().Foreground(palette.Quiet)
)

// printSuccess shows where the handoff went and how to log in.
func printSuccess(w io.Writer, cfg *config.Config, state *provisioning.State, handoffPath string, elapsed time.Duration) {
	var b strings.Builder
	b.WriteString(headingStyle.Foreground(palette.Applied).Render("Provisioning complete!"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Time elapsed: %s\n", elapsed.Round(time.Second))
	fmt.Fprintf(&b, "Handoff document: %s\n\n", handoffPath)
	b.WriteString(sectionStyle.Render("Quick connect:"))
	b.WriteString("\n")
	hostIP := cfg.Network.IPs.Host
	if hostIP == "" {
		hostIP = cfg.Server.Host
	}
	fmt.Fprintf(&b, "  ssh %s@%s  %s\n", cfg.Admin.Username, hostIP, dimStyle.Render("(host)"))
	fmt.Fprintf(&b, "  ssh root@%s  %s", cfg.Network.IPs.Dev, dimStyle.Render("(dev)"))

	fmt.Fprintln(w)
	fmt.Fprintln(w, successBoxStyle.Render(b.String()))
	printNotes(w, state.Notes())
}

// printFailure names the phase and operation a run stopped at.
func printFailure(w io.Writer, err error, state *provisioning.State) {
	var b strings.Builder
	b.WriteString(headingStyle.Foreground(palette.Broken).Render("Provisioning failed"))
	b.WriteString("\n\n")

	var phaseErr *provisioning.PhaseError
	if errors.As(err, &phaseErr) {
		fmt.Fprintf(&b, "Phase:     %s\n", phaseErr.Phase)
		if phaseErr.Operation != "" {
			fmt.Fprintf(&b, "Operation: %s\n", phaseErr.Operation)
		}
		fmt.Fprintf(&b, "Error:     %v\n", phaseErr.Err)
	} else {
		fmt.Fprintf(&b, "Error: %v\n", err)
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Completed phases were left in place. Fix the cause and run the same command again."))

	fmt.Fprintln(w)
	fmt.Fprintln(w, failureBoxStyle.Render(b.String()))
	if state != nil {
		printNotes(w, state.Notes())
	}
}

// printDryRun summarizes the preflight report.
func printDryRun(w io.Writer, cfg *config.Config, report *preflight.Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, sectionStyle.Render(fmt.Sprintf("Preflight: %s", cfg.Server.Host)))
	if report != nil {
		fmt.Fprintf(w, "  OS:        %s\n", report.OS.PrettyName)
		fmt.Fprintf(w, "  Memory:    %d MB\n", report.Resources.MemoryMB)
		fmt.Fprintf(w, "  CPU cores: %d\n", report.Resources.CPUs)
		fmt.Fprintf(w, "  Disk free: %d GB\n", report.Resources.DiskFreeGB)
		for _, f := range report.Warnings() {
			fmt.Fprintf(w, "  %s %s: %s\n", warnStyle.Render("warning"), f.Check, f.Message)
		}
		for _, f := range report.Errors() {
			fmt.Fprintf(w, "  %s %s: %s\n", errorStyle.Render("error"), f.Check, f.Message)
		}
	}
	fmt.Fprintln(w)
	if report != nil && len(report.Errors()) > 0 {
		fmt.Fprintln(w, errorStyle.Render("DRY RUN: server is not ready, no changes made."))
		return
	}
	fmt.Fprintln(w, warnStyle.Render("DRY RUN: validation complete, no changes made."))
}

func printNotes(w io.Writer, notes []provisioning.Note) {
	if len(notes) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, sectionStyle.Render("Follow-ups:"))
	for _, n := range notes {
		fmt.Fprintf(w, "  %s [%s] %s\n", warnStyle.Render("!"), n.Phase, n.Message)
	}
}
