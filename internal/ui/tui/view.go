package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// styleFunc is a single-string styling function.
type styleFunc func(string) string

// sf wraps a lipgloss.Style into a styleFunc.
func sf(s lipgloss.Style) styleFunc {
	return func(str string) string { return s.Render(str) }
}

func renderView(m Model) string {
	var b strings.Builder

	renderHeader(&b, m)
	renderProgressBar(&b, m)
	renderPhases(&b, m)
	renderActivity(&b, m)

	if len(m.Warnings) > 0 {
		renderWarnings(&b, m)
	}
	if len(m.Failures) > 0 {
		renderFailures(&b, m)
	}

	renderFooter(&b, m)
	return b.String()
}

func renderHeader(b *strings.Builder, m Model) {
	b.WriteString(styles.Title.Render(fmt.Sprintf("vibehost-setup: %s", m.Host)))

	status := " "
	switch {
	case m.Done:
		status += styles.Applied.Render("Provisioned")
	case m.Err != nil:
		status += styles.Broken.Render(fmt.Sprintf("Error: %v", m.Err))
	case m.Quit:
		status += styles.FollowUp.Render("Stopping...")
	default:
		if p, ok := m.activePhase(); ok {
			status += styles.Focus.Render(currentSpinner(m.SpinnerFrame)+" ") + styles.FollowUp.Render(p.Name)
		} else {
			status += styles.Quiet.Render("Connecting...")
		}
	}
	b.WriteString(status)
	b.WriteString("\n")
}

func renderProgressBar(b *strings.Builder, m Model) {
	progress := calculateProgress(m)
	barWidth := 40
	if m.Width > 0 && m.Width < 80 {
		barWidth = max(m.Width-30, 10)
	}
	filled := min(int(float64(barWidth)*progress), barWidth)

	bar := styles.BarFull.Render(strings.Repeat("█", filled)) +
		styles.BarEmpty.Render(strings.Repeat("░", barWidth-filled))

	eta := ""
	if m.EstimatedRemaining > 0 {
		eta = fmt.Sprintf(" ETA %s", formatDuration(m.EstimatedRemaining))
	}
	if m.PerformanceScale != 0 && m.PerformanceScale != 1.0 {
		eta += fmt.Sprintf("  speed x%.2f", m.PerformanceScale)
	}

	fmt.Fprintf(b, "  %s %d%%%s\n", bar, int(progress*100), eta)
}

func renderPhases(b *strings.Builder, m Model) {
	b.WriteString(styles.Section.Render("  Phases"))
	b.WriteString("\n")

	for _, phase := range m.Phases {
		var icon string
		var style styleFunc
		detail := ""
		switch {
		case phase.Err != nil:
			icon = markFailed
			style = sf(styles.Broken)
			detail = styles.Quiet.Render(phase.Err.Error())
		case phase.Done:
			icon = markDone
			style = sf(styles.Applied)
			if !phase.StartedAt.IsZero() && !phase.EndedAt.IsZero() {
				detail = styles.Quiet.Render(formatDuration(phase.EndedAt.Sub(phase.StartedAt)))
			}
		case phase.Active:
			icon = currentSpinner(m.SpinnerFrame)
			style = sf(styles.Focus)
			if !phase.StartedAt.IsZero() {
				detail = styles.Quiet.Render(formatDuration(time.Since(phase.StartedAt)))
			}
		default:
			icon = markWaiting
			style = sf(styles.Quiet)
		}
		fmt.Fprintf(b, "    %s %-12s %s\n", style(icon), style(phase.Name), detail)
	}
}

func renderActivity(b *strings.Builder, m Model) {
	b.WriteString(styles.Section.Render("  Activity"))
	b.WriteString("\n")

	if m.Operation != "" {
		line := m.Operation
		if m.Resource != "" {
			line += styles.Quiet.Render("  " + m.Resource)
		}
		fmt.Fprintf(b, "    %s %s\n", styles.Focus.Render(">"), line)
	}
	fmt.Fprintf(b, "    %s %d created  %s %d already present\n",
		styles.Applied.Render(markCreated), m.Created, styles.Quiet.Render(markExisting), m.Existing)

	for _, line := range m.Logs {
		fmt.Fprintf(b, "    %s\n", styles.Quiet.Render(truncate(line, m.Width-4)))
	}
}

func renderWarnings(b *strings.Builder, m Model) {
	b.WriteString(styles.Section.Render("  Follow-ups"))
	b.WriteString("\n")
	for _, w := range m.Warnings {
		fmt.Fprintf(b, "    %s %s\n", styles.FollowUp.Render(markFollowUp), w)
	}
}

func renderFailures(b *strings.Builder, m Model) {
	b.WriteString(styles.Section.Render("  Errors"))
	b.WriteString("\n")

	// Show last 3 errors
	start := max(len(m.Failures)-3, 0)
	for _, f := range m.Failures[start:] {
		fmt.Fprintf(b, "    %s %s\n", styles.Broken.Render(markFailed), styles.Quiet.Render(f))
	}
}

func renderFooter(b *strings.Builder, m Model) {
	parts := []string{fmt.Sprintf("elapsed: %s", formatDuration(time.Since(m.StartTime)))}
	if total := len(m.Phases); total > 0 {
		parts = append(parts, fmt.Sprintf("phases: %d/%d", completedPhases(m), total))
	}
	b.WriteString(styles.Footer.Render(fmt.Sprintf("  %s  |  q: quit", strings.Join(parts, "  |  "))))
	b.WriteString("\n")
}

// Helper functions

func currentSpinner(frame int) string {
	if len(spinnerFrames) == 0 {
		return markWaiting
	}
	if frame < 0 {
		frame = -frame
	}
	return spinnerFrames[frame%len(spinnerFrames)]
}

func completedPhases(m Model) int {
	done := 0
	for _, p := range m.Phases {
		if p.Done {
			done++
		}
	}
	return done
}

// calculateProgress weights each phase by its benchmark duration so long
// phases such as devenv move the bar proportionally.
func calculateProgress(m Model) float64 {
	if m.Done {
		return 1.0
	}
	if len(m.Phases) == 0 {
		return 0
	}

	var total, done float64
	for _, p := range m.Phases {
		w := phaseWeight(p.Name)
		total += w
		if p.Done {
			done += w
		}
	}
	return min(done/total, 1.0)
}

func truncate(s string, width int) string {
	if width <= 3 || len(s) <= width {
		return s
	}
	return s[:width-3] + "..."
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
