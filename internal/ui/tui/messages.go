// Package tui provides a Bubble Tea dashboard for a provisioning run.
package tui

import "github.com/conway-vibehost/vibehost-setup/internal/provisioning"

// EventMsg carries a provisioning event into the program.
type EventMsg struct {
	Event provisioning.Event
}

// LogMsg carries a free-form log line.
type LogMsg struct {
	Line string
}

// ProgressMsg reports which phase of how many is running.
type ProgressMsg struct {
	Phase          string
	Current, Total int
}

// TickMsg is sent periodically to refresh the display.
type TickMsg struct{}

// ErrMsg carries the error that ended the run.
type ErrMsg struct{ Err error }

// DoneMsg signals that the run completed.
type DoneMsg struct{}
