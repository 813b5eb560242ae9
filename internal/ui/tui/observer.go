package tui

import (
	"fmt"
	"maps"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
)

// sender is the part of *tea.Program the observer needs.
type sender interface {
	Send(msg tea.Msg)
}

// Observer forwards provisioning progress to a running dashboard.
type Observer struct {
	program sender
	fields  map[string]string
}

var _ provisioning.Observer = (*Observer)(nil)

// NewObserver creates an observer that sends to program.
func NewObserver(program sender) *Observer {
	return &Observer{program: program, fields: map[string]string{}}
}

// Printf implements provisioning.Logger.
func (o *Observer) Printf(format string, v ...interface{}) {
	o.program.Send(LogMsg{Line: fmt.Sprintf(format, v...)})
}

// Event implements provisioning.Observer.
func (o *Observer) Event(event provisioning.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if len(o.fields) > 0 {
		fields := maps.Clone(o.fields)
		maps.Copy(fields, event.Fields)
		event.Fields = fields
	}
	o.program.Send(EventMsg{Event: event})
}

// Progress implements provisioning.Observer.
func (o *Observer) Progress(phase string, current, total int) {
	o.program.Send(ProgressMsg{Phase: phase, Current: current, Total: total})
}

// WithFields implements provisioning.Observer.
func (o *Observer) WithFields(fields map[string]string) provisioning.Observer {
	merged := maps.Clone(o.fields)
	maps.Copy(merged, fields)
	return &Observer{program: o.program, fields: merged}
}
