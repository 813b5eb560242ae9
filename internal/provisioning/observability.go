package provisioning

import (
	"fmt"
	"log"
	"maps"
	"slices"
	"strings"
	"time"
)

// Observer receives the structured progress of a provisioning run.
type Observer interface {
	Logger

	// Event emits a structured event.
	Event(event Event)

	// Progress reports progress for a phase.
	Progress(phase string, current, total int)

	// WithFields returns a new Observer with additional context fields.
	WithFields(fields map[string]string) Observer
}

// Event represents a structured provisioning event.
type Event struct {
	Type      EventType         // Type of event
	Phase     string            // Phase name (e.g., "host", "database")
	Message   string            // Human-readable message
	Resource  string            // kind/name of the resource if applicable
	Timestamp time.Time         // When the event occurred
	Fields    map[string]string // Additional contextual fields
}

// EventType represents the type of provisioning event.
type EventType string

const (
	// EventPhaseStarted indicates a provisioning phase has started.
	EventPhaseStarted EventType = "phase.started"
	// EventPhaseCompleted indicates a provisioning phase completed successfully.
	EventPhaseCompleted EventType = "phase.completed"
	// EventPhaseFailed indicates a provisioning phase failed.
	EventPhaseFailed EventType = "phase.failed"

	// EventOperationStarted indicates a named step inside a phase has started.
	EventOperationStarted EventType = "operation.started"

	// EventResourceCreating indicates a resource is being created.
	EventResourceCreating EventType = "resource.creating"
	// EventResourceCreated indicates a resource was created successfully.
	EventResourceCreated EventType = "resource.created"
	// EventResourceExists indicates a resource already exists and was skipped.
	EventResourceExists EventType = "resource.exists"
	// EventResourceFailed indicates resource creation failed.
	EventResourceFailed EventType = "resource.failed"

	// EventValidationWarning indicates a validation warning.
	EventValidationWarning EventType = "validation.warning"
	// EventValidationError indicates a validation error.
	EventValidationError EventType = "validation.error"

	// EventProgress indicates progress in a long-running operation.
	EventProgress EventType = "progress"
)

// ConsoleObserver implements Observer using the standard log package.
type ConsoleObserver struct {
	contextFields map[string]string
	logger        *log.Logger
}

// NewConsoleObserver creates a new console-based observer.
func NewConsoleObserver() *ConsoleObserver {
	return NewConsoleObserverWithLogger(log.Default())
}

// NewConsoleObserverWithLogger creates a console observer writing to l.
func NewConsoleObserverWithLogger(l *log.Logger) *ConsoleObserver {
	return &ConsoleObserver{
		contextFields: make(map[string]string),
		logger:        l,
	}
}

// Printf implements Logger.
func (o *ConsoleObserver) Printf(format string, v ...interface{}) {
	o.logger.Printf(format, v...)
}

// Event implements Observer.
func (o *ConsoleObserver) Event(event Event) {
	o.logger.Print(formatEvent(mergeFields(event, o.contextFields)))
}

// Progress implements Observer.
func (o *ConsoleObserver) Progress(phase string, current, total int) {
	if total == 0 {
		o.logger.Printf("[%s] Progress: %d/%d", phase, current, total)
		return
	}
	percentage := (current * 100) / total
	o.logger.Printf("[%s] Progress: %d/%d (%d%%)", phase, current, total, percentage)
}

// WithFields implements Observer.
func (o *ConsoleObserver) WithFields(fields map[string]string) Observer {
	newFields := maps.Clone(o.contextFields)
	maps.Copy(newFields, fields)
	return &ConsoleObserver{contextFields: newFields, logger: o.logger}
}

// mergeFields stamps the event and adds context fields it does not already carry.
func mergeFields(event Event, contextFields map[string]string) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	fields := make(map[string]string, len(event.Fields)+len(contextFields))
	maps.Copy(fields, contextFields)
	maps.Copy(fields, event.Fields)
	event.Fields = fields
	return event
}

// formatEvent renders an event on one line with fields in sorted order.
func formatEvent(event Event) string {
	var parts []string

	parts = append(parts, eventSymbol(event.Type))
	if event.Phase != "" {
		parts = append(parts, fmt.Sprintf("[%s]", event.Phase))
	}
	if event.Resource != "" {
		parts = append(parts, event.Resource+":")
	}
	parts = append(parts, event.Message)

	for _, k := range slices.Sorted(maps.Keys(event.Fields)) {
		parts = append(parts, fmt.Sprintf("%s=%s", k, event.Fields[k]))
	}

	return strings.Join(parts, " ")
}

func eventSymbol(t EventType) string {
	switch t {
	case EventPhaseStarted:
		return "==>"
	case EventPhaseCompleted, EventResourceCreated:
		return "[ok]"
	case EventResourceExists:
		return "[skip]"
	case EventPhaseFailed, EventResourceFailed, EventValidationError:
		return "[FAIL]"
	case EventValidationWarning:
		return "[warn]"
	default:
		return "-"
	}
}

// Helper functions for common events

// LogPhaseStart logs the start of a phase.
func LogPhaseStart(observer Observer, phase string) {
	observer.Event(Event{
		Type:    EventPhaseStarted,
		Phase:   phase,
		Message: fmt.Sprintf("Starting %s phase", phase),
	})
}

// LogPhaseComplete logs the completion of a phase.
func LogPhaseComplete(observer Observer, phase string, duration time.Duration) {
	observer.Event(Event{
		Type:    EventPhaseCompleted,
		Phase:   phase,
		Message: fmt.Sprintf("Completed %s phase", phase),
		Fields: map[string]string{
			"duration": duration.Round(time.Millisecond).String(),
		},
	})
}

// LogPhaseFailed logs the failure of a phase.
func LogPhaseFailed(observer Observer, phase string, err error) {
	observer.Event(Event{
		Type:    EventPhaseFailed,
		Phase:   phase,
		Message: fmt.Sprintf("Phase %s failed: %v", phase, err),
		Fields: map[string]string{
			"error": err.Error(),
		},
	})
}

// LogOperation logs the start of a named step.
func LogOperation(observer Observer, phase, operation string) {
	observer.Event(Event{
		Type:    EventOperationStarted,
		Phase:   phase,
		Message: operation,
	})
}

// LogResourceCreating logs that a resource is about to be created.
func LogResourceCreating(observer Observer, phase, kind, name string) {
	observer.Event(Event{
		Type:     EventResourceCreating,
		Phase:    phase,
		Resource: kind + "/" + name,
		Message:  "creating",
	})
}

// LogResourceCreated logs the creation of a resource.
func LogResourceCreated(observer Observer, phase, kind, name string, duration time.Duration) {
	observer.Event(Event{
		Type:     EventResourceCreated,
		Phase:    phase,
		Resource: kind + "/" + name,
		Message:  "created",
		Fields: map[string]string{
			"duration": duration.Round(time.Millisecond).String(),
		},
	})
}

// LogResourceExists logs that a resource already exists.
func LogResourceExists(observer Observer, phase, kind, name string) {
	observer.Event(Event{
		Type:     EventResourceExists,
		Phase:    phase,
		Resource: kind + "/" + name,
		Message:  "already present",
	})
}

// LogResourceFailed logs a failed resource creation.
func LogResourceFailed(observer Observer, phase, kind, name string, err error) {
	observer.Event(Event{
		Type:     EventResourceFailed,
		Phase:    phase,
		Resource: kind + "/" + name,
		Message:  err.Error(),
	})
}

// LogValidationWarning logs a validation warning.
func LogValidationWarning(observer Observer, phase, message string) {
	observer.Event(Event{
		Type:    EventValidationWarning,
		Phase:   phase,
		Message: message,
	})
}

// LogValidationError logs a validation error.
func LogValidationError(observer Observer, phase, message string) {
	observer.Event(Event{
		Type:    EventValidationError,
		Phase:   phase,
		Message: message,
	})
}

// MultiObserver fans events out to several observers.
type MultiObserver []Observer

// Printf implements Logger.
func (m MultiObserver) Printf(format string, v ...interface{}) {
	for _, o := range m {
		o.Printf(format, v...)
	}
}

// Event implements Observer.
func (m MultiObserver) Event(event Event) {
	for _, o := range m {
		o.Event(event)
	}
}

// Progress implements Observer.
func (m MultiObserver) Progress(phase string, current, total int) {
	for _, o := range m {
		o.Progress(phase, current, total)
	}
}

// WithFields implements Observer.
func (m MultiObserver) WithFields(fields map[string]string) Observer {
	out := make(MultiObserver, len(m))
	for i, o := range m {
		out[i] = o.WithFields(fields)
	}
	return out
}
