package provisioning

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

// LogrObserver emits events as structured key/value records through logr.
// It is used for non-interactive runs where logs are shipped somewhere.
type LogrObserver struct {
	logger logr.Logger
}

// NewLogrObserver wraps an existing logr.Logger.
func NewLogrObserver(logger logr.Logger) *LogrObserver {
	return &LogrObserver{logger: logger}
}

// NewJSONObserver writes one JSON object per event to w.
func NewJSONObserver(w io.Writer) *LogrObserver {
	logger := funcr.NewJSON(func(obj string) {
		fmt.Fprintln(w, obj)
	}, funcr.Options{LogTimestamp: true})
	return NewLogrObserver(logger.WithName("vibehost"))
}

// Printf implements Logger.
func (o *LogrObserver) Printf(format string, v ...interface{}) {
	o.logger.Info(fmt.Sprintf(format, v...))
}

// Event implements Observer.
func (o *LogrObserver) Event(event Event) {
	kv := []interface{}{"type", string(event.Type)}
	if event.Phase != "" {
		kv = append(kv, "phase", event.Phase)
	}
	if event.Resource != "" {
		kv = append(kv, "resource", event.Resource)
	}
	for _, k := range slices.Sorted(maps.Keys(event.Fields)) {
		kv = append(kv, k, event.Fields[k])
	}

	switch event.Type {
	case EventPhaseFailed, EventResourceFailed, EventValidationError:
		o.logger.Error(errors.New(event.Message), string(event.Type), kv...)
	case EventOperationStarted, EventResourceCreating, EventProgress:
		o.logger.V(1).Info(event.Message, kv...)
	default:
		o.logger.Info(event.Message, kv...)
	}
}

// Progress implements Observer.
func (o *LogrObserver) Progress(phase string, current, total int) {
	o.logger.V(1).Info("progress", "phase", phase, "current", current, "total", total)
}

// WithFields implements Observer.
func (o *LogrObserver) WithFields(fields map[string]string) Observer {
	kv := make([]interface{}, 0, len(fields)*2)
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		kv = append(kv, k, fields[k])
	}
	return &LogrObserver{logger: o.logger.WithValues(kv...)}
}
