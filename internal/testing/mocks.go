package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
)

// RecordingObserver captures everything phases report.
type RecordingObserver struct {
	mu     sync.Mutex
	events []provisioning.Event
	lines  []string
}

var _ provisioning.Observer = (*RecordingObserver)(nil)

// Printf records a log line.
func (o *RecordingObserver) Printf(format string, v ...interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lines = append(o.lines, fmt.Sprintf(format, v...))
}

// Event records an event.
func (o *RecordingObserver) Event(event provisioning.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

// Progress records progress as an event.
func (o *RecordingObserver) Progress(phase string, current, total int) {
	o.Event(provisioning.Event{
		Type:    provisioning.EventProgress,
		Phase:   phase,
		Message: fmt.Sprintf("%d/%d", current, total),
	})
}

// WithFields returns the same observer; fields are not recorded.
func (o *RecordingObserver) WithFields(map[string]string) provisioning.Observer {
	return o
}

// Events returns the recorded events.
func (o *RecordingObserver) Events() []provisioning.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]provisioning.Event(nil), o.events...)
}

// Lines returns the recorded log lines.
func (o *RecordingObserver) Lines() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.lines...)
}

// Resources returns the Resource field of every event of type t.
func (o *RecordingObserver) Resources(t provisioning.EventType) []string {
	var out []string
	for _, e := range o.Events() {
		if e.Type == t {
			out = append(out, e.Resource)
		}
	}
	return out
}

// Count returns the number of events of type t.
func (o *RecordingObserver) Count(t provisioning.EventType) int {
	n := 0
	for _, e := range o.Events() {
		if e.Type == t {
			n++
		}
	}
	return n
}

// MockBucketClient is a mock of the object storage client used by the
// backups phase.
type MockBucketClient struct {
	mock.Mock
}

// EnsureBucket reports whether the bucket had to be created.
func (m *MockBucketClient) EnsureBucket(ctx context.Context, bucket string) (bool, error) {
	args := m.Called(ctx, bucket)
	return args.Bool(0), args.Error(1)
}

// CheckWrite probes write access to the bucket.
func (m *MockBucketClient) CheckWrite(ctx context.Context, bucket string) error {
	args := m.Called(ctx, bucket)
	return args.Error(0)
}
