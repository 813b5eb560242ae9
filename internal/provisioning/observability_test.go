package provisioning

import (
	"bytes"
	"errors"
	"log"
	"maps"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockObserver is a test implementation of Observer that records events.
type MockObserver struct {
	mu       sync.Mutex
	events   []Event
	messages []string
	fields   map[string]string
}

func NewMockObserver() *MockObserver {
	return &MockObserver{
		events:   make([]Event, 0),
		messages: make([]string, 0),
		fields:   make(map[string]string),
	}
}

func (m *MockObserver) Printf(format string, _ ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, format)
}

func (m *MockObserver) Event(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *MockObserver) Progress(phase string, current, total int) {
	m.Event(Event{
		Type:    EventProgress,
		Phase:   phase,
		Message: "progress",
		Fields: map[string]string{
			"current": strconv.Itoa(current),
			"total":   strconv.Itoa(total),
		},
	})
}

func (m *MockObserver) WithFields(fields map[string]string) Observer {
	newObserver := NewMockObserver()
	maps.Copy(newObserver.fields, m.fields)
	maps.Copy(newObserver.fields, fields)
	return newObserver
}

func (m *MockObserver) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func (m *MockObserver) eventsOfType(t EventType) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func TestConsoleObserver_Event(t *testing.T) {
	var buf bytes.Buffer
	observer := NewConsoleObserverWithLogger(log.New(&buf, "", 0))

	observer.Event(Event{
		Type:     EventResourceCreated,
		Phase:    "incus",
		Resource: "profile/dev",
		Message:  "created",
		Fields: map[string]string{
			"b": "2",
			"a": "1",
		},
	})

	assert.Equal(t, "[ok] [incus] profile/dev: created a=1 b=2\n", buf.String())
}

func TestConsoleObserver_WithFields(t *testing.T) {
	var buf bytes.Buffer
	observer := NewConsoleObserverWithLogger(log.New(&buf, "", 0))

	contextual := observer.WithFields(map[string]string{"host": "203.0.113.10"})
	contextual.Event(Event{Type: EventPhaseStarted, Phase: "host", Message: "Starting host phase"})

	assert.Contains(t, buf.String(), "host=203.0.113.10")
	assert.Empty(t, observer.contextFields, "parent observer must not change")
}

func TestConsoleObserver_EventFieldsOverrideContext(t *testing.T) {
	var buf bytes.Buffer
	observer := NewConsoleObserverWithLogger(log.New(&buf, "", 0)).WithFields(map[string]string{"k": "context"})

	observer.Event(Event{Type: EventProgress, Message: "m", Fields: map[string]string{"k": "event"}})

	assert.Contains(t, buf.String(), "k=event")
	assert.NotContains(t, buf.String(), "k=context")
}

func TestConsoleObserver_Progress(t *testing.T) {
	var buf bytes.Buffer
	observer := NewConsoleObserverWithLogger(log.New(&buf, "", 0))

	observer.Progress("database", 5, 10)
	observer.Progress("database", 0, 0)

	assert.Contains(t, buf.String(), "[database] Progress: 5/10 (50%)")
	assert.Contains(t, buf.String(), "[database] Progress: 0/0\n")
}

func TestMockObserver_Events(t *testing.T) {
	observer := NewMockObserver()

	LogPhaseStart(observer, "network")
	LogResourceCreating(observer, "network", "network", "vibenet-private")
	LogResourceCreated(observer, "network", "network", "vibenet-private", 1500*time.Millisecond)
	LogResourceExists(observer, "network", "profile", "public-dev")
	LogPhaseComplete(observer, "network", 2*time.Second)

	events := observer.Events()
	require.Len(t, events, 5)

	assert.Equal(t, EventPhaseStarted, events[0].Type)
	assert.Equal(t, "network", events[0].Phase)

	assert.Equal(t, EventResourceCreating, events[1].Type)
	assert.Equal(t, "network/vibenet-private", events[1].Resource)

	assert.Equal(t, EventResourceCreated, events[2].Type)
	assert.Equal(t, "1.5s", events[2].Fields["duration"])

	assert.Equal(t, EventResourceExists, events[3].Type)
	assert.Equal(t, "profile/public-dev", events[3].Resource)

	assert.Equal(t, EventPhaseCompleted, events[4].Type)
	assert.Equal(t, "2s", events[4].Fields["duration"])
}

func TestLogPhaseFailed(t *testing.T) {
	observer := NewMockObserver()

	LogPhaseFailed(observer, "database", errors.New("psql exited 2"))

	events := observer.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventPhaseFailed, events[0].Type)
	assert.Equal(t, "psql exited 2", events[0].Fields["error"])
	assert.Contains(t, events[0].Message, "database")
}

func TestLogValidationEvents(t *testing.T) {
	observer := NewMockObserver()

	LogValidationWarning(observer, "preflight", "less than 20GB free")
	LogValidationError(observer, "preflight", "incus bridge collides")

	events := observer.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventValidationWarning, events[0].Type)
	assert.Equal(t, EventValidationError, events[1].Type)
}

func TestMultiObserver(t *testing.T) {
	a, b := NewMockObserver(), NewMockObserver()
	multi := MultiObserver{a, b}

	multi.Event(Event{Type: EventPhaseStarted, Phase: "host"})
	multi.Progress("host", 1, 9)
	multi.Printf("hello")

	assert.Len(t, a.Events(), 2)
	assert.Len(t, b.Events(), 2)
	assert.Equal(t, []string{"hello"}, b.messages)

	derived := multi.WithFields(map[string]string{"run": "1"})
	require.IsType(t, MultiObserver{}, derived)
	assert.Len(t, derived.(MultiObserver), 2)
}
