package tui

import (
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/ui/benchmarks"
)

const maxLogLines = 5

// PhaseStatus is the display state of one pipeline phase.
type PhaseStatus struct {
	Name      string
	Active    bool
	Done      bool
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
}

// Model is the Bubble Tea model for the provisioning dashboard.
type Model struct {
	Host   string
	Phases []PhaseStatus

	// Current activity
	Operation string
	Resource  string
	Created   int
	Existing  int
	Warnings  []string
	Failures  []string
	Logs      []string

	// ETA
	EstimatedRemaining time.Duration
	PerformanceScale   float64
	StartTime          time.Time

	// Animation
	SpinnerFrame int

	// UI state
	Width  int
	Height int
	Err    error
	Done   bool
	Quit   bool
}

// NewModel creates a dashboard for a run over phases.
func NewModel(host string, phases []string) Model {
	m := Model{
		Host:             host,
		StartTime:        time.Now(),
		PerformanceScale: 1.0,
	}
	for _, name := range phases {
		m.Phases = append(m.Phases, PhaseStatus{Name: name})
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.Quit = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case EventMsg:
		m.applyEvent(msg.Event)

	case LogMsg:
		m.Logs = append(m.Logs, msg.Line)
		if len(m.Logs) > maxLogLines {
			m.Logs = m.Logs[len(m.Logs)-maxLogLines:]
		}

	case ProgressMsg:
		// Phases come from the pipeline; the list passed to NewModel is only a preview.
		if m.phaseIndex(msg.Phase) < 0 {
			m.Phases = append(m.Phases, PhaseStatus{Name: msg.Phase})
		}

	case TickMsg:
		m.SpinnerFrame++
		m.updateETA()
		return m, tickCmd()

	case ErrMsg:
		m.Err = msg.Err
		return m, tea.Quit

	case DoneMsg:
		m.Done = true
		m.Operation = ""
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) phaseIndex(name string) int {
	for i, phase := range m.Phases {
		if phase.Name == name {
			return i
		}
	}
	return -1
}

func (m *Model) applyEvent(ev provisioning.Event) {
	switch ev.Type {
	case provisioning.EventPhaseStarted:
		idx := m.phaseIndex(ev.Phase)
		if idx < 0 {
			m.Phases = append(m.Phases, PhaseStatus{Name: ev.Phase})
			idx = len(m.Phases) - 1
		}
		// Earlier phases have finished
		for i := 0; i < idx; i++ {
			m.Phases[i].Active = false
			m.Phases[i].Done = true
		}
		m.Phases[idx].Active = true
		m.Phases[idx].StartedAt = ev.Timestamp
		m.Operation = ""
		m.Resource = ""

	case provisioning.EventPhaseCompleted:
		if idx := m.phaseIndex(ev.Phase); idx >= 0 {
			m.Phases[idx].Active = false
			m.Phases[idx].Done = true
			m.Phases[idx].EndedAt = ev.Timestamp
		}

	case provisioning.EventPhaseFailed:
		if idx := m.phaseIndex(ev.Phase); idx >= 0 {
			m.Phases[idx].Active = false
			m.Phases[idx].EndedAt = ev.Timestamp
			msg := ev.Fields["error"]
			if msg == "" {
				msg = ev.Message
			}
			m.Phases[idx].Err = errors.New(msg)
		}

	case provisioning.EventOperationStarted:
		m.Operation = ev.Message
		m.Resource = ""

	case provisioning.EventResourceCreating:
		m.Resource = ev.Resource

	case provisioning.EventResourceCreated:
		m.Created++
		m.Resource = ""

	case provisioning.EventResourceExists:
		m.Existing++

	case provisioning.EventResourceFailed:
		m.Failures = append(m.Failures, ev.Resource+": "+ev.Message)

	case provisioning.EventValidationWarning:
		m.Warnings = append(m.Warnings, "["+ev.Phase+"] "+ev.Message)

	case provisioning.EventValidationError:
		m.Failures = append(m.Failures, "["+ev.Phase+"] "+ev.Message)
	}
}

// history converts the phase list into benchmark records.
func (m *Model) history() []benchmarks.PhaseRecord {
	var out []benchmarks.PhaseRecord
	for _, p := range m.Phases {
		if p.StartedAt.IsZero() {
			continue
		}
		out = append(out, benchmarks.PhaseRecord{Phase: p.Name, StartedAt: p.StartedAt, EndedAt: p.EndedAt})
	}
	return out
}

func (m *Model) activePhase() (PhaseStatus, bool) {
	for _, p := range m.Phases {
		if p.Active {
			return p, true
		}
	}
	return PhaseStatus{}, false
}

func (m *Model) updateETA() {
	current, ok := m.activePhase()
	if !ok || m.Done {
		m.EstimatedRemaining = 0
		if !m.Done && len(m.history()) == 0 {
			m.EstimatedRemaining = benchmarks.TotalEstimate()
		}
		return
	}

	order := make([]string, 0, len(m.Phases))
	for _, p := range m.Phases {
		order = append(order, p.Name)
	}
	elapsed := time.Since(current.StartedAt)
	history := m.history()

	m.PerformanceScale = benchmarks.PerformanceScale(current.Name, elapsed, history)
	m.EstimatedRemaining = benchmarks.EstimateRemainingWithScale(order, current.Name, elapsed, history, m.PerformanceScale)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	return renderView(m)
}

// phaseWeight is the benchmark duration of a phase in seconds; unknown
// phases count as half a minute.
func phaseWeight(name string) float64 {
	if secs, ok := benchmarks.DefaultTimings[name]; ok {
		return float64(secs)
	}
	return 30
}
