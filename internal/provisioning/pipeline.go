package provisioning

import (
	"fmt"
	"sync"
	"time"
)

// RunState tracks the lifecycle of a Pipeline.
type RunState int

const (
	// RunNotStarted is the state of a fresh pipeline.
	RunNotStarted RunState = iota
	// RunRunning means phases are executing.
	RunRunning
	// RunCompleted means every phase succeeded.
	RunCompleted
	// RunFailed means a phase returned an error.
	RunFailed
)

func (s RunState) String() string {
	switch s {
	case RunNotStarted:
		return "not-started"
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// Pipeline executes phases strictly in order. A pipeline runs at most once.
type Pipeline struct {
	Phases []Phase

	mu    sync.Mutex
	state RunState
}

// NewPipeline creates a pipeline over the given phases.
func NewPipeline(phases ...Phase) *Pipeline {
	return &Pipeline{Phases: phases}
}

// State returns the current run state.
func (p *Pipeline) State() RunState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s RunState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// Run executes all phases sequentially and stops at the first failure.
// The failure is returned as a *PhaseError; outputs gathered so far stay
// available on ctx.State either way.
func (p *Pipeline) Run(ctx *Context) error {
	p.mu.Lock()
	if p.state != RunNotStarted {
		p.mu.Unlock()
		return ErrAlreadyRun
	}
	p.state = RunRunning
	p.mu.Unlock()

	if ctx.Observer == nil {
		ctx.Observer = NewConsoleObserver()
	}
	if ctx.State == nil {
		ctx.State = NewState("")
	}

	start := time.Now()
	total := len(p.Phases)
	ctx.Observer.Printf("Starting provisioning with %d phases...", total)

	for i, phase := range p.Phases {
		name := phase.Name()
		if ctx.Context != nil {
			if err := ctx.Err(); err != nil {
				p.setState(RunFailed)
				return &PhaseError{Phase: name, Index: i, Err: err}
			}
		}

		ctx.enterPhase(name)
		LogPhaseStart(ctx.Observer, name)
		ctx.Observer.Progress(name, i+1, total)
		phaseStart := time.Now()

		err := phase.Provision(ctx)
		elapsed := time.Since(phaseStart)
		ctx.Metrics.ObservePhase(name, elapsed, err)

		if err != nil {
			LogPhaseFailed(ctx.Observer, name, err)
			p.setState(RunFailed)
			return &PhaseError{
				Phase:     name,
				Index:     i,
				Operation: ctx.failedOperation(),
				Err:       err,
			}
		}

		LogPhaseComplete(ctx.Observer, name, elapsed)
	}

	p.setState(RunCompleted)
	ctx.Observer.Printf("Provisioning completed in %v", time.Since(start).Round(time.Millisecond))
	return nil
}
