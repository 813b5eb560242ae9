package provisioning

import (
	"errors"
	"fmt"
)

var (
	// ErrLockoutRisk means the admin key could not be confirmed on the host,
	// so password login must stay enabled.
	ErrLockoutRisk = errors.New("lockout risk: admin key login not confirmed")
	// ErrValidationRollback means a guarded change failed validation and the
	// previous file was restored.
	ErrValidationRollback = errors.New("validation failed, previous configuration restored")
	// ErrResourceExists is never returned to callers: Ensure absorbs it as a skip.
	// Probes may return it to signal presence.
	ErrResourceExists = errors.New("resource already exists")
	// ErrAlreadyRun is returned when a pipeline is run a second time.
	ErrAlreadyRun = errors.New("pipeline already ran")
)

// PhaseError identifies where a run stopped.
type PhaseError struct {
	Phase     string
	Index     int
	Operation string
	Err       error
}

func (e *PhaseError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s phase failed at %q: %v", e.Phase, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s phase failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
