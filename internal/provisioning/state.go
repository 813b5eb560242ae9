package provisioning

import (
	"maps"
	"slices"
	"sync"
)

// Note is an advisory message raised by a phase for the final report.
type Note struct {
	Phase   string
	Message string
}

// State accumulates side outputs that must survive to the end of the run
// (generated credentials, generated keys, warnings). Phases write to it;
// nothing reads it to make control-flow decisions.
type State struct {
	mu sync.Mutex

	// RunID identifies this invocation in logs, metrics and the handoff.
	RunID string

	databasePasswords   map[string]string
	storageBoxPublicKey string
	cloudInit           map[string]bool
	notes               []Note
}

// NewState creates an empty provisioning state.
func NewState(runID string) *State {
	return &State{
		RunID:             runID,
		databasePasswords: make(map[string]string),
		cloudInit:         make(map[string]bool),
	}
}

// SetDatabasePassword records the effective password of a database role.
func (s *State) SetDatabasePassword(db, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.databasePasswords[db] = password
}

// DatabasePassword returns the recorded password for db.
func (s *State) DatabasePassword(db string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pw, ok := s.databasePasswords[db]
	return pw, ok
}

// DatabasePasswords returns a copy of all recorded passwords keyed by database.
func (s *State) DatabasePasswords() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.databasePasswords)
}

// SetStorageBoxPublicKey records the public half of the offsite backup key.
func (s *State) SetStorageBoxPublicKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storageBoxPublicKey = key
}

// StorageBoxPublicKey returns the recorded offsite backup public key.
func (s *State) StorageBoxPublicKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storageBoxPublicKey
}

// SetCloudInit records whether a workload image ships cloud-init.
func (s *State) SetCloudInit(workload string, present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cloudInit[workload] = present
}

// CloudInit returns the recorded cloud-init capability of each workload.
func (s *State) CloudInit() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.cloudInit)
}

// AddNote records an advisory message for the final report.
func (s *State) AddNote(phase, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, Note{Phase: phase, Message: message})
}

// Notes returns the recorded notes in order.
func (s *State) Notes() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.notes)
}
