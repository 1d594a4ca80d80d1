package store

import (
	"log/slog"
	"sync"

	"github.com/talgya/venturesim/internal/bus"
)

// Persister saves and restores complete world snapshots. Implementations:
// Memory (fast, volatile) and the SQLite-backed store in
// internal/persistence (durable, replayable). Selected at construction.
type Persister interface {
	SaveWorld(w *WorldState) error
	LoadWorld() (*WorldState, error)
}

// ErrNoSavedWorld is returned by LoadWorld when nothing has been saved.
type noSavedWorldError struct{}

func (noSavedWorldError) Error() string { return "no saved world state" }

// ErrNoSavedWorld reports that a persister holds no snapshot yet.
var ErrNoSavedWorld error = noSavedWorldError{}

// Memory is the in-memory persister used for speed-sensitive runs and
// tests.
type Memory struct {
	mu    sync.Mutex
	saved *WorldState
}

// SaveWorld keeps a deep copy of the snapshot.
func (m *Memory) SaveWorld(w *WorldState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = w.Clone()
	return nil
}

// LoadWorld returns a deep copy of the last saved snapshot.
func (m *Memory) LoadWorld() (*WorldState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return nil, ErrNoSavedWorld
	}
	return m.saved.Clone(), nil
}

// Store owns the canonical world state for one run. Commands apply in
// submission order under the lock; each success emits a StateChanged event
// carrying the field diff.
type Store struct {
	mu        sync.RWMutex
	state     *WorldState
	bus       *bus.Bus
	persister Persister
}

// New creates a store around an empty world. Persister may be nil when the
// run does not need durability.
func New(b *bus.Bus, p Persister) *Store {
	return &Store{
		state:     NewWorldState(),
		bus:       b,
		persister: p,
	}
}

// Seed installs the starting world before the run begins. It replaces the
// current state wholesale and performs no validation; scenario loading is
// responsible for well-formed input.
func (s *Store) Seed(w *WorldState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = w.Clone()
}

// Apply validates the command against current state, mutates on success,
// and emits StateChanged. Failures return *ValidationError or
// *ConflictError with state untouched.
func (s *Store) Apply(cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := cmd.validate(s.state); err != nil {
		slog.Debug("command rejected", "command", cmd.Name(), "error", err)
		return err
	}
	changes := cmd.apply(s.state)

	if s.bus != nil {
		s.bus.Publish(bus.Event{
			Type:    bus.EventStateChanged,
			Tick:    s.state.Tick,
			Origin:  "store",
			Payload: ChangedPayload{Command: cmd.Name(), Changes: changes},
		})
	}
	return nil
}

// Snapshot returns a deep copy of current state, safe to hand out.
func (s *Store) Snapshot() *WorldState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Tick returns the current tick without copying the world.
func (s *Store) Tick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Tick
}

// Checkpoint saves the current state through the configured persister.
func (s *Store) Checkpoint() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.SaveWorld(s.Snapshot())
}

// RestoreCheckpoint replaces current state with the persisted snapshot.
func (s *Store) RestoreCheckpoint() error {
	if s.persister == nil {
		return ErrNoSavedWorld
	}
	w, err := s.persister.LoadWorld()
	if err != nil {
		return err
	}
	s.Seed(w)
	return nil
}
