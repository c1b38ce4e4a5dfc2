package engine

import (
	"sync"
	"time"
)

// State is the client-side registration state for one (tournament, user)
// key. PENDING is transitional only: every action resolves it back to one
// of the other two states.
type State string

const (
	StateNotRegistered State = "NOT_REGISTERED"
	StatePending       State = "PENDING"
	StateRegistered    State = "REGISTERED"
)

// Key identifies one user's registration slot in one tournament.
type Key struct {
	TournamentID int
	UserID       int
}

// RegistrationStore is the ephemeral per-node cache of registration state.
// It holds no authority: it is rebuilt from persistence reads and push
// events, and only the StateMachine and the SyncChannel write to it.
type RegistrationStore struct {
	mu       sync.RWMutex
	states   map[Key]State
	loading  map[Key]bool
	lastSync time.Time
}

func NewRegistrationStore() *RegistrationStore {
	return &RegistrationStore{
		states:  make(map[Key]State),
		loading: make(map[Key]bool),
	}
}

// State returns the cached state for the key, defaulting to NOT_REGISTERED
// for keys never seen (fail-closed on entitlement).
func (s *RegistrationStore) State(k Key) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.states[k]; ok {
		return st
	}
	return StateNotRegistered
}

// SetState records a reconciled state. NOT_REGISTERED entries are dropped
// from the map so the cache only grows with live registrations.
func (s *RegistrationStore) SetState(k Key, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(k, st)
}

// BeginPending atomically moves the key into PENDING and returns the prior
// state. It refuses (returns false) if the key is already PENDING, which is
// the reentrancy guard for register/cancel.
func (s *RegistrationStore) BeginPending(k Key) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.states[k]
	if !ok {
		prev = StateNotRegistered
	}
	if prev == StatePending {
		return prev, false
	}
	s.states[k] = StatePending
	s.loading[k] = true
	return prev, true
}

// ResolvePending settles an in-flight action. The final state must be
// REGISTERED or NOT_REGISTERED; anything else is coerced to the latter.
func (s *RegistrationStore) ResolvePending(k Key, final State) {
	if final != StateRegistered {
		final = StateNotRegistered
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Push events and ground-truth reads leave PENDING keys alone, so the
	// settled action is the only writer that can close out its own intent.
	s.setLocked(k, final)
	delete(s.loading, k)
}

func (s *RegistrationStore) setLocked(k Key, st State) {
	if st == StateNotRegistered {
		delete(s.states, k)
		return
	}
	s.states[k] = st
}

func (s *RegistrationStore) IsLoading(k Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading[k]
}

func (s *RegistrationStore) SetLoading(k Key, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loading {
		s.loading[k] = true
		return
	}
	delete(s.loading, k)
}

// KeysForTournament returns every cached key for the tournament, pending or
// registered. Used by the periodic re-sync to reconcile against ground
// truth.
func (s *RegistrationStore) KeysForTournament(tournamentID int) []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]Key, 0)
	for k := range s.states {
		if k.TournamentID == tournamentID {
			keys = append(keys, k)
		}
	}
	return keys
}

// ApplyGroundTruth reconciles a key against a fresh persistence read,
// leaving in-flight PENDING entries alone so a stale read cannot stomp an
// optimistic update.
func (s *RegistrationStore) ApplyGroundTruth(k Key, registered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states[k] == StatePending {
		return
	}
	if registered {
		s.states[k] = StateRegistered
	} else {
		delete(s.states, k)
	}
}

func (s *RegistrationStore) MarkSynced(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync = t
}

func (s *RegistrationStore) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// Reset drops all cached state. The SyncChannel calls it on teardown; the
// cache is per-session, not per-device.
func (s *RegistrationStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[Key]State)
	s.loading = make(map[Key]bool)
	s.lastSync = time.Time{}
}

// ResetUser drops all cached state belonging to one user.
func (s *RegistrationStore) ResetUser(userID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.states {
		if k.UserID == userID {
			delete(s.states, k)
		}
	}
	for k := range s.loading {
		if k.UserID == userID {
			delete(s.loading, k)
		}
	}
}
