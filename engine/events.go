package engine

import (
	"sync"

	"github.com/google/uuid"
	"github.com/longsangsabo/sabo-pool-engine/models"
)

// EventType mirrors the change kinds delivered by the persistence push bus.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// RegistrationEvent is a push notification about a registration row. New is
// set for inserts/updates, Old for updates/deletes.
type RegistrationEvent struct {
	Type EventType
	Old  *models.Registration
	New  *models.Registration
}

func (e RegistrationEvent) row() *models.Registration {
	if e.New != nil {
		return e.New
	}
	return e.Old
}

func (e RegistrationEvent) TournamentID() int {
	if r := e.row(); r != nil {
		return r.TournamentID
	}
	return 0
}

func (e RegistrationEvent) UserID() int {
	if r := e.row(); r != nil {
		return r.UserID
	}
	return 0
}

// MatchEvent is a push notification about a bracket match row.
type MatchEvent struct {
	Type EventType
	Old  *models.BracketMatch
	New  *models.BracketMatch
}

// Subscription is the teardown handle returned by Bus subscriptions.
// Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Bus is the push-event fan-out between sessions sharing persistence.
// Handlers run synchronously on the publisher's goroutine and must not
// block.
type Bus interface {
	// SubscribeRegistrations delivers registration events for one user, or
	// for all users when userID is zero.
	SubscribeRegistrations(userID int, handler func(RegistrationEvent)) Subscription
	SubscribeMatches(handler func(MatchEvent)) Subscription
	PublishRegistration(ev RegistrationEvent)
	PublishMatch(ev MatchEvent)
}

type registrationSub struct {
	userID  int
	handler func(RegistrationEvent)
}

// MemoryBus is the in-process Bus implementation. A single instance is
// shared by every component of one node.
type MemoryBus struct {
	mu        sync.RWMutex
	regSubs   map[string]registrationSub
	matchSubs map[string]func(MatchEvent)
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		regSubs:   make(map[string]registrationSub),
		matchSubs: make(map[string]func(MatchEvent)),
	}
}

func (b *MemoryBus) SubscribeRegistrations(userID int, handler func(RegistrationEvent)) Subscription {
	id := uuid.NewString()
	b.mu.Lock()
	b.regSubs[id] = registrationSub{userID: userID, handler: handler}
	b.mu.Unlock()
	return &memorySubscription{unsubscribe: func() {
		b.mu.Lock()
		delete(b.regSubs, id)
		b.mu.Unlock()
	}}
}

func (b *MemoryBus) SubscribeMatches(handler func(MatchEvent)) Subscription {
	id := uuid.NewString()
	b.mu.Lock()
	b.matchSubs[id] = handler
	b.mu.Unlock()
	return &memorySubscription{unsubscribe: func() {
		b.mu.Lock()
		delete(b.matchSubs, id)
		b.mu.Unlock()
	}}
}

func (b *MemoryBus) PublishRegistration(ev RegistrationEvent) {
	b.mu.RLock()
	handlers := make([]func(RegistrationEvent), 0, len(b.regSubs))
	for _, sub := range b.regSubs {
		if sub.userID == 0 || sub.userID == ev.UserID() {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (b *MemoryBus) PublishMatch(ev MatchEvent) {
	b.mu.RLock()
	handlers := make([]func(MatchEvent), 0, len(b.matchSubs))
	for _, h := range b.matchSubs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

type memorySubscription struct {
	once        sync.Once
	unsubscribe func()
}

func (s *memorySubscription) Unsubscribe() {
	s.once.Do(s.unsubscribe)
}
