package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/longsangsabo/sabo-pool-engine/engine"
	"github.com/longsangsabo/sabo-pool-engine/services"
)

// TournamentRoom names the hub room for one tournament's page.
func TournamentRoom(tournamentID int) string {
	return fmt.Sprintf("tournament:%d", tournamentID)
}

// UserRoom names the hub room for one user's personal feed.
func UserRoom(userID int) string {
	return fmt.Sprintf("user:%d", userID)
}

// EventRelay bridges the engine's push bus onto websocket rooms so browser
// sessions see registrations and match results move in real time.
type EventRelay struct {
	hub    *Hub
	bus    engine.Bus
	logger *slog.Logger
	subs   []engine.Subscription
}

func NewEventRelay(hub *Hub, bus engine.Bus, logger *slog.Logger) *EventRelay {
	return &EventRelay{hub: hub, bus: bus, logger: logger}
}

// Start subscribes the relay to the bus. Stop releases the subscriptions.
func (r *EventRelay) Start() {
	r.subs = append(r.subs,
		r.bus.SubscribeRegistrations(0, r.onRegistration),
		r.bus.SubscribeMatches(r.onMatch),
	)
}

func (r *EventRelay) Stop() {
	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
	r.subs = nil
}

func (r *EventRelay) onRegistration(ev engine.RegistrationEvent) {
	tournamentID := ev.TournamentID()
	if tournamentID == 0 {
		return
	}
	r.hub.BroadcastToRoom(TournamentRoom(tournamentID), Message{
		Type: TypeRegistrationUpdated,
		Payload: map[string]interface{}{
			"event":         string(ev.Type),
			"tournament_id": tournamentID,
			"user_id":       ev.UserID(),
		},
	})
}

func (r *EventRelay) onMatch(ev engine.MatchEvent) {
	if ev.New == nil {
		return
	}
	r.hub.BroadcastToRoom(TournamentRoom(ev.New.TournamentID), Message{
		Type:    TypeMatchUpdated,
		Payload: ev.New,
	})
}

// HubNotifier pushes user-facing notifications to their personal websocket
// room.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) Notify(ctx context.Context, notification services.Notification) {
	if notification.UserID == 0 {
		return
	}
	n.hub.BroadcastToRoom(UserRoom(notification.UserID), Message{
		Type:    TypeNotification,
		Payload: notification,
	})
}
