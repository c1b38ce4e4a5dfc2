package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/longsangsabo/sabo-pool-engine/models"
	"github.com/longsangsabo/sabo-pool-engine/repositories"
)

// StateMachine performs register/cancel actions against persistence and
// keeps the RegistrationStore consistent. The optimistic intent (PENDING)
// is written before the persistence call and only the call's own outcome
// settles it; push events and ground-truth reads leave a PENDING key alone
// and the idempotent outcome handling makes the key converge anyway.
type StateMachine struct {
	store         *RegistrationStore
	registrations repositories.RegistrationRepository
	tournaments   repositories.TournamentRepository
	bus           Bus
	clock         clockwork.Clock
	logger        *slog.Logger
}

func NewStateMachine(
	store *RegistrationStore,
	registrations repositories.RegistrationRepository,
	tournaments repositories.TournamentRepository,
	bus Bus,
	clock clockwork.Clock,
	logger *slog.Logger,
) *StateMachine {
	return &StateMachine{
		store:         store,
		registrations: registrations,
		tournaments:   tournaments,
		bus:           bus,
		clock:         clock,
		logger:        logger,
	}
}

// Register moves NOT_REGISTERED → PENDING → REGISTERED for the player.
//
// The eligibility gate runs before anything touches persistence; a denial
// is returned as *IneligibleError without any state change. A uniqueness
// violation from persistence is treated as success; the desired end state
// is already in place. Any other failure reverts the key to its prior
// confirmed state and is reported as a retryable *TransientError.
func (m *StateMachine) Register(ctx context.Context, t *models.Tournament, player *models.PlayerRankProfile) error {
	key := Key{TournamentID: t.ID, UserID: player.UserID}

	if m.store.State(key) == StatePending {
		return ErrAlreadyProcessing
	}

	if result := EvaluateEligibility(t, player, m.clock.Now()); !result.Allowed {
		m.logger.Info("registration denied",
			slog.Int("tournament_id", t.ID),
			slog.Int("user_id", player.UserID),
			slog.Any("reasons", result.Reasons),
		)
		return &IneligibleError{Reasons: result.Reasons}
	}

	prev, ok := m.store.BeginPending(key)
	if !ok {
		return ErrAlreadyProcessing
	}

	reg := &models.Registration{
		TournamentID:  t.ID,
		UserID:        player.UserID,
		Status:        models.RegistrationPending,
		PaymentStatus: models.PaymentPending,
	}

	err := m.registrations.Create(ctx, reg)
	switch {
	case err == nil:
		m.store.ResolvePending(key, StateRegistered)
		if count, incErr := m.tournaments.IncrementParticipants(ctx, t.ID); incErr == nil {
			t.CurrentParticipants = count
		} else {
			m.logger.Warn("participant count increment failed",
				slog.Int("tournament_id", t.ID), slog.Any("error", incErr))
		}
		m.bus.PublishRegistration(RegistrationEvent{Type: EventInsert, New: reg})
		return nil

	case errors.Is(err, repositories.ErrRegistrationConflict):
		// Another session already registered this user. Idempotent success.
		m.logger.Info("registration already exists, treating as registered",
			slog.Int("tournament_id", t.ID), slog.Int("user_id", player.UserID))
		m.store.ResolvePending(key, StateRegistered)
		return nil

	default:
		m.store.ResolvePending(key, prev)
		m.logger.Error("registration insert failed",
			slog.Int("tournament_id", t.ID), slog.Int("user_id", player.UserID), slog.Any("error", err))
		return &TransientError{Op: "register", Err: err}
	}
}

// Cancel moves REGISTERED → PENDING → NOT_REGISTERED for the user.
//
// Cancelling an already-absent registration resolves to NOT_REGISTERED and
// reports success: deleting something already gone is not a failure from
// the caller's perspective. Any other failure reverts the key and is
// reported as a retryable *TransientError.
func (m *StateMachine) Cancel(ctx context.Context, t *models.Tournament, userID int) error {
	key := Key{TournamentID: t.ID, UserID: userID}

	prev, ok := m.store.BeginPending(key)
	if !ok {
		return ErrAlreadyProcessing
	}

	cancelled, err := m.registrations.CancelActive(ctx, t.ID, userID)
	switch {
	case err == nil:
		m.store.ResolvePending(key, StateNotRegistered)
		if count, decErr := m.tournaments.DecrementParticipants(ctx, t.ID); decErr == nil {
			t.CurrentParticipants = count
		} else {
			m.logger.Warn("participant count decrement failed",
				slog.Int("tournament_id", t.ID), slog.Any("error", decErr))
		}
		m.bus.PublishRegistration(RegistrationEvent{Type: EventDelete, Old: cancelled})
		return nil

	case errors.Is(err, repositories.ErrRegistrationNotFound):
		// Already gone, possibly cancelled from another session. Idempotent
		// success; the count was adjusted by whoever removed the row.
		m.logger.Info("no active registration to cancel",
			slog.Int("tournament_id", t.ID), slog.Int("user_id", userID))
		m.store.ResolvePending(key, StateNotRegistered)
		return nil

	default:
		m.store.ResolvePending(key, prev)
		m.logger.Error("registration cancel failed",
			slog.Int("tournament_id", t.ID), slog.Int("user_id", userID), slog.Any("error", err))
		return &TransientError{Op: "cancel", Err: err}
	}
}
