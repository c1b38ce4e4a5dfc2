package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/longsangsabo/sabo-pool-engine/engine"
	"github.com/longsangsabo/sabo-pool-engine/models"
	"github.com/longsangsabo/sabo-pool-engine/repositories"
)

// Registration button captions derived from the cached state.
const (
	ButtonRegister   = "Register"
	ButtonCancel     = "Cancel registration"
	ButtonProcessing = "Processing..."
)

// RegistrationService is the application facade over the registration
// engine: it resolves the authenticated user's rank profile, runs the
// register/cancel state machine and turns outcomes into notifications.
type RegistrationService struct {
	store       *engine.RegistrationStore
	machine     *engine.StateMachine
	channel     *engine.SyncChannel
	tournaments repositories.TournamentRepository
	users       repositories.UserRepository
	notifier    Notifier
	logger      *slog.Logger
}

func NewRegistrationService(
	store *engine.RegistrationStore,
	machine *engine.StateMachine,
	channel *engine.SyncChannel,
	tournaments repositories.TournamentRepository,
	users repositories.UserRepository,
	notifier Notifier,
	logger *slog.Logger,
) *RegistrationService {
	return &RegistrationService{
		store:       store,
		machine:     machine,
		channel:     channel,
		tournaments: tournaments,
		users:       users,
		notifier:    notifier,
		logger:      logger,
	}
}

// IsRegistered reads the cached state; unseen keys report false.
func (s *RegistrationService) IsRegistered(tournamentID, userID int) bool {
	return s.store.State(engine.Key{TournamentID: tournamentID, UserID: userID}) == engine.StateRegistered
}

// IsLoading reports whether an initial status check for the key is still
// running.
func (s *RegistrationService) IsLoading(tournamentID, userID int) bool {
	return s.store.IsLoading(engine.Key{TournamentID: tournamentID, UserID: userID})
}

// ButtonText maps the cached state to the action caption shown on the
// tournament card.
func (s *RegistrationService) ButtonText(tournamentID, userID int) string {
	switch s.store.State(engine.Key{TournamentID: tournamentID, UserID: userID}) {
	case engine.StateRegistered:
		return ButtonCancel
	case engine.StatePending:
		return ButtonProcessing
	default:
		return ButtonRegister
	}
}

// HandleRegistrationFlow is the single entry point behind the registration
// button: it toggles between registering and cancelling based on the
// current cached state.
func (s *RegistrationService) HandleRegistrationFlow(ctx context.Context, tournamentID, userID int) error {
	if userID <= 0 {
		return ErrNoAuthenticatedUser
	}
	if s.IsRegistered(tournamentID, userID) {
		return s.Cancel(ctx, tournamentID, userID)
	}
	return s.Register(ctx, tournamentID, userID)
}

// Register runs the registration state machine for the user and reports
// the outcome through the notifier.
func (s *RegistrationService) Register(ctx context.Context, tournamentID, userID int) error {
	if userID <= 0 {
		return ErrNoAuthenticatedUser
	}

	tournament, err := s.loadTournament(ctx, tournamentID)
	if err != nil {
		return err
	}
	player, err := s.loadRankProfile(ctx, userID)
	if err != nil {
		return err
	}

	err = s.machine.Register(ctx, tournament, player)
	switch {
	case err == nil:
		s.notifier.Notify(ctx, NewNotification(userID, SeveritySuccess, "Registration successful!"))
		return nil
	case errors.Is(err, engine.ErrAlreadyProcessing):
		return err
	default:
		s.notifyFailure(ctx, userID, err)
		return err
	}
}

// Cancel withdraws the user's registration.
func (s *RegistrationService) Cancel(ctx context.Context, tournamentID, userID int) error {
	if userID <= 0 {
		return ErrNoAuthenticatedUser
	}

	tournament, err := s.loadTournament(ctx, tournamentID)
	if err != nil {
		return err
	}

	err = s.machine.Cancel(ctx, tournament, userID)
	switch {
	case err == nil:
		s.notifier.Notify(ctx, NewNotification(userID, SeverityInfo, "Registration cancelled."))
		return nil
	case errors.Is(err, engine.ErrAlreadyProcessing):
		return err
	default:
		s.notifyFailure(ctx, userID, err)
		return err
	}
}

// RefreshStatus forces a direct persistence read for one key, bypassing the
// cache. Used when a card is first displayed.
func (s *RegistrationService) RefreshStatus(ctx context.Context, tournamentID, userID int) (engine.State, error) {
	key := engine.Key{TournamentID: tournamentID, UserID: userID}
	s.store.SetLoading(key, true)
	defer s.store.SetLoading(key, false)
	return s.channel.CheckStatus(ctx, tournamentID, userID)
}

// SignOut drops every cached entry for the user and invalidates in-flight
// status checks so their delayed results cannot leak into the next session.
func (s *RegistrationService) SignOut(userID int) {
	s.store.ResetUser(userID)
	s.channel.Invalidate()
	s.logger.Info("registration cache cleared on sign-out", slog.Int("user_id", userID))
}

func (s *RegistrationService) loadTournament(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	tournament, err := s.tournaments.GetByID(ctx, tournamentID)
	if errors.Is(err, repositories.ErrTournamentNotFound) {
		return nil, ErrTournamentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load tournament %d: %w", tournamentID, err)
	}
	return tournament, nil
}

// loadRankProfile returns the player's verified rank profile, or a bare
// profile when none exists: eligibility then fails closed for rank-bounded
// tournaments and passes for unrestricted ones.
func (s *RegistrationService) loadRankProfile(ctx context.Context, userID int) (*models.PlayerRankProfile, error) {
	profile, err := s.users.GetRankProfile(ctx, userID)
	if errors.Is(err, repositories.ErrRankProfileNotFound) {
		return &models.PlayerRankProfile{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load rank profile %d: %w", userID, err)
	}
	return profile, nil
}

func (s *RegistrationService) notifyFailure(ctx context.Context, userID int, err error) {
	var ineligible *engine.IneligibleError
	if errors.As(err, &ineligible) {
		s.notifier.Notify(ctx, NewNotification(userID, SeverityWarning, ineligible.FirstReason()))
		return
	}
	if engine.IsTransient(err) {
		s.notifier.Notify(ctx, NewNotification(userID, SeverityError, "Something went wrong. Please try again."))
		return
	}
	s.notifier.Notify(ctx, NewNotification(userID, SeverityError, "Registration action failed."))
}
