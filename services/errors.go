package services

import "errors"

// Errors shared across services and the HTTP error mapping.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Validation and business rules.
	ErrValidationFailed     = errors.New("validation failed")
	ErrNoAuthenticatedUser  = errors.New("no authenticated user")
	ErrResultsRequired      = errors.New("tournament produced no finishers")
	ErrTournamentNotStarted = errors.New("tournament has not started")
	ErrInvalidMatchResult   = errors.New("invalid match result")

	// Conflicts.
	ErrRegistrationConflict = errors.New("user is already registered for this tournament")
	ErrMatchAlreadySettled  = errors.New("match result is already recorded")

	// Authorization.
	ErrForbiddenOperation = errors.New("operation not allowed for the current user")

	// Entity-specific lookups.
	ErrUserNotFound       = errors.New("user not found")
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrMatchNotFound      = errors.New("match not found")
	ErrRankNotVerified    = errors.New("player has no verified rank profile")
)
