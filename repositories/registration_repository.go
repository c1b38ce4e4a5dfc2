package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/longsangsabo/sabo-pool-engine/models"
)

var (
	ErrRegistrationNotFound = errors.New("registration not found")
	// ErrRegistrationConflict is the typed uniqueness-violation failure: an
	// active registration for the (tournament, user) pair already exists.
	ErrRegistrationConflict          = errors.New("user is already registered for this tournament")
	ErrRegistrationUserInvalid       = errors.New("registration user conflict or invalid")
	ErrRegistrationTournamentInvalid = errors.New("registration tournament conflict or invalid")
)

type RegistrationRepository interface {
	Create(ctx context.Context, reg *models.Registration) error
	// CancelActive soft-cancels the user's active registration and returns
	// the cancelled row. Returns ErrRegistrationNotFound if no active row
	// exists.
	CancelActive(ctx context.Context, tournamentID, userID int) (*models.Registration, error)
	// FindActive returns the active (non-cancelled) registration for the
	// pair, or ErrRegistrationNotFound.
	FindActive(ctx context.Context, tournamentID, userID int) (*models.Registration, error)
	ListActiveByTournament(ctx context.Context, tournamentID int) ([]*models.Registration, error)
	ListActiveByUser(ctx context.Context, userID int) ([]*models.Registration, error)
	CountActiveByTournament(ctx context.Context, tournamentID int) (int, error)
}

type postgresRegistrationRepository struct {
	db *sql.DB
}

func NewPostgresRegistrationRepository(db *sql.DB) RegistrationRepository {
	return &postgresRegistrationRepository{db: db}
}

const registrationColumns = `id, tournament_id, user_id, status, payment_status, created_at, updated_at`

func (r *postgresRegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.Status == "" {
		reg.Status = models.RegistrationPending
	}
	if reg.PaymentStatus == "" {
		reg.PaymentStatus = models.PaymentPending
	}

	query := `
		INSERT INTO registrations (id, tournament_id, user_id, status, payment_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		reg.ID,
		reg.TournamentID,
		reg.UserID,
		reg.Status,
		reg.PaymentStatus,
	).Scan(&reg.CreatedAt, &reg.UpdatedAt)

	if err != nil {
		switch {
		case isUniqueViolation(err):
			return ErrRegistrationConflict
		case isForeignKeyViolation(err, "registrations_user_id_fkey"):
			return ErrRegistrationUserInvalid
		case isForeignKeyViolation(err, "registrations_tournament_id_fkey"):
			return ErrRegistrationTournamentInvalid
		}
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

func (r *postgresRegistrationRepository) CancelActive(ctx context.Context, tournamentID, userID int) (*models.Registration, error) {
	query := `
		UPDATE registrations
		SET status = $1, updated_at = NOW()
		WHERE tournament_id = $2 AND user_id = $3 AND status <> $1
		RETURNING ` + registrationColumns

	reg := &models.Registration{}
	err := r.scanRegistration(r.db.QueryRowContext(ctx, query, models.RegistrationCancelled, tournamentID, userID), reg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to cancel registration: %w", err)
	}
	return reg, nil
}

func (r *postgresRegistrationRepository) FindActive(ctx context.Context, tournamentID, userID int) (*models.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE tournament_id = $1 AND user_id = $2 AND status <> $3`

	reg := &models.Registration{}
	err := r.scanRegistration(r.db.QueryRowContext(ctx, query, tournamentID, userID, models.RegistrationCancelled), reg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to find active registration: %w", err)
	}
	return reg, nil
}

func (r *postgresRegistrationRepository) ListActiveByTournament(ctx context.Context, tournamentID int) ([]*models.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE tournament_id = $1 AND status <> $2
		ORDER BY created_at ASC`

	return r.list(ctx, query, tournamentID, models.RegistrationCancelled)
}

func (r *postgresRegistrationRepository) ListActiveByUser(ctx context.Context, userID int) ([]*models.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE user_id = $1 AND status <> $2
		ORDER BY created_at ASC`

	return r.list(ctx, query, userID, models.RegistrationCancelled)
}

func (r *postgresRegistrationRepository) CountActiveByTournament(ctx context.Context, tournamentID int) (int, error) {
	query := `SELECT COUNT(*) FROM registrations WHERE tournament_id = $1 AND status <> $2`

	var count int
	err := r.db.QueryRowContext(ctx, query, tournamentID, models.RegistrationCancelled).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count registrations for tournament %d: %w", tournamentID, err)
	}
	return count, nil
}

func (r *postgresRegistrationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Registration, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	registrations := make([]*models.Registration, 0)
	for rows.Next() {
		reg := &models.Registration{}
		if err := r.scanRegistration(rows, reg); err != nil {
			return nil, fmt.Errorf("failed to scan registration row: %w", err)
		}
		registrations = append(registrations, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registration rows: %w", err)
	}
	return registrations, nil
}

func (r *postgresRegistrationRepository) scanRegistration(scanner interface {
	Scan(dest ...interface{}) error
}, reg *models.Registration) error {
	return scanner.Scan(
		&reg.ID,
		&reg.TournamentID,
		&reg.UserID,
		&reg.Status,
		&reg.PaymentStatus,
		&reg.CreatedAt,
		&reg.UpdatedAt,
	)
}
