package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/longsangsabo/sabo-pool-engine/models"
)

var (
	ErrMatchNotFound = errors.New("bracket match not found")
	// ErrMatchAlreadySettled means the update targeted a match that already
	// has a final result; settled matches are immutable.
	ErrMatchAlreadySettled = errors.New("bracket match already settled")
)

type MatchRepository interface {
	GetByID(ctx context.Context, id int) (*models.BracketMatch, error)
	// GetFinalMatch returns the single highest-round match of the primary
	// (winners) bracket, or ErrMatchNotFound if no bracket exists yet.
	GetFinalMatch(ctx context.Context, tournamentID int) (*models.BracketMatch, error)
	ListByTournament(ctx context.Context, tournamentID int, branch *models.BracketBranch, status *models.MatchStatus) ([]*models.BracketMatch, error)
	// UpdateResult records a winner and final status. Matches that are
	// already completed or walkover are left untouched and
	// ErrMatchAlreadySettled is returned.
	UpdateResult(ctx context.Context, id int, winnerUserID *int, score *string, status models.MatchStatus) (*models.BracketMatch, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `id, tournament_id, round, branch, p1_user_id, p2_user_id, winner_user_id, score, status, scheduled_at, created_at, updated_at`

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.BracketMatch, error) {
	query := `SELECT ` + matchColumns + ` FROM bracket_matches WHERE id = $1`

	m := &models.BracketMatch{}
	err := r.scanMatch(r.db.QueryRowContext(ctx, query, id), m)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to get bracket match %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) GetFinalMatch(ctx context.Context, tournamentID int) (*models.BracketMatch, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM bracket_matches
		WHERE tournament_id = $1 AND branch = $2
		ORDER BY round DESC, id ASC
		LIMIT 1`

	m := &models.BracketMatch{}
	err := r.scanMatch(r.db.QueryRowContext(ctx, query, tournamentID, models.BranchWinners), m)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to get final match for tournament %d: %w", tournamentID, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID int, branch *models.BracketBranch, status *models.MatchStatus) ([]*models.BracketMatch, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + matchColumns + ` FROM bracket_matches WHERE tournament_id = $1`)

	args := []interface{}{tournamentID}
	if branch != nil {
		queryBuilder.WriteString(" AND branch = $" + strconv.Itoa(len(args)+1))
		args = append(args, *branch)
	}
	if status != nil {
		queryBuilder.WriteString(" AND status = $" + strconv.Itoa(len(args)+1))
		args = append(args, *status)
	}
	queryBuilder.WriteString(" ORDER BY round ASC, id ASC")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bracket matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.BracketMatch, 0)
	for rows.Next() {
		m := &models.BracketMatch{}
		if err := r.scanMatch(rows, m); err != nil {
			return nil, fmt.Errorf("failed to scan bracket match row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bracket match rows: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) UpdateResult(ctx context.Context, id int, winnerUserID *int, score *string, status models.MatchStatus) (*models.BracketMatch, error) {
	query := `
		UPDATE bracket_matches
		SET winner_user_id = $1, score = $2, status = $3, updated_at = NOW()
		WHERE id = $4 AND status NOT IN ($5, $6)
		RETURNING ` + matchColumns

	m := &models.BracketMatch{}
	err := r.scanMatch(
		r.db.QueryRowContext(ctx, query, winnerUserID, score, status, id, models.MatchCompleted, models.MatchWalkover),
		m,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Distinguish a missing match from an immutable one.
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrMatchAlreadySettled
		}
		return nil, fmt.Errorf("failed to update result for bracket match %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) scanMatch(scanner interface {
	Scan(dest ...interface{}) error
}, m *models.BracketMatch) error {
	return scanner.Scan(
		&m.ID,
		&m.TournamentID,
		&m.Round,
		&m.Branch,
		&m.P1UserID,
		&m.P2UserID,
		&m.WinnerUserID,
		&m.Score,
		&m.Status,
		&m.ScheduledAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
}
