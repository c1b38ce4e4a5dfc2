package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/longsangsabo/sabo-pool-engine/models"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	// ErrTournamentCapacityReached means the guarded increment found the
	// tournament already at max_participants.
	ErrTournamentCapacityReached = errors.New("tournament is at full capacity")
	// ErrTournamentStatusSuperseded means the guarded status update matched
	// no row: the tournament is missing or already at or past the target
	// status.
	ErrTournamentStatusSuperseded = errors.New("tournament status already superseded")
)

type TournamentRepository interface {
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, statusFilter *models.TournamentStatus, limit, offset int) ([]*models.Tournament, error)
	ListByStatus(ctx context.Context, statuses ...models.TournamentStatus) ([]*models.Tournament, error)
	UpdateStatus(ctx context.Context, id int, status models.TournamentStatus) error
	// MarkCompleted conditionally transitions the tournament to completed.
	// It reports whether this call performed the transition; false means the
	// tournament was already completed (or cancelled) and nothing changed.
	MarkCompleted(ctx context.Context, exec SQLExecutor, id int, completedAt time.Time) (bool, error)
	// IncrementParticipants bumps current_participants, guarded so the count
	// never exceeds max_participants. Returns the new count.
	IncrementParticipants(ctx context.Context, id int) (int, error)
	// DecrementParticipants lowers current_participants, floored at zero.
	// Returns the new count.
	DecrementParticipants(ctx context.Context, id int) (int, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

const tournamentColumns = `id, name, description, club_id, organizer_id, max_participants, current_participants,
	registration_start, registration_end, start_time, status, management_status,
	min_rank, max_rank, min_age, completed_at, created_at`

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	t := &models.Tournament{}
	err := r.scanTournament(r.db.QueryRowContext(ctx, query, id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, statusFilter *models.TournamentStatus, limit, offset int) ([]*models.Tournament, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + tournamentColumns + ` FROM tournaments`)

	args := make([]interface{}, 0, 3)
	if statusFilter != nil {
		queryBuilder.WriteString(" WHERE status = $1")
		args = append(args, *statusFilter)
	}
	queryBuilder.WriteString(" ORDER BY registration_start DESC")
	queryBuilder.WriteString(" LIMIT $" + strconv.Itoa(len(args)+1))
	args = append(args, limit)
	queryBuilder.WriteString(" OFFSET $" + strconv.Itoa(len(args)+1))
	args = append(args, offset)

	return r.list(ctx, queryBuilder.String(), args...)
}

func (r *postgresTournamentRepository) ListByStatus(ctx context.Context, statuses ...models.TournamentStatus) ([]*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE status = ANY($1) ORDER BY registration_start ASC`

	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return r.list(ctx, query, pq.Array(values))
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, id int, status models.TournamentStatus) error {
	// Transitions only move forward on the lifecycle; cancellation is the
	// one exception and is reachable from any non-terminal status.
	var (
		query string
		args  []interface{}
	)
	if status == models.StatusCancelled {
		query = `UPDATE tournaments SET status = $1 WHERE id = $2 AND status NOT IN ($1, $3)`
		args = []interface{}{status, id, models.StatusCompleted}
	} else {
		allowed := models.StatusesPreceding(status)
		values := make([]string, len(allowed))
		for i, s := range allowed {
			values[i] = string(s)
		}
		query = `UPDATE tournaments SET status = $1 WHERE id = $2 AND status = ANY($3)`
		args = []interface{}{status, id, pq.Array(values)}
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update tournament %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentStatusSuperseded)
}

func (r *postgresTournamentRepository) MarkCompleted(ctx context.Context, exec SQLExecutor, id int, completedAt time.Time) (bool, error) {
	executor := SQLExecutor(r.db)
	if exec != nil {
		executor = exec
	}

	query := `
		UPDATE tournaments
		SET status = $1, management_status = $2, completed_at = $3
		WHERE id = $4 AND status NOT IN ($1, $5)`

	result, err := executor.ExecContext(ctx, query,
		models.StatusCompleted,
		models.ManagementCompleted,
		completedAt,
		id,
		models.StatusCancelled,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark tournament %d completed: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return rowsAffected == 1, nil
}

func (r *postgresTournamentRepository) IncrementParticipants(ctx context.Context, id int) (int, error) {
	query := `
		UPDATE tournaments
		SET current_participants = current_participants + 1
		WHERE id = $1 AND current_participants < max_participants
		RETURNING current_participants`

	var count int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either the tournament is missing or the guard rejected the bump.
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return 0, getErr
			}
			return 0, ErrTournamentCapacityReached
		}
		return 0, fmt.Errorf("failed to increment participants for tournament %d: %w", id, err)
	}
	return count, nil
}

func (r *postgresTournamentRepository) DecrementParticipants(ctx context.Context, id int) (int, error) {
	query := `
		UPDATE tournaments
		SET current_participants = GREATEST(current_participants - 1, 0)
		WHERE id = $1
		RETURNING current_participants`

	var count int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrTournamentNotFound
		}
		return 0, fmt.Errorf("failed to decrement participants for tournament %d: %w", id, err)
	}
	return count, nil
}

func (r *postgresTournamentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Tournament, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		t := &models.Tournament{}
		if err := r.scanTournament(rows, t); err != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", err)
		}
		tournaments = append(tournaments, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tournament rows: %w", err)
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) scanTournament(scanner interface {
	Scan(dest ...interface{}) error
}, t *models.Tournament) error {
	return scanner.Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&t.ClubID,
		&t.OrganizerID,
		&t.MaxParticipants,
		&t.CurrentParticipants,
		&t.RegistrationStart,
		&t.RegistrationEnd,
		&t.StartTime,
		&t.Status,
		&t.ManagementStatus,
		&t.MinRank,
		&t.MaxRank,
		&t.MinAge,
		&t.CompletedAt,
		&t.CreatedAt,
	)
}
