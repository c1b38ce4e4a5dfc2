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
	ErrResultNotFound = errors.New("tournament result not found")
	// ErrResultConflict is the typed uniqueness-violation failure: results
	// for this tournament were already recorded by a concurrent finalization.
	ErrResultConflict = errors.New("tournament results already recorded")
)

type ResultRepository interface {
	// BatchCreate inserts all rows in a single transaction. If any row hits
	// the (tournament_id, user_id) uniqueness constraint the whole batch is
	// rolled back and ErrResultConflict is returned.
	BatchCreate(ctx context.Context, results []*models.TournamentResult) error
	ExistsByTournament(ctx context.Context, tournamentID int) (bool, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.TournamentResult, error)
}

type postgresResultRepository struct {
	db *sql.DB
}

func NewPostgresResultRepository(db *sql.DB) ResultRepository {
	return &postgresResultRepository{db: db}
}

func (r *postgresResultRepository) BatchCreate(ctx context.Context, results []*models.TournamentResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin result batch transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO tournament_results
			(id, batch_id, tournament_id, user_id, final_position, position,
			 matches_played, matches_won, matches_lost, elo_points, spa_points)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`

	for _, res := range results {
		if res.ID == "" {
			res.ID = uuid.NewString()
		}
		err := tx.QueryRowContext(ctx, query,
			res.ID,
			res.BatchID,
			res.TournamentID,
			res.UserID,
			res.FinalPosition,
			res.Position,
			res.MatchesPlayed,
			res.MatchesWon,
			res.MatchesLost,
			res.EloPoints,
			res.SpaPoints,
		).Scan(&res.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrResultConflict
			}
			return fmt.Errorf("failed to insert result for user %d: %w", res.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result batch: %w", err)
	}
	return nil
}

func (r *postgresResultRepository) ExistsByTournament(ctx context.Context, tournamentID int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM tournament_results WHERE tournament_id = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, tournamentID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check results for tournament %d: %w", tournamentID, err)
	}
	return exists, nil
}

func (r *postgresResultRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.TournamentResult, error) {
	query := `
		SELECT id, batch_id, tournament_id, user_id, final_position, position,
		       matches_played, matches_won, matches_lost, elo_points, spa_points, created_at
		FROM tournament_results
		WHERE tournament_id = $1
		ORDER BY final_position ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	results := make([]*models.TournamentResult, 0)
	for rows.Next() {
		res := &models.TournamentResult{}
		err := rows.Scan(
			&res.ID,
			&res.BatchID,
			&res.TournamentID,
			&res.UserID,
			&res.FinalPosition,
			&res.Position,
			&res.MatchesPlayed,
			&res.MatchesWon,
			&res.MatchesLost,
			&res.EloPoints,
			&res.SpaPoints,
			&res.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating result rows: %w", err)
	}
	return results, nil
}
