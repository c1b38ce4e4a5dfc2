package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/longsangsabo/sabo-pool-engine/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	// ErrRankProfileNotFound means the user exists but has never been
	// rank-verified; callers decide whether that blocks them.
	ErrRankProfileNotFound = errors.New("player rank profile not found")
)

type UserRepository interface {
	GetByID(ctx context.Context, id int) (*models.User, error)
	GetRankProfile(ctx context.Context, userID int) (*models.PlayerRankProfile, error)
}

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

func (r *postgresUserRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT id, first_name, last_name, nickname, email, role, created_at FROM users WHERE id = $1`

	u := &models.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Nickname,
		&u.Email,
		&u.Role,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return u, nil
}

func (r *postgresUserRepository) GetRankProfile(ctx context.Context, userID int) (*models.PlayerRankProfile, error) {
	query := `
		SELECT user_id, rank, elo, spa_points, date_of_birth, updated_at
		FROM player_rank_profiles
		WHERE user_id = $1`

	p := &models.PlayerRankProfile{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID,
		&p.Rank,
		&p.Elo,
		&p.SpaPoints,
		&p.DateOfBirth,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRankProfileNotFound
		}
		return nil, fmt.Errorf("failed to get rank profile for user %d: %w", userID, err)
	}
	return p, nil
}
