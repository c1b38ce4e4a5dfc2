package models

import "time"

// FinishingPosition buckets a numeric final placement for reward lookup.
type FinishingPosition string

const (
	PositionChampion      FinishingPosition = "CHAMPION"
	PositionRunnerUp      FinishingPosition = "RUNNER_UP"
	PositionThirdPlace    FinishingPosition = "THIRD_PLACE"
	PositionFourthPlace   FinishingPosition = "FOURTH_PLACE"
	PositionTop8          FinishingPosition = "TOP_8"
	PositionTop16         FinishingPosition = "TOP_16"
	PositionParticipation FinishingPosition = "PARTICIPATION"
)

// RewardEntry is the pair of point currencies awarded for a finishing
// position: ELO feeds the skill rating, SPA feeds progression/leaderboards.
type RewardEntry struct {
	EloPoints int `json:"elo_points"`
	SpaPoints int `json:"spa_points"`
}

// TournamentResult is one participant's persisted outcome of a finalized
// tournament, rewards included. The (tournament_id, user_id) pair is unique
// so re-finalization cannot double-award points.
type TournamentResult struct {
	ID            string            `json:"id" db:"id"`
	BatchID       string            `json:"batch_id" db:"batch_id"`
	TournamentID  int               `json:"tournament_id" db:"tournament_id"`
	UserID        int               `json:"user_id" db:"user_id"`
	FinalPosition int               `json:"final_position" db:"final_position"`
	Position      FinishingPosition `json:"position" db:"position"`
	MatchesPlayed int               `json:"matches_played" db:"matches_played"`
	MatchesWon    int               `json:"matches_won" db:"matches_won"`
	MatchesLost   int               `json:"matches_lost" db:"matches_lost"`
	EloPoints     int               `json:"elo_points" db:"elo_points"`
	SpaPoints     int               `json:"spa_points" db:"spa_points"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
}
