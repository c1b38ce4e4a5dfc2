package models

import "time"

// MatchStatus mirrors the bracket match ENUM in the database.
// A match is immutable once completed.
type MatchStatus string

const (
	MatchPending    MatchStatus = "pending"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
	MatchWalkover   MatchStatus = "walkover"
)

// Settled reports whether the match produced a result (completed or
// conceded by walkover).
func (s MatchStatus) Settled() bool {
	return s == MatchCompleted || s == MatchWalkover
}

// BracketBranch identifies the sub-bracket a match belongs to. The
// winners branch is the primary bracket; its highest-round match is the
// tournament final.
type BracketBranch string

const (
	BranchWinners BracketBranch = "winners"
	BranchLosers  BracketBranch = "losers"
)

// BracketMatch is one match in a tournament bracket. Rows are created when
// the bracket is generated (outside this engine) and mutated as results
// come in.
type BracketMatch struct {
	ID           int           `json:"id" db:"id"`
	TournamentID int           `json:"tournament_id" db:"tournament_id"`
	Round        int           `json:"round" db:"round"`
	Branch       BracketBranch `json:"branch" db:"branch"`
	P1UserID     *int          `json:"p1_user_id,omitempty" db:"p1_user_id"`
	P2UserID     *int          `json:"p2_user_id,omitempty" db:"p2_user_id"`
	WinnerUserID *int          `json:"winner_user_id,omitempty" db:"winner_user_id"`
	Score        *string       `json:"score,omitempty" db:"score"`
	Status       MatchStatus   `json:"status" db:"status"`
	ScheduledAt  *time.Time    `json:"scheduled_at,omitempty" db:"scheduled_at"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// LoserUserID returns the non-winning slot of a settled match, if both are
// known.
func (m *BracketMatch) LoserUserID() *int {
	if m == nil || m.WinnerUserID == nil || m.P1UserID == nil || m.P2UserID == nil {
		return nil
	}
	if *m.WinnerUserID == *m.P1UserID {
		return m.P2UserID
	}
	return m.P1UserID
}
