package models

import "time"

// RankCode is an ordered skill-tier label, distinct from numeric ELO.
// The scale runs from K (weakest) up to E+ (strongest).
type RankCode string

const (
	RankK     RankCode = "K"
	RankKPlus RankCode = "K+"
	RankI     RankCode = "I"
	RankIPlus RankCode = "I+"
	RankH     RankCode = "H"
	RankHPlus RankCode = "H+"
	RankG     RankCode = "G"
	RankGPlus RankCode = "G+"
	RankF     RankCode = "F"
	RankFPlus RankCode = "F+"
	RankE     RankCode = "E"
	RankEPlus RankCode = "E+"
)

// rankScale is the canonical ordering used for eligibility comparisons.
var rankScale = []RankCode{
	RankK, RankKPlus,
	RankI, RankIPlus,
	RankH, RankHPlus,
	RankG, RankGPlus,
	RankF, RankFPlus,
	RankE, RankEPlus,
}

// RankIndex returns the position of code on the ordered scale (0 = weakest).
// The second return value is false for unknown codes.
func RankIndex(code RankCode) (int, bool) {
	for i, r := range rankScale {
		if r == code {
			return i, true
		}
	}
	return 0, false
}

// RankTier is the letter group of a rank code (K+ and K share tier K).
// Reward multipliers are keyed per tier rather than per code.
type RankTier string

const (
	TierK RankTier = "K"
	TierI RankTier = "I"
	TierH RankTier = "H"
	TierG RankTier = "G"
	TierF RankTier = "F"
	TierE RankTier = "E"
)

// TierOf returns the tier for a rank code. Unknown codes map to the
// weakest tier so reward scaling stays defined for unranked players.
func TierOf(code RankCode) RankTier {
	if len(code) == 0 {
		return TierK
	}
	switch code[0] {
	case 'I':
		return TierI
	case 'H':
		return TierH
	case 'G':
		return TierG
	case 'F':
		return TierF
	case 'E':
		return TierE
	default:
		return TierK
	}
}

// PlayerRankProfile holds the verified rank data the engine needs for
// eligibility gating and reward scaling.
type PlayerRankProfile struct {
	UserID      int        `json:"user_id" db:"user_id"`
	Rank        RankCode   `json:"rank" db:"rank"`
	Elo         int        `json:"elo" db:"elo"`
	SpaPoints   int        `json:"spa_points" db:"spa_points"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}
