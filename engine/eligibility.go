package engine

import (
	"fmt"
	"time"

	"github.com/longsangsabo/sabo-pool-engine/models"
)

// Registration denial reasons. The first violated reason is shown to the
// user; the full list is kept for diagnostics.
const (
	ReasonCapacity       = "tournament is at full capacity"
	ReasonNotOpenYet     = "registration has not opened yet"
	ReasonClosed         = "registration is closed"
	ReasonLocked         = "registration is locked by the organizer"
	ReasonAlreadyStarted = "tournament has already started"
	ReasonAlreadyEnded   = "tournament has already finished"
	ReasonRankUnverified = "player rank is not verified"
	ReasonRankTooLow     = "player rank is below the tournament requirement"
	ReasonRankTooHigh    = "player rank is above the tournament limit"
	ReasonAgeUnverified  = "player date of birth is not on file"
)

// EligibilityResult is the outcome of an eligibility evaluation. Allowed is
// true iff zero reasons were produced.
type EligibilityResult struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons,omitempty"`
}

// EvaluateEligibility decides whether a player may register for a
// tournament at the given instant. Pure and deterministic: every check is
// evaluated (no short-circuiting) so all violated reasons are reported.
func EvaluateEligibility(t *models.Tournament, player *models.PlayerRankProfile, now time.Time) EligibilityResult {
	var reasons []string

	if t.CurrentParticipants >= t.MaxParticipants {
		reasons = append(reasons, ReasonCapacity)
	}

	if now.Before(t.RegistrationStart) {
		reasons = append(reasons, ReasonNotOpenYet)
	}
	if now.After(t.RegistrationEnd) {
		reasons = append(reasons, ReasonClosed)
	}

	switch t.ManagementStatus {
	case models.ManagementOpen:
	case models.ManagementLocked:
		reasons = append(reasons, ReasonLocked)
	case models.ManagementOngoing:
		reasons = append(reasons, ReasonAlreadyStarted)
	case models.ManagementCompleted:
		reasons = append(reasons, ReasonAlreadyEnded)
	default:
		reasons = append(reasons, fmt.Sprintf("registration unavailable (management status %q)", t.ManagementStatus))
	}

	reasons = append(reasons, rankReasons(t, player)...)

	if t.MinAge != nil {
		if player == nil || player.DateOfBirth == nil {
			reasons = append(reasons, ReasonAgeUnverified)
		} else if age := yearsBetween(*player.DateOfBirth, now); age < *t.MinAge {
			reasons = append(reasons, fmt.Sprintf("player must be at least %d years old", *t.MinAge))
		}
	}

	return EligibilityResult{Allowed: len(reasons) == 0, Reasons: reasons}
}

// rankReasons checks the optional rank-requirement bounds. Unknown or
// missing rank codes fail closed when a bound is present.
func rankReasons(t *models.Tournament, player *models.PlayerRankProfile) []string {
	if t.MinRank == nil && t.MaxRank == nil {
		return nil
	}

	var playerIdx int
	var known bool
	if player != nil {
		playerIdx, known = models.RankIndex(player.Rank)
	}
	if !known {
		return []string{ReasonRankUnverified}
	}

	var reasons []string
	if t.MinRank != nil {
		if minIdx, ok := models.RankIndex(*t.MinRank); ok && playerIdx < minIdx {
			reasons = append(reasons, ReasonRankTooLow)
		}
	}
	if t.MaxRank != nil {
		if maxIdx, ok := models.RankIndex(*t.MaxRank); ok && playerIdx > maxIdx {
			reasons = append(reasons, ReasonRankTooHigh)
		}
	}
	return reasons
}

func yearsBetween(from, to time.Time) int {
	years := to.Year() - from.Year()
	anniversary := from.AddDate(years, 0, 0)
	if anniversary.After(to) {
		years--
	}
	return years
}
