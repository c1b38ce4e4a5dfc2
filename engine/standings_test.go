package engine

import (
	"errors"
	"testing"

	"github.com/longsangsabo/sabo-pool-engine/models"
)

func settledMatch(round, p1, p2, winner int) *models.BracketMatch {
	return &models.BracketMatch{
		TournamentID: 1,
		Round:        round,
		Branch:       models.BranchWinners,
		P1UserID:     &p1,
		P2UserID:     &p2,
		WinnerUserID: &winner,
		Status:       models.MatchCompleted,
	}
}

// Eight players, single elimination. Quarterfinals are round 1, the final
// is round 3.
func eightPlayerBracket() []*models.BracketMatch {
	return []*models.BracketMatch{
		settledMatch(1, 1, 8, 1),
		settledMatch(1, 4, 5, 4),
		settledMatch(1, 2, 7, 2),
		settledMatch(1, 3, 6, 3),
		settledMatch(2, 1, 4, 1),
		settledMatch(2, 2, 3, 2),
		settledMatch(3, 1, 2, 1),
	}
}

func TestDeriveStandings(t *testing.T) {
	results, err := DeriveStandings(eightPlayerBracket())
	if err != nil {
		t.Fatalf("DeriveStandings: %v", err)
	}
	if len(results) != 8 {
		t.Fatalf("got %d results, want 8", len(results))
	}

	wantPositions := map[int]int{
		1: 1, // champion
		2: 2, // lost the final
		3: 3, // semifinal losers, tie broken by user ID
		4: 4,
		5: 5, // quarterfinal losers
		6: 6,
		7: 7,
		8: 8,
	}
	byUser := make(map[int]ParticipantResult, len(results))
	for _, r := range results {
		byUser[r.UserID] = r
	}
	for userID, want := range wantPositions {
		if got := byUser[userID].Position; got != want {
			t.Errorf("user %d position = %d, want %d", userID, got, want)
		}
	}

	champ := byUser[1]
	if champ.MatchesPlayed != 3 || champ.MatchesWon != 3 || champ.MatchesLost != 0 {
		t.Errorf("champion stats = %+v, want 3 played, 3 won, 0 lost", champ)
	}
	runnerUp := byUser[2]
	if runnerUp.MatchesPlayed != 3 || runnerUp.MatchesWon != 2 || runnerUp.MatchesLost != 1 {
		t.Errorf("runner-up stats = %+v, want 3 played, 2 won, 1 lost", runnerUp)
	}
}

func TestDeriveStandingsTieBreakByWins(t *testing.T) {
	// Same bracket, but user 4 also has a settled losers-branch win, so
	// they outrank user 3 inside the semifinal-loser bucket.
	matches := eightPlayerBracket()
	extra := settledMatch(1, 4, 6, 4)
	extra.Branch = models.BranchLosers
	matches = append(matches, extra)

	results, err := DeriveStandings(matches)
	if err != nil {
		t.Fatalf("DeriveStandings: %v", err)
	}
	byUser := make(map[int]ParticipantResult, len(results))
	for _, r := range results {
		byUser[r.UserID] = r
	}
	if byUser[4].Position != 3 || byUser[3].Position != 4 {
		t.Fatalf("positions = user4:%d user3:%d, want user4:3 user3:4",
			byUser[4].Position, byUser[3].Position)
	}
}

func TestDeriveStandingsCountsWalkovers(t *testing.T) {
	matches := eightPlayerBracket()
	matches[0].Status = models.MatchWalkover

	results, err := DeriveStandings(matches)
	if err != nil {
		t.Fatalf("DeriveStandings: %v", err)
	}
	if len(results) != 8 {
		t.Fatalf("got %d results, want 8", len(results))
	}
}

func TestDeriveStandingsRequiresSettledFinal(t *testing.T) {
	matches := eightPlayerBracket()
	matches[6].Status = models.MatchInProgress
	matches[6].WinnerUserID = nil

	if _, err := DeriveStandings(matches); !errors.Is(err, ErrBracketUnsettled) {
		t.Fatalf("err = %v, want ErrBracketUnsettled", err)
	}
}

func TestDeriveStandingsIgnoresUnsettledMatches(t *testing.T) {
	matches := eightPlayerBracket()
	pending := &models.BracketMatch{
		TournamentID: 1,
		Round:        1,
		Branch:       models.BranchLosers,
		Status:       models.MatchPending,
	}
	results, err := DeriveStandings(append(matches, pending))
	if err != nil {
		t.Fatalf("DeriveStandings: %v", err)
	}
	if len(results) != 8 {
		t.Fatalf("got %d results, want 8", len(results))
	}
}
