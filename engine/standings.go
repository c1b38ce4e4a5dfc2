package engine

import (
	"errors"
	"sort"

	"github.com/longsangsabo/sabo-pool-engine/models"
)

// ErrBracketUnsettled is returned when standings are requested before the
// final match has a winner.
var ErrBracketUnsettled = errors.New("bracket final is not settled")

// ParticipantResult is one row of a finished tournament's standings.
type ParticipantResult struct {
	UserID        int
	Position      int
	MatchesPlayed int
	MatchesWon    int
	MatchesLost   int
}

type participantStats struct {
	userID    int
	played    int
	won       int
	lost      int
	lostRound int
}

// DeriveStandings turns a settled bracket into final positions. The winner
// of the deepest winners-branch match is the champion and its loser the
// runner-up; everyone else is bucketed by the round they were eliminated in
// (losing in round r of R places them at base position 2^(R-r)+1), with
// ties inside a bucket broken by match wins and then user ID.
func DeriveStandings(matches []*models.BracketMatch) ([]ParticipantResult, error) {
	stats := make(map[int]*participantStats)
	touch := func(userID int) *participantStats {
		s, ok := stats[userID]
		if !ok {
			s = &participantStats{userID: userID}
			stats[userID] = s
		}
		return s
	}

	var final *models.BracketMatch
	maxRound := 0

	for _, m := range matches {
		if !m.Status.Settled() || m.WinnerUserID == nil {
			continue
		}
		if m.Branch == models.BranchWinners && m.Round > maxRound {
			maxRound = m.Round
			final = m
		}

		winner := *m.WinnerUserID
		touch(winner).played++
		touch(winner).won++

		loser := m.LoserUserID()
		if loser == nil {
			continue
		}
		ls := touch(*loser)
		ls.played++
		ls.lost++
		if m.Round > ls.lostRound {
			ls.lostRound = m.Round
		}
	}

	if final == nil {
		return nil, ErrBracketUnsettled
	}

	champion := *final.WinnerUserID
	runnerUp := final.LoserUserID()

	results := make([]ParticipantResult, 0, len(stats))
	results = append(results, rowFor(stats[champion], 1))
	if runnerUp != nil {
		results = append(results, rowFor(stats[*runnerUp], 2))
	}

	// Remaining participants, grouped by the round they fell out in.
	var rest []*participantStats
	for userID, s := range stats {
		if userID == champion || (runnerUp != nil && userID == *runnerUp) {
			continue
		}
		rest = append(rest, s)
	}
	sort.Slice(rest, func(i, j int) bool {
		a, b := rest[i], rest[j]
		ba, bb := basePosition(maxRound, a.lostRound), basePosition(maxRound, b.lostRound)
		if ba != bb {
			return ba < bb
		}
		if a.won != b.won {
			return a.won > b.won
		}
		return a.userID < b.userID
	})

	pos := 0
	for _, s := range rest {
		base := basePosition(maxRound, s.lostRound)
		if base > pos {
			pos = base
		} else {
			pos++
		}
		results = append(results, rowFor(s, pos))
	}

	return results, nil
}

// basePosition is the best position reachable after losing in round r of a
// bracket that runs R rounds: round R-1 losers start at 3, R-2 at 5, and
// so on.
func basePosition(maxRound, lostRound int) int {
	if lostRound <= 0 || lostRound >= maxRound {
		return 3
	}
	pos := 1
	for i := 0; i < maxRound-lostRound; i++ {
		pos *= 2
	}
	return pos + 1
}

func rowFor(s *participantStats, position int) ParticipantResult {
	return ParticipantResult{
		UserID:        s.userID,
		Position:      position,
		MatchesPlayed: s.played,
		MatchesWon:    s.won,
		MatchesLost:   s.lost,
	}
}
