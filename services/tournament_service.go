package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/longsangsabo/sabo-pool-engine/engine"
	"github.com/longsangsabo/sabo-pool-engine/models"
	"github.com/longsangsabo/sabo-pool-engine/repositories"
	"github.com/longsangsabo/sabo-pool-engine/storage"
)

// TournamentService drives the tournament lifecycle: window-based status
// transitions, match result recording, and the exactly-once finalization
// pipeline (standings, rewards, completion, archive).
type TournamentService struct {
	tournaments repositories.TournamentRepository
	matches     repositories.MatchRepository
	results     repositories.ResultRepository
	users       repositories.UserRepository
	exec        repositories.SQLExecutor
	rewards     *engine.RewardCalculator
	bus         engine.Bus
	archiver    storage.ResultArchiver
	notifier    Notifier
	clock       clockwork.Clock
	logger      *slog.Logger
}

func NewTournamentService(
	tournaments repositories.TournamentRepository,
	matches repositories.MatchRepository,
	results repositories.ResultRepository,
	users repositories.UserRepository,
	exec repositories.SQLExecutor,
	rewards *engine.RewardCalculator,
	bus engine.Bus,
	archiver storage.ResultArchiver,
	notifier Notifier,
	clock clockwork.Clock,
	logger *slog.Logger,
) *TournamentService {
	return &TournamentService{
		tournaments: tournaments,
		matches:     matches,
		results:     results,
		users:       users,
		exec:        exec,
		rewards:     rewards,
		bus:         bus,
		archiver:    archiver,
		notifier:    notifier,
		clock:       clock,
		logger:      logger,
	}
}

func (s *TournamentService) GetTournament(ctx context.Context, id int) (*models.Tournament, error) {
	tournament, err := s.tournaments.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrTournamentNotFound) {
		return nil, ErrTournamentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tournament %d: %w", id, err)
	}
	return tournament, nil
}

func (s *TournamentService) ListTournaments(ctx context.Context, status *models.TournamentStatus, limit, offset int) ([]*models.Tournament, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.tournaments.List(ctx, status, limit, offset)
}

func (s *TournamentService) ListResults(ctx context.Context, tournamentID int) ([]*models.TournamentResult, error) {
	return s.results.ListByTournament(ctx, tournamentID)
}

func (s *TournamentService) ListMatches(ctx context.Context, tournamentID int, branch *models.BracketBranch, status *models.MatchStatus) ([]*models.BracketMatch, error) {
	return s.matches.ListByTournament(ctx, tournamentID, branch, status)
}

// CalculateReward previews the reward for a finishing position at a rank.
// Pure passthrough to the calculator; nothing is persisted.
func (s *TournamentService) CalculateReward(position int, rank models.RankCode) models.RewardEntry {
	return s.rewards.Calculate(engine.ClassifyFinalRank(position), rank)
}

// UpdateMatchResult records a match outcome and publishes the change.
// Walkovers settle the match the same way as played wins. Already-settled
// matches are rejected.
func (s *TournamentService) UpdateMatchResult(ctx context.Context, matchID int, winnerUserID int, score *string, walkover bool) (*models.BracketMatch, error) {
	match, err := s.matches.GetByID(ctx, matchID)
	if errors.Is(err, repositories.ErrMatchNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get match %d: %w", matchID, err)
	}

	if !matchHasPlayer(match, winnerUserID) {
		return nil, fmt.Errorf("%w: user %d is not a player of match %d", ErrInvalidMatchResult, winnerUserID, matchID)
	}

	status := models.MatchCompleted
	if walkover {
		status = models.MatchWalkover
	}

	old := *match
	updated, err := s.matches.UpdateResult(ctx, matchID, &winnerUserID, score, status)
	switch {
	case errors.Is(err, repositories.ErrMatchAlreadySettled):
		return nil, ErrMatchAlreadySettled
	case errors.Is(err, repositories.ErrMatchNotFound):
		return nil, ErrMatchNotFound
	case err != nil:
		return nil, fmt.Errorf("update match %d result: %w", matchID, err)
	}

	s.bus.PublishMatch(engine.MatchEvent{Type: engine.EventUpdate, Old: &old, New: updated})
	return updated, nil
}

// FinalizeFromBracket finalizes the tournament if its bracket is complete.
// It is the CompletionDetector's Finalizer and safe to call any number of
// times: an unfinished bracket or an already-completed tournament is a
// no-op.
func (s *TournamentService) FinalizeFromBracket(ctx context.Context, tournamentID int) error {
	final, err := s.matches.GetFinalMatch(ctx, tournamentID)
	if errors.Is(err, repositories.ErrMatchNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load final match of tournament %d: %w", tournamentID, err)
	}
	if !final.Status.Settled() || final.WinnerUserID == nil {
		return nil
	}
	return s.FinalizeTournament(ctx, tournamentID)
}

// FinalizeTournament runs the completion pipeline: derive standings from
// the bracket, calculate rewards, persist the result batch and mark the
// tournament completed. The conditional completed-flag update is the
// exactly-once gate; the losing caller of a concurrent pair sees a no-op.
func (s *TournamentService) FinalizeTournament(ctx context.Context, tournamentID int) error {
	tournament, err := s.GetTournament(ctx, tournamentID)
	if err != nil {
		return err
	}

	alreadyStored, err := s.results.ExistsByTournament(ctx, tournamentID)
	if err != nil {
		return fmt.Errorf("check results of tournament %d: %w", tournamentID, err)
	}

	if !alreadyStored {
		rows, err := s.buildResultRows(ctx, tournamentID)
		if err != nil {
			return err
		}
		err = s.results.BatchCreate(ctx, rows)
		switch {
		case errors.Is(err, repositories.ErrResultConflict):
			// Another node finalized between our existence check and the
			// insert. Its batch stands; fall through to the status repair.
			s.logger.Info("result batch already stored by another node",
				slog.Int("tournament_id", tournamentID))
		case err != nil:
			return fmt.Errorf("store results of tournament %d: %w", tournamentID, err)
		default:
			s.archiveResults(ctx, tournamentID, rows)
		}
	}

	completedAt := s.clock.Now().UTC()
	performed, err := s.tournaments.MarkCompleted(ctx, s.exec, tournamentID, completedAt)
	if err != nil {
		return fmt.Errorf("mark tournament %d completed: %w", tournamentID, err)
	}
	if !performed {
		return nil
	}

	s.logger.Info("tournament finalized",
		slog.Int("tournament_id", tournamentID),
		slog.Time("completed_at", completedAt))
	s.notifier.Notify(ctx, NewNotification(tournament.OrganizerID, SeveritySuccess,
		fmt.Sprintf("Tournament %q has been completed and results are published.", tournament.Name)))
	return nil
}

// AdvanceStatusesByWindow moves every non-terminal tournament to the status
// its time windows dictate. Completion never happens here; only the
// finalization pipeline completes a tournament.
func (s *TournamentService) AdvanceStatusesByWindow(ctx context.Context) error {
	candidates, err := s.tournaments.ListByStatus(ctx,
		models.StatusUpcoming, models.StatusRegistrationOpen, models.StatusRegistrationClosed)
	if err != nil {
		return fmt.Errorf("list tournaments for status advance: %w", err)
	}

	now := s.clock.Now()
	var firstErr error
	for _, t := range candidates {
		want := statusForWindow(t, now)
		// Transitions are monotonic: a window edit can never move the
		// lifecycle backwards, only cancellation leaves the forward path.
		if !t.Status.Precedes(want) {
			continue
		}
		err := s.tournaments.UpdateStatus(ctx, t.ID, want)
		if errors.Is(err, repositories.ErrTournamentStatusSuperseded) {
			// Another node advanced it first.
			continue
		}
		if err != nil {
			s.logger.Error("status advance failed",
				slog.Int("tournament_id", t.ID),
				slog.String("from", string(t.Status)),
				slog.String("to", string(want)),
				slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.logger.Info("tournament status advanced",
			slog.Int("tournament_id", t.ID),
			slog.String("from", string(t.Status)),
			slog.String("to", string(want)))
	}
	return firstErr
}

func (s *TournamentService) buildResultRows(ctx context.Context, tournamentID int) ([]*models.TournamentResult, error) {
	matches, err := s.matches.ListByTournament(ctx, tournamentID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list matches of tournament %d: %w", tournamentID, err)
	}

	standings, err := engine.DeriveStandings(matches)
	if err != nil {
		return nil, fmt.Errorf("derive standings of tournament %d: %w", tournamentID, err)
	}
	if len(standings) == 0 {
		return nil, ErrResultsRequired
	}

	batchID := uuid.NewString()
	now := s.clock.Now().UTC()
	rows := make([]*models.TournamentResult, 0, len(standings))
	for _, standing := range standings {
		rank := models.RankCode("")
		if profile, err := s.users.GetRankProfile(ctx, standing.UserID); err == nil {
			rank = profile.Rank
		} else if !errors.Is(err, repositories.ErrRankProfileNotFound) {
			return nil, fmt.Errorf("load rank profile %d: %w", standing.UserID, err)
		}

		bucket := engine.ClassifyFinalRank(standing.Position)
		reward := s.rewards.Calculate(bucket, rank)
		rows = append(rows, &models.TournamentResult{
			ID:            uuid.NewString(),
			BatchID:       batchID,
			TournamentID:  tournamentID,
			UserID:        standing.UserID,
			FinalPosition: standing.Position,
			Position:      bucket,
			MatchesPlayed: standing.MatchesPlayed,
			MatchesWon:    standing.MatchesWon,
			MatchesLost:   standing.MatchesLost,
			EloPoints:     reward.EloPoints,
			SpaPoints:     reward.SpaPoints,
			CreatedAt:     now,
		})
	}
	return rows, nil
}

// archiveResults writes the result sheet to object storage. Archive
// failures never fail finalization.
func (s *TournamentService) archiveResults(ctx context.Context, tournamentID int, rows []*models.TournamentResult) {
	if s.archiver == nil {
		return
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		s.logger.Error("result archive encoding failed",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}
	upload, err := s.archiver.ArchiveResults(ctx, tournamentID, bytes.NewReader(payload))
	if err != nil {
		s.logger.Warn("result archive upload failed",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}
	s.logger.Info("results archived",
		slog.Int("tournament_id", tournamentID), slog.String("key", upload.Key))
}

func matchHasPlayer(m *models.BracketMatch, userID int) bool {
	return (m.P1UserID != nil && *m.P1UserID == userID) ||
		(m.P2UserID != nil && *m.P2UserID == userID)
}

// statusForWindow maps the clock position inside the tournament's time
// windows to the lifecycle status it should hold.
func statusForWindow(t *models.Tournament, now time.Time) models.TournamentStatus {
	switch {
	case now.Before(t.RegistrationStart):
		return models.StatusUpcoming
	case !now.After(t.RegistrationEnd):
		return models.StatusRegistrationOpen
	case now.Before(t.StartTime):
		return models.StatusRegistrationClosed
	default:
		return models.StatusOngoing
	}
}
