package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/longsangsabo/sabo-pool-engine/models"
)

// Finalizer runs the actual finalization pipeline once the detector decides
// a tournament is over. Implementations must be idempotent; the detector
// only collapses concurrent signals on this node.
type Finalizer interface {
	FinalizeFromBracket(ctx context.Context, tournamentID int) error
}

// CompletionDetector watches bracket-match events and triggers finalization
// when the final match settles. Duplicate and concurrent signals for the
// same tournament collapse into one finalization attempt.
type CompletionDetector struct {
	finalizer Finalizer
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[int]bool
}

func NewCompletionDetector(finalizer Finalizer, logger *slog.Logger) *CompletionDetector {
	return &CompletionDetector{
		finalizer: finalizer,
		logger:    logger,
		inFlight:  make(map[int]bool),
	}
}

// HandleMatchEvent is the sync channel's match-event callback. Only settled
// matches on the winners branch can end a tournament.
func (d *CompletionDetector) HandleMatchEvent(ctx context.Context, ev MatchEvent) {
	m := ev.New
	if m == nil || !m.Status.Settled() || m.Branch != models.BranchWinners {
		return
	}
	d.Check(ctx, m.TournamentID)
}

// Check runs finalization for a tournament unless one is already running.
// The finalizer decides, against persistence, whether the bracket really is
// complete; a losing concurrent node sees that as a no-op.
func (d *CompletionDetector) Check(ctx context.Context, tournamentID int) {
	d.mu.Lock()
	if d.inFlight[tournamentID] {
		d.mu.Unlock()
		return
	}
	d.inFlight[tournamentID] = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.inFlight, tournamentID)
		d.mu.Unlock()
	}()

	if err := d.finalizer.FinalizeFromBracket(ctx, tournamentID); err != nil {
		d.logger.Error("tournament finalization failed",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
	}
}
