package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/longsangsabo/sabo-pool-engine/models"
	"github.com/longsangsabo/sabo-pool-engine/repositories"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRegistrationRepo is an in-memory RegistrationRepository with
// injectable failures for exercising the transient paths.
type fakeRegistrationRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Registration
	seq  int

	createErr    error
	cancelErr    error
	findErr      error
	findFailures int // FindActive fails this many times before succeeding
	findCalls    int
	listErr      error
	listCalls    int
}

func newFakeRegistrationRepo() *fakeRegistrationRepo {
	return &fakeRegistrationRepo{rows: make(map[string]*models.Registration)}
}

func regKey(tournamentID, userID int) string {
	return fmt.Sprintf("%d/%d", tournamentID, userID)
}

func (f *fakeRegistrationRepo) Create(ctx context.Context, reg *models.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	k := regKey(reg.TournamentID, reg.UserID)
	if existing, ok := f.rows[k]; ok && existing.Active() {
		return repositories.ErrRegistrationConflict
	}
	f.seq++
	reg.ID = fmt.Sprintf("reg-%d", f.seq)
	reg.CreatedAt = time.Now()
	stored := *reg
	f.rows[k] = &stored
	return nil
}

func (f *fakeRegistrationRepo) CancelActive(ctx context.Context, tournamentID, userID int) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	row, ok := f.rows[regKey(tournamentID, userID)]
	if !ok || !row.Active() {
		return nil, repositories.ErrRegistrationNotFound
	}
	row.Status = models.RegistrationCancelled
	cancelled := *row
	return &cancelled, nil
}

func (f *fakeRegistrationRepo) FindActive(ctx context.Context, tournamentID, userID int) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	if f.findErr != nil && f.findCalls <= f.findFailures {
		return nil, f.findErr
	}
	row, ok := f.rows[regKey(tournamentID, userID)]
	if !ok || !row.Active() {
		return nil, repositories.ErrRegistrationNotFound
	}
	found := *row
	return &found, nil
}

func (f *fakeRegistrationRepo) ListActiveByTournament(ctx context.Context, tournamentID int) ([]*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.Registration
	for _, row := range f.rows {
		if row.TournamentID == tournamentID && row.Active() {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRegistrationRepo) ListActiveByUser(ctx context.Context, userID int) ([]*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Registration
	for _, row := range f.rows {
		if row.UserID == userID && row.Active() {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRegistrationRepo) CountActiveByTournament(ctx context.Context, tournamentID int) (int, error) {
	regs, err := f.ListActiveByTournament(ctx, tournamentID)
	if err != nil {
		return 0, err
	}
	return len(regs), nil
}

func (f *fakeRegistrationRepo) listCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// remove drops a registration as if another node cancelled it.
func (f *fakeRegistrationRepo) remove(tournamentID, userID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, regKey(tournamentID, userID))
}

// put seeds an active registration outside the Create path.
func (f *fakeRegistrationRepo) put(tournamentID, userID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.rows[regKey(tournamentID, userID)] = &models.Registration{
		ID:           fmt.Sprintf("reg-%d", f.seq),
		TournamentID: tournamentID,
		UserID:       userID,
		Status:       models.RegistrationConfirmed,
	}
}

// fakeTournamentRepo is an in-memory TournamentRepository.
type fakeTournamentRepo struct {
	mu          sync.Mutex
	tournaments map[int]*models.Tournament
}

func newFakeTournamentRepo(ts ...*models.Tournament) *fakeTournamentRepo {
	f := &fakeTournamentRepo{tournaments: make(map[int]*models.Tournament)}
	for _, t := range ts {
		f.tournaments[t.ID] = t
	}
	return f
}

func (f *fakeTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTournamentRepo) List(ctx context.Context, statusFilter *models.TournamentStatus, limit, offset int) ([]*models.Tournament, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Tournament
	for _, t := range f.tournaments {
		if statusFilter != nil && t.Status != *statusFilter {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeTournamentRepo) ListByStatus(ctx context.Context, statuses ...models.TournamentStatus) ([]*models.Tournament, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Tournament
	for _, t := range f.tournaments {
		for _, st := range statuses {
			if t.Status == st {
				cp := *t
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeTournamentRepo) UpdateStatus(ctx context.Context, id int, status models.TournamentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	return nil
}

func (f *fakeTournamentRepo) MarkCompleted(ctx context.Context, exec repositories.SQLExecutor, id int, completedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tournaments[id]
	if !ok {
		return false, repositories.ErrTournamentNotFound
	}
	if t.Status.IsTerminal() {
		return false, nil
	}
	t.Status = models.StatusCompleted
	t.CompletedAt = &completedAt
	return true, nil
}

func (f *fakeTournamentRepo) IncrementParticipants(ctx context.Context, id int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tournaments[id]
	if !ok {
		return 0, repositories.ErrTournamentNotFound
	}
	if t.CurrentParticipants >= t.MaxParticipants {
		return 0, repositories.ErrTournamentCapacityReached
	}
	t.CurrentParticipants++
	return t.CurrentParticipants, nil
}

func (f *fakeTournamentRepo) DecrementParticipants(ctx context.Context, id int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tournaments[id]
	if !ok {
		return 0, repositories.ErrTournamentNotFound
	}
	if t.CurrentParticipants > 0 {
		t.CurrentParticipants--
	}
	return t.CurrentParticipants, nil
}
