package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/longsangsabo/sabo-pool-engine/models"
	"github.com/longsangsabo/sabo-pool-engine/repositories"
	"github.com/longsangsabo/sabo-pool-engine/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *captureNotifier) Notify(ctx context.Context, notification Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
}

func (n *captureNotifier) messages() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived map[int][]byte
	err      error
}

func newFakeArchiver() *fakeArchiver {
	return &fakeArchiver{archived: make(map[int][]byte)}
}

func (a *fakeArchiver) ArchiveResults(ctx context.Context, tournamentID int, payload io.Reader) (*storage.UploadResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(payload); err != nil {
		return nil, err
	}
	a.archived[tournamentID] = buf.Bytes()
	key := fmt.Sprintf("tournaments/%d/results.json", tournamentID)
	return &storage.UploadResult{Key: key, Location: "https://cdn.example.com/" + key}, nil
}

type fakeTournamentRepo struct {
	mu          sync.Mutex
	tournaments map[int]*models.Tournament
	updateErr   error
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
	if f.updateErr != nil {
		return f.updateErr
	}
	t, ok := f.tournaments[id]
	if !ok {
		return repositories.ErrTournamentStatusSuperseded
	}
	if status == models.StatusCancelled {
		if t.Status.IsTerminal() {
			return repositories.ErrTournamentStatusSuperseded
		}
	} else if !t.Status.Precedes(status) {
		return repositories.ErrTournamentStatusSuperseded
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

func (f *fakeTournamentRepo) status(id int) models.TournamentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tournaments[id].Status
}

type fakeMatchRepo struct {
	mu   sync.Mutex
	rows map[int]*models.BracketMatch
}

func newFakeMatchRepo(matches ...*models.BracketMatch) *fakeMatchRepo {
	f := &fakeMatchRepo{rows: make(map[int]*models.BracketMatch)}
	for _, m := range matches {
		f.rows[m.ID] = m
	}
	return f
}

func (f *fakeMatchRepo) GetByID(ctx context.Context, id int) (*models.BracketMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.rows[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMatchRepo) GetFinalMatch(ctx context.Context, tournamentID int) (*models.BracketMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var final *models.BracketMatch
	for _, m := range f.rows {
		if m.TournamentID != tournamentID || m.Branch != models.BranchWinners {
			continue
		}
		if final == nil || m.Round > final.Round {
			final = m
		}
	}
	if final == nil {
		return nil, repositories.ErrMatchNotFound
	}
	cp := *final
	return &cp, nil
}

func (f *fakeMatchRepo) ListByTournament(ctx context.Context, tournamentID int, branch *models.BracketBranch, status *models.MatchStatus) ([]*models.BracketMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.BracketMatch
	for _, m := range f.rows {
		if m.TournamentID != tournamentID {
			continue
		}
		if branch != nil && m.Branch != *branch {
			continue
		}
		if status != nil && m.Status != *status {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeMatchRepo) UpdateResult(ctx context.Context, id int, winnerUserID *int, score *string, status models.MatchStatus) (*models.BracketMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.rows[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	if m.Status.Settled() {
		return nil, repositories.ErrMatchAlreadySettled
	}
	m.WinnerUserID = winnerUserID
	m.Score = score
	m.Status = status
	cp := *m
	return &cp, nil
}

type fakeResultRepo struct {
	mu        sync.Mutex
	rows      []*models.TournamentResult
	createErr error
}

func (f *fakeResultRepo) BatchCreate(ctx context.Context, results []*models.TournamentResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, r := range results {
		for _, existing := range f.rows {
			if existing.TournamentID == r.TournamentID && existing.UserID == r.UserID {
				return repositories.ErrResultConflict
			}
		}
	}
	f.rows = append(f.rows, results...)
	return nil
}

func (f *fakeResultRepo) ExistsByTournament(ctx context.Context, tournamentID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.TournamentID == tournamentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeResultRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.TournamentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.TournamentResult
	for _, r := range f.rows {
		if r.TournamentID == tournamentID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeUserRepo struct {
	users    map[int]*models.User
	profiles map[int]*models.PlayerRankProfile
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:    make(map[int]*models.User),
		profiles: make(map[int]*models.PlayerRankProfile),
	}
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) GetRankProfile(ctx context.Context, userID int) (*models.PlayerRankProfile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, repositories.ErrRankProfileNotFound
	}
	cp := *p
	return &cp, nil
}

type fakeRegistrationRepo struct {
	mu        sync.Mutex
	rows      map[string]*models.Registration
	seq       int
	createErr error
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
	stored := *reg
	f.rows[k] = &stored
	return nil
}

func (f *fakeRegistrationRepo) CancelActive(ctx context.Context, tournamentID, userID int) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[regKey(tournamentID, userID)]
	if !ok || !row.Active() {
		return nil, repositories.ErrRegistrationNotFound
	}
	row.Status = models.RegistrationCancelled
	cp := *row
	return &cp, nil
}

func (f *fakeRegistrationRepo) FindActive(ctx context.Context, tournamentID, userID int) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[regKey(tournamentID, userID)]
	if !ok || !row.Active() {
		return nil, repositories.ErrRegistrationNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeRegistrationRepo) ListActiveByTournament(ctx context.Context, tournamentID int) ([]*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
