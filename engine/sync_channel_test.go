package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/longsangsabo/sabo-pool-engine/models"
)

type channelEnv struct {
	store   *RegistrationStore
	regs    *fakeRegistrationRepo
	tourns  *fakeTournamentRepo
	bus     *MemoryBus
	clock   *clockwork.FakeClock
	channel *SyncChannel
	machine *StateMachine
}

func newChannelEnv(t *testing.T, cfg SyncChannelConfig, tournaments ...*models.Tournament) *channelEnv {
	t.Helper()
	env := &channelEnv{
		store:  NewRegistrationStore(),
		regs:   newFakeRegistrationRepo(),
		tourns: newFakeTournamentRepo(tournaments...),
		bus:    NewMemoryBus(),
		clock:  clockwork.NewFakeClockAt(time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)),
	}
	env.channel = NewSyncChannel(env.store, env.regs, env.bus, env.clock, testLogger(), cfg)
	env.machine = NewStateMachine(env.store, env.regs, env.tourns, env.bus, env.clock, testLogger())
	return env
}

func (env *channelEnv) start(t *testing.T) {
	t.Helper()
	if err := env.channel.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(env.channel.Close)
}

// waitForState polls because re-syncs run on the channel's own goroutine.
func waitForState(t *testing.T, store *RegistrationStore, key Key, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.State(key) == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", store.State(key), want)
}

func TestSyncChannelReconcilesRegistrationEvents(t *testing.T) {
	env := newChannelEnv(t, SyncChannelConfig{})
	env.start(t)
	key := Key{TournamentID: 1, UserID: 7}
	row := &models.Registration{TournamentID: 1, UserID: 7, Status: models.RegistrationConfirmed}

	env.bus.PublishRegistration(RegistrationEvent{Type: EventInsert, New: row})
	if st := env.store.State(key); st != StateRegistered {
		t.Fatalf("after INSERT state = %s, want %s", st, StateRegistered)
	}

	cancelled := *row
	cancelled.Status = models.RegistrationCancelled
	env.bus.PublishRegistration(RegistrationEvent{Type: EventUpdate, Old: row, New: &cancelled})
	if st := env.store.State(key); st != StateNotRegistered {
		t.Fatalf("after cancelling UPDATE state = %s, want %s", st, StateNotRegistered)
	}

	env.bus.PublishRegistration(RegistrationEvent{Type: EventUpdate, Old: row, New: row})
	if st := env.store.State(key); st != StateRegistered {
		t.Fatalf("after UPDATE state = %s, want %s", st, StateRegistered)
	}

	env.bus.PublishRegistration(RegistrationEvent{Type: EventDelete, Old: row})
	if st := env.store.State(key); st != StateNotRegistered {
		t.Fatalf("after DELETE state = %s, want %s", st, StateNotRegistered)
	}

	if env.store.LastSync().IsZero() {
		t.Fatal("events did not mark the store synced")
	}
}

func TestSyncChannelScopedToOneUser(t *testing.T) {
	env := newChannelEnv(t, SyncChannelConfig{UserID: 7})
	env.start(t)

	env.bus.PublishRegistration(RegistrationEvent{Type: EventInsert, New: &models.Registration{
		TournamentID: 1, UserID: 99, Status: models.RegistrationConfirmed,
	}})
	if st := env.store.State(Key{TournamentID: 1, UserID: 99}); st != StateNotRegistered {
		t.Fatalf("event for another user was applied: %s", st)
	}

	env.bus.PublishRegistration(RegistrationEvent{Type: EventInsert, New: &models.Registration{
		TournamentID: 1, UserID: 7, Status: models.RegistrationConfirmed,
	}})
	if st := env.store.State(Key{TournamentID: 1, UserID: 7}); st != StateRegistered {
		t.Fatalf("event for own user not applied: %s", st)
	}
}

func TestCheckStatusReadsGroundTruth(t *testing.T) {
	env := newChannelEnv(t, SyncChannelConfig{})
	env.regs.put(1, 7)

	st, err := env.channel.CheckStatus(context.Background(), 1, 7)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if st != StateRegistered {
		t.Fatalf("state = %s, want %s", st, StateRegistered)
	}
	if got := env.store.State(Key{TournamentID: 1, UserID: 7}); got != StateRegistered {
		t.Fatalf("store state = %s, want %s", got, StateRegistered)
	}

	st, err = env.channel.CheckStatus(context.Background(), 1, 8)
	if err != nil || st != StateNotRegistered {
		t.Fatalf("absent registration = (%s, %v), want (%s, nil)", st, err, StateNotRegistered)
	}
}

func TestCheckStatusRetriesTransientFailures(t *testing.T) {
	env := newChannelEnv(t, SyncChannelConfig{Retry: RetryPolicy{MaxAttempts: 3, Delay: time.Second}})
	env.regs.put(1, 7)
	env.regs.findErr = errors.New("connection reset")
	env.regs.findFailures = 2

	type result struct {
		st  State
		err error
	}
	done := make(chan result, 1)
	go func() {
		st, err := env.channel.CheckStatus(context.Background(), 1, 7)
		done <- result{st, err}
	}()

	env.clock.BlockUntil(1)
	env.clock.Advance(time.Second)
	env.clock.BlockUntil(1)
	env.clock.Advance(time.Second)

	res := <-done
	if res.err != nil {
		t.Fatalf("CheckStatus after retries: %v", res.err)
	}
	if res.st != StateRegistered {
		t.Fatalf("state = %s, want %s", res.st, StateRegistered)
	}
}

func TestCheckStatusFailsClosedOnExhaustion(t *testing.T) {
	env := newChannelEnv(t, SyncChannelConfig{Retry: RetryPolicy{MaxAttempts: 3, Delay: time.Second}})
	env.regs.put(1, 7)
	env.regs.findErr = errors.New("connection reset")
	env.regs.findFailures = 10
	key := Key{TournamentID: 1, UserID: 7}
	env.store.SetState(key, StateRegistered)

	type result struct {
		st  State
		err error
	}
	done := make(chan result, 1)
	go func() {
		st, err := env.channel.CheckStatus(context.Background(), 1, 7)
		done <- result{st, err}
	}()

	env.clock.BlockUntil(1)
	env.clock.Advance(time.Second)
	env.clock.BlockUntil(1)
	env.clock.Advance(time.Second)

	res := <-done
	if res.err == nil {
		t.Fatal("exhausted retries reported no error")
	}
	if res.st != StateNotRegistered {
		t.Fatalf("state = %s, want fail-closed %s", res.st, StateNotRegistered)
	}
	// The error budget is exactly three attempts.
	if env.regs.findCalls != 3 {
		t.Fatalf("FindActive calls = %d, want 3", env.regs.findCalls)
	}
	if st := env.store.State(key); st != StateNotRegistered {
		t.Fatalf("store state = %s, want fail-closed %s", st, StateNotRegistered)
	}
}

func TestCheckStatusDiscardsStaleResult(t *testing.T) {
	env := newChannelEnv(t, SyncChannelConfig{Retry: RetryPolicy{MaxAttempts: 2, Delay: time.Second}})
	env.regs.findErr = errors.New("connection reset")
	env.regs.findFailures = 1
	key := Key{TournamentID: 1, UserID: 7}

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.channel.CheckStatus(context.Background(), 1, 7)
	}()

	// While the check sleeps before its retry, the session is reset and a
	// fresher state lands in the store.
	env.clock.BlockUntil(1)
	env.channel.Invalidate()
	env.store.SetState(key, StateRegistered)
	env.clock.Advance(time.Second)
	<-done

	if st := env.store.State(key); st != StateRegistered {
		t.Fatalf("stale result overwrote newer state: %s", st)
	}
}

func TestCancelAndDeleteEventConverge(t *testing.T) {
	t.Run("event arrives before local cancel settles", func(t *testing.T) {
		tournament := openTournament()
		env := newChannelEnv(t, SyncChannelConfig{}, tournament)
		env.start(t)
		key := Key{TournamentID: tournament.ID, UserID: 7}
		env.regs.put(tournament.ID, 7)
		env.store.SetState(key, StateRegistered)

		// Another session cancels first: the row vanishes and its DELETE
		// event lands while our cancel is still pending.
		env.regs.remove(tournament.ID, 7)
		env.bus.PublishRegistration(RegistrationEvent{Type: EventDelete, Old: &models.Registration{
			TournamentID: tournament.ID, UserID: 7, Status: models.RegistrationCancelled,
		}})

		if err := env.machine.Cancel(context.Background(), tournament, 7); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if st := env.store.State(key); st != StateNotRegistered {
			t.Fatalf("state = %s, want %s", st, StateNotRegistered)
		}
	})

	t.Run("local cancel settles before the event", func(t *testing.T) {
		tournament := openTournament()
		env := newChannelEnv(t, SyncChannelConfig{}, tournament)
		env.start(t)
		key := Key{TournamentID: tournament.ID, UserID: 7}
		env.regs.put(tournament.ID, 7)
		env.store.SetState(key, StateRegistered)

		if err := env.machine.Cancel(context.Background(), tournament, 7); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		// The echo of our own cancel arrives afterwards.
		env.bus.PublishRegistration(RegistrationEvent{Type: EventDelete, Old: &models.Registration{
			TournamentID: tournament.ID, UserID: 7, Status: models.RegistrationCancelled,
		}})

		if st := env.store.State(key); st != StateNotRegistered {
			t.Fatalf("state = %s, want %s", st, StateNotRegistered)
		}
	})
}

func TestEventsLeaveInFlightPendingAlone(t *testing.T) {
	tournament := openTournament()
	env := newChannelEnv(t, SyncChannelConfig{}, tournament)
	env.start(t)
	key := Key{TournamentID: tournament.ID, UserID: 7}

	if _, ok := env.store.BeginPending(key); !ok {
		t.Fatal("BeginPending refused a fresh key")
	}

	// Events landing mid-action must not dissolve the reentrancy guard;
	// the action's own outcome settles the key.
	env.bus.PublishRegistration(RegistrationEvent{Type: EventInsert, New: &models.Registration{
		TournamentID: tournament.ID, UserID: 7, Status: models.RegistrationConfirmed,
	}})
	if st := env.store.State(key); st != StatePending {
		t.Fatalf("state after INSERT event = %s, want %s", st, StatePending)
	}

	env.bus.PublishRegistration(RegistrationEvent{Type: EventDelete, Old: &models.Registration{
		TournamentID: tournament.ID, UserID: 7, Status: models.RegistrationCancelled,
	}})
	if st := env.store.State(key); st != StatePending {
		t.Fatalf("state after DELETE event = %s, want %s", st, StatePending)
	}

	env.store.ResolvePending(key, StateRegistered)
	if st := env.store.State(key); st != StateRegistered {
		t.Fatalf("state after resolve = %s, want %s", st, StateRegistered)
	}
}

func TestInitTournamentsPrimesStore(t *testing.T) {
	env := newChannelEnv(t, SyncChannelConfig{})
	env.regs.put(1, 7)
	env.regs.put(1, 8)
	env.regs.put(2, 7)

	if err := env.channel.InitTournaments(context.Background(), []int{1, 2, 3}); err != nil {
		t.Fatalf("InitTournaments: %v", err)
	}

	for _, key := range []Key{{1, 7}, {1, 8}, {2, 7}} {
		if st := env.store.State(key); st != StateRegistered {
			t.Fatalf("key %+v state = %s, want %s", key, st, StateRegistered)
		}
	}
	if st := env.store.State(Key{TournamentID: 3, UserID: 7}); st != StateNotRegistered {
		t.Fatalf("empty tournament produced state %s", st)
	}
	if env.store.LastSync().IsZero() {
		t.Fatal("InitTournaments did not mark the store synced")
	}
}

func TestInitTournamentsPropagatesErrors(t *testing.T) {
	env := newChannelEnv(t, SyncChannelConfig{})
	env.regs.listErr = errors.New("connection reset")

	if err := env.channel.InitTournaments(context.Background(), []int{1}); err == nil {
		t.Fatal("InitTournaments swallowed the read error")
	}
}

func TestPeriodicResyncRepairsDrift(t *testing.T) {
	env := newChannelEnv(t, SyncChannelConfig{ResyncInterval: 30 * time.Second})
	env.start(t)
	key := Key{TournamentID: 1, UserID: 7}

	env.regs.put(1, 7)
	if _, err := env.channel.CheckStatus(context.Background(), 1, 7); err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if st := env.store.State(key); st != StateRegistered {
		t.Fatalf("state = %s, want %s", st, StateRegistered)
	}

	// A remote cancel whose push event was missed. The periodic re-sync
	// repairs it.
	env.regs.remove(1, 7)
	env.clock.BlockUntil(1)
	env.clock.Advance(30 * time.Second)
	waitForState(t, env.store, key, StateNotRegistered)
}

func TestBackgroundSuspendsResync(t *testing.T) {
	env := newChannelEnv(t, SyncChannelConfig{ResyncInterval: 30 * time.Second})
	env.start(t)
	key := Key{TournamentID: 1, UserID: 7}

	env.regs.put(1, 7)
	if _, err := env.channel.CheckStatus(context.Background(), 1, 7); err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	env.regs.remove(1, 7)

	env.channel.SetForeground(false)
	env.clock.BlockUntil(1)
	env.clock.Advance(30 * time.Second)

	// Give a wrongly-scheduled re-sync a moment to run, then confirm the
	// stale state is still there: nothing refreshed in the background.
	time.Sleep(20 * time.Millisecond)
	if st := env.store.State(key); st != StateRegistered {
		t.Fatalf("background re-sync ran: state = %s", st)
	}

	// Waking up schedules an immediate recheck.
	env.channel.SetForeground(true)
	waitForState(t, env.store, key, StateNotRegistered)
}

func TestRequestRecheckDebounces(t *testing.T) {
	env := newChannelEnv(t, SyncChannelConfig{Debounce: 200 * time.Millisecond, ResyncInterval: time.Hour})
	env.start(t)
	key := Key{TournamentID: 1, UserID: 7}

	env.regs.put(1, 7)
	if _, err := env.channel.CheckStatus(context.Background(), 1, 7); err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	env.regs.remove(1, 7)
	before := env.regs.listCallCount()

	env.channel.RequestRecheck()
	env.channel.RequestRecheck()
	env.channel.RequestRecheck()

	// Two clock waiters: the periodic ticker and the debounce timer.
	env.clock.BlockUntil(2)
	env.clock.Advance(200 * time.Millisecond)
	waitForState(t, env.store, key, StateNotRegistered)

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && env.regs.listCallCount() == before {
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if got := env.regs.listCallCount() - before; got != 1 {
		t.Fatalf("burst of rechecks produced %d re-sync reads, want 1", got)
	}
}

func TestCloseTearsDownOnce(t *testing.T) {
	env := newChannelEnv(t, SyncChannelConfig{})
	env.start(t)
	env.store.SetState(Key{TournamentID: 1, UserID: 9}, StateRegistered)

	env.channel.Close()
	env.channel.Close()

	// Teardown drops the session cache.
	if st := env.store.State(Key{TournamentID: 1, UserID: 9}); st != StateNotRegistered {
		t.Fatalf("cached state survived Close: %s", st)
	}
	if !env.store.LastSync().IsZero() {
		t.Fatal("last-sync timestamp survived Close")
	}

	// Events after teardown are ignored.
	env.bus.PublishRegistration(RegistrationEvent{Type: EventInsert, New: &models.Registration{
		TournamentID: 1, UserID: 7, Status: models.RegistrationConfirmed,
	}})
	if st := env.store.State(Key{TournamentID: 1, UserID: 7}); st != StateNotRegistered {
		t.Fatalf("event applied after Close: %s", st)
	}

	if err := env.channel.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded on a closed channel")
	}
}
