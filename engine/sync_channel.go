package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/longsangsabo/sabo-pool-engine/models"
	"github.com/longsangsabo/sabo-pool-engine/repositories"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDebounceWindow = 200 * time.Millisecond
	defaultResyncInterval = 30 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryDelay     = time.Second
	resyncTimeout         = 10 * time.Second
	initConcurrency       = 4
)

// SyncChannelConfig tunes one channel. Zero values fall back to defaults.
type SyncChannelConfig struct {
	// UserID scopes registration-event delivery to one user; zero means the
	// channel reconciles every user's events (a node-wide cache).
	UserID         int
	Debounce       time.Duration
	ResyncInterval time.Duration
	Retry          RetryPolicy
}

func (cfg SyncChannelConfig) withDefaults() SyncChannelConfig {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounceWindow
	}
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = defaultResyncInterval
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = defaultRetryAttempts
	}
	if cfg.Retry.Delay <= 0 {
		cfg.Retry.Delay = defaultRetryDelay
	}
	return cfg
}

// SyncChannel owns every push subscription of one session and reconciles
// incoming events into the RegistrationStore. It is the only component
// besides the StateMachine that writes to the store. A single Close tears
// all subscriptions down.
type SyncChannel struct {
	store         *RegistrationStore
	registrations repositories.RegistrationRepository
	bus           Bus
	clock         clockwork.Clock
	logger        *slog.Logger
	cfg           SyncChannelConfig

	onMatchEvent func(context.Context, MatchEvent)

	mu      sync.Mutex
	subs    []Subscription
	tracked map[int]struct{}
	started bool
	closed  bool

	runCtx    context.Context
	cancelRun context.CancelFunc
	debouncer *Debouncer
	wake      chan struct{}

	// generation is the staleness guard: delayed retry results are only
	// applied if no reset happened since the check began.
	generation atomic.Int64
	foreground atomic.Bool
}

func NewSyncChannel(
	store *RegistrationStore,
	registrations repositories.RegistrationRepository,
	bus Bus,
	clock clockwork.Clock,
	logger *slog.Logger,
	cfg SyncChannelConfig,
) *SyncChannel {
	c := &SyncChannel{
		store:         store,
		registrations: registrations,
		bus:           bus,
		clock:         clock,
		logger:        logger,
		cfg:           cfg.withDefaults(),
		tracked:       make(map[int]struct{}),
		wake:          make(chan struct{}, 1),
	}
	c.foreground.Store(true)
	return c
}

// OnMatchEvent registers the bracket-match event consumer (the completion
// detector). Must be called before Start.
func (c *SyncChannel) OnMatchEvent(fn func(context.Context, MatchEvent)) {
	c.onMatchEvent = fn
}

// Start subscribes to the push bus and launches the periodic re-sync loop.
func (c *SyncChannel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("sync channel is closed")
	}
	if c.started {
		return errors.New("sync channel already started")
	}
	c.started = true

	c.runCtx, c.cancelRun = context.WithCancel(ctx)
	c.debouncer = NewDebouncer(c.clock, c.cfg.Debounce, c.resyncTracked)

	c.subs = append(c.subs,
		c.bus.SubscribeRegistrations(c.cfg.UserID, c.handleRegistration),
		c.bus.SubscribeMatches(c.handleMatch),
	)

	go c.run()
	return nil
}

// Close tears down every subscription, stops the re-sync loop and drops
// the session's cached state. Safe to call more than once.
func (c *SyncChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if c.cancelRun != nil {
		c.cancelRun()
	}
	if c.debouncer != nil {
		c.debouncer.Stop()
	}

	// The cache lives and dies with its session: once the channel is gone
	// nothing reconciles the store, so reads fall back to NOT_REGISTERED.
	c.generation.Add(1)
	c.store.Reset()
}

// Invalidate bumps the staleness generation so delayed results from
// in-flight checks are discarded instead of overwriting newer state.
// Called alongside store resets (e.g. sign-out).
func (c *SyncChannel) Invalidate() {
	c.generation.Add(1)
}

// RequestRecheck asks for a re-sync of tracked tournaments. Rapid calls
// within the debounce window coalesce into a single cycle.
func (c *SyncChannel) RequestRecheck() {
	if c.debouncer != nil {
		c.debouncer.Trigger()
	}
}

// SetForeground suspends (false) or resumes (true) the periodic re-sync.
// The background → foreground transition schedules an immediate recheck.
func (c *SyncChannel) SetForeground(fg bool) {
	prev := c.foreground.Swap(fg)
	if fg && !prev {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

// InitTournaments primes the store for a list of tournaments by reading
// current registration state for all of them in parallel, bounding UI
// startup latency.
func (c *SyncChannel) InitTournaments(ctx context.Context, tournamentIDs []int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(initConcurrency)

	for _, id := range tournamentIDs {
		id := id
		g.Go(func() error {
			regs, err := c.registrations.ListActiveByTournament(gctx, id)
			if err != nil {
				return err
			}
			c.mergeTournament(id, regs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	c.store.MarkSynced(c.clock.Now())
	return nil
}

// CheckStatus reads one key's status directly from persistence with a
// bounded retry budget. On exhaustion it fails closed: the key defaults to
// NOT_REGISTERED and the last error is returned for diagnostics. A stale
// result (a reset happened while retrying) is discarded, not applied.
func (c *SyncChannel) CheckStatus(ctx context.Context, tournamentID, userID int) (State, error) {
	gen := c.generation.Load()
	key := Key{TournamentID: tournamentID, UserID: userID}

	var reg *models.Registration
	err := c.cfg.Retry.Run(ctx, c.clock, func(ctx context.Context) error {
		found, err := c.registrations.FindActive(ctx, tournamentID, userID)
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			reg = nil
			return nil
		}
		if err != nil {
			return err
		}
		reg = found
		return nil
	})

	state := StateNotRegistered
	if err != nil {
		c.logger.Warn("registration status check exhausted retries, defaulting to not registered",
			slog.Int("tournament_id", tournamentID), slog.Int("user_id", userID), slog.Any("error", err))
	} else if reg.Active() {
		state = StateRegistered
	}

	if c.generation.Load() != gen {
		// The session was reset while we were retrying; do not let the
		// delayed result overwrite newer state.
		return state, err
	}

	c.store.ApplyGroundTruth(key, state == StateRegistered)
	c.track(tournamentID)
	c.store.MarkSynced(c.clock.Now())
	return state, err
}

func (c *SyncChannel) handleRegistration(ev RegistrationEvent) {
	key := Key{TournamentID: ev.TournamentID(), UserID: ev.UserID()}
	if key.TournamentID == 0 || key.UserID == 0 {
		return
	}

	switch ev.Type {
	case EventInsert:
		c.store.ApplyGroundTruth(key, true)
	case EventDelete:
		c.store.ApplyGroundTruth(key, false)
	case EventUpdate:
		registered := !(ev.New != nil && ev.New.Status == models.RegistrationCancelled)
		c.store.ApplyGroundTruth(key, registered)
	default:
		return
	}

	c.track(key.TournamentID)
	c.store.MarkSynced(c.clock.Now())
}

func (c *SyncChannel) handleMatch(ev MatchEvent) {
	// Match changes affect UI badges; refresh through the debounced path.
	c.RequestRecheck()
	if c.onMatchEvent != nil {
		c.onMatchEvent(c.runCtx, ev)
	}
}

func (c *SyncChannel) run() {
	ticker := c.clock.NewTicker(c.cfg.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.runCtx.Done():
			return
		case <-c.wake:
			c.resyncTracked()
		case <-ticker.Chan():
			if c.foreground.Load() {
				c.resyncTracked()
			}
		}
	}
}

func (c *SyncChannel) track(tournamentID int) {
	c.mu.Lock()
	c.tracked[tournamentID] = struct{}{}
	c.mu.Unlock()
}

func (c *SyncChannel) trackedIDs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int, 0, len(c.tracked))
	for id := range c.tracked {
		ids = append(ids, id)
	}
	return ids
}

// resyncTracked re-reads ground truth for every tracked tournament and
// reconciles the store. In-flight PENDING keys are left alone.
func (c *SyncChannel) resyncTracked() {
	parent := c.runCtx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, resyncTimeout)
	defer cancel()

	for _, id := range c.trackedIDs() {
		regs, err := c.registrations.ListActiveByTournament(ctx, id)
		if err != nil {
			c.logger.Warn("re-sync read failed",
				slog.Int("tournament_id", id), slog.Any("error", err))
			continue
		}
		c.mergeTournament(id, regs)
	}
	c.store.MarkSynced(c.clock.Now())
}

// mergeTournament reconciles one tournament's cached keys against a fresh
// list of its active registrations.
func (c *SyncChannel) mergeTournament(tournamentID int, regs []*models.Registration) {
	active := make(map[int]bool, len(regs))
	for _, reg := range regs {
		if reg.Active() {
			active[reg.UserID] = true
		}
	}

	for _, key := range c.store.KeysForTournament(tournamentID) {
		if !active[key.UserID] {
			c.store.ApplyGroundTruth(key, false)
		}
	}
	for userID := range active {
		if c.cfg.UserID != 0 && userID != c.cfg.UserID {
			continue
		}
		c.store.ApplyGroundTruth(Key{TournamentID: tournamentID, UserID: userID}, true)
	}
	c.track(tournamentID)
}
