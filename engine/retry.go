package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// RetryPolicy bounds transient-failure retries: at most MaxAttempts total
// attempts with a fixed Delay between them. There is no unbounded retry
// anywhere in the engine.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Run executes op until it succeeds or the attempt budget is exhausted,
// sleeping on the injected clock between attempts so tests can drive it
// with a fake clock. Context cancellation stops the loop immediately.
func (p RetryPolicy) Run(ctx context.Context, clock clockwork.Clock, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clock.After(p.Delay):
			}
		}
		if err = op(ctx); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}
	return err
}

// Debouncer coalesces rapid triggers into a single callback invocation: the
// callback fires once the window elapses after the first trigger of a
// burst, regardless of how many triggers arrived in between.
type Debouncer struct {
	clock   clockwork.Clock
	window  time.Duration
	fn      func()
	trigger chan struct{}
	stop    chan struct{}
	once    sync.Once
}

// NewDebouncer starts the debounce loop. Stop must be called to release it.
func NewDebouncer(clock clockwork.Clock, window time.Duration, fn func()) *Debouncer {
	d := &Debouncer{
		clock:   clock,
		window:  window,
		fn:      fn,
		trigger: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Trigger requests a callback. Never blocks: a trigger that arrives while
// one is already queued coalesces with it.
func (d *Debouncer) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

func (d *Debouncer) Stop() {
	d.once.Do(func() { close(d.stop) })
}

func (d *Debouncer) run() {
	for {
		select {
		case <-d.stop:
			return
		case <-d.trigger:
			timer := d.clock.NewTimer(d.window)
		window:
			for {
				select {
				case <-d.stop:
					timer.Stop()
					return
				case <-d.trigger:
					// Coalesce: the pending window already covers it.
				case <-timer.Chan():
					d.fn()
					break window
				}
			}
		}
	}
}
