// Package poller implements the client-side polling loop that waits
// for a dispatched verification to land on the ledger.
package poller

import (
	"context"
	"sync"
	"time"

	"istory-server/internal/model"

	"go.uber.org/zap"
)

// State is the watcher lifecycle. Done and TimedOut are terminal; a
// watcher that finds neither a cached result nor a pending dispatch
// settles back to Idle.
type State string

const (
	StateIdle          State = "idle"
	StateCheckingCache State = "checking_cache"
	StatePolling       State = "polling"
	StateDone          State = "done"
	StateTimedOut      State = "timed_out"
)

const (
	DefaultInterval    = 10 * time.Second
	DefaultMaxAttempts = 60
)

// Checker answers whether a story is verified yet. (nil, nil) means
// "not yet"; an error means the check itself failed and counts as an
// attempt.
type Checker interface {
	CheckAndCache(ctx context.Context, storyID string) (*model.VerifiedMetrics, error)
}

// PendingChecker answers whether a dispatch is in flight for a story.
// repository.VerificationRepository satisfies it.
type PendingChecker interface {
	HasPending(ctx context.Context, storyID string) (bool, error)
}

// Update is delivered on the watcher channel after every state change.
type Update struct {
	State   State
	Attempt int
	Metrics *model.VerifiedMetrics
	Err     error
}

// Watcher polls the checker at a fixed interval until the story is
// verified, the attempt budget runs out, or Stop is called. One watcher
// per story per dispatch.
type Watcher struct {
	checker     Checker
	pending     PendingChecker
	storyID     string
	interval    time.Duration
	maxAttempts int
	logger      *zap.Logger

	mu      sync.Mutex
	state   State
	attempt int
	ticker  *time.Ticker
	cancel  context.CancelFunc
	updates chan Update
	stopped bool
}

// NewWatcher builds a watcher. pending may be nil, in which case every
// unverified story is assumed dispatched and polled for.
func NewWatcher(checker Checker, pending PendingChecker, storyID string, interval time.Duration, maxAttempts int, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Watcher{
		checker:     checker,
		pending:     pending,
		storyID:     storyID,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger.Named("Watcher"),
		state:       StateIdle,
		// Room for every intermediate update plus the terminal one, so
		// finish never blocks on a slow consumer.
		updates:     make(chan Update, maxAttempts+4),
	}
}

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Updates delivers state transitions. The channel is closed when the
// watcher reaches a terminal state or is stopped.
func (w *Watcher) Updates() <-chan Update {
	return w.updates
}

// Start checks the cache once and, if the story is not verified yet,
// begins ticking. A story with neither a cached result nor a pending
// dispatch goes back to idle without polling; there is nothing on the
// ledger to wait for. Calling Start on a non-idle watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.state != StateIdle || w.stopped {
		w.mu.Unlock()
		return
	}
	w.state = StateCheckingCache
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.emit(Update{State: StateCheckingCache})

	metrics, err := w.checker.CheckAndCache(runCtx, w.storyID)
	if err == nil && metrics != nil {
		w.finish(StateDone, metrics, nil)
		return
	}
	if err != nil {
		w.logger.Warn("Initial verification check failed, continuing to poll",
			zap.String("storyID", w.storyID), zap.Error(err))
	} else if w.pending != nil {
		dispatched, pendErr := w.pending.HasPending(runCtx, w.storyID)
		if pendErr != nil {
			w.logger.Warn("Pending dispatch lookup failed, polling anyway",
				zap.String("storyID", w.storyID), zap.Error(pendErr))
		} else if !dispatched {
			w.logger.Debug("No pending dispatch for story, watcher going idle",
				zap.String("storyID", w.storyID))
			w.finish(StateIdle, nil, nil)
			return
		}
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.state = StatePolling
	w.ticker = time.NewTicker(w.interval)
	tick := w.ticker.C
	w.mu.Unlock()
	w.emit(Update{State: StatePolling})

	go w.loop(runCtx, tick)
}

func (w *Watcher) loop(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			w.mu.Lock()
			w.attempt++
			attempt := w.attempt
			w.mu.Unlock()

			metrics, err := w.checker.CheckAndCache(ctx, w.storyID)
			if err != nil {
				w.logger.Debug("Verification check attempt failed",
					zap.String("storyID", w.storyID),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				w.emit(Update{State: StatePolling, Attempt: attempt, Err: err})
			} else if metrics != nil {
				w.finish(StateDone, metrics, nil)
				return
			} else {
				w.emit(Update{State: StatePolling, Attempt: attempt})
			}

			if attempt >= w.maxAttempts {
				w.logger.Warn("Verification polling exhausted attempt budget",
					zap.String("storyID", w.storyID),
					zap.Int("attempts", attempt),
				)
				w.finish(StateTimedOut, nil, nil)
				return
			}
		}
	}
}

func (w *Watcher) finish(state State, metrics *model.VerifiedMetrics, err error) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.state = state
	w.stopTickerLocked()
	w.stopped = true
	w.updates <- Update{State: state, Attempt: w.attempt, Metrics: metrics, Err: err}
	close(w.updates)
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Stop halts polling and releases the ticker. Safe to call multiple
// times and after the watcher has finished on its own.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	if w.state == StatePolling || w.state == StateCheckingCache {
		w.state = StateIdle
	}
	w.stopTickerLocked()
	close(w.updates)
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (w *Watcher) stopTickerLocked() {
	if w.ticker != nil {
		w.ticker.Stop()
		w.ticker = nil
	}
}

func (w *Watcher) emit(u Update) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	select {
	case w.updates <- u:
	default:
		// Slow consumers drop intermediate updates, terminal ones are
		// always delivered by finish.
	}
}
