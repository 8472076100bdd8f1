// Package cooldown implements an advisory, in-process throttle keyed by
// caller identity. Reservations are not persisted and reset on restart.
package cooldown

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flor3z/payout-bot/internal/logging"
)

// Tracker maps keys to the time their cooldown expires
type Tracker struct {
	window time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	expires map[string]time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Tracker with the given cooldown window. A nil logger uses
// slog.Default.
func New(window time.Duration, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		window:   window,
		now:      time.Now,
		logger:   logging.Named(logger, "cooldown"),
		expires:  make(map[string]time.Time),
		stopChan: make(chan struct{}),
	}
}

// Key builds the key for a (command, user) pair
func Key(command, userID string) string {
	return command + ":" + userID
}

// Window returns the configured cooldown window
func (t *Tracker) Window() time.Duration {
	return t.window
}

// Reserve starts a cooldown for key if none is active. When one is active
// it returns the time left and false.
func (t *Tracker) Reserve(key string) (time.Duration, bool) {
	if t.window <= 0 {
		return 0, true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if exp, ok := t.expires[key]; ok && now.Before(exp) {
		return exp.Sub(now), false
	}
	t.expires[key] = now.Add(t.window)
	return 0, true
}

// Release drops an active reservation
func (t *Tracker) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.expires, key)
}

// Len returns the number of tracked keys, expired or not
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.expires)
}

// Sweep removes expired keys and returns how many were removed
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for key, exp := range t.expires {
		if !now.Before(exp) {
			delete(t.expires, key)
			removed++
		}
	}
	return removed
}

// Start sweeps expired keys every interval in the background until ctx is
// cancelled or Stop is called
func (t *Tracker) Start(ctx context.Context, interval time.Duration) {
	t.logger.Debug("Starting cooldown sweeper", "interval", interval)

	t.wg.Add(1)
	go t.run(ctx, interval)
}

func (t *Tracker) run(ctx context.Context, interval time.Duration) {
	defer t.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopChan:
			return
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				t.logger.Debug("Swept cooldowns", "removed", n)
			}
		}
	}
}

// Stop signals the sweeper to return and waits for it
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
	t.wg.Wait()
}
