package features

import (
	"sync"
	"time"

	"antbox-backend/pkg/errors"
)

// Invocation channels feed separate rate-limit counters so a noisy
// extension cannot starve the same feature's actions.
const (
	channelAction    = "action"
	channelTool      = "tool"
	channelExtension = "extension"
)

const (
	rateLimitWindow = 10 * time.Second
	rateLimitMax    = 10
)

// rateLimiter bounds feature invocations per (featureUuid, channel)
// with a rolling window. Every admission is counted for the full
// window regardless of when the invocation completes, so a feature
// that keeps retriggering itself through the event bus runs dry
// within one window. Expired admissions age out on the next acquire,
// which is the window reset.
type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string][]time.Time
	now     func() time.Time
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		window:  window,
		max:     max,
		entries: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// acquire admits one invocation or fails with TooMany.
func (l *rateLimiter) acquire(featureUUID, channel string) error {
	key := featureUUID + "|" + channel

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.entries[key][:0]
	for _, t := range l.entries[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.max {
		l.entries[key] = kept
		return errors.NewTooManyError(l.max, l.window.String())
	}

	l.entries[key] = append(kept, now)
	return nil
}
