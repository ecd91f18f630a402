package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RequestBudget tracks GitLab's advertised rate limit and blocks callers once
// it is exhausted. It satisfies client-go's RateLimiter interface.
type RequestBudget struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	cooldown  time.Time
	probed    bool
	now       func() time.Time
	notifyCh  chan struct{}
}

func NewRequestBudget() *RequestBudget {
	return &RequestBudget{
		// GitLab.com allows 2000 authenticated requests per minute; self-managed
		// instances advertise their own value on the first response.
		remaining: 2000,
		reset:     time.Now().Add(time.Minute),
		now:       time.Now,
		notifyCh:  make(chan struct{}),
	}
}

func (b *RequestBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Wait takes one unit from the budget, blocking until the window resets or a
// Retry-After cooldown expires.
func (b *RequestBudget) Wait(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("budget: nil context")
	}
	if b == nil || b.now == nil || b.notifyCh == nil {
		return fmt.Errorf("budget: not initialized (use NewRequestBudget)")
	}

	for {
		b.mu.Lock()
		now := b.now()

		var until time.Time
		switch {
		case now.Before(b.cooldown):
			until = b.cooldown
		case b.remaining > 0:
			b.remaining--
			b.mu.Unlock()
			return nil
		case !now.Before(b.reset):
			// The window has rolled over but no response has refreshed the
			// counters yet: let exactly one probe through.
			if !b.probed {
				b.probed = true
				b.mu.Unlock()
				return nil
			}
			until = time.Time{}
		default:
			until = b.reset
		}
		ch := b.notifyCh
		b.mu.Unlock()

		if err := waitUntil(ctx, ch, until, now); err != nil {
			return err
		}
	}
}

func waitUntil(ctx context.Context, notify <-chan struct{}, until, now time.Time) error {
	if until.IsZero() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-notify:
			return nil
		}
	}
	timer := time.NewTimer(max(until.Sub(now), 0))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-notify:
	case <-timer.C:
	}
	return nil
}

// UpdateFromResponse reads RateLimit-Remaining, RateLimit-Reset (unix seconds)
// and Retry-After from a GitLab response.
func (b *RequestBudget) UpdateFromResponse(resp *http.Response) {
	if b == nil || resp == nil || b.now == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	changed := false

	if raw := resp.Header.Get("Retry-After"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			until := b.now().Add(time.Duration(seconds) * time.Second)
			if until.After(b.cooldown) {
				b.cooldown = until
				changed = true
			}
		}
	}

	if raw := resp.Header.Get("RateLimit-Remaining"); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil && val >= 0 && val != b.remaining {
			b.remaining = val
			changed = true
		}
	}

	if raw := resp.Header.Get("RateLimit-Reset"); raw != "" {
		if val, err := strconv.ParseInt(raw, 10, 64); err == nil && val > 0 {
			if next := time.Unix(val, 0); !b.reset.Equal(next) {
				b.reset = next
				changed = true
			}
		}
	}

	if changed {
		b.probed = false
		close(b.notifyCh)
		b.notifyCh = make(chan struct{})
	}
}
