// Package ratelimit provides the advisory per-user throttle applied to
// client-initiated cloud operations. It is a UX/cost guard, not a security
// boundary; the authoritative limit, if any, lives server-side.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// Window counts operations per user inside a fixed rolling window. State is
// in-memory only and keyed by the raw user id; callers must hash the id before
// attaching it to logs or telemetry.
type Window struct {
	mu      sync.Mutex
	limit   int
	per     time.Duration
	now     func() time.Time
	entries map[string]*window
}

// New constructs a limiter allowing limit operations per rolling per-duration
// window for each user.
func New(limit int, per time.Duration) *Window {
	return &Window{
		limit:   limit,
		per:     per,
		now:     time.Now,
		entries: make(map[string]*window),
	}
}

// Check consumes one operation for userID if the window allows it. When the
// ceiling is hit it returns false plus the wait until the window resets; no
// error is raised, callers must short-circuit on the boolean.
func (w *Window) Check(userID string) (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	e, ok := w.entries[userID]
	if !ok || now.After(e.resetAt) {
		// Window resets atomically: fresh struct, never a partial update.
		e = &window{resetAt: now.Add(w.per)}
		w.entries[userID] = e
		w.gcLocked(now)
	}
	if e.count >= w.limit {
		return false, e.resetAt.Sub(now)
	}
	e.count++
	return true, 0
}

// Status reports the remaining operations and reset wait without consuming
// one. A user with no live window has the full limit available.
func (w *Window) Status(userID string) (remaining int, resetIn time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	e, ok := w.entries[userID]
	if !ok || now.After(e.resetAt) {
		return w.limit, 0
	}
	remaining = w.limit - e.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, e.resetAt.Sub(now)
}

// gcLocked drops expired windows so the map does not grow with one entry per
// user forever. Called opportunistically while the lock is already held.
func (w *Window) gcLocked(now time.Time) {
	for id, e := range w.entries {
		if now.After(e.resetAt) {
			delete(w.entries, id)
		}
	}
}
