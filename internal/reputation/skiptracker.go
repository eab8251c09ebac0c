package reputation

import (
	"sync"
	"time"
)

// Rolling skip-velocity window. More than SkipLimit skips inside SkipWindow
// triggers the rapid-skip penalty.
const (
	SkipWindow = 60 * time.Second
	SkipLimit  = 3
)

// SkipTracker keeps a per-user sliding list of skip timestamps, pruned to
// the window on every skip. Safe for concurrent use.
type SkipTracker struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	byUser map[string][]time.Time
	now    func() time.Time
}

// NewSkipTracker returns a tracker with the default window and limit.
func NewSkipTracker() *SkipTracker {
	return &SkipTracker{
		window: SkipWindow,
		limit:  SkipLimit,
		byUser: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Record registers one skip by userID and reports whether the skip pushed
// the user over the rolling limit.
func (t *SkipTracker) Record(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-t.window)

	kept := t.byUser[userID][:0]
	for _, ts := range t.byUser[userID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	t.byUser[userID] = kept

	return len(kept) > t.limit
}

// Forget drops a user's skip history, releasing its memory.
func (t *SkipTracker) Forget(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byUser, userID)
}
