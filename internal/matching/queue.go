// Package matching holds the waiting queue and the matchmaker: the set of
// users currently seeking a partner, and the selection logic that pairs a
// requester with an eligible queued counterpart.
package matching

import (
	"sync"
	"time"

	"github.com/kanchu397/Chatogram/internal/profile"
)

// SearchTimeout is how long a waiting entry lives before the requester is
// told no match was found.
const SearchTimeout = 60 * time.Second

// Entry is one user's live position in the waiting queue. A user has at most
// one entry at a time across all modes.
type Entry struct {
	UserID       string
	Mode         profile.Mode
	TargetGender string
	EnqueuedAt   time.Time

	gen   uint64
	timer *time.Timer
}

// Queue is the mutex-guarded waiting set, keyed by user id. Every
// check-then-act sequence runs under the single lock so the one-entry-per-user
// invariant holds under concurrent searches.
type Queue struct {
	mu      sync.Mutex
	entries map[string]*Entry
	gen     uint64
}

// NewQueue returns an empty waiting queue.
func NewQueue() *Queue {
	return &Queue{entries: make(map[string]*Entry)}
}

// Enqueue adds a waiting entry for userID and arms its expiry timer. It
// returns false if the user already holds an entry. onExpire runs only if
// the same entry is still present when the timer fires: an entry consumed by
// a match or cancelled in the meantime makes the timer a no-op.
func (q *Queue) Enqueue(userID string, mode profile.Mode, targetGender string, timeout time.Duration, onExpire func(userID string)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[userID]; ok {
		return false
	}

	q.gen++
	e := &Entry{
		UserID:       userID,
		Mode:         mode,
		TargetGender: targetGender,
		EnqueuedAt:   time.Now(),
		gen:          q.gen,
	}
	if timeout > 0 && onExpire != nil {
		gen := e.gen
		e.timer = time.AfterFunc(timeout, func() {
			q.expire(userID, gen, onExpire)
		})
	}
	q.entries[userID] = e
	return true
}

// expire removes the entry if it is still the same one the timer was armed
// for, then invokes the callback outside the lock.
func (q *Queue) expire(userID string, gen uint64, onExpire func(string)) {
	q.mu.Lock()
	e, ok := q.entries[userID]
	if !ok || e.gen != gen {
		q.mu.Unlock()
		return
	}
	delete(q.entries, userID)
	q.mu.Unlock()

	onExpire(userID)
}

// Remove deletes userID's entry and disarms its timer. Returns false if the
// user was not queued; losing the race to a timer or a match is not an error.
func (q *Queue) Remove(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[userID]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(q.entries, userID)
	return true
}

// Contains reports whether userID currently holds a waiting entry.
func (q *Queue) Contains(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[userID]
	return ok
}

// Snapshot returns copies of all live entries, oldest first.
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, Entry{
			UserID:       e.UserID,
			Mode:         e.Mode,
			TargetGender: e.TargetGender,
			EnqueuedAt:   e.EnqueuedAt,
		})
	}
	sortByEnqueueTime(out)
	return out
}

// Len returns the number of users currently waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func sortByEnqueueTime(entries []Entry) {
	// Insertion sort: the queue is small and mostly ordered already.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].EnqueuedAt.Before(entries[j-1].EnqueuedAt); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
