package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/kanchu397/Chatogram/internal/eligibility"
	"github.com/kanchu397/Chatogram/internal/event"
	"github.com/kanchu397/Chatogram/internal/profile"
	"github.com/kanchu397/Chatogram/internal/reputation"
)

var (
	ErrAlreadyInSession = errors.New("matching: already in a session")
	ErrAlreadySearching = errors.New("matching: already searching")
	ErrBanned           = errors.New("matching: user is banned")
	ErrPremiumRequired  = errors.New("matching: premium required for filtered search")
)

// SessionChecker reports whether a user currently holds an active session.
// Implemented by the session registry.
type SessionChecker interface {
	InSession(userID string) bool
}

// Result is the outcome of a search request: either a chosen partner, or the
// requester was enqueued to wait.
type Result struct {
	Partner  *profile.UserProfile
	Enqueued bool

	// PartnerEntry is the partner's consumed queue entry. If session
	// establishment fails the caller hands it back through Release so the
	// waiter is not left stranded.
	PartnerEntry Entry

	// PartnerWaited is how long the chosen partner sat in the queue.
	PartnerWaited time.Duration
}

// Matchmaker pairs a search request with an eligible queued counterpart,
// biased toward higher-reputation candidates.
type Matchmaker struct {
	queue    *Queue
	store    profile.Store
	sessions SessionChecker
	notifier event.Notifier
	timeout  time.Duration
}

// NewMatchmaker wires the matchmaker over the waiting queue, the profile
// store and the session registry. The notifier is used only for search
// timeout notices.
func NewMatchmaker(queue *Queue, store profile.Store, sessions SessionChecker, notifier event.Notifier) *Matchmaker {
	return &Matchmaker{
		queue:    queue,
		store:    store,
		sessions: sessions,
		notifier: notifier,
		timeout:  SearchTimeout,
	}
}

// Search runs one search request for userID in the given mode. When no
// eligible counterpart is waiting the requester is enqueued with a timeout;
// that outcome is not an error.
func (m *Matchmaker) Search(ctx context.Context, userID string, mode profile.Mode, targetGender string) (*Result, error) {
	if m.sessions.InSession(userID) {
		return nil, ErrAlreadyInSession
	}
	if m.queue.Contains(userID) {
		return nil, ErrAlreadySearching
	}

	requester, err := m.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("matching: load requester %s: %w", userID, err)
	}
	if requester.Banned {
		return nil, ErrBanned
	}
	if eligibility.RequiresPremium(mode) && !requester.IsPremium() {
		return nil, ErrPremiumRequired
	}

	snapshot := m.queue.Snapshot()

	// Open mode pairs with the open waiting set first: first available, no
	// ranking, since there is no attribute filter to rank against. Premium
	// requesters get an affinity pass (same city or shared interest) over
	// the same set before the generic scan.
	if mode == profile.ModeOpen {
		partner, err := m.openFastPath(ctx, requester, snapshot)
		if err != nil {
			return nil, err
		}
		if partner != nil {
			return claimed(partner, snapshot), nil
		}
	}

	partner, err := m.selectFromPool(ctx, requester, mode, targetGender, snapshot)
	if err != nil {
		return nil, err
	}
	if partner != nil {
		return claimed(partner, snapshot), nil
	}

	// Searching counts as reachable: the online flag is set before the
	// entry exists so a store failure leaves the queue unchanged.
	if err := m.store.SetOnline(ctx, userID, true); err != nil {
		return nil, fmt.Errorf("matching: mark searching %s: %w", userID, err)
	}
	if !m.queue.Enqueue(userID, mode, targetGender, m.timeout, m.onSearchTimeout) {
		return nil, ErrAlreadySearching
	}
	return &Result{Enqueued: true}, nil
}

// Cancel removes userID's waiting entry, disarming its timeout. Returns
// false if the user was not searching.
func (m *Matchmaker) Cancel(ctx context.Context, userID string) bool {
	if !m.queue.Remove(userID) {
		return false
	}
	if err := m.store.SetOnline(ctx, userID, false); err != nil {
		log.Printf("[matchmaker] mark offline %s: %v", userID, err)
	}
	return true
}

// Release returns a claimed waiter to the queue after session establishment
// failed, re-arming their search timeout. A waiter who already started a new
// search in the meantime keeps their newer entry.
func (m *Matchmaker) Release(e Entry) {
	if e.UserID == "" {
		return
	}
	if m.queue.Enqueue(e.UserID, e.Mode, e.TargetGender, m.timeout, m.onSearchTimeout) {
		log.Printf("[matchmaker] returned %s to the queue after failed connect", e.UserID)
	}
}

// onSearchTimeout notifies a requester whose entry expired unconsumed.
func (m *Matchmaker) onSearchTimeout(userID string) {
	ctx := context.Background()
	if err := m.store.SetOnline(ctx, userID, false); err != nil {
		log.Printf("[matchmaker] mark offline %s: %v", userID, err)
	}
	if err := m.notifier.Notify(ctx, userID, event.KindNoMatchFound, nil); err != nil {
		log.Printf("[matchmaker] timeout notify %s: %v", userID, err)
	}
	log.Printf("[matchmaker] search timed out for %s", userID)
}

// openFastPath scans open-mode waiting entries oldest first and claims the
// first eligible one. Candidates below the shadow-ban cutoff are invisible.
func (m *Matchmaker) openFastPath(ctx context.Context, requester *profile.UserProfile, snapshot []Entry) (*profile.UserProfile, error) {
	var openIDs []string
	for _, e := range snapshot {
		if e.Mode == profile.ModeOpen && e.UserID != requester.ID {
			openIDs = append(openIDs, e.UserID)
		}
	}
	if len(openIDs) == 0 {
		return nil, nil
	}

	pool, err := m.store.QueryCandidates(ctx, profile.CandidateFilter{
		RequesterID:      requester.ID,
		CandidateIDs:     openIDs,
		RequesterBlocked: requester.Blocked,
		MaxReportCount:   eligibility.ReportBanThreshold,
		Mode:             profile.ModeOpen,
	})
	if err != nil {
		return nil, fmt.Errorf("matching: open pool: %w", err)
	}

	byID := make(map[string]*profile.UserProfile, len(pool))
	openReq := eligibility.Request{Mode: profile.ModeOpen}
	for _, cand := range pool {
		if reputation.Shadowed(cand.ReputationScore) {
			continue
		}
		// The candidate's hard exclusions apply to the requester too, so
		// eligibility is checked in both directions.
		if !eligibility.IsEligible(requester, cand, openReq) || !eligibility.IsEligible(cand, requester, openReq) {
			continue
		}
		byID[cand.ID] = cand
	}
	if len(byID) == 0 {
		return nil, nil
	}

	claim := func(id string) *profile.UserProfile {
		cand, ok := byID[id]
		if !ok {
			return nil
		}
		if !m.queue.Remove(id) {
			delete(byID, id) // consumed by a concurrent match
			return nil
		}
		return cand
	}

	if requester.IsPremium() {
		for _, id := range openIDs {
			cand, ok := byID[id]
			if !ok {
				continue
			}
			sameCity := cand.City != "" && strings.EqualFold(cand.City, requester.City)
			if sameCity || requester.SharesInterest(cand) {
				if got := claim(id); got != nil {
					return got, nil
				}
			}
		}
	}

	for _, id := range openIDs {
		if got := claim(id); got != nil {
			return got, nil
		}
	}
	return nil, nil
}

// selectFromPool runs the ranked selection of §4.3: fetch the candidate
// pool, apply mutual eligibility, drop shadow-banned users, partition by the
// preferred cutoff and pick.
func (m *Matchmaker) selectFromPool(ctx context.Context, requester *profile.UserProfile, mode profile.Mode, targetGender string, snapshot []Entry) (*profile.UserProfile, error) {
	entries := make(map[string]Entry, len(snapshot))
	var ids []string
	for _, e := range snapshot {
		if e.UserID == requester.ID {
			continue
		}
		entries[e.UserID] = e
		ids = append(ids, e.UserID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pool, err := m.store.QueryCandidates(ctx, profile.CandidateFilter{
		RequesterID:      requester.ID,
		CandidateIDs:     ids,
		RequesterBlocked: requester.Blocked,
		MaxReportCount:   eligibility.ReportBanThreshold,
		Mode:             mode,
		TargetGender:     targetGender,
		City:             requester.City,
		Interests:        requester.Interests,
	})
	if err != nil {
		return nil, fmt.Errorf("matching: candidate pool: %w", err)
	}

	req := eligibility.Request{Mode: mode, TargetGender: targetGender}
	var preferred, others []*profile.UserProfile
	for _, cand := range pool {
		if reputation.Shadowed(cand.ReputationScore) {
			continue
		}
		if !eligibility.IsEligible(requester, cand, req) {
			continue
		}
		// The candidate queued with their own filter; a match must satisfy
		// both sides, so the candidate's predicate is checked against the
		// requester as well.
		ce, ok := entries[cand.ID]
		if !ok {
			continue
		}
		candReq := eligibility.Request{Mode: ce.Mode, TargetGender: ce.TargetGender}
		if !eligibility.IsEligible(cand, requester, candReq) {
			continue
		}
		if cand.ReputationScore >= reputation.PreferredCutoff {
			preferred = append(preferred, cand)
		} else {
			others = append(others, cand)
		}
	}

	// A chosen candidate may be consumed by a concurrent match between the
	// snapshot and the claim; drop it and pick again.
	for len(preferred) > 0 || len(others) > 0 {
		pick := choose(preferred, others)
		if m.queue.Remove(pick.ID) {
			return pick, nil
		}
		preferred = drop(preferred, pick.ID)
		others = drop(others, pick.ID)
	}
	return nil, nil
}

// choose implements the biased selection: from the preferred pool, sort
// descending by score, keep the top 75% (rounded up, minimum one) and pick
// uniformly at random inside that slice; otherwise pick uniformly from the
// low-trust remainder.
func choose(preferred, others []*profile.UserProfile) *profile.UserProfile {
	if len(preferred) > 0 {
		sorted := make([]*profile.UserProfile, len(preferred))
		copy(sorted, preferred)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].ReputationScore > sorted[j].ReputationScore
		})
		top := (3*len(sorted) + 3) / 4 // ceil(0.75n), never below 1
		return sorted[rand.IntN(top)]
	}
	return others[rand.IntN(len(others))]
}

// claimed builds the success result for a partner just removed from the
// queue, carrying their entry so a failed connect can hand it back.
func claimed(partner *profile.UserProfile, snapshot []Entry) *Result {
	res := &Result{Partner: partner}
	for _, e := range snapshot {
		if e.UserID == partner.ID {
			res.PartnerEntry = e
			res.PartnerWaited = time.Since(e.EnqueuedAt)
			break
		}
	}
	return res
}

func drop(pool []*profile.UserProfile, id string) []*profile.UserProfile {
	out := pool[:0]
	for _, cand := range pool {
		if cand.ID != id {
			out = append(out, cand)
		}
	}
	return out
}
