// Package reconnect re-establishes a user's most recent session pairing
// when both sides are still eligible for each other.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/kanchu397/Chatogram/internal/profile"
	"github.com/kanchu397/Chatogram/internal/reputation"
	"github.com/kanchu397/Chatogram/internal/session"
)

// Precondition failures, each a distinct reason surfaced to the user.
var (
	ErrAlreadyInSession   = errors.New("reconnect: already in a session")
	ErrNoHistory          = errors.New("reconnect: no previous partner")
	ErrPartnerUnavailable = errors.New("reconnect: partner is not reachable")
	ErrBlocked            = errors.New("reconnect: pair is blocked")
)

// Resolver restores the last session's pairing.
type Resolver struct {
	store    profile.Store
	sessions *session.Manager
	scorer   *reputation.Scorer
}

// NewResolver wires a resolver over the session manager and profile store.
func NewResolver(store profile.Store, sessions *session.Manager, scorer *reputation.Scorer) *Resolver {
	return &Resolver{store: store, sessions: sessions, scorer: scorer}
}

// Reconnect re-pairs userID with their last partner. Preconditions are
// checked in order; the first failure is returned and no session is created.
func (r *Resolver) Reconnect(ctx context.Context, userID string) (*session.Session, error) {
	if r.sessions.InSession(userID) {
		return nil, ErrAlreadyInSession
	}

	requester, err := r.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reconnect: load requester %s: %w", userID, err)
	}
	if requester.LastPartnerID == "" {
		return nil, ErrNoHistory
	}

	partner, err := r.store.GetProfile(ctx, requester.LastPartnerID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, ErrPartnerUnavailable
		}
		return nil, fmt.Errorf("reconnect: load partner %s: %w", requester.LastPartnerID, err)
	}
	if !partner.Online {
		return nil, ErrPartnerUnavailable
	}
	if requester.HasBlocked(partner.ID) || partner.HasBlocked(requester.ID) {
		return nil, ErrBlocked
	}

	s, err := r.sessions.Restore(ctx, requester, partner)
	if err != nil {
		return nil, err
	}
	if err := r.scorer.Reconnected(ctx, userID); err != nil {
		log.Printf("[reconnect] bonus for %s: %v", userID, err)
	}

	log.Printf("[reconnect] %s re-paired with %s", userID, partner.ID)
	return s, nil
}
