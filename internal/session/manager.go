package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/kanchu397/Chatogram/internal/event"
	"github.com/kanchu397/Chatogram/internal/moderation"
	"github.com/kanchu397/Chatogram/internal/profile"
	"github.com/kanchu397/Chatogram/internal/reputation"
)

var (
	// ErrNotInSession is returned when an operation requires an active
	// session and the user has none.
	ErrNotInSession = errors.New("session: not in a session")

	// ErrDeliveryFailure marks a relay whose delivery failed at the
	// transport level. The session is already torn down when it is
	// returned; the failure is never retried.
	ErrDeliveryFailure = errors.New("session: delivery failed")
)

// QueueRemover clears a user's waiting entry when they enter a session.
type QueueRemover interface {
	Remove(userID string) bool
}

// Manager creates and destroys sessions, relays messages between paired
// users and applies the reputation feedback on termination.
type Manager struct {
	registry *Registry
	queue    QueueRemover
	store    profile.Store
	scorer   *reputation.Scorer
	notifier event.Notifier
	filter   *moderation.Filter
	now      func() time.Time
}

// NewManager wires a session manager over the registry and collaborators.
func NewManager(registry *Registry, queue QueueRemover, store profile.Store, scorer *reputation.Scorer, notifier event.Notifier) *Manager {
	return &Manager{
		registry: registry,
		queue:    queue,
		store:    store,
		scorer:   scorer,
		notifier: notifier,
		filter:   moderation.NewFilter(),
		now:      time.Now,
	}
}

// InSession reports whether userID currently holds an active session.
func (m *Manager) InSession(userID string) bool {
	return m.registry.InSession(userID)
}

// Registry exposes the pairing table for read-side collaborators.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Connect establishes a session between a and b. Any prior session either
// user holds is torn down first, which keeps the at-most-one-session
// invariant even when a user is connected twice in quick succession. Store
// writes happen before the registry mutation so a failing store leaves the
// queue and session tables unchanged.
func (m *Manager) Connect(ctx context.Context, a, b *profile.UserProfile) (*Session, error) {
	return m.connect(ctx, a, b, false)
}

// Restore re-establishes a previous pairing on behalf of the reconnect
// resolver. Identical to Connect except the match-found event is flagged as
// a reconnect.
func (m *Manager) Restore(ctx context.Context, a, b *profile.UserProfile) (*Session, error) {
	return m.connect(ctx, a, b, true)
}

func (m *Manager) connect(ctx context.Context, a, b *profile.UserProfile, reconnect bool) (*Session, error) {
	for _, id := range []string{a.ID, b.ID} {
		if prior, ok := m.registry.Get(id); ok {
			if err := m.end(ctx, prior, id, true, true, false); err != nil {
				log.Printf("[session] teardown prior for %s: %v", id, err)
			}
		}
	}

	if err := m.persistConnect(ctx, a.ID, b.ID); err != nil {
		return nil, err
	}

	s := &Session{
		ID:        uuid.New().String(),
		UserA:     a.ID,
		UserB:     b.ID,
		StartedAt: m.now(),
	}
	m.registry.Add(s)
	m.queue.Remove(a.ID)
	m.queue.Remove(b.ID)

	m.announce(ctx, s, a, b, reconnect)
	m.announce(ctx, s, b, a, reconnect)

	log.Printf("[session] connected %s <-> %s (session %s)", a.ID, b.ID, s.ID)
	return s, nil
}

func (m *Manager) persistConnect(ctx context.Context, a, b string) error {
	if err := m.store.SetOnline(ctx, a, true); err != nil {
		return fmt.Errorf("session: connect %s/%s: %w", a, b, err)
	}
	if err := m.store.SetOnline(ctx, b, true); err != nil {
		return fmt.Errorf("session: connect %s/%s: %w", a, b, err)
	}
	if err := m.store.SetLastPartner(ctx, a, b); err != nil {
		return fmt.Errorf("session: connect %s/%s: %w", a, b, err)
	}
	if err := m.store.SetLastPartner(ctx, b, a); err != nil {
		return fmt.Errorf("session: connect %s/%s: %w", a, b, err)
	}
	return nil
}

// announce delivers the connect-time notices to one participant: the
// one-time safety notice, the match-found event, and either the partner's
// extended attributes (premium viewers) or a redacted notice.
func (m *Manager) announce(ctx context.Context, s *Session, viewer, partner *profile.UserProfile, reconnect bool) {
	if !viewer.SafetyNotified {
		if err := m.notifier.Notify(ctx, viewer.ID, event.KindSafetyNotice, event.SafetyNoticeText); err != nil {
			log.Printf("[session] safety notice to %s: %v", viewer.ID, err)
		}
		if err := m.store.MarkSafetyNotified(ctx, viewer.ID); err != nil {
			log.Printf("[session] mark safety notified %s: %v", viewer.ID, err)
		}
	}

	found := event.MatchFoundPayload{SessionID: s.ID, PartnerID: partner.ID, Reconnect: reconnect}
	if err := m.notifier.Notify(ctx, viewer.ID, event.KindMatchFound, found); err != nil {
		log.Printf("[session] match found to %s: %v", viewer.ID, err)
	}

	details := event.PartnerDetailsPayload{Redacted: true}
	if viewer.IsPremium() {
		details = event.PartnerDetailsPayload{
			Gender: partner.Gender,
			City:   partner.City,
			// Interest tags are free text; screen them the same way as
			// relayed messages before showing them to the viewer.
			Interests: m.filter.CheckInterests(partner.Interests),
		}
	}
	if err := m.notifier.Notify(ctx, viewer.ID, event.KindPartnerDetails, details); err != nil {
		log.Printf("[session] partner details to %s: %v", viewer.ID, err)
	}
}

// Disconnect tears down the session between u1 and u2, with u1 as the
// initiating side for session-end scoring. Calling it for a user outside
// any session is a no-op and never double-applies reputation effects.
func (m *Manager) Disconnect(ctx context.Context, u1, u2 string, notify1, notify2 bool) error {
	s, ok := m.registry.Get(u1)
	if !ok || s.Partner(u1) != u2 {
		return nil
	}
	return m.end(ctx, s, u1, notify1, notify2, false)
}

// Stop ends userID's current session, notifying both sides. Returns the
// partner id.
func (m *Manager) Stop(ctx context.Context, userID string) (string, error) {
	s, ok := m.registry.Get(userID)
	if !ok {
		return "", ErrNotInSession
	}
	partner := s.Partner(userID)
	if err := m.end(ctx, s, userID, true, true, false); err != nil {
		return partner, err
	}
	return partner, nil
}

// Skip ends userID's session as a "next": the skipped partner is rewarded,
// the skipper's skip velocity is checked against the rapid-skip window, and
// the ordinary session-end scoring applies on top. The caller re-enters the
// skipper into an open-mode search.
func (m *Manager) Skip(ctx context.Context, userID string) (string, error) {
	s, ok := m.registry.Get(userID)
	if !ok {
		return "", ErrNotInSession
	}
	partner := s.Partner(userID)

	if err := m.scorer.Skipped(ctx, userID, partner); err != nil {
		log.Printf("[session] skip scoring %s: %v", userID, err)
	}
	if err := m.end(ctx, s, userID, false, true, true); err != nil {
		return partner, err
	}
	return partner, nil
}

// Relay forwards payload from senderID to their current partner unchanged.
// A transport-level delivery failure tears the session down as if the
// sender had stopped it and returns ErrDeliveryFailure.
func (m *Manager) Relay(ctx context.Context, senderID string, payload json.RawMessage) error {
	s, ok := m.registry.Get(senderID)
	if !ok {
		return ErrNotInSession
	}
	partner := s.Partner(senderID)

	if err := m.store.IncrementMessageCount(ctx, senderID); err != nil {
		log.Printf("[session] message count %s: %v", senderID, err)
	}

	msg := event.MessagePayload{From: "partner", Content: payload}
	if err := m.notifier.Notify(ctx, partner, event.KindMessage, msg); err != nil {
		log.Printf("[session] delivery to %s failed, ending session %s: %v", partner, s.ID, err)
		if endErr := m.end(ctx, s, senderID, true, false, false); endErr != nil {
			log.Printf("[session] teardown after delivery failure: %v", endErr)
		}
		return ErrDeliveryFailure
	}
	return nil
}

// end removes the session from the registry and applies the termination
// effects. The registry removal decides idempotence: the side that loses a
// racing teardown does nothing.
func (m *Manager) end(ctx context.Context, s *Session, initiatorID string, notifyInitiator, notifyPartner, skipped bool) error {
	if !m.registry.Remove(s) {
		return nil
	}

	partnerID := s.Partner(initiatorID)
	duration := m.now().Sub(s.StartedAt)

	initiatorPremium := false
	if u, err := m.store.GetProfile(ctx, initiatorID); err == nil {
		initiatorPremium = u.IsPremium()
	} else {
		log.Printf("[session] load initiator %s: %v", initiatorID, err)
	}

	if err := m.scorer.SessionEnded(ctx, initiatorID, partnerID, duration, initiatorPremium); err != nil {
		log.Printf("[session] end scoring %s: %v", s.ID, err)
	}

	for _, id := range []string{initiatorID, partnerID} {
		if err := m.store.SetOnline(ctx, id, false); err != nil {
			log.Printf("[session] set offline %s: %v", id, err)
		}
	}

	ended := event.ChatEndedPayload{Skipped: skipped}
	if notifyInitiator {
		if err := m.notifier.Notify(ctx, initiatorID, event.KindChatEnded, ended); err != nil {
			log.Printf("[session] chat ended to %s: %v", initiatorID, err)
		}
	}
	if notifyPartner {
		if err := m.notifier.Notify(ctx, partnerID, event.KindChatEnded, ended); err != nil {
			log.Printf("[session] chat ended to %s: %v", partnerID, err)
		}
	}

	log.Printf("[session] ended %s (%s <-> %s) after %s", s.ID, s.UserA, s.UserB, duration.Round(time.Second))
	return nil
}
