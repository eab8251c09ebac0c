package reconnect

import (
	"context"
	"testing"

	"github.com/kanchu397/Chatogram/internal/event"
	"github.com/kanchu397/Chatogram/internal/profile"
	"github.com/kanchu397/Chatogram/internal/reputation"
	"github.com/kanchu397/Chatogram/internal/session"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, event.Kind, any) error { return nil }

type nopQueue struct{}

func (nopQueue) Remove(string) bool { return false }

func setupResolver(t *testing.T) (*Resolver, *session.Manager, *profile.MemoryStore) {
	t.Helper()
	store := profile.NewMemoryStore()
	scorer := reputation.NewScorer(store, reputation.NewSkipTracker())
	sessions := session.NewManager(session.NewRegistry(), nopQueue{}, store, scorer, nopNotifier{})
	return NewResolver(store, sessions, scorer), sessions, store
}

func TestReconnect_NoHistory(t *testing.T) {
	r, sessions, store := setupResolver(t)
	store.Put(&profile.UserProfile{ID: "alice"})

	s, err := r.Reconnect(context.Background(), "alice")
	if err != ErrNoHistory {
		t.Errorf("error = %v, want ErrNoHistory", err)
	}
	if s != nil {
		t.Errorf("expected no session, got %+v", s)
	}
	if sessions.InSession("alice") {
		t.Error("no session should exist after a failed reconnect")
	}
}

func TestReconnect_AlreadyInSession(t *testing.T) {
	r, sessions, store := setupResolver(t)
	store.Put(&profile.UserProfile{ID: "alice"})
	store.Put(&profile.UserProfile{ID: "bob"})

	ctx := context.Background()
	a, _ := store.GetProfile(ctx, "alice")
	b, _ := store.GetProfile(ctx, "bob")
	if _, err := sessions.Connect(ctx, a, b); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	if _, err := r.Reconnect(ctx, "alice"); err != ErrAlreadyInSession {
		t.Errorf("error = %v, want ErrAlreadyInSession", err)
	}
}

func TestReconnect_PartnerOffline(t *testing.T) {
	r, _, store := setupResolver(t)
	store.Put(&profile.UserProfile{ID: "alice", LastPartnerID: "bob"})
	store.Put(&profile.UserProfile{ID: "bob", Online: false})

	if _, err := r.Reconnect(context.Background(), "alice"); err != ErrPartnerUnavailable {
		t.Errorf("error = %v, want ErrPartnerUnavailable", err)
	}
}

func TestReconnect_PartnerProfileGone(t *testing.T) {
	r, _, store := setupResolver(t)
	store.Put(&profile.UserProfile{ID: "alice", LastPartnerID: "vanished"})

	if _, err := r.Reconnect(context.Background(), "alice"); err != ErrPartnerUnavailable {
		t.Errorf("error = %v, want ErrPartnerUnavailable", err)
	}
}

func TestReconnect_BlockedEitherDirection(t *testing.T) {
	r, _, store := setupResolver(t)

	store.Put(&profile.UserProfile{ID: "alice", LastPartnerID: "bob", Blocked: []string{"bob"}})
	store.Put(&profile.UserProfile{ID: "bob", Online: true})
	if _, err := r.Reconnect(context.Background(), "alice"); err != ErrBlocked {
		t.Errorf("requester block: error = %v, want ErrBlocked", err)
	}

	store.Put(&profile.UserProfile{ID: "carol", LastPartnerID: "dave"})
	store.Put(&profile.UserProfile{ID: "dave", Online: true, Blocked: []string{"carol"}})
	if _, err := r.Reconnect(context.Background(), "carol"); err != ErrBlocked {
		t.Errorf("partner block: error = %v, want ErrBlocked", err)
	}
}

func TestReconnect_RestoresPairingAndAwardsBonus(t *testing.T) {
	r, sessions, store := setupResolver(t)
	store.Put(&profile.UserProfile{ID: "alice", LastPartnerID: "bob"})
	store.Put(&profile.UserProfile{ID: "bob", Online: true})

	ctx := context.Background()
	s, err := r.Reconnect(ctx, "alice")
	if err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	if s.Partner("alice") != "bob" {
		t.Errorf("session pairing wrong: %+v", s)
	}
	if !sessions.InSession("alice") || !sessions.InSession("bob") {
		t.Error("both users should be in the restored session")
	}

	u, _ := store.GetProfile(ctx, "alice")
	if u.ReputationScore != reputation.DeltaReconnect {
		t.Errorf("requester score = %d, want %d", u.ReputationScore, reputation.DeltaReconnect)
	}
	b, _ := store.GetProfile(ctx, "bob")
	if b.ReputationScore != 0 {
		t.Errorf("partner score = %d, want 0", b.ReputationScore)
	}
}

// The precondition order is observable: a user both lacking history and in a
// session gets the in-session error, and a blocked offline partner reports
// unavailability before the block.
func TestReconnect_PreconditionOrder(t *testing.T) {
	r, _, store := setupResolver(t)
	store.Put(&profile.UserProfile{ID: "alice", LastPartnerID: "bob", Blocked: []string{"bob"}})
	store.Put(&profile.UserProfile{ID: "bob", Online: false})

	if _, err := r.Reconnect(context.Background(), "alice"); err != ErrPartnerUnavailable {
		t.Errorf("error = %v, want ErrPartnerUnavailable before ErrBlocked", err)
	}
}
