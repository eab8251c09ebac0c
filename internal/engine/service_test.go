package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/kanchu397/Chatogram/internal/event"
	"github.com/kanchu397/Chatogram/internal/messaging"
	"github.com/kanchu397/Chatogram/internal/profile"
	"github.com/kanchu397/Chatogram/internal/report"
)

// fakeTransport is an in-process Transport: subscriptions are plain function
// registrations and publishes are dispatched synchronously.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]func(data []byte)
	events   map[string][]event.Kind
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers: make(map[string]func(data []byte)),
		events:   make(map[string][]event.Kind),
	}
}

func (t *fakeTransport) Subscribe(subject string, handler func(data []byte)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[subject] = handler
	return nil
}

func (t *fakeTransport) Notify(_ context.Context, userID string, kind event.Kind, _ any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events[userID] = append(t.events[userID], kind)
	return nil
}

func (t *fakeTransport) publish(tb testing.TB, subject string, payload any) {
	tb.Helper()
	t.mu.Lock()
	handler, ok := t.handlers[subject]
	t.mu.Unlock()
	if !ok {
		tb.Fatalf("no subscription for subject %s", subject)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		tb.Fatalf("failed to marshal payload: %v", err)
	}
	handler(data)
}

func (t *fakeTransport) count(userID string, kind event.Kind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := 0
	for _, k := range t.events[userID] {
		if k == kind {
			c++
		}
	}
	return c
}

// fakeReports is an in-memory ReportSink.
type fakeReports struct {
	mu      sync.Mutex
	created []*report.Report
}

func (f *fakeReports) Create(_ context.Context, r *report.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, r)
	return nil
}

// failingStore makes every connect attempt fail at last-partner persistence.
type failingStore struct {
	profile.Store
}

func (f *failingStore) SetLastPartner(context.Context, string, string) error {
	return errors.New("store down")
}

// setupEngine starts an engine over the in-memory store and fake transport.
func setupEngine(t *testing.T) (*Service, *fakeTransport, *profile.MemoryStore) {
	t.Helper()
	store := profile.NewMemoryStore()
	tr := newFakeTransport()
	svc := New(store, nil, nil, tr, 0)
	if err := svc.Start(); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc, tr, store
}

func TestEngine_SearchPairsTwoUsers(t *testing.T) {
	svc, tr, _ := setupEngine(t)

	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "x"})
	if svc.Sessions().InSession("x") {
		t.Fatal("first searcher should wait, not be in a session")
	}

	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "y"})
	if !svc.Sessions().InSession("x") || !svc.Sessions().InSession("y") {
		t.Fatal("second search should pair both users")
	}
	if svc.queue.Len() != 0 {
		t.Errorf("queue length = %d, want 0 after pairing", svc.queue.Len())
	}
	for _, id := range []string{"x", "y"} {
		if tr.count(id, event.KindMatchFound) != 1 {
			t.Errorf("%s should receive one match-found event", id)
		}
	}
}

func TestEngine_SearchCreatesProfileOnDemand(t *testing.T) {
	_, tr, store := setupEngine(t)

	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "newcomer"})
	if _, err := store.GetProfile(context.Background(), "newcomer"); err != nil {
		t.Errorf("profile should be created on first search: %v", err)
	}
}

func TestEngine_InvalidModeIsRejected(t *testing.T) {
	svc, tr, _ := setupEngine(t)

	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "x", Mode: "astrology"})
	if tr.count("x", event.KindError) != 1 {
		t.Error("invalid mode should produce an error event")
	}
	if svc.queue.Contains("x") {
		t.Error("invalid request must not enqueue the user")
	}
}

func TestEngine_StopWhileSearchingCancels(t *testing.T) {
	svc, tr, store := setupEngine(t)

	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "x"})
	if !svc.queue.Contains("x") {
		t.Fatal("searcher should be queued")
	}

	tr.publish(t, messaging.SubjectStop, UserEvent{UserID: "x"})
	if svc.queue.Contains("x") {
		t.Error("stop should cancel the waiting entry")
	}
	u, _ := store.GetProfile(context.Background(), "x")
	if u.Online {
		t.Error("cancelled searcher should be offline")
	}
}

func TestEngine_StopOutsideChatReportsError(t *testing.T) {
	_, tr, _ := setupEngine(t)

	tr.publish(t, messaging.SubjectStop, UserEvent{UserID: "idle"})
	if tr.count("idle", event.KindError) != 1 {
		t.Error("stop with no session or search should produce an error event")
	}
}

func TestEngine_StopEndsActiveSession(t *testing.T) {
	svc, tr, _ := setupEngine(t)

	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "x"})
	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "y"})
	tr.publish(t, messaging.SubjectStop, UserEvent{UserID: "x"})

	if svc.Sessions().InSession("x") || svc.Sessions().InSession("y") {
		t.Error("stop should end the session for both sides")
	}
	for _, id := range []string{"x", "y"} {
		if tr.count(id, event.KindChatEnded) != 1 {
			t.Errorf("%s should receive one chat-ended event", id)
		}
	}
}

// A skip ends the current session and immediately re-enters the skipper into
// an open search, pairing them with the next waiting user.
func TestEngine_SkipRollsIntoNextMatch(t *testing.T) {
	svc, tr, _ := setupEngine(t)

	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "x"})
	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "y"})
	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "z"})
	if !svc.queue.Contains("z") {
		t.Fatal("third searcher should wait")
	}

	tr.publish(t, messaging.SubjectSkip, UserEvent{UserID: "x"})

	if svc.Sessions().InSession("y") {
		t.Error("skipped partner should be out of the session")
	}
	if !svc.Sessions().InSession("x") || !svc.Sessions().InSession("z") {
		t.Error("skipper should be re-paired with the waiting user")
	}
	if sess, ok := svc.Sessions().Registry().Get("x"); !ok || sess.Partner("x") != "z" {
		t.Error("skipper's new partner should be the waiting user")
	}
}

func TestEngine_MessageRelay(t *testing.T) {
	_, tr, store := setupEngine(t)

	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "x"})
	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "y"})

	tr.publish(t, messaging.SubjectMessage, MessageEvent{
		UserID:  "x",
		Content: json.RawMessage(`{"text":"hello"}`),
	})
	if tr.count("y", event.KindMessage) != 1 {
		t.Error("partner should receive the relayed message")
	}
	u, _ := store.GetProfile(context.Background(), "x")
	if u.MessageCount != 1 {
		t.Errorf("sender message count = %d, want 1", u.MessageCount)
	}
}

func TestEngine_MessageWithBlockedContentIsNotRelayed(t *testing.T) {
	_, tr, _ := setupEngine(t)

	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "x"})
	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "y"})

	tr.publish(t, messaging.SubjectMessage, MessageEvent{
		UserID:  "x",
		Content: json.RawMessage(`{"text":"visit http://spam.example.com/"}`),
	})
	if tr.count("y", event.KindMessage) != 0 {
		t.Error("blocked message must not reach the partner")
	}
	if tr.count("x", event.KindError) != 1 {
		t.Error("sender should be told the message was blocked")
	}
}

func TestEngine_MessageWithInvalidTextIsRejected(t *testing.T) {
	_, tr, _ := setupEngine(t)

	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "x"})
	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "y"})

	long := make([]byte, 0, 6000)
	long = append(long, `{"text":"`...)
	for i := 0; i < 5000; i++ {
		long = append(long, 'a')
	}
	long = append(long, `"}`...)

	tr.publish(t, messaging.SubjectMessage, MessageEvent{UserID: "x", Content: json.RawMessage(long)})
	if tr.count("y", event.KindMessage) != 0 {
		t.Error("oversized message must not be relayed")
	}
	if tr.count("x", event.KindError) != 1 {
		t.Error("sender should be told the message was rejected")
	}
}

func TestEngine_MessageOutsideSession(t *testing.T) {
	_, tr, _ := setupEngine(t)

	tr.publish(t, messaging.SubjectMessage, MessageEvent{UserID: "loner"})
	if tr.count("loner", event.KindError) != 1 {
		t.Error("message outside a session should produce an error event")
	}
}

func TestEngine_BlockEndsSessionAndExcludesPair(t *testing.T) {
	svc, tr, store := setupEngine(t)

	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "x"})
	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "y"})
	tr.publish(t, messaging.SubjectBlock, UserEvent{UserID: "x"})

	if svc.Sessions().InSession("x") || svc.Sessions().InSession("y") {
		t.Error("block should end the session")
	}

	ctx := context.Background()
	u, _ := store.GetProfile(ctx, "x")
	if !u.HasBlocked("y") {
		t.Error("blocker's list should contain the partner")
	}
	blocked, _ := store.GetProfile(ctx, "y")
	if blocked.ReputationScore >= 0 {
		t.Errorf("blocked user score = %d, want negative", blocked.ReputationScore)
	}

	// The pair can never be re-matched: y waits, x searches, no pairing.
	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "y"})
	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "x"})
	if svc.Sessions().InSession("x") {
		t.Error("blocked pair must not be re-matched")
	}
}

func TestEngine_ReconnectRestoresLastPairing(t *testing.T) {
	svc, tr, store := setupEngine(t)

	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "x"})
	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "y"})
	tr.publish(t, messaging.SubjectStop, UserEvent{UserID: "x"})

	// y must still be reachable for the reconnect to succeed.
	if err := store.SetOnline(context.Background(), "y", true); err != nil {
		t.Fatalf("set online failed: %v", err)
	}

	tr.publish(t, messaging.SubjectReconnect, UserEvent{UserID: "x"})
	if !svc.Sessions().InSession("x") || !svc.Sessions().InSession("y") {
		t.Error("reconnect should restore the pairing")
	}
	if sess, ok := svc.Sessions().Registry().Get("x"); !ok || sess.Partner("x") != "y" {
		t.Error("reconnect should pair with the previous partner")
	}
}

func TestEngine_ReconnectWithoutHistory(t *testing.T) {
	_, tr, store := setupEngine(t)
	store.Put(&profile.UserProfile{ID: "fresh"})

	tr.publish(t, messaging.SubjectReconnect, UserEvent{UserID: "fresh"})
	if tr.count("fresh", event.KindError) != 1 {
		t.Error("reconnect without history should produce an error event")
	}
}

// When the session cannot be persisted, the claimed waiter must not be left
// stranded: their queue entry comes back and the requester hears about the
// failure.
func TestEngine_FailedConnectReturnsWaiterToQueue(t *testing.T) {
	store := profile.NewMemoryStore()
	tr := newFakeTransport()
	svc := New(&failingStore{Store: store}, nil, nil, tr, 0)
	if err := svc.Start(); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	t.Cleanup(svc.Stop)

	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "x"})
	tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "y"})

	if svc.Sessions().InSession("x") || svc.Sessions().InSession("y") {
		t.Fatal("no session should exist when persistence fails")
	}
	if !svc.queue.Contains("x") {
		t.Error("the claimed waiter should be returned to the queue")
	}
	if tr.count("y", event.KindError) != 1 {
		t.Error("the requester should be told the connect failed")
	}
}

func TestEngine_ThirdReportBansReportedUser(t *testing.T) {
	store := profile.NewMemoryStore()
	reports := &fakeReports{}
	tr := newFakeTransport()
	svc := New(store, reports, nil, tr, 0)
	if err := svc.Start(); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	t.Cleanup(svc.Stop)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "x"})
		tr.publish(t, messaging.SubjectSearch, SearchRequest{UserID: "y"})
		if !svc.Sessions().InSession("x") {
			t.Fatalf("report %d: pairing failed", i+1)
		}
		tr.publish(t, messaging.SubjectReport, ReportRequest{UserID: "x", Reason: "harassment"})
		if svc.Sessions().InSession("x") || svc.Sessions().InSession("y") {
			t.Fatalf("report %d: reporting should end the session", i+1)
		}
	}

	y, err := store.GetProfile(ctx, "y")
	if err != nil {
		t.Fatalf("load y: %v", err)
	}
	if !y.Banned {
		t.Error("third report should ban the reported user")
	}
	if y.ReportCount != 3 {
		t.Errorf("report count = %d, want 3", y.ReportCount)
	}

	reports.mu.Lock()
	defer reports.mu.Unlock()
	if len(reports.created) != 3 {
		t.Fatalf("stored reports = %d, want 3", len(reports.created))
	}
	for _, r := range reports.created {
		if r.ReporterID != "x" || r.ReportedID != "y" {
			t.Errorf("report %s -> %s, want x -> y", r.ReporterID, r.ReportedID)
		}
	}
	if tr.count("x", event.KindReportSubmitted) != 3 {
		t.Error("each report should be acknowledged to the reporter")
	}
}
