// Package engine composes the matching core: it subscribes to inbound user
// events from the messaging transport, drives the matchmaker, session
// manager and reconnect resolver, and surfaces every outcome as an outbound
// notification.
package engine

import (
	"context"
	"log"
	"time"

	"github.com/kanchu397/Chatogram/internal/event"
	"github.com/kanchu397/Chatogram/internal/matching"
	"github.com/kanchu397/Chatogram/internal/messaging"
	"github.com/kanchu397/Chatogram/internal/metrics"
	"github.com/kanchu397/Chatogram/internal/moderation"
	"github.com/kanchu397/Chatogram/internal/profile"
	"github.com/kanchu397/Chatogram/internal/ratelimit"
	"github.com/kanchu397/Chatogram/internal/reconnect"
	"github.com/kanchu397/Chatogram/internal/report"
	"github.com/kanchu397/Chatogram/internal/reputation"
	"github.com/kanchu397/Chatogram/internal/session"
)

const gaugeInterval = 5 * time.Second

// Transport is the engine's view of the messaging collaborator: outbound
// notifications plus inbound subject subscriptions.
type Transport interface {
	event.Notifier
	Subscribe(subject string, handler func(data []byte)) error
}

// ReportSink records abuse reports. Implemented by report.Store.
type ReportSink interface {
	Create(ctx context.Context, r *report.Report) error
}

// Service is the long-running matching engine.
type Service struct {
	store    profile.Store
	reports  ReportSink
	queue    *matching.Queue
	match    *matching.Matchmaker
	sessions *session.Manager
	resolver *reconnect.Resolver
	scorer   *reputation.Scorer
	limiter  *ratelimit.Limiter // nil disables throttling
	filter   *moderation.Filter
	tr       Transport

	decayInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds the engine over its collaborators. A nil limiter disables
// request throttling.
func New(store profile.Store, reports ReportSink, limiter *ratelimit.Limiter, tr Transport, decayInterval time.Duration) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	queue := matching.NewQueue()
	registry := session.NewRegistry()
	scorer := reputation.NewScorer(store, reputation.NewSkipTracker())
	sessions := session.NewManager(registry, queue, store, scorer, tr)
	match := matching.NewMatchmaker(queue, store, registry, tr)
	resolver := reconnect.NewResolver(store, sessions, scorer)

	return &Service{
		store:         store,
		reports:       reports,
		queue:         queue,
		match:         match,
		sessions:      sessions,
		resolver:      resolver,
		scorer:        scorer,
		limiter:       limiter,
		filter:        moderation.NewFilter(),
		tr:            tr,
		decayInterval: decayInterval,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Sessions exposes the session manager, mainly for tests.
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// Start subscribes to the inbound subjects and starts the background loops.
func (s *Service) Start() error {
	subs := map[string]func([]byte){
		messaging.SubjectSearch:    s.handleSearch,
		messaging.SubjectStop:      s.handleStop,
		messaging.SubjectSkip:      s.handleSkip,
		messaging.SubjectReconnect: s.handleReconnect,
		messaging.SubjectReport:    s.handleReport,
		messaging.SubjectBlock:     s.handleBlock,
		messaging.SubjectMessage:   s.handleMessage,
	}
	for subject, handler := range subs {
		if err := s.tr.Subscribe(subject, handler); err != nil {
			return err
		}
	}

	go reputation.StartDecay(s.ctx, s.store, s.decayInterval)
	go s.gaugeLoop()

	log.Println("[engine] service started")
	return nil
}

// Stop shuts the engine down.
func (s *Service) Stop() {
	s.cancel()
	log.Println("[engine] service stopped")
}

// gaugeLoop keeps the queue and session gauges current.
func (s *Service) gaugeLoop() {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			metrics.WaitingUsers.Set(float64(s.queue.Len()))
			metrics.ActiveSessions.Set(float64(s.sessions.Registry().Count()))
		}
	}
}
