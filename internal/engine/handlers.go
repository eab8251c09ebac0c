package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/kanchu397/Chatogram/internal/eligibility"
	"github.com/kanchu397/Chatogram/internal/event"
	"github.com/kanchu397/Chatogram/internal/matching"
	"github.com/kanchu397/Chatogram/internal/metrics"
	"github.com/kanchu397/Chatogram/internal/moderation"
	"github.com/kanchu397/Chatogram/internal/profile"
	"github.com/kanchu397/Chatogram/internal/ratelimit"
	"github.com/kanchu397/Chatogram/internal/reconnect"
	"github.com/kanchu397/Chatogram/internal/report"
	"github.com/kanchu397/Chatogram/internal/session"
)

// Inbound payloads published by the bot edge.

// SearchRequest starts a search in the given mode.
type SearchRequest struct {
	UserID       string       `json:"user_id"`
	Mode         profile.Mode `json:"mode"`
	TargetGender string       `json:"target_gender,omitempty"`
}

// UserEvent carries events that need only the acting user: stop, skip,
// block, reconnect.
type UserEvent struct {
	UserID string `json:"user_id"`
}

// ReportRequest reports the user's current partner.
type ReportRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// MessageEvent relays a payload to the sender's partner.
type MessageEvent struct {
	UserID  string          `json:"user_id"`
	Content json.RawMessage `json:"content"`
}

func (s *Service) handleSearch(data []byte) {
	var req SearchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[engine] invalid search request: %v", err)
		return
	}
	if req.Mode == "" {
		req.Mode = profile.ModeOpen
	}
	if !req.Mode.Valid() {
		s.notifyError(req.UserID, "invalid_mode")
		return
	}

	ctx := s.ctx
	if !s.allow(ctx, req.UserID, ratelimit.RuleSearch) {
		s.notifyError(req.UserID, "rate_limited")
		return
	}
	if err := s.store.EnsureProfile(ctx, req.UserID); err != nil {
		log.Printf("[engine] ensure profile %s: %v", req.UserID, err)
		s.notifyError(req.UserID, "internal_error")
		return
	}

	s.runSearch(ctx, req.UserID, req.Mode, req.TargetGender)
}

// runSearch executes one search request and, on a hit, establishes the
// session. Shared by the search handler and the post-skip re-search.
func (s *Service) runSearch(ctx context.Context, userID string, mode profile.Mode, targetGender string) {
	res, err := s.match.Search(ctx, userID, mode, targetGender)
	if err != nil {
		s.notifyFailure(userID, err)
		return
	}
	if res.Enqueued {
		log.Printf("[engine] %s waiting in %s mode (queue size: %d)", userID, mode, s.queue.Len())
		return
	}

	requester, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		s.match.Release(res.PartnerEntry)
		s.notifyFailure(userID, err)
		return
	}
	if _, err := s.sessions.Connect(ctx, requester, res.Partner); err != nil {
		// The partner's entry was consumed by the claim; hand it back so
		// they keep waiting instead of idling outside the queue.
		s.match.Release(res.PartnerEntry)
		log.Printf("[engine] connect %s/%s: %v", userID, res.Partner.ID, err)
		s.notifyError(userID, "internal_error")
		return
	}

	metrics.MatchesTotal.WithLabelValues("search").Inc()
	if res.PartnerWaited > 0 {
		metrics.MatchWaitSeconds.Observe(res.PartnerWaited.Seconds())
	}
}

func (s *Service) handleStop(data []byte) {
	var req UserEvent
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[engine] invalid stop request: %v", err)
		return
	}

	ctx := s.ctx
	if _, err := s.sessions.Stop(ctx, req.UserID); err != nil {
		if errors.Is(err, session.ErrNotInSession) {
			// Stopping while searching cancels the waiting entry.
			if !s.match.Cancel(ctx, req.UserID) {
				s.notifyError(req.UserID, "not_in_chat")
			}
			return
		}
		s.notifyFailure(req.UserID, err)
	}
}

func (s *Service) handleSkip(data []byte) {
	var req UserEvent
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[engine] invalid skip request: %v", err)
		return
	}

	ctx := s.ctx
	if _, err := s.sessions.Skip(ctx, req.UserID); err != nil {
		s.notifyFailure(req.UserID, err)
		return
	}
	// A skip rolls straight into a fresh open search for the skipper.
	s.runSearch(ctx, req.UserID, profile.ModeOpen, "")
}

func (s *Service) handleReconnect(data []byte) {
	var req UserEvent
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[engine] invalid reconnect request: %v", err)
		return
	}

	ctx := s.ctx
	if !s.allow(ctx, req.UserID, ratelimit.RuleSearch) {
		s.notifyError(req.UserID, "rate_limited")
		return
	}
	if _, err := s.resolver.Reconnect(ctx, req.UserID); err != nil {
		s.notifyFailure(req.UserID, err)
		return
	}
	metrics.MatchesTotal.WithLabelValues("reconnect").Inc()
}

func (s *Service) handleReport(data []byte) {
	var req ReportRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[engine] invalid report request: %v", err)
		return
	}

	ctx := s.ctx
	sess, ok := s.sessions.Registry().Get(req.UserID)
	if !ok {
		s.notifyError(req.UserID, "not_in_chat")
		return
	}
	reported := sess.Partner(req.UserID)

	if s.reports != nil {
		err := s.reports.Create(ctx, &report.Report{
			ReporterID: req.UserID,
			ReportedID: reported,
			Reason:     req.Reason,
		})
		if err != nil {
			log.Printf("[engine] store report %s -> %s: %v", req.UserID, reported, err)
			s.notifyError(req.UserID, "internal_error")
			return
		}
	}
	metrics.ReportsTotal.Inc()

	if err := s.scorer.Reported(ctx, reported); err != nil {
		log.Printf("[engine] report scoring %s: %v", reported, err)
	}

	count, err := s.store.IncrementReportCount(ctx, reported)
	if err != nil {
		log.Printf("[engine] report count %s: %v", reported, err)
	} else if count >= eligibility.ReportBanThreshold {
		if err := s.store.SetBanned(ctx, reported); err != nil {
			log.Printf("[engine] ban %s: %v", reported, err)
		} else {
			s.scorer.ForgetSkips(reported)
			metrics.BansTotal.Inc()
			log.Printf("[engine] %s banned after %d reports", reported, count)
		}
	}

	if err := s.tr.Notify(ctx, req.UserID, event.KindReportSubmitted, nil); err != nil {
		log.Printf("[engine] report ack to %s: %v", req.UserID, err)
	}

	// Reporting ends the chat for both sides.
	if _, err := s.sessions.Stop(ctx, req.UserID); err != nil && !errors.Is(err, session.ErrNotInSession) {
		log.Printf("[engine] stop after report %s: %v", req.UserID, err)
	}
}

func (s *Service) handleBlock(data []byte) {
	var req UserEvent
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[engine] invalid block request: %v", err)
		return
	}

	ctx := s.ctx
	sess, ok := s.sessions.Registry().Get(req.UserID)
	if !ok {
		s.notifyError(req.UserID, "not_in_chat")
		return
	}
	blocked := sess.Partner(req.UserID)

	if err := s.store.AppendBlocked(ctx, req.UserID, blocked); err != nil {
		log.Printf("[engine] block %s -> %s: %v", req.UserID, blocked, err)
		s.notifyError(req.UserID, "internal_error")
		return
	}
	if err := s.scorer.Blocked(ctx, blocked); err != nil {
		log.Printf("[engine] block scoring %s: %v", blocked, err)
	}

	if _, err := s.sessions.Stop(ctx, req.UserID); err != nil && !errors.Is(err, session.ErrNotInSession) {
		log.Printf("[engine] stop after block %s: %v", req.UserID, err)
	}
}

func (s *Service) handleMessage(data []byte) {
	var req MessageEvent
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[engine] invalid message event: %v", err)
		return
	}

	ctx := s.ctx
	if !s.allow(ctx, req.UserID, ratelimit.RuleMessage) {
		s.notifyError(req.UserID, "rate_limited")
		return
	}
	if !s.screen(req.UserID, req.Content) {
		return
	}

	switch err := s.sessions.Relay(ctx, req.UserID, req.Content); {
	case err == nil:
		metrics.MessagesRelayed.WithLabelValues("delivered").Inc()
	case errors.Is(err, session.ErrDeliveryFailure):
		// The session is already torn down; nothing to retry.
		metrics.MessagesRelayed.WithLabelValues("failed").Inc()
	case errors.Is(err, session.ErrNotInSession):
		s.notifyError(req.UserID, "not_in_chat")
	default:
		s.notifyFailure(req.UserID, err)
	}
}

// screen validates and moderates a relayed payload's text. Payloads without
// a text field (stickers, media references) pass through untouched. Returns
// false when the message must not be relayed; the sender is already notified.
func (s *Service) screen(userID string, content json.RawMessage) bool {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(content, &body); err != nil || body.Text == "" {
		return true
	}

	if err := moderation.ValidateText(body.Text); err != nil {
		s.notifyError(userID, "invalid_message")
		return false
	}
	if res := s.filter.Check(body.Text); res.Blocked {
		log.Printf("[engine] message from %s blocked (%s: %s)", userID, res.Reason, res.Term)
		metrics.MessagesRelayed.WithLabelValues("blocked").Inc()
		s.notifyError(userID, "message_blocked")
		return false
	}
	return true
}

// allow runs the rate limiter, failing open when none is configured.
func (s *Service) allow(ctx context.Context, userID string, rule ratelimit.Rule) bool {
	if s.limiter == nil {
		return true
	}
	ok, _ := s.limiter.Allow(ctx, userID, rule)
	return ok
}

// notifyFailure maps a core error onto its user-facing reason. Anything
// outside the taxonomy is an infrastructure failure: it is logged and
// surfaced as a generic notice, never swallowed.
func (s *Service) notifyFailure(userID string, err error) {
	reason := "internal_error"
	switch {
	case errors.Is(err, matching.ErrAlreadyInSession) || errors.Is(err, reconnect.ErrAlreadyInSession):
		reason = "already_in_session"
	case errors.Is(err, matching.ErrAlreadySearching):
		reason = "already_searching"
	case errors.Is(err, matching.ErrBanned):
		reason = "banned"
	case errors.Is(err, matching.ErrPremiumRequired):
		reason = "premium_required"
	case errors.Is(err, reconnect.ErrNoHistory):
		reason = "no_history"
	case errors.Is(err, reconnect.ErrPartnerUnavailable):
		reason = "partner_unavailable"
	case errors.Is(err, reconnect.ErrBlocked):
		reason = "blocked"
	case errors.Is(err, session.ErrNotInSession):
		reason = "not_in_chat"
	default:
		log.Printf("[engine] operation failed for %s: %v", userID, err)
	}
	s.notifyError(userID, reason)
}

func (s *Service) notifyError(userID, reason string) {
	err := s.tr.Notify(s.ctx, userID, event.KindError, event.ErrorPayload{Reason: reason})
	if err != nil {
		log.Printf("[engine] error notice to %s: %v", userID, err)
	}
}
