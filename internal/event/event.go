// Package event defines the outbound notification contract between the
// matching engine and the messaging transport. Every user-visible outcome
// (match found, chat ended, errors) is surfaced as one of a fixed set of
// event kinds with an event-specific payload.
package event

import (
	"context"
	"encoding/json"
)

// Kind is the outbound event discriminator.
type Kind string

const (
	KindMatchFound      Kind = "match_found"
	KindChatEnded       Kind = "chat_ended"
	KindNoMatchFound    Kind = "no_match_found"
	KindSafetyNotice    Kind = "safety_notice"
	KindPartnerDetails  Kind = "partner_details"
	KindReportSubmitted Kind = "report_submitted"
	KindMessage         Kind = "message"
	KindError           Kind = "error"
)

// Notifier delivers an outbound event to a single user. A returned error is
// a transport-level delivery failure; the session manager treats it as an
// implicit disconnect, never as a retryable condition.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind Kind, data any) error
}

// MatchFoundPayload accompanies KindMatchFound.
type MatchFoundPayload struct {
	SessionID string `json:"session_id"`
	PartnerID string `json:"partner_id"`
	Reconnect bool   `json:"reconnect,omitempty"`
}

// PartnerDetailsPayload accompanies KindPartnerDetails. Non-premium viewers
// receive the redacted form with no attributes set.
type PartnerDetailsPayload struct {
	Redacted  bool     `json:"redacted"`
	Gender    string   `json:"gender,omitempty"`
	City      string   `json:"city,omitempty"`
	Interests []string `json:"interests,omitempty"`
}

// ChatEndedPayload accompanies KindChatEnded.
type ChatEndedPayload struct {
	Skipped bool `json:"skipped,omitempty"`
}

// MessagePayload accompanies KindMessage: the relayed payload is forwarded
// to the partner unchanged, preserving its content type.
type MessagePayload struct {
	From    string          `json:"from"`
	Content json.RawMessage `json:"content"`
}

// ErrorPayload accompanies KindError.
type ErrorPayload struct {
	Reason string `json:"reason"`
}

// SafetyNoticeText is surfaced to each user the first time they ever enter
// a session.
const SafetyNoticeText = "You are chatting with a stranger. 18+ only. " +
	"No abuse, no sexual content, never share personal information. " +
	"Violations lead to a ban."
