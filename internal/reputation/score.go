// Package reputation maintains per-user trust scores. Session outcomes,
// skips, reports and blocks move the score; a periodic sweep decays it one
// step toward zero so old penalties do not dominate matching forever.
package reputation

import (
	"context"
	"fmt"
	"time"

	"github.com/kanchu397/Chatogram/internal/profile"
)

// Score deltas applied by session outcomes. Each is independent and several
// may compound within one session lifecycle.
const (
	DeltaMeaningfulSession = 1  // both sides, session lasted MeaningfulDuration
	DeltaShortSession      = -1 // initiator, session ended under ShortDuration
	DeltaPremiumLoyalty    = 2  // initiator holds premium at session end
	DeltaSkipped           = 1  // the user who was skipped
	DeltaRapidSkip         = -2 // more than SkipLimit skips inside SkipWindow
	DeltaReported          = -3
	DeltaBlocked           = -5
	DeltaReconnect         = 2
)

// Duration thresholds for session-end scoring. The meaningful boundary is
// inclusive: a session lasting exactly MeaningfulDuration earns the bonus.
const (
	MeaningfulDuration = 180 * time.Second
	ShortDuration      = 10 * time.Second
)

// Selection cutoffs read by the matchmaker.
const (
	// PreferredCutoff splits eligible candidates into the preferred pool
	// (score at or above) and the low-trust remainder.
	PreferredCutoff = -5

	// ShadowBanCutoff excludes a user from every matching pool entirely
	// while leaving them formally active.
	ShadowBanCutoff = -10
)

// Shadowed reports whether a score places its owner below the shadow-ban
// cutoff, making them invisible to matching.
func Shadowed(score int) bool {
	return score <= ShadowBanCutoff
}

// Scorer applies reputation deltas through the profile store.
type Scorer struct {
	store profile.Store
	skips *SkipTracker
}

// NewScorer returns a Scorer writing through the given store.
func NewScorer(store profile.Store, skips *SkipTracker) *Scorer {
	return &Scorer{store: store, skips: skips}
}

// SessionEnded applies the session-outcome deltas for a session of the given
// duration, ended by initiator.
func (s *Scorer) SessionEnded(ctx context.Context, initiatorID, partnerID string, duration time.Duration, initiatorPremium bool) error {
	if duration >= MeaningfulDuration {
		if err := s.store.UpdateReputation(ctx, initiatorID, DeltaMeaningfulSession); err != nil {
			return fmt.Errorf("reputation: session end %s: %w", initiatorID, err)
		}
		if err := s.store.UpdateReputation(ctx, partnerID, DeltaMeaningfulSession); err != nil {
			return fmt.Errorf("reputation: session end %s: %w", partnerID, err)
		}
	} else if duration < ShortDuration {
		if err := s.store.UpdateReputation(ctx, initiatorID, DeltaShortSession); err != nil {
			return fmt.Errorf("reputation: session end %s: %w", initiatorID, err)
		}
	}
	if initiatorPremium {
		if err := s.store.UpdateReputation(ctx, initiatorID, DeltaPremiumLoyalty); err != nil {
			return fmt.Errorf("reputation: session end %s: %w", initiatorID, err)
		}
	}
	return nil
}

// Skipped rewards the user whose partner invoked "next" and penalizes the
// skipper when their skip velocity exceeds the rolling window limit.
func (s *Scorer) Skipped(ctx context.Context, skipperID, skippedID string) error {
	if err := s.store.UpdateReputation(ctx, skippedID, DeltaSkipped); err != nil {
		return fmt.Errorf("reputation: skipped %s: %w", skippedID, err)
	}
	if s.skips.Record(skipperID) {
		if err := s.store.UpdateReputation(ctx, skipperID, DeltaRapidSkip); err != nil {
			return fmt.Errorf("reputation: rapid skip %s: %w", skipperID, err)
		}
	}
	return nil
}

// Reported applies the report penalty to the reported user. The report
// counter itself is incremented separately by the caller.
func (s *Scorer) Reported(ctx context.Context, reportedID string) error {
	if err := s.store.UpdateReputation(ctx, reportedID, DeltaReported); err != nil {
		return fmt.Errorf("reputation: reported %s: %w", reportedID, err)
	}
	return nil
}

// Blocked applies the block penalty to the user who was blocked.
func (s *Scorer) Blocked(ctx context.Context, blockedID string) error {
	if err := s.store.UpdateReputation(ctx, blockedID, DeltaBlocked); err != nil {
		return fmt.Errorf("reputation: blocked %s: %w", blockedID, err)
	}
	return nil
}

// ForgetSkips drops a user's skip history, releasing its memory. Called when
// the user is banned and their skip velocity no longer matters.
func (s *Scorer) ForgetSkips(userID string) {
	s.skips.Forget(userID)
}

// Reconnected awards the reconnect bonus to the requesting user.
func (s *Scorer) Reconnected(ctx context.Context, userID string) error {
	if err := s.store.UpdateReputation(ctx, userID, DeltaReconnect); err != nil {
		return fmt.Errorf("reputation: reconnect %s: %w", userID, err)
	}
	return nil
}
