// Package profile defines the user profile model and the store contract the
// matching engine requires from its persistence collaborator. The engine only
// reads and writes the subset of profile fields that drive matching, trust
// and safety decisions; profile editing and onboarding live elsewhere.
package profile

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store implementations when no profile exists
// for the requested id.
var ErrNotFound = errors.New("profile: not found")

// Mode identifies the attribute filter applied to a search request.
type Mode string

const (
	ModeOpen      Mode = "open"
	ModeGender    Mode = "gender"
	ModeCity      Mode = "city"
	ModeInterests Mode = "interests"
)

// Valid reports whether m is a known search mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeOpen, ModeGender, ModeCity, ModeInterests:
		return true
	}
	return false
}

// UserProfile is the engine's view of a platform user. The id is the opaque
// stable identifier assigned by the messaging platform.
type UserProfile struct {
	ID              string
	Gender          string
	City            string
	Interests       []string
	Banned          bool
	Online          bool
	Blocked         []string // ids this user has blocked (directional)
	ReportCount     int
	ReputationScore int
	PremiumUntil    *time.Time
	LastPartnerID   string
	SafetyNotified  bool
	MessageCount    int64
}

// IsPremium reports whether the user's premium subscription is active.
func (u *UserProfile) IsPremium() bool {
	return u.PremiumUntil != nil && u.PremiumUntil.After(time.Now())
}

// HasBlocked reports whether this user has blocked the given id. The relation
// is directional and is checked both ways by the eligibility filter.
func (u *UserProfile) HasBlocked(id string) bool {
	for _, b := range u.Blocked {
		if b == id {
			return true
		}
	}
	return false
}

// SharesInterest reports whether the two users have at least one interest
// tag in common.
func (u *UserProfile) SharesInterest(other *UserProfile) bool {
	if len(u.Interests) == 0 || len(other.Interests) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(u.Interests))
	for _, tag := range u.Interests {
		set[tag] = struct{}{}
	}
	for _, tag := range other.Interests {
		if _, ok := set[tag]; ok {
			return true
		}
	}
	return false
}

// CandidateFilter encodes the candidate pool query: the set of currently
// searching users, the requester's hard exclusions, and the mode predicate.
type CandidateFilter struct {
	RequesterID      string
	CandidateIDs     []string // restrict to these ids (the waiting set)
	RequesterBlocked []string // ids the requester has blocked
	MaxReportCount   int      // exclusive upper bound (ban-trigger threshold)

	Mode         Mode
	TargetGender string   // gender mode
	City         string   // city mode: requester's city
	Interests    []string // interests mode: requester's interest tags
}

// Store is the profile-store collaborator contract. Implementations must be
// safe for concurrent use; every method is a single bounded operation so a
// failing store fails exactly one engine operation.
type Store interface {
	// EnsureProfile creates an empty profile row for id if none exists.
	EnsureProfile(ctx context.Context, id string) error
	GetProfile(ctx context.Context, id string) (*UserProfile, error)
	QueryCandidates(ctx context.Context, filter CandidateFilter) ([]*UserProfile, error)

	UpdateReputation(ctx context.Context, id string, delta int) error
	// IncrementReportCount bumps the monotonic report counter and returns
	// the new value so callers can apply the ban-trigger threshold.
	IncrementReportCount(ctx context.Context, id string) (int, error)
	SetBanned(ctx context.Context, id string) error

	SetOnline(ctx context.Context, id string, online bool) error
	SetLastPartner(ctx context.Context, id, partnerID string) error
	AppendBlocked(ctx context.Context, id, blockedID string) error
	MarkSafetyNotified(ctx context.Context, id string) error
	IncrementMessageCount(ctx context.Context, id string) error

	// DecayReputation moves every non-zero reputation score one step toward
	// zero and returns the number of profiles touched. Decay alone never
	// pushes a score below zero.
	DecayReputation(ctx context.Context) (int64, error)
}
