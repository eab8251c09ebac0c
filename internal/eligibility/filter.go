// Package eligibility decides whether a candidate is a legal match target
// for a requester. Hard exclusions apply in every mode; mode predicates and
// premium gating apply on top.
package eligibility

import (
	"strings"

	"github.com/kanchu397/Chatogram/internal/profile"
)

// ReportBanThreshold is the number of reports at which a user is banned.
// Candidates at or above it should already carry the banned flag; the filter
// re-checks the counter anyway.
const ReportBanThreshold = 3

// Request describes one search request's filter.
type Request struct {
	Mode         profile.Mode
	TargetGender string // gender mode only
}

// RequiresPremium reports whether the mode is gated behind premium status.
// Open mode is free; attribute-filtered searches are a premium feature.
func RequiresPremium(mode profile.Mode) bool {
	return mode == profile.ModeGender || mode == profile.ModeCity || mode == profile.ModeInterests
}

// IsEligible reports whether candidate is a legal match target for requester
// under the given request. Blocks are directional and not mirrored in
// storage, so both directions are checked explicitly.
func IsEligible(requester, candidate *profile.UserProfile, req Request) bool {
	if candidate.ID == requester.ID {
		return false
	}
	if candidate.Banned {
		return false
	}
	if candidate.ReportCount >= ReportBanThreshold {
		return false
	}
	if candidate.HasBlocked(requester.ID) || requester.HasBlocked(candidate.ID) {
		return false
	}
	if RequiresPremium(req.Mode) && !requester.IsPremium() {
		return false
	}

	switch req.Mode {
	case profile.ModeGender:
		return strings.EqualFold(candidate.Gender, req.TargetGender)
	case profile.ModeCity:
		return strings.EqualFold(candidate.City, requester.City)
	case profile.ModeInterests:
		return requester.SharesInterest(candidate)
	}
	return true
}
