package profile

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store used by tests and single-node local
// runs. All methods are safe for concurrent use.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*UserProfile
}

// NewMemoryStore returns an empty in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*UserProfile)}
}

// Put inserts or replaces a profile. Intended for test setup.
func (s *MemoryStore) Put(u *UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

func (s *MemoryStore) EnsureProfile(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		s.users[id] = &UserProfile{ID: id}
	}
	return nil
}

func (s *MemoryStore) GetProfile(_ context.Context, id string) (*UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	cp.Interests = append([]string(nil), u.Interests...)
	cp.Blocked = append([]string(nil), u.Blocked...)
	return &cp, nil
}

func (s *MemoryStore) QueryCandidates(ctx context.Context, filter CandidateFilter) ([]*UserProfile, error) {
	blocked := make(map[string]struct{}, len(filter.RequesterBlocked))
	for _, id := range filter.RequesterBlocked {
		blocked[id] = struct{}{}
	}

	var out []*UserProfile
	for _, id := range filter.CandidateIDs {
		if id == filter.RequesterID {
			continue
		}
		u, err := s.GetProfile(ctx, id)
		if err != nil {
			continue
		}
		if u.Banned || u.ReportCount >= filter.MaxReportCount {
			continue
		}
		if _, ok := blocked[u.ID]; ok {
			continue
		}
		if u.HasBlocked(filter.RequesterID) {
			continue
		}
		switch filter.Mode {
		case ModeGender:
			if !strings.EqualFold(u.Gender, filter.TargetGender) {
				continue
			}
		case ModeCity:
			if !strings.EqualFold(u.City, filter.City) {
				continue
			}
		case ModeInterests:
			req := &UserProfile{Interests: filter.Interests}
			if !u.SharesInterest(req) {
				continue
			}
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *MemoryStore) UpdateReputation(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.ReputationScore += delta
	return nil
}

func (s *MemoryStore) IncrementReportCount(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return 0, ErrNotFound
	}
	u.ReportCount++
	return u.ReportCount, nil
}

func (s *MemoryStore) SetBanned(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Banned = true
	return nil
}

func (s *MemoryStore) SetOnline(_ context.Context, id string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Online = online
	return nil
}

func (s *MemoryStore) SetLastPartner(_ context.Context, id, partnerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.LastPartnerID = partnerID
	return nil
}

func (s *MemoryStore) AppendBlocked(_ context.Context, id, blockedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	if !u.HasBlocked(blockedID) {
		u.Blocked = append(u.Blocked, blockedID)
	}
	return nil
}

func (s *MemoryStore) MarkSafetyNotified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.SafetyNotified = true
	return nil
}

func (s *MemoryStore) IncrementMessageCount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.MessageCount++
	return nil
}

func (s *MemoryStore) DecayReputation(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		switch {
		case u.ReputationScore > 0:
			u.ReputationScore--
			n++
		case u.ReputationScore < 0:
			u.ReputationScore++
			n++
		}
	}
	return n, nil
}
