package detection

import (
	"time"

	"github.com/marketshield/fraud-detection-engine/internal/domain/errors"
	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
)

// Profile returns a copy of the user's risk profile. Users who have never
// been assessed have no profile.
func (s *Service) Profile(userID string) (*fraud.UserRiskProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, errors.ErrProfileNotFound
	}
	snapshot := *p
	return &snapshot, nil
}

// FlagUser attaches an account flag to the user's profile, creating the
// profile if the user has never been assessed.
func (s *Service) FlagUser(userID string, flag fraud.AccountFlag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		p = fraud.NewUserRiskProfile(userID)
		s.profiles[userID] = p
	}
	p.AddFlag(flag)
}

// SetAccountCreatedAt records when the user's platform account was created,
// which drives the account-age scoring adjustments.
func (s *Service) SetAccountCreatedAt(userID string, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		p = fraud.NewUserRiskProfile(userID)
		s.profiles[userID] = p
	}
	if p.AccountCreatedAt.IsZero() {
		p.AccountCreatedAt = createdAt
	}
}
