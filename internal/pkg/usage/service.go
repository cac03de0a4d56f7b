package usage

import (
	"errors"

	"github.com/pixsuite/pixsuite/app/models"
	"gorm.io/gorm"
)

// Service implements the usage ledger: anonymous session resolution,
// check/consume for both subject kinds and the one-shot usage transfer.
type Service struct {
	repo Repository
}

// NewService creates a usage service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a usage service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// ResolveSession maps a cookie token and client IP to an anonymous session,
// creating one if nothing matches. Resolution order: token lookup (with an
// opportunistic IP refresh), then recovery of the most recent exhausted
// session on the same IP, then a fresh session. IsNew is set whenever the
// caller must issue the cookie, including the recovery case.
func (s *Service) ResolveSession(token, ip string) (*Resolution, error) {
	if token != "" {
		sess, err := s.repo.GetSessionByToken(token)
		if err == nil {
			if ip != "" && sess.IPAddress != ip {
				if err := s.repo.UpdateSessionIP(sess.ID, ip); err == nil {
					sess.IPAddress = ip
				}
			}
			return &Resolution{Session: sess}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if ip != "" {
		sess, err := s.repo.FindExhaustedSessionByIP(ip)
		if err == nil {
			// Re-attach the lost session: counters are reused as-is, the
			// cookie is re-issued. Shared-IP false positives are accepted.
			return &Resolution{Session: sess, IsNew: true}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	sess := models.NewAnonymousSession(ip)
	if err := s.repo.CreateSession(sess); err != nil {
		return nil, err
	}
	return &Resolution{Session: sess, IsNew: true}, nil
}

// LookupSession resolves like ResolveSession but never creates a session.
// It returns (nil, nil) when nothing matches.
func (s *Service) LookupSession(token, ip string) (*models.AnonymousSession, error) {
	if token != "" {
		sess, err := s.repo.GetSessionByToken(token)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if ip != "" {
		sess, err := s.repo.FindExhaustedSessionByIP(ip)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	return nil, nil
}

// ConsumeSession reserves one usage unit on an anonymous session. On
// exhausted quota it returns ErrQuotaExceeded together with the unmodified
// snapshot; the caller must not perform the metered action.
func (s *Service) ConsumeSession(id uint) (Snapshot, error) {
	sess, consumed, err := s.repo.ConsumeSession(id)
	if err != nil {
		return Snapshot{}, err
	}
	snap := SessionSnapshot(sess)
	if !consumed {
		return snap, ErrQuotaExceeded
	}
	return snap, nil
}

// CheckAccount returns the current ledger state for an account without mutation.
func (s *Service) CheckAccount(userID uint) (Snapshot, *models.User, error) {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return Snapshot{}, nil, err
	}
	return AccountSnapshot(user), user, nil
}

// ConsumeAccount reserves one usage unit on an authenticated account.
func (s *Service) ConsumeAccount(userID uint) (Snapshot, error) {
	user, consumed, err := s.repo.ConsumeUser(userID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := AccountSnapshot(user)
	if !consumed {
		return snap, ErrQuotaExceeded
	}
	return snap, nil
}

// Transfer merges anonymous usage into an account after sign-in: both rows
// end up at the max of the two counters, so credits used anonymously are not
// refunded by logging in and neither side ever decreases. The session stays
// in sync afterwards but the account is authoritative from here on.
func (s *Service) Transfer(userID uint, token, ip string) (*TransferResult, error) {
	if token == "" && ip == "" {
		return &TransferResult{Message: "No anonymous session found"}, nil
	}

	sess, err := s.LookupSession(token, ip)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return &TransferResult{
			Message:     "Anonymous session not found",
			ClearCookie: token != "",
		}, nil
	}

	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return nil, err
	}

	merged := user.UsageCount
	if sess.UsageCount > merged {
		merged = sess.UsageCount
	}

	if err := s.repo.SetUserUsageCount(user.ID, merged); err != nil {
		return nil, err
	}
	if err := s.repo.SetSessionUsageCount(sess.ID, merged); err != nil {
		return nil, err
	}

	return &TransferResult{Transferred: true, UsageCount: merged}, nil
}
