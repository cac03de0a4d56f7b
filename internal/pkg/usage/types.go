package usage

import (
	"errors"
	"time"

	"github.com/pixsuite/pixsuite/app/models"
	"github.com/pixsuite/pixsuite/internal/pkg/entitlements"
)

// ErrQuotaExceeded is returned by the consume operations when the subject has
// no remaining quota. The accompanying snapshot is the unmodified state.
var ErrQuotaExceeded = errors.New("usage limit reached")

// Snapshot is the ledger state reported to clients for both subject kinds.
// SubscriptionExpiresAt is only set for accounts on a paid plan.
type Snapshot struct {
	UsageCount            int        `json:"usageCount"`
	UsageLimit            int        `json:"usageLimit"`
	CanUpload             bool       `json:"canUpload"`
	Plan                  string     `json:"plan"`
	SubscriptionExpiresAt *time.Time `json:"subscriptionExpiresAt,omitempty"`
}

// SessionSnapshot builds a snapshot for an anonymous session. Anonymous
// visitors are always on the free tier.
func SessionSnapshot(s *models.AnonymousSession) Snapshot {
	return Snapshot{
		UsageCount: s.UsageCount,
		UsageLimit: s.UsageLimit,
		CanUpload:  s.UsageCount < s.UsageLimit,
		Plan:       string(entitlements.PlanFree),
	}
}

// AccountSnapshot builds a snapshot for an authenticated account.
func AccountSnapshot(u *models.User) Snapshot {
	return Snapshot{
		UsageCount:            u.UsageCount,
		UsageLimit:            u.UsageLimit,
		CanUpload:             u.UsageCount < u.UsageLimit,
		Plan:                  string(entitlements.Normalize(u.Plan)),
		SubscriptionExpiresAt: u.SubscriptionExpiresAt,
	}
}

// Resolution is the outcome of resolving an inbound request to an anonymous
// session. When IsNew is set the caller must (re)issue the session cookie.
type Resolution struct {
	Session *models.AnonymousSession
	IsNew   bool
}

// TransferResult reports the outcome of merging anonymous usage into an
// account. ClearCookie signals a stale cookie whose session row is gone.
type TransferResult struct {
	Transferred bool   `json:"transferred"`
	UsageCount  int    `json:"usageCount,omitempty"`
	ClearCookie bool   `json:"-"`
	Message     string `json:"message,omitempty"`
}
