package models

import (
	"time"

	"github.com/google/uuid"
)

// FreeUsageLimit is the quota granted to an anonymous visitor session.
// It is fixed for the lifetime of the session.
const FreeUsageLimit = 3

// AnonymousSession tracks pre-authentication usage, keyed by a cookie token
// with a best-effort IP for recovery when the cookie is lost. It is never
// promoted to a User; its count is copied once by the transfer operation.
type AnonymousSession struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  string    `gorm:"uniqueIndex;type:varchar(64);not null" json:"session_id"`
	IPAddress  string    `gorm:"type:varchar(45);index;default:null" json:"-"`
	UsageCount int       `gorm:"not null;default:0" json:"usage_count"`
	UsageLimit int       `gorm:"not null;default:3" json:"usage_limit"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`
}

// NewAnonymousSession creates a fresh session with a random token and the
// free-tier quota.
func NewAnonymousSession(ip string) *AnonymousSession {
	return &AnonymousSession{
		SessionID:  uuid.NewString(),
		IPAddress:  ip,
		UsageCount: 0,
		UsageLimit: FreeUsageLimit,
	}
}

// IsExhausted reports whether the session has used up its quota.
func (s *AnonymousSession) IsExhausted() bool {
	return s.UsageCount >= s.UsageLimit
}
