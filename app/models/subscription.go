package models

import "time"

// Subscription is the gateway-facing record of a paid plan, one per user.
// The unique index on user_id makes the upsert in the entitlement update
// safe against concurrent confirmations for the same purchase.
type Subscription struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UserID             uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	Plan               string     `gorm:"type:varchar(20);not null;default:'Free'" json:"plan"`
	RazorpayOrderID    string     `gorm:"type:varchar(64);not null;index" json:"razorpay_order_id"`
	RazorpayCustomerID string     `gorm:"type:varchar(64);not null;default:''" json:"-"`
	ExpiresAt          *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
