package billing

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pixsuite/pixsuite/app/models"
)

// Repository covers the persistence the billing service needs: user
// entitlement writes, the subscription upsert and webhook deduplication.
type Repository interface {
	GetUserByID(id uint) (*models.User, error)
	UpdateUserEntitlement(userID uint, plan string, usageCount, usageLimit int, customerRef string, expiresAt time.Time) error
	RevertUserToFree(userID uint, usageLimit int) error

	GetSubscriptionByOrderRef(orderRef string) (*models.Subscription, error)
	UpsertSubscription(sub *models.Subscription) error
	TouchSubscription(id uint) error

	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (created bool, err error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) UpdateUserEntitlement(userID uint, plan string, usageCount, usageLimit int, customerRef string, expiresAt time.Time) error {
	updates := map[string]interface{}{
		"plan":                    plan,
		"usage_count":             usageCount,
		"usage_limit":             usageLimit,
		"subscription_expires_at": expiresAt,
	}
	if customerRef != "" {
		updates["razorpay_customer_id"] = customerRef
	}
	return r.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error
}

// RevertUserToFree drops the plan and limit back to the Free tier. The usage
// count is deliberately left alone: a failed payment is not a quota refund.
func (r *gormRepository) RevertUserToFree(userID uint, usageLimit int) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"plan":        "Free",
		"usage_limit": usageLimit,
	}).Error
}

func (r *gormRepository) GetSubscriptionByOrderRef(orderRef string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("razorpay_order_id = ?", orderRef).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// UpsertSubscription inserts or replaces the single subscription row a user
// may hold. The unique index on user_id turns concurrent confirmations for
// the same purchase into an update of the same row.
func (r *gormRepository) UpsertSubscription(sub *models.Subscription) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"plan", "razorpay_order_id", "razorpay_customer_id", "expires_at", "updated_at"}),
	}).Create(sub).Error
	if err != nil {
		return err
	}
	return r.db.Where("user_id = ?", sub.UserID).First(sub).Error
}

func (r *gormRepository) TouchSubscription(id uint) error {
	return r.db.Model(&models.Subscription{}).Where("id = ?", id).
		UpdateColumn("updated_at", time.Now()).Error
}

// CreateWebhookEventIfNotExists records the delivery unless the same
// (provider, event id) pair was already stored. Returns false for replays.
func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(event).Error
	return false, err
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed_at":     now,
		"processing_error": processingError,
	}).Error
}
