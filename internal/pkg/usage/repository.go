package usage

import (
	"github.com/pixsuite/pixsuite/app/models"
	"gorm.io/gorm"
)

// Repository provides DB operations used by the usage service.
type Repository interface {
	GetSessionByToken(token string) (*models.AnonymousSession, error)
	FindExhaustedSessionByIP(ip string) (*models.AnonymousSession, error)
	CreateSession(s *models.AnonymousSession) error
	UpdateSessionIP(id uint, ip string) error
	ConsumeSession(id uint) (*models.AnonymousSession, bool, error)
	SetSessionUsageCount(id uint, count int) error

	GetUserByID(id uint) (*models.User, error)
	ConsumeUser(id uint) (*models.User, bool, error)
	SetUserUsageCount(id uint, count int) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a usage repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetSessionByToken(token string) (*models.AnonymousSession, error) {
	var s models.AnonymousSession
	if err := r.db.Where("session_id = ?", token).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// FindExhaustedSessionByIP returns the most recently updated session for the
// IP whose quota is used up. This is the cookie-loss recovery heuristic: an
// exhausted session on the same address likely belongs to the same visitor.
func (r *gormRepository) FindExhaustedSessionByIP(ip string) (*models.AnonymousSession, error) {
	var s models.AnonymousSession
	err := r.db.
		Where("ip_address = ? AND usage_count >= usage_limit", ip).
		Order("updated_at DESC").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) CreateSession(s *models.AnonymousSession) error {
	return r.db.Create(s).Error
}

func (r *gormRepository) UpdateSessionIP(id uint, ip string) error {
	return r.db.Model(&models.AnonymousSession{}).Where("id = ?", id).
		UpdateColumn("ip_address", ip).Error
}

// ConsumeSession increments the counter with a single conditional UPDATE so
// concurrent consumes for the same session cannot overshoot the limit. The
// returned bool reports whether a unit was actually consumed.
func (r *gormRepository) ConsumeSession(id uint) (*models.AnonymousSession, bool, error) {
	res := r.db.Model(&models.AnonymousSession{}).
		Where("id = ? AND usage_count < usage_limit", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return nil, false, res.Error
	}

	var s models.AnonymousSession
	if err := r.db.First(&s, id).Error; err != nil {
		return nil, false, err
	}
	return &s, res.RowsAffected > 0, nil
}

func (r *gormRepository) SetSessionUsageCount(id uint, count int) error {
	return r.db.Model(&models.AnonymousSession{}).Where("id = ?", id).
		UpdateColumn("usage_count", count).Error
}

func (r *gormRepository) GetUserByID(id uint) (*models.User, error) {
	var u models.User
	if err := r.db.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// ConsumeUser is the account-side twin of ConsumeSession.
func (r *gormRepository) ConsumeUser(id uint) (*models.User, bool, error) {
	res := r.db.Model(&models.User{}).
		Where("id = ? AND usage_count < usage_limit", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return nil, false, res.Error
	}

	var u models.User
	if err := r.db.First(&u, id).Error; err != nil {
		return nil, false, err
	}
	return &u, res.RowsAffected > 0, nil
}

func (r *gormRepository) SetUserUsageCount(id uint, count int) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).
		UpdateColumn("usage_count", count).Error
}
