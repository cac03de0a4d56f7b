package repository

import (
	"github.com/pixsuite/pixsuite/app/models"
)

// UserRepository defines the account persistence used by controllers.
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	UpdateName(id uint, name string) error
	UpdateLastLogin(id uint) error
}

// ProviderAccountRepository links OAuth identities to accounts.
type ProviderAccountRepository interface {
	GetByProviderID(provider, providerUserID string) (*models.ProviderAccount, error)
	Create(account *models.ProviderAccount) error
}

// Repositories bundles all repository instances.
type Repositories struct {
	User            UserRepository
	ProviderAccount ProviderAccountRepository
}
