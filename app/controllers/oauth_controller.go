package controllers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	gothfiber "github.com/shareed2k/goth_fiber"
	"gorm.io/gorm"

	"github.com/pixsuite/pixsuite/app/models"
	"github.com/pixsuite/pixsuite/app/repository"
	"github.com/pixsuite/pixsuite/internal/pkg/database"
	"github.com/pixsuite/pixsuite/internal/pkg/session"
	"github.com/pixsuite/pixsuite/internal/pkg/usercontext"
)

// HandleOAuthCallback completes the provider flow and logs the user in.
// After the session is established the client is expected to call the usage
// transfer endpoint so anonymous credits follow the account.
func HandleOAuthCallback(c *fiber.Ctx) error {
	u, err := gothfiber.CompleteUserAuth(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString(fmt.Sprintf("OAuth failed: %v", err))
	}

	db := database.GetDB()
	repos := repository.GetGlobalFactory()

	pa, err := repos.GetProviderAccountRepository().GetByProviderID(u.Provider, u.UserID)

	var appUser *models.User
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Optional email match if provided
		if u.Email != "" {
			appUser, _ = repos.GetUserRepository().GetByEmail(u.Email)
		}
		if appUser == nil {
			// Create new user with a random placeholder password; OAuth
			// accounts never log in with it.
			placeholder := fmt.Sprintf("oauth_%d", time.Now().UnixNano())
			hash, _ := models.HashPassword(placeholder)
			email := u.Email
			if email == "" {
				// Ensure unique, non-empty email to satisfy the unique index
				email = fmt.Sprintf("%s_%s@%s.oauth.local", u.Provider, u.UserID, u.Provider)
			}
			appUser = &models.User{
				Name:       firstNonEmpty(u.Name, u.NickName, u.Email, "User"),
				Email:      email,
				Password:   hash,
				AvatarURL:  u.AvatarURL,
				Status:     models.STATUS_ACTIVE,
				Role:       models.ROLE_USER,
				Plan:       "Free",
				UsageLimit: models.FreeUsageLimit,
			}
			if err := repos.GetUserRepository().Create(appUser); err != nil {
				return c.Status(fiber.StatusInternalServerError).SendString(fmt.Sprintf("create user failed: %v", err))
			}
		}
		var exp *time.Time
		if !u.ExpiresAt.IsZero() {
			t := u.ExpiresAt
			exp = &t
		}
		pa = &models.ProviderAccount{
			UserID:         appUser.ID,
			Provider:       u.Provider,
			ProviderUserID: u.UserID,
			AccessToken:    u.AccessToken,
			RefreshToken:   u.RefreshToken,
			ExpiresAt:      exp,
		}
		if err := repos.GetProviderAccountRepository().Create(pa); err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString(fmt.Sprintf("link provider failed: %v", err))
		}
	} else if err == nil {
		// Refresh tokens on the existing link
		pa.AccessToken = u.AccessToken
		pa.RefreshToken = u.RefreshToken
		if !u.ExpiresAt.IsZero() {
			t := u.ExpiresAt
			pa.ExpiresAt = &t
		} else {
			pa.ExpiresAt = nil
		}
		if err := db.Save(pa).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString(fmt.Sprintf("update tokens failed: %v", err))
		}
		appUser, err = repos.GetUserRepository().GetByID(pa.UserID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("linked user not found")
		}
	} else {
		return c.Status(fiber.StatusInternalServerError).SendString(fmt.Sprintf("db error: %v", err))
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("session init failed")
	}
	sess.Set(usercontext.AuthKey, true)
	sess.Set(usercontext.KeyUserID, appUser.ID)
	sess.Set(usercontext.KeyUsername, appUser.Name)
	sess.Set(usercontext.KeyIsAdmin, appUser.Role == models.ROLE_ADMIN)
	plan := appUser.Plan
	if plan == "" {
		plan = "Free"
	}
	sess.Set("user_plan", plan)
	if err := sess.Save(); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("session save failed")
	}

	_ = repos.GetUserRepository().UpdateLastLogin(appUser.ID)

	return c.Redirect("/", fiber.StatusSeeOther)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
