package controllers

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/pixsuite/pixsuite/app/repository"
	"github.com/pixsuite/pixsuite/internal/pkg/entitlements"
	"github.com/pixsuite/pixsuite/internal/pkg/usercontext"
)

// HandleGetAccount returns account information for the authenticated user.
func HandleGetAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	repo := repository.GetGlobalFactory().GetUserRepository()
	account, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		log.Errorf("[Account] failed to load user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	plan := entitlements.Normalize(account.Plan)

	return c.JSON(fiber.Map{
		"id":         account.ID,
		"name":       account.Name,
		"email":      account.Email,
		"status":     account.Status,
		"plan":       string(plan),
		"usageCount": account.UsageCount,
		"usageLimit": account.UsageLimit,
		"subscription": fiber.Map{
			"active":    entitlements.IsSubscriptionActive(account.SubscriptionExpiresAt, time.Now()),
			"expiresAt": formatTimePtr(account.SubscriptionExpiresAt),
		},
		"createdAt":   account.CreatedAt.UTC().Format(time.RFC3339),
		"lastLoginAt": formatTimePtr(account.LastLoginAt),
	})
}

type updateAccountRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// HandleUpdateAccount updates the mutable profile fields (currently the
// display name). Email and plan are not client-writable.
func HandleUpdateAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req updateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validator.New().Struct(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Name must be between 1 and 100 characters")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	if _, err := repo.GetByID(userCtx.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		log.Errorf("[Account] failed to load user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	if err := repo.UpdateName(userCtx.UserID, req.Name); err != nil {
		log.Errorf("[Account] failed to update user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to update user")
	}

	return c.JSON(fiber.Map{"success": true, "name": req.Name})
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
