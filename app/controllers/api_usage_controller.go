package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/pixsuite/pixsuite/internal/pkg/database"
	"github.com/pixsuite/pixsuite/internal/pkg/usage"
	"github.com/pixsuite/pixsuite/internal/pkg/usercontext"
)

// HandleGetFreeUsage reports the anonymous quota for the caller's session,
// resolving (or creating) it from the cookie and client IP.
func HandleGetFreeUsage(c *fiber.Ctx) error {
	svc := usage.NewServiceFromDB(database.GetDB())

	res, err := svc.ResolveSession(c.Cookies(AnonCookieName), GetClientIP(c))
	if err != nil {
		log.Errorf("[Usage] failed to resolve anonymous session: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to resolve session")
	}
	if res.IsNew {
		setAnonCookie(c, res.Session.SessionID)
	}

	return c.JSON(usage.SessionSnapshot(res.Session))
}

// HandleConsumeFreeUsage reserves one anonymous usage unit. An exhausted
// session answers 403 with the unchanged ledger snapshot.
func HandleConsumeFreeUsage(c *fiber.Ctx) error {
	svc := usage.NewServiceFromDB(database.GetDB())

	res, err := svc.ResolveSession(c.Cookies(AnonCookieName), GetClientIP(c))
	if err != nil {
		log.Errorf("[Usage] failed to resolve anonymous session: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to resolve session")
	}
	if res.IsNew {
		setAnonCookie(c, res.Session.SessionID)
	}

	snap, err := svc.ConsumeSession(res.Session.ID)
	if err != nil {
		if errors.Is(err, usage.ErrQuotaExceeded) {
			return jsonQuotaExceeded(c, snap, "Free usage limit reached")
		}
		log.Errorf("[Usage] failed to consume session %d: %v", res.Session.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to record usage")
	}

	return c.JSON(snap)
}

// HandleGetUsage reports the quota of the authenticated account.
func HandleGetUsage(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	svc := usage.NewServiceFromDB(database.GetDB())

	snap, user, err := svc.CheckAccount(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		log.Errorf("[Usage] failed to load account %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load usage")
	}
	if user == nil {
		return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
	}

	return c.JSON(snap)
}

// HandleConsumeUsage reserves one usage unit on the authenticated account.
func HandleConsumeUsage(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	svc := usage.NewServiceFromDB(database.GetDB())

	snap, err := svc.ConsumeAccount(userCtx.UserID)
	if err != nil {
		if errors.Is(err, usage.ErrQuotaExceeded) {
			return jsonQuotaExceeded(c, snap, "Usage limit reached")
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		log.Errorf("[Usage] failed to consume for account %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to record usage")
	}

	return c.JSON(snap)
}

// HandleTransferUsage merges the caller's anonymous usage into their account
// after sign-in. Idempotent: repeating the call does not change the outcome.
func HandleTransferUsage(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	svc := usage.NewServiceFromDB(database.GetDB())

	result, err := svc.Transfer(userCtx.UserID, c.Cookies(AnonCookieName), GetClientIP(c))
	if err != nil {
		log.Errorf("[Usage] transfer failed for account %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to transfer usage")
	}
	if result.ClearCookie {
		clearAnonCookie(c)
	}

	return c.JSON(result)
}
