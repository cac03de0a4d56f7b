package controllers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pixsuite/pixsuite/internal/pkg/env"
	"github.com/pixsuite/pixsuite/internal/pkg/usage"
)

// AnonCookieName carries the anonymous session token across visits.
const AnonCookieName = "pixsuite-anon"

// anonCookieMaxAge keeps recovered sessions addressable for a year.
const anonCookieMaxAge = 365 * 24 * time.Hour

func setAnonCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     AnonCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		HTTPOnly: true,
		Secure:   !env.IsDev(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func clearAnonCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     AnonCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   !env.IsDev(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// GetClientIP determines the actual client IP address considering proxies.
// The first X-Forwarded-For entry is the original client.
func GetClientIP(c *fiber.Ctx) string {
	xff := c.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	if realIP := strings.TrimSpace(c.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	return c.IP()
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// quotaExceededResponse is the 403 body for an exhausted ledger: the error
// field clients key on, next to the unchanged snapshot.
type quotaExceededResponse struct {
	Error string `json:"error"`
	usage.Snapshot
}

func jsonQuotaExceeded(c *fiber.Ctx, snap usage.Snapshot, message string) error {
	return c.Status(fiber.StatusForbidden).JSON(quotaExceededResponse{Error: message, Snapshot: snap})
}
