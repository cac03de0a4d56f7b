package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/pixsuite/pixsuite/internal/pkg/session"
	"github.com/pixsuite/pixsuite/internal/pkg/usercontext"
)

// HandleAuthLogout destroys the app session. The anonymous cookie is left
// untouched: after logout the visitor falls back to their anonymous ledger.
func HandleAuthLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.JSON(fiber.Map{"success": true})
	}

	if err := sess.Destroy(); err != nil {
		log.Errorf("[Auth] failed to destroy session: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to log out")
	}

	c.Locals(usercontext.KeyFromProtected, false)

	return c.JSON(fiber.Map{"success": true})
}
