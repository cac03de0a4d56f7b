package router

import (
	"github.com/gofiber/fiber/v2"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/pixsuite/pixsuite/app/controllers"
	"github.com/pixsuite/pixsuite/internal/pkg/middleware"
	"github.com/pixsuite/pixsuite/internal/pkg/oauth"
	"github.com/pixsuite/pixsuite/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// init oauth providers
	oauth.Setup()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	// OAuth flow
	app.Get("/auth/:provider", gothfiber.BeginAuthHandler)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)

	app.Post("/logout", controllers.HandleAuthLogout)

	// Gateway webhooks live outside /api: no session, signature-verified.
	app.Post("/webhooks/razorpay", controllers.HandleRazorpayWebhook)
	app.Get("/webhooks/razorpay", controllers.HandleRazorpayWebhookPing)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
