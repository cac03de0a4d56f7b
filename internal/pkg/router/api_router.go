package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/pixsuite/pixsuite/app/controllers"
	"github.com/pixsuite/pixsuite/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// Anonymous usage ledger; session resolution happens in the handlers.
	v1.Get("/usage/free", controllers.HandleGetFreeUsage)
	v1.Post("/usage/free", controllers.HandleConsumeFreeUsage)

	// Plan catalog is public.
	v1.Get("/plans", controllers.HandleGetPlans)

	// Upload sessions work for both subject kinds.
	v1.Post("/upload/sessions", controllers.HandleCreateUploadSession)

	// Everything below requires a logged-in session.
	v1.Get("/usage", middleware.RequireAPISessionAuth, controllers.HandleGetUsage)
	v1.Post("/usage", middleware.RequireAPISessionAuth, controllers.HandleConsumeUsage)
	v1.Post("/usage/transfer", middleware.RequireAPISessionAuth, controllers.HandleTransferUsage)

	v1.Get("/account", middleware.RequireAPISessionAuth, controllers.HandleGetAccount)
	v1.Patch("/account", middleware.RequireAPISessionAuth, controllers.HandleUpdateAccount)

	v1.Post("/billing/orders", middleware.RequireAPISessionAuth, controllers.HandleCreateOrder)
	v1.Post("/billing/verify", middleware.RequireAPISessionAuth, controllers.HandleVerifyPayment)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
