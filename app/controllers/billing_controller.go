package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/pixsuite/pixsuite/internal/pkg/billing"
	"github.com/pixsuite/pixsuite/internal/pkg/database"
	"github.com/pixsuite/pixsuite/internal/pkg/entitlements"
	"github.com/pixsuite/pixsuite/internal/pkg/usercontext"
)

type createOrderRequest struct {
	Plan string `json:"plan"`
}

// HandleCreateOrder issues a gateway order for a plan upgrade. The target
// plan defaults to Lite when omitted.
func HandleCreateOrder(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req createOrderRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
		}
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	resp, err := svc.CreateUpgradeOrder(ctx, userCtx.UserID, req.Plan)
	if err != nil {
		var invalid *billing.InvalidTransitionError
		switch {
		case errors.As(err, &invalid):
			return jsonError(c, fiber.StatusBadRequest, "invalid_transition", invalid.Message)
		case errors.Is(err, billing.ErrAccountNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		case errors.Is(err, billing.ErrGateway):
			log.Errorf("[Billing] order creation failed for user %d: %v", userCtx.UserID, err)
			return jsonError(c, fiber.StatusInternalServerError, "gateway_error", "Failed to create payment order")
		default:
			log.Errorf("[Billing] order creation failed for user %d: %v", userCtx.UserID, err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create payment order")
		}
	}

	return c.JSON(resp)
}

type verifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// HandleVerifyPayment confirms a checkout-callback payment: signature check,
// order re-fetch and the entitlement update.
func HandleVerifyPayment(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req verifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	plan, err := svc.ConfirmClientPayment(ctx, userCtx.UserID, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidPayload):
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "Missing payment verification fields")
		case errors.Is(err, billing.ErrSignatureMismatch):
			return jsonError(c, fiber.StatusBadRequest, "invalid_signature", "Payment signature verification failed")
		case errors.Is(err, billing.ErrAccountNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		case errors.Is(err, billing.ErrGateway):
			log.Errorf("[Billing] payment verification failed for user %d: %v", userCtx.UserID, err)
			return jsonError(c, fiber.StatusInternalServerError, "gateway_error", "Failed to verify payment with gateway")
		default:
			log.Errorf("[Billing] payment verification failed for user %d: %v", userCtx.UserID, err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to verify payment")
		}
	}

	return c.JSON(fiber.Map{"success": true, "plan": string(plan)})
}

// HandleRazorpayWebhook receives gateway event deliveries. The signature is
// computed over the raw request body, so it is copied before any parsing.
func HandleRazorpayWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Razorpay-Signature"))
	eventID := strings.TrimSpace(c.Get("X-Razorpay-Event-Id"))

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := svc.HandleWebhook(ctx, rawBody, signature, eventID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrSignatureMismatch):
			return jsonError(c, fiber.StatusBadRequest, "invalid_signature", "Webhook signature verification failed")
		case errors.Is(err, billing.ErrInvalidPayload):
			return jsonError(c, fiber.StatusBadRequest, "invalid_payload", "Malformed webhook payload")
		case errors.Is(err, billing.ErrOrderMetadataMissing):
			log.Errorf("[Billing] webhook order metadata missing: %v", err)
			return jsonError(c, fiber.StatusBadRequest, "order_metadata_missing", "Order notes are missing the account reference")
		case errors.Is(err, billing.ErrAccountNotFound):
			log.Errorf("[Billing] webhook references unknown account: %v", err)
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		default:
			log.Errorf("[Billing] webhook processing failed: %v", err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to process webhook")
		}
	}

	if result.Duplicate {
		return c.JSON(fiber.Map{"received": true, "duplicate": true})
	}
	return c.JSON(fiber.Map{"received": true})
}

// HandleRazorpayWebhookPing answers the gateway's endpoint validation probe.
func HandleRazorpayWebhookPing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// HandleGetPlans lists the purchasable tiers with display pricing.
func HandleGetPlans(c *fiber.Ctx) error {
	plans := []entitlements.Plan{entitlements.PlanFree, entitlements.PlanLite, entitlements.PlanPro}

	out := make([]fiber.Map, 0, len(plans))
	for _, p := range plans {
		inr, usd := "0", "0"
		if p != entitlements.PlanFree {
			inr = entitlements.DisplayPriceINR(entitlements.PlanFree, p)
			usd = entitlements.DisplayPriceUSD(entitlements.PlanFree, p)
		}
		out = append(out, fiber.Map{
			"plan":            string(p),
			"usageLimit":      entitlements.Limit(p),
			"priceINRPaise":   entitlements.Price(p),
			"displayPriceINR": inr,
			"displayPriceUSD": usd,
		})
	}

	return c.JSON(fiber.Map{"plans": out})
}
