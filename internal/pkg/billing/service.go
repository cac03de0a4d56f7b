package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pixsuite/pixsuite/app/models"
	"github.com/pixsuite/pixsuite/internal/pkg/entitlements"
	"github.com/pixsuite/pixsuite/internal/pkg/env"
)

// Config carries the gateway credentials. KeyID is public and handed to the
// checkout widget; the secrets never leave the server.
type Config struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

func ConfigFromEnv() Config {
	return Config{
		KeyID:         env.GetEnv("RAZORPAY_KEY_ID", ""),
		KeySecret:     env.GetEnv("RAZORPAY_KEY_SECRET", ""),
		WebhookSecret: env.GetEnv("RAZORPAY_WEBHOOK_SECRET", ""),
	}
}

// Service implements order issuance, both payment confirmation paths and the
// entitlement update they converge on.
type Service struct {
	repo    Repository
	gateway Gateway
	cfg     Config
	now     func() time.Time
}

func NewService(repo Repository, gateway Gateway, cfg Config) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		cfg:     cfg,
		now:     time.Now,
	}
}

func NewServiceFromDB(db *gorm.DB) *Service {
	cfg := ConfigFromEnv()
	return NewService(NewRepository(db), NewRazorpayGateway(cfg.KeyID, cfg.KeySecret), cfg)
}

// CreateUpgradeOrder validates the plan transition, prices it and issues a
// gateway order carrying the identity snapshot in its notes.
func (s *Service) CreateUpgradeOrder(ctx context.Context, userID uint, targetPlan string) (*OrderResponse, error) {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrAccountNotFound
	}

	target := entitlements.PlanLite
	if targetPlan != "" {
		target = entitlements.Normalize(targetPlan)
		if target == entitlements.PlanFree && !strings.EqualFold(strings.TrimSpace(targetPlan), "free") {
			return nil, &InvalidTransitionError{Message: "unknown plan: " + targetPlan}
		}
	}
	current := entitlements.Normalize(user.Plan)

	if target == current && entitlements.IsSubscriptionActive(user.SubscriptionExpiresAt, s.now()) {
		return nil, &InvalidTransitionError{Message: "already subscribed to the " + string(target) + " plan"}
	}
	if entitlements.Rank(target) < entitlements.Rank(current) {
		return nil, &InvalidTransitionError{Message: "downgrades are not supported"}
	}
	if target == entitlements.PlanFree {
		return nil, &InvalidTransitionError{Message: "the Free plan cannot be purchased"}
	}

	amount := entitlements.ChargeAmount(current, target)
	order, err := s.gateway.CreateOrder(ctx, CreateOrderInput{
		Amount:   amount,
		Currency: "INR",
		Receipt:  buildReceipt(user.ID, s.now()),
		Notes: OrderNotes{
			UserID:     strconv.FormatUint(uint64(user.ID), 10),
			UserEmail:  user.Email,
			Plan:       string(target),
			FromPlan:   string(current),
			UsageCount: strconv.Itoa(user.UsageCount),
		},
	})
	if err != nil {
		return nil, err
	}

	return &OrderResponse{
		OrderID:  order.ID,
		Amount:   amount,
		Currency: "INR",
		Key:      s.cfg.KeyID,
	}, nil
}

// buildReceipt keeps the reference under the gateway's 40-char receipt limit:
// the last 10 digits of the user id plus the last 8 of the issue timestamp.
func buildReceipt(userID uint, now time.Time) string {
	id := strconv.FormatUint(uint64(userID), 10)
	millis := strconv.FormatInt(now.UnixMilli(), 10)
	return fmt.Sprintf("rcpt_%s_%s", suffix(id, 10), suffix(millis, 8))
}

func suffix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// ConfirmClientPayment handles the checkout callback path: verify the
// client-side signature, re-fetch the order for its trusted notes, then run
// the entitlement update. Returns the plan that was activated.
func (s *Service) ConfirmClientPayment(ctx context.Context, userID uint, orderID, paymentID, signature string) (entitlements.Plan, error) {
	if orderID == "" || paymentID == "" || signature == "" {
		return "", ErrInvalidPayload
	}
	if !VerifyPaymentSignature(orderID, paymentID, signature, s.cfg.KeySecret) {
		return "", ErrSignatureMismatch
	}

	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrAccountNotFound
	}

	order, err := s.gateway.FetchOrder(ctx, orderID)
	if err != nil {
		return "", err
	}

	target := entitlements.PlanPro
	if order.Notes.Plan != "" {
		target = entitlements.Normalize(order.Notes.Plan)
	}
	fromPlan := entitlements.Normalize(user.Plan)
	if order.Notes.FromPlan != "" {
		fromPlan = entitlements.Normalize(order.Notes.FromPlan)
	}
	usageSnapshot := user.UsageCount
	if order.Notes.UsageCount != "" {
		if n, convErr := strconv.Atoi(order.Notes.UsageCount); convErr == nil {
			usageSnapshot = n
		}
	}

	err = s.ApplyEntitlement(ApplyEntitlementInput{
		UserID:             user.ID,
		TargetPlan:         target,
		FromPlan:           fromPlan,
		UsageCountSnapshot: usageSnapshot,
		GatewayOrderRef:    orderID,
		GatewayPaymentRef:  paymentID,
	})
	if err != nil {
		return "", err
	}
	return target, nil
}

// ApplyEntitlement is the single write path both confirmation handlers reach.
// It recomputes the quota from the paid-for plan and the pre-purchase usage
// snapshot, stamps a fresh one-month expiry and upserts the subscription row.
func (s *Service) ApplyEntitlement(in ApplyEntitlementInput) error {
	usage := entitlements.PostUpgradeUsage(in.FromPlan, in.TargetPlan, in.UsageCountSnapshot)
	expiresAt := s.now().AddDate(0, 1, 0)

	err := s.repo.UpdateUserEntitlement(in.UserID, string(in.TargetPlan), usage.UsageCount, usage.UsageLimit, in.GatewayPaymentRef, expiresAt)
	if err != nil {
		return err
	}

	return s.repo.UpsertSubscription(&models.Subscription{
		UserID:             in.UserID,
		Plan:               string(in.TargetPlan),
		RazorpayOrderID:    in.GatewayOrderRef,
		RazorpayCustomerID: in.GatewayPaymentRef,
		ExpiresAt:          &expiresAt,
	})
}

// webhookEnvelope is the slice of the gateway event we act on.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook verifies the delivery against the raw body, deduplicates it
// and dispatches payment.captured / payment.failed. Replays of processed
// events and unhandled event types are acknowledged without side effects;
// a redelivery of an event whose processing failed is retried.
func (s *Service) HandleWebhook(ctx context.Context, rawBody []byte, signature, eventID string) (*WebhookResult, error) {
	if !VerifyWebhookSignature(rawBody, signature, s.cfg.WebhookSecret) {
		return nil, ErrSignatureMismatch
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, ErrInvalidPayload
	}

	if eventID == "" {
		sum := sha256.Sum256(rawBody)
		eventID = hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:        models.PaymentProviderRazorpay,
		ProviderEventID: eventID,
		EventType:       envelope.Event,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	}
	created, err := s.repo.CreateWebhookEventIfNotExists(event)
	if err != nil {
		return nil, err
	}
	if !created {
		// Only a successfully processed event counts as a duplicate. A
		// redelivery after a failed or interrupted attempt runs the handlers
		// again; the entitlement update itself is idempotent.
		if event.ProcessedAt != nil && event.ProcessingError == "" {
			return &WebhookResult{EventType: envelope.Event, Duplicate: true}, nil
		}
	}

	result := &WebhookResult{EventType: envelope.Event}
	switch envelope.Event {
	case "payment.captured":
		err = s.handlePaymentCaptured(ctx, &envelope)
	case "payment.failed":
		err = s.handlePaymentFailed(&envelope)
	default:
		log.Printf("[Billing] ignoring webhook event type %q", envelope.Event)
		result.Ignored = true
	}

	procErr := ""
	if err != nil {
		procErr = err.Error()
	}
	if markErr := s.repo.MarkWebhookProcessed(event.ID, procErr); markErr != nil {
		log.Printf("[Billing] failed to mark webhook %d processed: %v", event.ID, markErr)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) handlePaymentCaptured(ctx context.Context, envelope *webhookEnvelope) error {
	orderID := envelope.Payload.Payment.Entity.OrderID
	if orderID == "" {
		return ErrInvalidPayload
	}

	order, err := s.gateway.FetchOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Notes.UserID == "" {
		return ErrOrderMetadataMissing
	}
	userID, err := strconv.ParseUint(order.Notes.UserID, 10, 64)
	if err != nil {
		return ErrOrderMetadataMissing
	}

	user, err := s.repo.GetUserByID(uint(userID))
	if err != nil {
		return err
	}
	if user == nil {
		return ErrAccountNotFound
	}

	target := entitlements.PlanLite
	if order.Notes.Plan != "" {
		target = entitlements.Normalize(order.Notes.Plan)
	}
	fromPlan := entitlements.Normalize(user.Plan)
	if order.Notes.FromPlan != "" {
		fromPlan = entitlements.Normalize(order.Notes.FromPlan)
	}
	usageSnapshot := user.UsageCount
	if order.Notes.UsageCount != "" {
		if n, convErr := strconv.Atoi(order.Notes.UsageCount); convErr == nil {
			usageSnapshot = n
		}
	}

	return s.ApplyEntitlement(ApplyEntitlementInput{
		UserID:             user.ID,
		TargetPlan:         target,
		FromPlan:           fromPlan,
		UsageCountSnapshot: usageSnapshot,
		GatewayOrderRef:    orderID,
		GatewayPaymentRef:  envelope.Payload.Payment.Entity.ID,
	})
}

func (s *Service) handlePaymentFailed(envelope *webhookEnvelope) error {
	orderID := envelope.Payload.Payment.Entity.OrderID
	if orderID == "" {
		return ErrInvalidPayload
	}

	sub, err := s.repo.GetSubscriptionByOrderRef(orderID)
	if err != nil {
		return err
	}
	if sub == nil {
		// Failure before any entitlement was granted; nothing to revert.
		log.Printf("[Billing] payment.failed for unknown order %s", orderID)
		return nil
	}

	if err := s.repo.RevertUserToFree(sub.UserID, entitlements.Limit(entitlements.PlanFree)); err != nil {
		return err
	}
	return s.repo.TouchSubscription(sub.ID)
}
