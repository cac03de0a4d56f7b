package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixsuite/pixsuite/app/models"
	"github.com/pixsuite/pixsuite/internal/pkg/entitlements"
)

type fakeRepo struct {
	users         map[uint]*models.User
	subscriptions map[uint]*models.Subscription // keyed by user id
	events        map[string]*models.WebhookEvent
	nextEventID   uint
	nextSubID     uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:         make(map[uint]*models.User),
		subscriptions: make(map[uint]*models.Subscription),
		events:        make(map[string]*models.WebhookEvent),
	}
}

func (r *fakeRepo) GetUserByID(id uint) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *fakeRepo) UpdateUserEntitlement(userID uint, plan string, usageCount, usageLimit int, customerRef string, expiresAt time.Time) error {
	u, ok := r.users[userID]
	if !ok {
		return errors.New("user not found")
	}
	u.Plan = plan
	u.UsageCount = usageCount
	u.UsageLimit = usageLimit
	if customerRef != "" {
		u.RazorpayCustomerID = customerRef
	}
	exp := expiresAt
	u.SubscriptionExpiresAt = &exp
	return nil
}

func (r *fakeRepo) RevertUserToFree(userID uint, usageLimit int) error {
	u, ok := r.users[userID]
	if !ok {
		return errors.New("user not found")
	}
	u.Plan = "Free"
	u.UsageLimit = usageLimit
	return nil
}

func (r *fakeRepo) GetSubscriptionByOrderRef(orderRef string) (*models.Subscription, error) {
	for _, sub := range r.subscriptions {
		if sub.RazorpayOrderID == orderRef {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) UpsertSubscription(sub *models.Subscription) error {
	if existing, ok := r.subscriptions[sub.UserID]; ok {
		existing.Plan = sub.Plan
		existing.RazorpayOrderID = sub.RazorpayOrderID
		existing.RazorpayCustomerID = sub.RazorpayCustomerID
		existing.ExpiresAt = sub.ExpiresAt
		*sub = *existing
		return nil
	}
	r.nextSubID++
	sub.ID = r.nextSubID
	cp := *sub
	r.subscriptions[sub.UserID] = &cp
	return nil
}

func (r *fakeRepo) TouchSubscription(id uint) error { return nil }

func (r *fakeRepo) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, error) {
	key := event.Provider + "/" + event.ProviderEventID
	if existing, ok := r.events[key]; ok {
		*event = *existing
		return false, nil
	}
	r.nextEventID++
	event.ID = r.nextEventID
	cp := *event
	r.events[key] = &cp
	return true, nil
}

func (r *fakeRepo) MarkWebhookProcessed(id uint, processingError string) error {
	for _, e := range r.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
			return nil
		}
	}
	return errors.New("event not found")
}

type fakeGateway struct {
	orders      map[string]*Order
	createCalls int
	failCreate  bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{orders: make(map[string]*Order)}
}

func (g *fakeGateway) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	g.createCalls++
	if g.failCreate {
		return nil, fmt.Errorf("%w: gateway unavailable", ErrGateway)
	}
	order := &Order{
		ID:       fmt.Sprintf("order_fake%03d", g.createCalls),
		Amount:   in.Amount,
		Currency: in.Currency,
		Receipt:  in.Receipt,
		Notes:    in.Notes,
	}
	g.orders[order.ID] = order
	return order, nil
}

func (g *fakeGateway) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	order, ok := g.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order not found", ErrGateway)
	}
	cp := *order
	return &cp, nil
}

func testConfig() Config {
	return Config{KeyID: "rzp_test_key", KeySecret: "key-secret", WebhookSecret: "hook-secret"}
}

func signPayment(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func signWebhook(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestService(repo *fakeRepo, gw Gateway) *Service {
	svc := NewService(repo, gw, testConfig())
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestCreateUpgradeOrderPricing(t *testing.T) {
	repo := newFakeRepo()
	repo.users[7] = &models.User{ID: 7, Email: "a@b.test", Plan: "Free", UsageCount: 2, UsageLimit: 3}
	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	resp, err := svc.CreateUpgradeOrder(context.Background(), 7, "Lite")
	require.NoError(t, err)
	assert.Equal(t, int64(99900), resp.Amount)
	assert.Equal(t, "INR", resp.Currency)
	assert.Equal(t, "rzp_test_key", resp.Key)
	assert.NotEmpty(t, resp.OrderID)

	order := gw.orders[resp.OrderID]
	require.NotNil(t, order)
	assert.Equal(t, "7", order.Notes.UserID)
	assert.Equal(t, "a@b.test", order.Notes.UserEmail)
	assert.Equal(t, "Lite", order.Notes.Plan)
	assert.Equal(t, "Free", order.Notes.FromPlan)
	assert.Equal(t, "2", order.Notes.UsageCount)
}

func TestCreateUpgradeOrderProRata(t *testing.T) {
	repo := newFakeRepo()
	repo.users[7] = &models.User{ID: 7, Email: "a@b.test", Plan: "Lite", UsageCount: 400, UsageLimit: 1000}
	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	resp, err := svc.CreateUpgradeOrder(context.Background(), 7, "Pro")
	require.NoError(t, err)
	assert.Equal(t, int64(190100), resp.Amount)
}

func TestCreateUpgradeOrderRejections(t *testing.T) {
	future := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		user   models.User
		target string
	}{
		{
			name:   "same plan with active subscription",
			user:   models.User{ID: 1, Plan: "Lite", SubscriptionExpiresAt: &future},
			target: "Lite",
		},
		{
			name:   "downgrade pro to lite",
			user:   models.User{ID: 1, Plan: "Pro", SubscriptionExpiresAt: &future},
			target: "Lite",
		},
		{
			name:   "free plan cannot be purchased",
			user:   models.User{ID: 1, Plan: "Lite", SubscriptionExpiresAt: &future},
			target: "Free",
		},
		{
			name:   "unknown plan",
			user:   models.User{ID: 1, Plan: "Free"},
			target: "Platinum",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			u := tt.user
			repo.users[u.ID] = &u
			gw := newFakeGateway()
			svc := newTestService(repo, gw)

			_, err := svc.CreateUpgradeOrder(context.Background(), u.ID, tt.target)
			var invalid *InvalidTransitionError
			require.ErrorAs(t, err, &invalid)
			assert.Zero(t, gw.createCalls, "gateway must not be contacted for rejected transitions")
		})
	}
}

func TestCreateUpgradeOrderExpiredSubscriptionAllowsRepurchase(t *testing.T) {
	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	repo.users[3] = &models.User{ID: 3, Email: "x@y.test", Plan: "Lite", UsageCount: 900, SubscriptionExpiresAt: &past}
	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	resp, err := svc.CreateUpgradeOrder(context.Background(), 3, "Lite")
	require.NoError(t, err)
	assert.Equal(t, int64(99900), resp.Amount)
}

func TestCreateUpgradeOrderGatewayDown(t *testing.T) {
	repo := newFakeRepo()
	repo.users[7] = &models.User{ID: 7, Plan: "Free"}
	gw := newFakeGateway()
	gw.failCreate = true
	svc := newTestService(repo, gw)

	_, err := svc.CreateUpgradeOrder(context.Background(), 7, "Lite")
	assert.ErrorIs(t, err, ErrGateway)
}

func TestConfirmClientPaymentFreeToLite(t *testing.T) {
	repo := newFakeRepo()
	repo.users[7] = &models.User{ID: 7, Email: "a@b.test", Plan: "Free", UsageCount: 3, UsageLimit: 3}
	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	resp, err := svc.CreateUpgradeOrder(context.Background(), 7, "Lite")
	require.NoError(t, err)

	sig := signPayment(resp.OrderID, "pay_001", testConfig().KeySecret)
	plan, err := svc.ConfirmClientPayment(context.Background(), 7, resp.OrderID, "pay_001", sig)
	require.NoError(t, err)
	assert.Equal(t, entitlements.PlanLite, plan)

	u := repo.users[7]
	assert.Equal(t, "Lite", u.Plan)
	assert.Equal(t, 0, u.UsageCount)
	assert.Equal(t, 1000, u.UsageLimit)
	assert.Equal(t, "pay_001", u.RazorpayCustomerID)
	require.NotNil(t, u.SubscriptionExpiresAt)
	assert.Equal(t, time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC), *u.SubscriptionExpiresAt)

	sub := repo.subscriptions[7]
	require.NotNil(t, sub)
	assert.Equal(t, "Lite", sub.Plan)
	assert.Equal(t, resp.OrderID, sub.RazorpayOrderID)
}

func TestConfirmClientPaymentLiteToProCarriesQuota(t *testing.T) {
	repo := newFakeRepo()
	repo.users[7] = &models.User{ID: 7, Email: "a@b.test", Plan: "Lite", UsageCount: 400, UsageLimit: 1000}
	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	resp, err := svc.CreateUpgradeOrder(context.Background(), 7, "Pro")
	require.NoError(t, err)

	// Usage keeps moving between issuance and confirmation; the snapshot in
	// the order notes wins.
	repo.users[7].UsageCount = 450

	sig := signPayment(resp.OrderID, "pay_002", testConfig().KeySecret)
	plan, err := svc.ConfirmClientPayment(context.Background(), 7, resp.OrderID, "pay_002", sig)
	require.NoError(t, err)
	assert.Equal(t, entitlements.PlanPro, plan)

	u := repo.users[7]
	assert.Equal(t, "Pro", u.Plan)
	assert.Equal(t, 0, u.UsageCount)
	assert.Equal(t, 10600, u.UsageLimit)
}

func TestConfirmClientPaymentBadSignature(t *testing.T) {
	repo := newFakeRepo()
	repo.users[7] = &models.User{ID: 7, Plan: "Free"}
	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	sig := signPayment("order_x", "pay_x", "wrong-secret")
	_, err := svc.ConfirmClientPayment(context.Background(), 7, "order_x", "pay_x", sig)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestConfirmClientPaymentUnknownUser(t *testing.T) {
	repo := newFakeRepo()
	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	sig := signPayment("order_x", "pay_x", testConfig().KeySecret)
	_, err := svc.ConfirmClientPayment(context.Background(), 42, "order_x", "pay_x", sig)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestHandleWebhookPaymentCaptured(t *testing.T) {
	repo := newFakeRepo()
	repo.users[7] = &models.User{ID: 7, Email: "a@b.test", Plan: "Free", UsageCount: 3, UsageLimit: 3}
	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	resp, err := svc.CreateUpgradeOrder(context.Background(), 7, "Lite")
	require.NoError(t, err)

	body := []byte(fmt.Sprintf(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_w1","order_id":"%s"}}}}`, resp.OrderID))
	result, err := svc.HandleWebhook(context.Background(), body, signWebhook(body, testConfig().WebhookSecret), "evt_1")
	require.NoError(t, err)
	assert.Equal(t, "payment.captured", result.EventType)
	assert.False(t, result.Duplicate)

	u := repo.users[7]
	assert.Equal(t, "Lite", u.Plan)
	assert.Equal(t, 1000, u.UsageLimit)
}

func TestHandleWebhookDuplicateDelivery(t *testing.T) {
	repo := newFakeRepo()
	repo.users[7] = &models.User{ID: 7, Email: "a@b.test", Plan: "Free", UsageCount: 0, UsageLimit: 3}
	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	resp, err := svc.CreateUpgradeOrder(context.Background(), 7, "Lite")
	require.NoError(t, err)

	body := []byte(fmt.Sprintf(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_w2","order_id":"%s"}}}}`, resp.OrderID))
	sig := signWebhook(body, testConfig().WebhookSecret)

	first, err := svc.HandleWebhook(context.Background(), body, sig, "evt_dup")
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	// Move usage after the first delivery; a replay must not reapply.
	repo.users[7].UsageCount = 42

	second, err := svc.HandleWebhook(context.Background(), body, sig, "evt_dup")
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, 42, repo.users[7].UsageCount)
}

func TestHandleWebhookRedeliveryAfterFailureReprocesses(t *testing.T) {
	repo := newFakeRepo()
	repo.users[7] = &models.User{ID: 7, Email: "a@b.test", Plan: "Free", UsageCount: 0, UsageLimit: 3}
	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	resp, err := svc.CreateUpgradeOrder(context.Background(), 7, "Lite")
	require.NoError(t, err)

	body := []byte(fmt.Sprintf(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_w3","order_id":"%s"}}}}`, resp.OrderID))
	sig := signWebhook(body, testConfig().WebhookSecret)

	// First delivery hits a gateway outage while fetching the order.
	order := gw.orders[resp.OrderID]
	delete(gw.orders, resp.OrderID)
	_, err = svc.HandleWebhook(context.Background(), body, sig, "evt_retry")
	require.ErrorIs(t, err, ErrGateway)
	assert.Equal(t, "Free", repo.users[7].Plan)

	// The gateway recovers and the event is redelivered with the same id.
	gw.orders[resp.OrderID] = order
	result, err := svc.HandleWebhook(context.Background(), body, sig, "evt_retry")
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, "Lite", repo.users[7].Plan)

	// A further replay after the successful attempt is a duplicate.
	third, err := svc.HandleWebhook(context.Background(), body, sig, "evt_retry")
	require.NoError(t, err)
	assert.True(t, third.Duplicate)
}

func TestHandleWebhookPaymentFailedReverts(t *testing.T) {
	repo := newFakeRepo()
	repo.users[7] = &models.User{ID: 7, Email: "a@b.test", Plan: "Free", UsageCount: 0, UsageLimit: 3}
	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	resp, err := svc.CreateUpgradeOrder(context.Background(), 7, "Lite")
	require.NoError(t, err)
	sig := signPayment(resp.OrderID, "pay_003", testConfig().KeySecret)
	_, err = svc.ConfirmClientPayment(context.Background(), 7, resp.OrderID, "pay_003", sig)
	require.NoError(t, err)
	require.Equal(t, "Lite", repo.users[7].Plan)

	// Usage accrued between the confirmation and the failure notification
	// must survive the revert.
	repo.users[7].UsageCount = 5

	body := []byte(fmt.Sprintf(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_003","order_id":"%s"}}}}`, resp.OrderID))
	result, err := svc.HandleWebhook(context.Background(), body, signWebhook(body, testConfig().WebhookSecret), "evt_fail")
	require.NoError(t, err)
	assert.Equal(t, "payment.failed", result.EventType)

	u := repo.users[7]
	assert.Equal(t, "Free", u.Plan)
	assert.Equal(t, 5, u.UsageCount)
	assert.Equal(t, 3, u.UsageLimit)
}

func TestHandleWebhookBadSignature(t *testing.T) {
	svc := newTestService(newFakeRepo(), newFakeGateway())

	body := []byte(`{"event":"payment.captured"}`)
	_, err := svc.HandleWebhook(context.Background(), body, signWebhook([]byte("tampered"), testConfig().WebhookSecret), "evt_bad")
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	svc := newTestService(newFakeRepo(), newFakeGateway())

	body := []byte(`{"event":"refund.created","payload":{}}`)
	result, err := svc.HandleWebhook(context.Background(), body, signWebhook(body, testConfig().WebhookSecret), "evt_other")
	require.NoError(t, err)
	assert.True(t, result.Ignored)
}

func TestHandleWebhookMissingNotes(t *testing.T) {
	repo := newFakeRepo()
	gw := newFakeGateway()
	gw.orders["order_bare"] = &Order{ID: "order_bare", Amount: 99900, Currency: "INR"}
	svc := newTestService(repo, gw)

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_x","order_id":"order_bare"}}}}`)
	_, err := svc.HandleWebhook(context.Background(), body, signWebhook(body, testConfig().WebhookSecret), "evt_bare")
	assert.ErrorIs(t, err, ErrOrderMetadataMissing)
}
