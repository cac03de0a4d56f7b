package billing

import (
	"context"
	"errors"

	"github.com/pixsuite/pixsuite/internal/pkg/entitlements"
)

var (
	// ErrSignatureMismatch marks a confirmation whose signature failed
	// verification; treated as a potential forgery upstream.
	ErrSignatureMismatch = errors.New("invalid payment signature")

	// ErrAccountNotFound marks a confirmation that names an unknown account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrOrderMetadataMissing marks a gateway order without the stashed
	// reconciliation metadata; without it the payment cannot be attributed.
	ErrOrderMetadataMissing = errors.New("order metadata missing user reference")

	// ErrInvalidPayload marks an unparseable webhook body.
	ErrInvalidPayload = errors.New("invalid webhook payload")

	// ErrGateway marks a failed outbound call to the payment gateway.
	ErrGateway = errors.New("payment gateway request failed")
)

// InvalidTransitionError rejects a disallowed plan change with a
// user-facing message naming the rule that was violated.
type InvalidTransitionError struct {
	Message string
}

func (e *InvalidTransitionError) Error() string {
	return e.Message
}

// OrderNotes is the reconciliation metadata stashed in the gateway order at
// creation time and echoed back verbatim on confirmation. It is the only
// durable record of upgrade intent, so the field names are a wire contract.
type OrderNotes struct {
	UserID     string `json:"userId"`
	UserEmail  string `json:"userEmail"`
	Plan       string `json:"plan"`
	FromPlan   string `json:"fromPlan"`
	UsageCount string `json:"usageCount"`
}

// Order is the provider-agnostic view of a gateway order.
type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Notes    OrderNotes
}

// CreateOrderInput carries everything needed to open a gateway order.
type CreateOrderInput struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    OrderNotes
}

// Gateway abstracts the payment provider's order API so the reconciliation
// core can be exercised without network calls.
type Gateway interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error)
	FetchOrder(ctx context.Context, orderID string) (*Order, error)
}

// OrderResponse is what the client needs to open the gateway checkout UI.
type OrderResponse struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Key      string `json:"key"`
}

// ApplyEntitlementInput is the normalized input of the entitlement update,
// the single convergence point of both confirmation paths. Callers must have
// verified message authenticity before constructing one.
type ApplyEntitlementInput struct {
	UserID             uint
	TargetPlan         entitlements.Plan
	FromPlan           entitlements.Plan
	UsageCountSnapshot int
	GatewayOrderRef    string
	GatewayPaymentRef  string
}

// WebhookResult reports how a webhook delivery was handled.
type WebhookResult struct {
	EventType string
	Duplicate bool
	Ignored   bool
}
