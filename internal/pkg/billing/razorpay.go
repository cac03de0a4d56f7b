package billing

import (
	"context"
	"errors"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"

	"github.com/pixsuite/pixsuite/internal/pkg/env"
)

type razorpayGateway struct {
	client *razorpay.Client
}

// NewRazorpayGateway creates a gateway backed by the Razorpay orders API.
func NewRazorpayGateway(keyID, keySecret string) Gateway {
	return &razorpayGateway{client: razorpay.NewClient(keyID, keySecret)}
}

// NewRazorpayGatewayFromEnv creates a gateway from RAZORPAY_* environment variables.
func NewRazorpayGatewayFromEnv() Gateway {
	return NewRazorpayGateway(
		env.GetEnv("RAZORPAY_KEY_ID", ""),
		env.GetEnv("RAZORPAY_KEY_SECRET", ""),
	)
}

func (g *razorpayGateway) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	_ = ctx // the SDK does not accept a context

	data := map[string]interface{}{
		"amount":   in.Amount,
		"currency": in.Currency,
		"receipt":  in.Receipt,
		"notes": map[string]interface{}{
			"userId":     in.Notes.UserID,
			"userEmail":  in.Notes.UserEmail,
			"plan":       in.Notes.Plan,
			"fromPlan":   in.Notes.FromPlan,
			"usageCount": in.Notes.UsageCount,
		},
	}

	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	return orderFromMap(body)
}

func (g *razorpayGateway) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	_ = ctx

	body, err := g.client.Order.Fetch(orderID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	return orderFromMap(body)
}

// orderFromMap converts the SDK's untyped response into an Order. Amounts
// arrive as JSON numbers, notes as a nested string map.
func orderFromMap(m map[string]interface{}) (*Order, error) {
	id, _ := m["id"].(string)
	if id == "" {
		return nil, errors.New("gateway order response missing id")
	}

	order := &Order{ID: id}
	if v, ok := m["currency"].(string); ok {
		order.Currency = v
	}
	if v, ok := m["receipt"].(string); ok {
		order.Receipt = v
	}
	order.Amount = numberToInt64(m["amount"])

	if notes, ok := m["notes"].(map[string]interface{}); ok {
		order.Notes = OrderNotes{
			UserID:     stringValue(notes["userId"]),
			UserEmail:  stringValue(notes["userEmail"]),
			Plan:       stringValue(notes["plan"]),
			FromPlan:   stringValue(notes["fromPlan"]),
			UsageCount: stringValue(notes["usageCount"]),
		}
	}

	return order, nil
}

func numberToInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}
