package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Sandbox is an in-process provider for local runs (PAYMENT_BASE_URL=sandbox) and tests.
// It opens orders without network access and signs payloads with its own secret.
type Sandbox struct {
	Secret string

	mu     sync.Mutex
	orders map[string]Order
	// Fail, when set, is returned by CreateOrder instead of opening an order.
	Fail error
}

func NewSandbox(secret string) *Sandbox {
	return &Sandbox{Secret: secret, orders: map[string]Order{}}
}

func (s *Sandbox) KeyID() string { return "sandbox" }

func (s *Sandbox) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return Order{}, s.Fail
	}
	if s.orders == nil {
		s.orders = map[string]Order{}
	}
	o := Order{
		ID:       "order_" + uuid.NewString(),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}
	s.orders[o.ID] = o
	return o, nil
}

// Pay simulates the checkout widget: it returns a payment id and the matching signature.
func (s *Sandbox) Pay(orderID string) (paymentID, signature string) {
	paymentID = "pay_" + uuid.NewString()
	return paymentID, Sign(s.Secret, orderID, paymentID)
}

func (s *Sandbox) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifySignature(s.Secret, orderID, paymentID, signature)
}
