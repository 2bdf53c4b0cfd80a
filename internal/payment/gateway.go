// Package payment talks to the payment gateway and records checkout
// sessions in a relational ledger.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SimulatedPaymentRef is the reference SimulatedGateway hands out. Orders
// carrying it were never charged.
const SimulatedPaymentRef = "pi_simulated"

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrSessionNotFound    = errors.New("checkout session not found")
)

type LineItem struct {
	Name       string          `json:"name"`
	UnitAmount decimal.Decimal `json:"unitAmount"`
	Quantity   int             `json:"quantity"`
	Image      string          `json:"image,omitempty"`
}

type SessionRequest struct {
	Items         []LineItem `json:"items"`
	SuccessURL    string     `json:"successUrl"`
	CancelURL     string     `json:"cancelUrl"`
	CustomerEmail string     `json:"customerEmail,omitempty"`
	// IdempotencyKey is forwarded so a retried checkout does not open a
	// second session at the gateway.
	IdempotencyKey string `json:"-"`
}

// Gateway session states.
const (
	SessionOpen     = "open"
	SessionComplete = "complete"
	SessionExpired  = "expired"
)

type CheckoutSession struct {
	ID         string `json:"id"`
	URL        string `json:"url,omitempty"`
	PaymentRef string `json:"paymentIntent"`
	Status     string `json:"status,omitempty"`
}

// Paid reports whether the buyer has already paid. An open session still
// waits for the buyer on the gateway's page.
func (c *CheckoutSession) Paid() bool {
	return c.Status == SessionComplete && c.PaymentRef != ""
}

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

// LineItemsFromCart converts cart lines to gateway line items.
func LineItemsFromCart(lines []domain.CartLine) []LineItem {
	items := make([]LineItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, LineItem{Name: l.Name, UnitAmount: l.Price, Quantity: l.Quantity, Image: l.Image})
	}
	return items
}

// GatewayError is a non-2xx answer from the gateway.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway returned %d: %s", e.StatusCode, e.Message)
}

// SimulatedGateway approves every session without contacting anyone.
type SimulatedGateway struct{}

func (SimulatedGateway) CreateCheckoutSession(_ context.Context, req SessionRequest) (*CheckoutSession, error) {
	if len(req.Items) == 0 {
		return nil, &GatewayError{StatusCode: 400, Message: "no line items"}
	}
	return &CheckoutSession{
		ID:         "cs_simulated_" + uuid.NewString(),
		PaymentRef: SimulatedPaymentRef,
		Status:     SessionComplete,
	}, nil
}

func (SimulatedGateway) RetrieveSession(_ context.Context, sessionID string) (*CheckoutSession, error) {
	return &CheckoutSession{ID: sessionID, PaymentRef: SimulatedPaymentRef, Status: SessionComplete}, nil
}
