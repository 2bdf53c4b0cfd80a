package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/notify"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/validate"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger records checkout attempts so a retried request with the same
// idempotency key returns the original order. Keys are scoped per user.
type Ledger interface {
	Begin(ctx context.Context, key, userID string, amount decimal.Decimal) (*payment.Session, bool, error)
	AwaitPayment(ctx context.Context, id, gatewaySession string) error
	AttachOrder(ctx context.Context, id, orderID string) error
	MarkPaid(ctx context.Context, id, gatewaySession, paymentRef string) error
	Complete(ctx context.Context, id, orderID string) error
	Fail(ctx context.Context, id, reason string) error
	Stuck(ctx context.Context, olderThan time.Duration) ([]*payment.Session, error)
}

// Cart is the part of the cart store checkout needs.
type Cart interface {
	Lines() []domain.CartLine
	Total() decimal.Decimal
	ClearCart(ctx context.Context)
}

type CheckoutRequest struct {
	// User is nil for a guest checkout.
	User           *domain.User
	Cart           Cart
	Shipping       validate.Shipping
	IdempotencyKey string
}

type CheckoutResult struct {
	Order *domain.Order `json:"order"`
	// RedirectURL is set when the gateway wants the buyer to finish payment
	// on its own page.
	RedirectURL string `json:"redirectUrl,omitempty"`
	// Simulated marks orders that were never charged.
	Simulated bool `json:"simulated"`
	Replayed  bool `json:"replayed,omitempty"`
}

type CheckoutService struct {
	orders     repository.OrderRepository
	gateway    payment.Gateway
	ledger     Ledger
	publisher  events.Publisher
	notifier   notify.Notifier
	log        *zap.Logger
	successURL string
	cancelURL  string
	now        func() time.Time
}

// NewCheckoutService wires checkout. ledger may be nil, in which case
// idempotency keys are ignored.
func NewCheckoutService(
	orders repository.OrderRepository,
	gateway payment.Gateway,
	ledger Ledger,
	publisher events.Publisher,
	notifier notify.Notifier,
	publicBaseURL string,
	log *zap.Logger,
) *CheckoutService {
	base := strings.TrimRight(publicBaseURL, "/")
	return &CheckoutService{
		orders:     orders,
		gateway:    gateway,
		ledger:     ledger,
		publisher:  publisher,
		notifier:   notifier,
		log:        log,
		successURL: base + "/order-confirmation",
		cancelURL:  base + "/cart",
		now:        time.Now,
	}
}

// Checkout turns the cart into a pending order. On success the cart is
// cleared and order.placed is published. When the gateway sends the buyer
// to its own page the order carries no payment reference until Reconcile
// sees the session paid.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := req.Shipping.Validate(); err != nil {
		return nil, err
	}

	lines := req.Cart.Lines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	total := req.Cart.Total()

	userID := domain.GuestUserID
	if req.User != nil {
		userID = req.User.ID
	}

	var session *payment.Session
	if s.ledger != nil {
		var (
			created bool
			err     error
		)
		session, created, err = s.ledger.Begin(ctx, req.IdempotencyKey, userID, total)
		if err != nil {
			return nil, err
		}
		if !created {
			return s.replay(ctx, session, userID)
		}
	}

	gw, err := s.gateway.CreateCheckoutSession(ctx, payment.SessionRequest{
		Items:          payment.LineItemsFromCart(lines),
		SuccessURL:     s.successURL,
		CancelURL:      s.cancelURL,
		CustomerEmail:  req.Shipping.Email,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		s.failSession(ctx, session, err)
		s.notifier.Notify(ctx, notify.Failure("Error", "There was a problem processing your order. Please try again."))
		return nil, err
	}

	paid := gw.Paid()
	if session != nil {
		s.recordGatewaySession(ctx, session.ID, gw)
	}

	order := &domain.Order{
		UserID:          userID,
		Items:           lines,
		Total:           total,
		Status:          domain.OrderStatusPending,
		ShippingAddress: shippingAddress(req.Shipping),
	}
	if paid {
		order.PaymentIntentID = gw.PaymentRef
	}
	if err := s.orders.Create(ctx, order); err != nil {
		// The session stays paid or awaiting without an order; the reconciler picks it up.
		s.notifier.Notify(ctx, notify.Failure("Error", "There was a problem processing your order. Please try again."))
		return nil, err
	}

	if session != nil {
		s.linkOrder(ctx, session.ID, order.ID, paid)
	}

	req.Cart.ClearCart(ctx)

	simulated := gw.PaymentRef == payment.SimulatedPaymentRef
	s.log.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.String("total", total.StringFixed(2)),
		zap.Bool("paid", paid),
		zap.Bool("simulated", simulated))
	s.publish(ctx, events.Event{Type: events.TypeOrderPlaced, Key: order.ID, Payload: order, OccurredAt: s.now().UTC()})
	if paid {
		s.notifier.Notify(ctx, notify.Info("Order placed successfully", "Thank you for your purchase!"))
	} else {
		s.notifier.Notify(ctx, notify.Info("Order placed", "Complete the payment to confirm your order."))
	}

	return &CheckoutResult{
		Order:       order,
		RedirectURL: gw.URL,
		Simulated:   simulated,
	}, nil
}

func (s *CheckoutService) replay(ctx context.Context, session *payment.Session, userID string) (*CheckoutResult, error) {
	s.log.Info("duplicate checkout request",
		zap.String("idempotency_key", session.IdempotencyKey),
		zap.String("session_id", session.ID),
		zap.String("status", string(session.Status)))

	if session.UserID != userID {
		return nil, ErrForbidden
	}
	switch {
	case session.Status == payment.StatusFailed:
		return nil, ErrCheckoutFailed
	case !session.Status.IsTerminal() && session.OrderID == "":
		return nil, ErrCheckoutInProgress
	}

	order, err := s.orders.Get(ctx, session.OrderID)
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{
		Order:     order,
		Simulated: order.PaymentIntentID == payment.SimulatedPaymentRef,
		Replayed:  true,
	}, nil
}

// Reconcile settles checkout sessions left unfinished for olderThan and
// returns how many it settled. Sessions waiting for the buyer are checked
// with the gateway: paid ones complete their order, expired or unknown ones
// fail and cancel it, open ones are left for a later run. Sessions paid
// without an order are failed so they surface for a manual refund.
func (s *CheckoutService) Reconcile(ctx context.Context, olderThan time.Duration) (int, error) {
	if s.ledger == nil {
		return 0, nil
	}
	stuck, err := s.ledger.Stuck(ctx, olderThan)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, session := range stuck {
		done, err := s.reconcileSession(ctx, session)
		if err != nil {
			return settled, err
		}
		if done {
			settled++
		}
	}
	return settled, nil
}

func (s *CheckoutService) reconcileSession(ctx context.Context, session *payment.Session) (bool, error) {
	if session.Status == payment.StatusPaid {
		return true, s.failPaidWithoutOrder(ctx, session)
	}

	gw, err := s.gateway.RetrieveSession(ctx, session.GatewaySession)
	switch {
	case errors.Is(err, payment.ErrSessionNotFound):
		return true, s.abandon(ctx, session, "gateway session not found")
	case err != nil:
		s.log.Warn("failed to check payment session",
			zap.String("session_id", session.ID),
			zap.String("gateway_session", session.GatewaySession),
			zap.Error(err))
		return false, nil
	case gw.Paid():
		if err := s.ledger.MarkPaid(ctx, session.ID, gw.ID, gw.PaymentRef); err != nil {
			return false, err
		}
		if session.OrderID == "" {
			session.PaymentRef = gw.PaymentRef
			return true, s.failPaidWithoutOrder(ctx, session)
		}
		if err := s.orders.SetPaymentRef(ctx, session.OrderID, gw.PaymentRef); err != nil {
			return false, err
		}
		if err := s.ledger.Complete(ctx, session.ID, session.OrderID); err != nil {
			return false, err
		}
		s.log.Info("payment confirmed",
			zap.String("session_id", session.ID),
			zap.String("order_id", session.OrderID),
			zap.String("payment_ref", gw.PaymentRef))
		return true, nil
	case gw.Status == payment.SessionExpired:
		return true, s.abandon(ctx, session, "payment session expired")
	default:
		return false, nil
	}
}

func (s *CheckoutService) failPaidWithoutOrder(ctx context.Context, session *payment.Session) error {
	s.log.Warn("paid checkout without order, needs refund",
		zap.String("session_id", session.ID),
		zap.String("payment_ref", session.PaymentRef),
		zap.String("amount", session.Amount.StringFixed(2)))
	return s.ledger.Fail(ctx, session.ID, "order was not created after payment")
}

// abandon fails a session the buyer never paid and cancels its order.
func (s *CheckoutService) abandon(ctx context.Context, session *payment.Session, reason string) error {
	if err := s.ledger.Fail(ctx, session.ID, reason); err != nil {
		return err
	}
	if session.OrderID == "" {
		return nil
	}

	order, err := s.orders.Get(ctx, session.OrderID)
	if err != nil {
		return err
	}
	if !order.Status.CanTransitionTo(domain.OrderStatusCancelled) {
		return nil
	}
	if err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusCancelled); err != nil {
		return err
	}
	s.log.Info("unpaid order cancelled", zap.String("order_id", order.ID), zap.String("reason", reason))
	s.publish(ctx, events.Event{
		Type:       events.TypeOrderStatusChanged,
		Key:        order.ID,
		Payload:    StatusChange{OrderID: order.ID, UserID: order.UserID, From: order.Status, To: domain.OrderStatusCancelled},
		OccurredAt: s.now().UTC(),
	})
	return nil
}

// RunReconciler calls Reconcile every interval until ctx is done.
func (s *CheckoutService) RunReconciler(ctx context.Context, interval, olderThan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.Reconcile(ctx, olderThan); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("reconcile failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *CheckoutService) recordGatewaySession(ctx context.Context, id string, gw *payment.CheckoutSession) {
	var err error
	if gw.Paid() {
		err = s.ledger.MarkPaid(ctx, id, gw.ID, gw.PaymentRef)
	} else {
		err = s.ledger.AwaitPayment(ctx, id, gw.ID)
	}
	if err != nil {
		s.log.Error("failed to record gateway session", zap.String("session_id", id), zap.Error(err))
	}
}

func (s *CheckoutService) linkOrder(ctx context.Context, id, orderID string, paid bool) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if paid {
		err = s.ledger.Complete(ctx, id, orderID)
	} else {
		err = s.ledger.AttachOrder(ctx, id, orderID)
	}
	if err != nil {
		s.log.Error("failed to link order to payment session", zap.String("session_id", id), zap.Error(err))
	}
}

func (s *CheckoutService) failSession(ctx context.Context, session *payment.Session, cause error) {
	if session == nil {
		return
	}
	if err := s.ledger.Fail(context.WithoutCancel(ctx), session.ID, cause.Error()); err != nil {
		s.log.Error("failed to mark payment session failed", zap.String("session_id", session.ID), zap.Error(err))
	}
}

func (s *CheckoutService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		s.log.Error("failed to publish event", zap.String("type", e.Type), zap.String("key", e.Key), zap.Error(err))
	}
}

func shippingAddress(f validate.Shipping) domain.ShippingAddress {
	return domain.ShippingAddress{
		Name:       strings.TrimSpace(f.FirstName + " " + f.LastName),
		Street:     f.Address,
		City:       f.City,
		State:      f.State,
		PostalCode: f.PostalCode,
		Country:    f.Country,
	}
}
