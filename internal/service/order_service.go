package service

import (
	"context"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/repository"
	"go.uber.org/zap"
)

type OrderService struct {
	repo      repository.OrderRepository
	publisher events.Publisher
	log       *zap.Logger
	now       func() time.Time
}

func NewOrderService(repo repository.OrderRepository, publisher events.Publisher, log *zap.Logger) *OrderService {
	return &OrderService{repo: repo, publisher: publisher, log: log, now: time.Now}
}

// UserOrders lists the user's orders, newest first.
func (s *OrderService) UserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.repo.ByUser(ctx, userID)
}

// Order returns the order if viewer owns it or is an admin. Guest orders
// are readable by anyone holding the id.
func (s *OrderService) Order(ctx context.Context, viewer *domain.User, id string) (*domain.Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case order.UserID == domain.GuestUserID:
	case viewer.IsAdmin():
	case viewer != nil && viewer.ID == order.UserID:
	default:
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *OrderService) AllOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repo.All(ctx)
}

// SearchOrders matches term against the order id and the shipping name.
func (s *OrderService) SearchOrders(ctx context.Context, term string) ([]domain.Order, error) {
	orders, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}
	if term == "" {
		return orders, nil
	}

	needle := strings.ToLower(term)
	out := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if strings.Contains(strings.ToLower(o.ID), needle) ||
			strings.Contains(strings.ToLower(o.ShippingAddress.Name), needle) {
			out = append(out, o)
		}
	}
	return out, nil
}

type StatusChange struct {
	OrderID string             `json:"orderId"`
	UserID  string             `json:"userId"`
	From    domain.OrderStatus `json:"from"`
	To      domain.OrderStatus `json:"to"`
}

// UpdateStatus moves the order to status if the transition is allowed.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == status {
		return order, nil
	}
	if !order.Status.CanTransitionTo(status) {
		return nil, ErrIllegalTransition
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}

	change := StatusChange{OrderID: id, UserID: order.UserID, From: order.Status, To: status}
	order.Status = status
	s.log.Info("order status updated",
		zap.String("order_id", id),
		zap.String("from", string(change.From)),
		zap.String("to", string(change.To)))

	s.publish(ctx, events.Event{Type: events.TypeOrderStatusChanged, Key: id, Payload: change, OccurredAt: s.now().UTC()})
	return order, nil
}

func (s *OrderService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		s.log.Error("failed to publish event", zap.String("type", e.Type), zap.String("key", e.Key), zap.Error(err))
	}
}
