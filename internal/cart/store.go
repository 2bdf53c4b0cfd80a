// Package cart holds the per-session shopping cart: line items keyed by line
// id, mirrored to durable storage after every mutation.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/notify"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Store struct {
	mu    sync.Mutex
	key   string
	lines []domain.CartLine

	storage  Storage
	notifier notify.Notifier
	log      *zap.Logger
	now      func() time.Time
}

type Option func(*Store)

func WithNotifier(n notify.Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open hydrates the cart stored under key. A missing or unparseable value
// yields an empty cart; only a failing storage backend is reported.
func Open(ctx context.Context, storage Storage, key string, opts ...Option) (*Store, error) {
	s := &Store{
		key:      key,
		storage:  storage,
		notifier: notify.Discard{},
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := storage.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	var lines []domain.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		s.log.Warn("discarding malformed stored cart", zap.String("key", key), zap.Error(err))
		return s, nil
	}
	for _, l := range lines {
		if l.ID == "" || l.ProductID == "" || l.Quantity < 1 {
			s.log.Warn("dropping invalid stored cart line", zap.String("key", key), zap.String("line_id", l.ID))
			continue
		}
		s.lines = append(s.lines, l)
	}
	return s, nil
}

// AddToCart merges quantity into the line for product, or appends a new line
// with a snapshot of the product's name, price and first image. Quantities
// below one are ignored.
func (s *Store) AddToCart(ctx context.Context, product domain.Product, quantity int) (domain.CartLine, bool) {
	if quantity < 1 {
		return domain.CartLine{}, false
	}

	s.mu.Lock()
	var line domain.CartLine
	if i := s.indexByProduct(product.ID); i >= 0 {
		s.lines[i].Quantity += quantity
		line = s.lines[i]
	} else {
		line = domain.CartLine{
			ID:        fmt.Sprintf("%s-%d", product.ID, s.now().UnixMilli()),
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Image:     product.PrimaryImage(),
			Quantity:  quantity,
		}
		s.lines = append(s.lines, line)
	}
	s.persist(ctx)
	s.mu.Unlock()

	s.notifier.Notify(ctx, notify.Info("Added to cart", fmt.Sprintf("%s has been added to your cart.", product.Name)))
	return line, true
}

// RemoveFromCart deletes the line; unknown ids are ignored.
func (s *Store) RemoveFromCart(ctx context.Context, lineID string) {
	s.mu.Lock()
	if i := s.indexByID(lineID); i >= 0 {
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
		s.persist(ctx)
	}
	s.mu.Unlock()

	s.notifier.Notify(ctx, notify.Info("Removed from cart", "Item has been removed from your cart."))
}

// UpdateQuantity replaces the line's quantity. Values below one are a no-op.
func (s *Store) UpdateQuantity(ctx context.Context, lineID string, quantity int) {
	if quantity < 1 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexByID(lineID); i >= 0 {
		s.lines[i].Quantity = quantity
		s.persist(ctx)
	}
}

func (s *Store) ClearCart(ctx context.Context) {
	s.mu.Lock()
	s.lines = nil
	s.persist(ctx)
	s.mu.Unlock()

	s.notifier.Notify(ctx, notify.Info("Cart cleared", "All items have been removed from your cart."))
}

// Lines returns a copy of the current lines in insertion order.
func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CartLine(nil), s.lines...)
}

func (s *Store) Line(lineID string) (domain.CartLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexByID(lineID); i >= 0 {
		return s.lines[i], true
	}
	return domain.CartLine{}, false
}

// Count is the sum of quantities.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.LinesCount(s.lines)
}

// Total is the sum of price times quantity, unrounded.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.LinesTotal(s.lines)
}

func (s *Store) indexByProduct(productID string) int {
	for i, l := range s.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) indexByID(lineID string) int {
	for i, l := range s.lines {
		if l.ID == lineID {
			return i
		}
	}
	return -1
}

// persist writes the full line list. Callers hold s.mu. Failures are logged
// and otherwise ignored; the in-memory cart stays authoritative.
func (s *Store) persist(ctx context.Context) {
	lines := s.lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		s.log.Error("marshal cart failed", zap.String("key", s.key), zap.Error(err))
		return
	}
	if err := s.storage.Save(context.WithoutCancel(ctx), s.key, data); err != nil {
		s.log.Error("persist cart failed", zap.String("key", s.key), zap.Error(err))
	}
}
