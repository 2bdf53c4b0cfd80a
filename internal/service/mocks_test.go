package service

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/blob"
	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// mockProductRepository is an in-memory ProductRepository that counts loads.
type mockProductRepository struct {
	mu        sync.Mutex
	products  []domain.Product
	listCalls int
	err       error
	delay     time.Duration
}

func (m *mockProductRepository) List(context.Context) ([]domain.Product, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.Product(nil), m.products...), nil
}

func (m *mockProductRepository) ByCategory(_ context.Context, category string) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Product
	for _, p := range m.products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out, m.err
}

func (m *mockProductRepository) Featured(_ context.Context, limit int) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Product
	for _, p := range m.products {
		if p.Featured && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, m.err
}

func (m *mockProductRepository) Get(_ context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *mockProductRepository) Create(_ context.Context, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now()
	m.products = append(m.products, *p)
	return nil
}

func (m *mockProductRepository) Update(_ context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.products {
		if p.ID == id {
			m.products[i] = patch.Apply(p)
			updated := m.products[i]
			return &updated, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *mockProductRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.products {
		if p.ID == id {
			m.products = append(m.products[:i], m.products[i+1:]...)
			return nil
		}
	}
	return repository.ErrProductNotFound
}

type mockOrderRepository struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	createErr error
	clock     time.Time
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{orders: map[string]domain.Order{}, clock: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *mockOrderRepository) Create(_ context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.clock = m.clock.Add(time.Minute)
	o.ID = uuid.NewString()
	o.CreatedAt = m.clock
	m.orders[o.ID] = *o
	return nil
}

func (m *mockOrderRepository) Get(_ context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return &o, nil
}

func (m *mockOrderRepository) ByUser(_ context.Context, userID string) ([]domain.Order, error) {
	all, _ := m.All(context.Background())
	var out []domain.Order
	for _, o := range all {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOrderRepository) All(context.Context) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockOrderRepository) UpdateStatus(_ context.Context, id string, status domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.Status = status
	m.orders[id] = o
	return nil
}

func (m *mockOrderRepository) SetPaymentRef(_ context.Context, id, paymentRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.PaymentIntentID = paymentRef
	m.orders[id] = o
	return nil
}

func (m *mockOrderRepository) seed(o domain.Order) domain.Order {
	_ = m.Create(context.Background(), &o)
	return o
}

// memoryCache is a ProductCache backed by maps.
type memoryCache struct {
	mu          sync.Mutex
	lists       map[string][]domain.Product
	products    map[string]domain.Product
	invalidated int
	getErr      error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{lists: map[string][]domain.Product{}, products: map[string]domain.Product{}}
}

func (c *memoryCache) GetList(_ context.Context, key string) ([]domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	l, ok := c.lists[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return l, nil
}

func (c *memoryCache) SetList(_ context.Context, key string, products []domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[key] = products
	return nil
}

func (c *memoryCache) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return &p, nil
}

func (c *memoryCache) SetProduct(_ context.Context, p *domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = *p
	return nil
}

func (c *memoryCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists = map[string][]domain.Product{}
	c.products = map[string]domain.Product{}
	c.invalidated++
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type mockGateway struct {
	session  *payment.CheckoutSession
	err      error
	requests []payment.SessionRequest
	// sessions answers RetrieveSession; unknown ids are not found.
	sessions    map[string]*payment.CheckoutSession
	retrieveErr error
}

func (m *mockGateway) CreateCheckoutSession(_ context.Context, req payment.SessionRequest) (*payment.CheckoutSession, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

func (m *mockGateway) RetrieveSession(_ context.Context, id string) (*payment.CheckoutSession, error) {
	if m.retrieveErr != nil {
		return nil, m.retrieveErr
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, payment.ErrSessionNotFound
	}
	return s, nil
}

// mockLedger keeps sessions in memory keyed by user and idempotency key.
type mockLedger struct {
	mu       sync.Mutex
	sessions map[string]*payment.Session
	byKey    map[string]string
	beginErr error
	// unscoped matches keys across users, like a ledger with a global key.
	unscoped bool
}

func newMockLedger() *mockLedger {
	return &mockLedger{sessions: map[string]*payment.Session{}, byKey: map[string]string{}}
}

func (m *mockLedger) ledgerKey(userID, key string) string {
	if m.unscoped {
		return key
	}
	return userID + "/" + key
}

func (m *mockLedger) Begin(_ context.Context, key, userID string, amount decimal.Decimal) (*payment.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beginErr != nil {
		return nil, false, m.beginErr
	}
	if id, ok := m.byKey[m.ledgerKey(userID, key)]; ok && key != "" {
		s := *m.sessions[id]
		return &s, false, nil
	}
	s := &payment.Session{ID: uuid.NewString(), IdempotencyKey: key, UserID: userID, Amount: amount, Status: payment.StatusInitiated}
	m.sessions[s.ID] = s
	if key != "" {
		m.byKey[m.ledgerKey(userID, key)] = s.ID
	}
	cp := *s
	return &cp, true, nil
}

func (m *mockLedger) AwaitPayment(_ context.Context, id, gatewaySession string) error {
	return m.update(id, func(s *payment.Session) {
		s.Status = payment.StatusAwaitingPayment
		s.GatewaySession = gatewaySession
	})
}

func (m *mockLedger) AttachOrder(_ context.Context, id, orderID string) error {
	return m.update(id, func(s *payment.Session) {
		s.OrderID = orderID
	})
}

func (m *mockLedger) MarkPaid(_ context.Context, id, gatewaySession, paymentRef string) error {
	return m.update(id, func(s *payment.Session) {
		s.Status = payment.StatusPaid
		s.GatewaySession = gatewaySession
		s.PaymentRef = paymentRef
	})
}

func (m *mockLedger) Complete(_ context.Context, id, orderID string) error {
	return m.update(id, func(s *payment.Session) {
		s.Status = payment.StatusCompleted
		s.OrderID = orderID
	})
}

func (m *mockLedger) Fail(_ context.Context, id, reason string) error {
	return m.update(id, func(s *payment.Session) {
		s.Status = payment.StatusFailed
		s.FailureReason = reason
	})
}

func (m *mockLedger) Stuck(context.Context, time.Duration) ([]*payment.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Session
	for _, s := range m.sessions {
		if s.Status == payment.StatusPaid || s.Status == payment.StatusAwaitingPayment {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockLedger) update(id string, fn func(*payment.Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return payment.ErrSessionNotFound
	}
	fn(s)
	return nil
}

func (m *mockLedger) session(userID, key string) *payment.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[m.byKey[m.ledgerKey(userID, key)]]
}

// memoryBlobs is a blob.Store in memory.
type memoryBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{objects: map[string][]byte{}}
}

func (m *memoryBlobs) Put(_ context.Context, name, _ string, r io.Reader) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = data
	return nil
}

func (m *memoryBlobs) Open(_ context.Context, name string) (io.ReadCloser, blob.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	if !ok {
		return nil, blob.Info{}, blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), blob.Info{Name: name, Size: int64(len(data))}, nil
}

func (m *memoryBlobs) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[name]; !ok {
		return blob.ErrNotFound
	}
	delete(m.objects, name)
	return nil
}

func (m *memoryBlobs) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for n := range m.objects {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
