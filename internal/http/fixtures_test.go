package http

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/storefront/internal/blob"
	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/identity"
	"github.com/fjod/storefront/internal/notify"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProducts struct {
	mu       sync.Mutex
	products []domain.Product
}

func (f *fakeProducts) List(context.Context) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Product(nil), f.products...), nil
}

func (f *fakeProducts) ByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	all, _ := f.List(ctx)
	var out []domain.Product
	for _, p := range all {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProducts) Featured(ctx context.Context, limit int) ([]domain.Product, error) {
	all, _ := f.List(ctx)
	var out []domain.Product
	for _, p := range all {
		if p.Featured && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProducts) Get(_ context.Context, id string) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (f *fakeProducts) Create(_ context.Context, p *domain.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()
	f.products = append(f.products, *p)
	return nil
}

func (f *fakeProducts) Update(_ context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.products {
		if p.ID == id {
			f.products[i] = patch.Apply(p)
			out := f.products[i]
			return &out, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (f *fakeProducts) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.products {
		if p.ID == id {
			f.products = append(f.products[:i], f.products[i+1:]...)
			return nil
		}
	}
	return repository.ErrProductNotFound
}

type fakeOrders struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func (f *fakeOrders) Create(_ context.Context, o *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o.ID = uuid.NewString()
	o.CreatedAt = time.Now().UTC()
	f.orders[o.ID] = *o
	return nil
}

func (f *fakeOrders) Get(_ context.Context, id string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return &o, nil
}

func (f *fakeOrders) ByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	all, _ := f.All(ctx)
	var out []domain.Order
	for _, o := range all {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) All(context.Context) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id string, status domain.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.Status = status
	f.orders[id] = o
	return nil
}

func (f *fakeOrders) SetPaymentRef(_ context.Context, id, paymentRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.PaymentIntentID = paymentRef
	f.orders[id] = o
	return nil
}

// fakeProvider issues opaque tokens for a fixed set of accounts.
type fakeProvider struct {
	mu        sync.Mutex
	passwords map[string]string
	users     map[string]domain.User
	tokens    map[string]string
	hub       *events.Hub[identity.SessionEvent]
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		passwords: map[string]string{},
		users:     map[string]domain.User{},
		tokens:    map[string]string{},
		hub:       events.NewHub[identity.SessionEvent](),
	}
}

func (p *fakeProvider) addUser(email, password string, role domain.Role) domain.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	u := domain.User{ID: uuid.NewString(), Email: email, Role: role}
	p.users[email] = u
	p.passwords[email] = password
	return u
}

// token signs the user in and returns the session token.
func (p *fakeProvider) token(t *testing.T, email string) string {
	t.Helper()
	s, err := p.SignIn(context.Background(), email, p.passwords[email])
	require.NoError(t, err)
	return s.Token
}

func (p *fakeProvider) SignUp(ctx context.Context, email, password, displayName string) (*identity.Session, error) {
	p.mu.Lock()
	if _, ok := p.users[email]; ok {
		p.mu.Unlock()
		return nil, identity.ErrEmailTaken
	}
	p.mu.Unlock()
	p.addUser(email, password, domain.RoleUser)
	return p.SignIn(ctx, email, password)
}

func (p *fakeProvider) SignIn(_ context.Context, email, password string) (*identity.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[email]
	if !ok || p.passwords[email] != password {
		return nil, identity.ErrInvalidCredentials
	}
	token := uuid.NewString()
	p.tokens[token] = email
	p.hub.Publish(identity.SessionEvent{UserID: u.ID, User: &u})
	return &identity.Session{Token: token, User: u, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (p *fakeProvider) SignInFederated(context.Context, string) (*identity.Session, error) {
	return nil, identity.ErrFederationDisabled
}

func (p *fakeProvider) SignOut(_ context.Context, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	email, ok := p.tokens[token]
	if !ok {
		return identity.ErrInvalidToken
	}
	delete(p.tokens, token)
	p.hub.Publish(identity.SessionEvent{UserID: p.users[email].ID})
	return nil
}

func (p *fakeProvider) Resolve(_ context.Context, token string) (*domain.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	email, ok := p.tokens[token]
	if !ok {
		return nil, identity.ErrInvalidToken
	}
	u := p.users[email]
	return &u, nil
}

func (p *fakeProvider) Subscribe() (<-chan identity.SessionEvent, func()) {
	return p.hub.Subscribe(8)
}

type testEnv struct {
	server   *httptest.Server
	client   *http.Client
	products *fakeProducts
	orders   *fakeOrders
	provider *fakeProvider
	feed     *events.Hub[events.Event]
}

func catalogProducts() []domain.Product {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Product{
		{ID: "lamp", Name: "Desk Lamp", Description: "Warm light", Price: decimal.NewFromInt(40), Category: "home", InStock: true, Featured: true, Images: []string{"/images/products/lamp.png-1"}, CreatedAt: at},
		{ID: "phones", Name: "Headphones", Description: "Noise cancelling", Price: decimal.NewFromInt(250), Category: "audio", InStock: true, CreatedAt: at.Add(time.Hour)},
		{ID: "speaker", Name: "Speaker", Description: "Portable", Price: decimal.NewFromInt(90), Category: "audio", InStock: false, Featured: true, CreatedAt: at.Add(2 * time.Hour)},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	blobs, err := blob.NewFSStore(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		products: &fakeProducts{products: catalogProducts()},
		orders:   &fakeOrders{orders: map[string]domain.Order{}},
		provider: newFakeProvider(),
		feed:     events.NewHub[events.Event](),
	}
	t.Cleanup(env.provider.hub.Close)
	t.Cleanup(env.feed.Close)

	log := zap.NewNop()
	publisher := events.HubPublisher{Hub: env.feed}
	carts := cart.NewRegistry(cart.NewMemoryStorage(), time.Minute, log, cart.WithNotifier(notify.ContextNotifier{}))
	t.Cleanup(carts.Close)

	catalogSvc := service.NewCatalogService(env.products, cache.NewRedisCache(rdb, time.Minute), log)
	orderSvc := service.NewOrderService(env.orders, publisher, log)
	checkoutSvc := service.NewCheckoutService(env.orders, payment.SimulatedGateway{}, nil, publisher, notify.ContextNotifier{}, "http://shop.test", log)
	adminSvc := service.NewAdminService(env.products, env.orders, blobs, catalogSvc, log)

	env.server = httptest.NewServer(NewRouter(Deps{
		Catalog:            catalogSvc,
		Orders:             orderSvc,
		Checkout:           checkoutSvc,
		Admin:              adminSvc,
		Carts:              carts,
		Identity:           env.provider,
		Blobs:              blobs,
		Feed:               env.feed,
		Log:                log,
		RequestTimeout:     5 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}))
	t.Cleanup(env.server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	env.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return env
}

// do sends a request with an optional JSON body and bearer token.
func (e *testEnv) do(t *testing.T, method, path, body, token string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body != "" {
		req, err = http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, err = http.NewRequest(method, e.server.URL+path, nil)
	}
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
