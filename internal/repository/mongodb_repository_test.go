package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
)

func setupTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Client().Disconnect(ctx) })

	require.NoError(t, CreateIndexes(ctx, db))
	return db
}

// steppingClock advances one minute per call so creation order is deterministic.
func steppingClock() func() time.Time {
	t := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func newProduct(name, category, price string, featured bool) *domain.Product {
	compareAt := decimal.RequireFromString(price).Add(decimal.NewFromInt(10))
	return &domain.Product{
		Name:           name,
		Description:    name + " description",
		Price:          decimal.RequireFromString(price),
		CompareAtPrice: &compareAt,
		Images:         []string{"/images/" + name + ".png"},
		Category:       category,
		Featured:       featured,
		InStock:        true,
	}
}

func TestProductRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProductRepository(db)
	repo.(*mongoProductRepository).now = steppingClock()
	ctx := context.Background()

	lamp := newProduct("lamp", "home", "49.99", true)
	chair := newProduct("chair", "home", "120.00", false)
	scarf := newProduct("scarf", "apparel", "19.50", true)
	for _, p := range []*domain.Product{lamp, chair, scarf} {
		require.NoError(t, repo.Create(ctx, p))
		require.NotEmpty(t, p.ID)
	}

	t.Run("get round-trips money and optional fields", func(t *testing.T) {
		got, err := repo.Get(ctx, lamp.ID)
		require.NoError(t, err)
		assert.Equal(t, "lamp", got.Name)
		assert.True(t, got.Price.Equal(decimal.RequireFromString("49.99")), got.Price.String())
		require.NotNil(t, got.CompareAtPrice)
		assert.True(t, got.CompareAtPrice.Equal(decimal.RequireFromString("59.99")))
		assert.Nil(t, got.Rating)
		assert.True(t, lamp.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("get unknown", func(t *testing.T) {
		_, err := repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		all, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{scarf.ID, chair.ID, lamp.ID}, []string{all[0].ID, all[1].ID, all[2].ID})
	})

	t.Run("by category", func(t *testing.T) {
		home, err := repo.ByCategory(ctx, "home")
		require.NoError(t, err)
		assert.Len(t, home, 2)

		all, err := repo.ByCategory(ctx, domain.CategoryAll)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("featured respects limit", func(t *testing.T) {
		featured, err := repo.Featured(ctx, 1)
		require.NoError(t, err)
		require.Len(t, featured, 1)
		assert.Equal(t, scarf.ID, featured[0].ID)
	})

	t.Run("update applies patch", func(t *testing.T) {
		inStock := false
		price := decimal.RequireFromString("99.00")
		updated, err := repo.Update(ctx, chair.ID, domain.ProductPatch{InStock: &inStock, Price: &price})
		require.NoError(t, err)
		assert.False(t, updated.InStock)

		got, err := repo.Get(ctx, chair.ID)
		require.NoError(t, err)
		assert.False(t, got.InStock)
		assert.True(t, got.Price.Equal(price))
		assert.Equal(t, "chair", got.Name)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, scarf.ID))
		assert.ErrorIs(t, repo.Delete(ctx, scarf.ID), ErrProductNotFound)

		_, err := repo.Update(ctx, scarf.ID, domain.ProductPatch{})
		assert.ErrorIs(t, err, ErrProductNotFound)
	})
}

func TestOrderRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOrderRepository(db)
	repo.(*mongoOrderRepository).now = steppingClock()
	ctx := context.Background()

	newOrder := func(userID string) *domain.Order {
		return &domain.Order{
			UserID: userID,
			Items: []domain.CartLine{
				{ID: "p1-1", ProductID: "p1", Name: "Lamp", Price: decimal.RequireFromString("10.25"), Quantity: 2},
			},
			Total:           decimal.RequireFromString("20.50"),
			Status:          domain.OrderStatusPending,
			ShippingAddress: domain.ShippingAddress{Name: "Ada Lovelace", Street: "1 Main St", City: "London", State: "LDN", PostalCode: "N1", Country: "UK"},
			PaymentIntentID: "pi_simulated",
		}
	}

	first := newOrder("u1")
	second := newOrder("u2")
	third := newOrder("u1")
	for _, o := range []*domain.Order{first, second, third} {
		require.NoError(t, repo.Create(ctx, o))
	}

	got, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
	assert.True(t, got.Total.Equal(decimal.RequireFromString("20.50")))
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].Price.Equal(decimal.RequireFromString("10.25")))
	assert.Equal(t, "Ada Lovelace", got.ShippingAddress.Name)

	mine, err := repo.ByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, third.ID, mine[0].ID, "newest first")

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, repo.UpdateStatus(ctx, first.ID, domain.OrderStatusShipped))
	got, err = repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, got.Status)

	require.NoError(t, repo.SetPaymentRef(ctx, second.ID, "pi_live_1"))
	got, err = repo.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_live_1", got.PaymentIntentID)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", domain.OrderStatusShipped), ErrOrderNotFound)
	assert.ErrorIs(t, repo.SetPaymentRef(ctx, "missing", "pi"), ErrOrderNotFound)
	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUserRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &domain.User{ID: "u1", Email: "ada@example.com", DisplayName: "Ada", Role: domain.RoleUser, CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, user))
	assert.ErrorIs(t, repo.Create(ctx, user), ErrUserExists)

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.DisplayName)
	assert.Equal(t, domain.RoleUser, got.Role)

	_, err = repo.Get(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	cred := domain.Credential{UserID: "u1", Email: " Ada@Example.com", PasswordHash: []byte("hash"), CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.CreateCredential(ctx, cred))
	assert.ErrorIs(t, repo.CreateCredential(ctx, cred), ErrEmailTaken)

	found, err := repo.CredentialByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", found.UserID)
	assert.Equal(t, []byte("hash"), found.PasswordHash)

	_, err = repo.CredentialByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}
