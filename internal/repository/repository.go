package repository

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
)

const (
	productsCollection    = "products"
	ordersCollection      = "orders"
	usersCollection       = "users"
	credentialsCollection = "credentials"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrEmailTaken         = errors.New("email already registered")
)

// ProductRepository is the product document collection.
// Listings are newest first.
type ProductRepository interface {
	List(ctx context.Context) ([]domain.Product, error)
	ByCategory(ctx context.Context, category string) ([]domain.Product, error)
	Featured(ctx context.Context, limit int) ([]domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, p *domain.Product) error
	Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
}

// OrderRepository is the order document collection. Orders are never deleted.
type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	ByUser(ctx context.Context, userID string) ([]domain.Order, error)
	All(ctx context.Context) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error
	// SetPaymentRef records the gateway payment reference once a redirect
	// checkout has been paid.
	SetPaymentRef(ctx context.Context, id, paymentRef string) error
}

type UserRepository interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}

type CredentialRepository interface {
	CreateCredential(ctx context.Context, c domain.Credential) error
	CredentialByEmail(ctx context.Context, email string) (*domain.Credential, error)
}

// UserStore is a UserRepository that also holds login credentials.
type UserStore interface {
	UserRepository
	CredentialRepository
}
