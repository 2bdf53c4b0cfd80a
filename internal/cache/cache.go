package cache

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
)

// ProductCache holds read-mostly catalog queries. Any admin write drops
// the whole cache through Invalidate.
type ProductCache interface {
	GetList(ctx context.Context, key string) ([]domain.Product, error)
	SetList(ctx context.Context, key string, products []domain.Product) error
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	SetProduct(ctx context.Context, p *domain.Product) error
	Invalidate(ctx context.Context) error
}

var ErrCacheMiss = errors.New("cache miss")
