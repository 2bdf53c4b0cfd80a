package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type CatalogService struct {
	repo  repository.ProductRepository
	cache cache.ProductCache
	sfg   singleflight.Group // collapses concurrent cache misses
	log   *zap.Logger
}

func NewCatalogService(repo repository.ProductRepository, cache cache.ProductCache, log *zap.Logger) *CatalogService {
	return &CatalogService{repo: repo, cache: cache, log: log}
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.cachedList(ctx, "all", s.repo.List)
}

func (s *CatalogService) ProductsByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	if category == "" || category == domain.CategoryAll {
		return s.ListProducts(ctx)
	}
	return s.cachedList(ctx, "category:"+category, func(ctx context.Context) ([]domain.Product, error) {
		return s.repo.ByCategory(ctx, category)
	})
}

func (s *CatalogService) FeaturedProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = catalog.DefaultFeaturedLimit
	}
	return s.cachedList(ctx, fmt.Sprintf("featured:%d", limit), func(ctx context.Context) ([]domain.Product, error) {
		return s.repo.Featured(ctx, limit)
	})
}

func (s *CatalogService) Product(ctx context.Context, id string) (*domain.Product, error) {
	v, err, _ := s.sfg.Do("product:"+id, func() (any, error) {
		p, err := s.cache.GetProduct(ctx, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("product cache get failed", zap.String("product_id", id), zap.Error(err))
		}

		p, err = s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetProduct(context.WithoutCancel(ctx), p); err != nil {
			s.log.Warn("product cache set failed", zap.String("product_id", id), zap.Error(err))
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Product), nil
}

func (s *CatalogService) SearchProducts(ctx context.Context, term string) ([]domain.Product, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Search(products, term), nil
}

func (s *CatalogService) Categories(ctx context.Context) ([]string, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Categories(products), nil
}

// BrowseResult is one page of the product listing.
type BrowseResult struct {
	Products   []domain.Product   `json:"products"`
	Categories []string           `json:"categories"`
	PriceRange [2]decimal.Decimal `json:"priceRange"`
}

// Browse runs the filter pipeline over the full catalog. The price range and
// categories describe the unfiltered catalog so the client can render its
// filter controls.
func (s *CatalogService) Browse(ctx context.Context, c catalog.Criteria, search string) (*BrowseResult, error) {
	all, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	visible := all
	if search != "" {
		visible = catalog.Search(visible, search)
	}
	return &BrowseResult{
		Products:   catalog.Apply(visible, c),
		Categories: catalog.Categories(all),
		PriceRange: catalog.PriceBounds(all),
	}, nil
}

// Invalidate drops every cached catalog query.
func (s *CatalogService) Invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("product cache invalidate failed", zap.Error(err))
	}
}

func (s *CatalogService) cachedList(ctx context.Context, key string, load func(context.Context) ([]domain.Product, error)) ([]domain.Product, error) {
	v, err, _ := s.sfg.Do("list:"+key, func() (any, error) {
		products, err := s.cache.GetList(ctx, key)
		if err == nil {
			return products, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("product cache get failed", zap.String("key", key), zap.Error(err))
		}

		products, err = load(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetList(context.WithoutCancel(ctx), key, products); err != nil {
			s.log.Warn("product cache set failed", zap.String("key", key), zap.Error(err))
		}
		return products, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Product), nil
}
