package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"

	"github.com/fjod/storefront/internal/blob"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/export"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/validate"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dashboardListSize = 5

// ImageUpload is one image file from the admin product form.
type ImageUpload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type ProductInput struct {
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	Price          decimal.Decimal  `json:"price"`
	CompareAtPrice *decimal.Decimal `json:"compareAtPrice,omitempty"`
	Category       string           `json:"category"`
	Featured       bool             `json:"featured"`
	InStock        bool             `json:"inStock"`
	// Images already stored elsewhere, kept ahead of new uploads.
	Images []string `json:"images"`
}

type Dashboard struct {
	TotalRevenue    decimal.Decimal  `json:"totalRevenue"`
	OrderCount      int              `json:"orderCount"`
	ProductCount    int              `json:"productCount"`
	OutOfStockCount int              `json:"outOfStockCount"`
	RecentOrders    []domain.Order   `json:"recentOrders"`
	Products        []domain.Product `json:"products"`
}

type AdminService struct {
	products repository.ProductRepository
	orders   repository.OrderRepository
	blobs    blob.Store
	catalog  *CatalogService
	log      *zap.Logger
	now      func() time.Time
}

func NewAdminService(
	products repository.ProductRepository,
	orders repository.OrderRepository,
	blobs blob.Store,
	catalog *CatalogService,
	log *zap.Logger,
) *AdminService {
	return &AdminService{
		products: products,
		orders:   orders,
		blobs:    blobs,
		catalog:  catalog,
		log:      log,
		now:      time.Now,
	}
}

// ListProducts reads straight from the repository, bypassing the cache.
func (s *AdminService) ListProducts(ctx context.Context, search string) ([]domain.Product, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, err
	}
	if search == "" {
		return products, nil
	}
	return catalog.AdminSearch(products, search), nil
}

func (s *AdminService) CreateProduct(ctx context.Context, in ProductInput, uploads []ImageUpload) (*domain.Product, error) {
	err := validate.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		ImageCount:  len(in.Images) + len(uploads),
	}.Validate()
	if err != nil {
		return nil, err
	}

	urls, err := s.upload(ctx, uploads)
	if err != nil {
		return nil, err
	}

	p := &domain.Product{
		Name:           in.Name,
		Description:    in.Description,
		Price:          in.Price,
		CompareAtPrice: in.CompareAtPrice,
		Images:         append(append([]string{}, in.Images...), urls...),
		Category:       in.Category,
		Featured:       in.Featured,
		InStock:        in.InStock,
	}
	if err := s.products.Create(ctx, p); err != nil {
		s.discard(ctx, urls)
		return nil, err
	}

	s.catalog.Invalidate(ctx)
	s.log.Info("product created", zap.String("product_id", p.ID), zap.Int("images", len(p.Images)))
	return p, nil
}

// UpdateProduct applies patch and appends newly uploaded images to the
// resulting image list.
func (s *AdminService) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch, uploads []ImageUpload) (*domain.Product, error) {
	current, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := patch.Apply(*current)
	err = validate.Product{
		Name:        next.Name,
		Description: next.Description,
		Price:       next.Price,
		ImageCount:  len(next.Images) + len(uploads),
	}.Validate()
	if err != nil {
		return nil, err
	}

	urls, err := s.upload(ctx, uploads)
	if err != nil {
		return nil, err
	}
	if len(urls) > 0 {
		patch.Images = append(append([]string{}, next.Images...), urls...)
	}

	updated, err := s.products.Update(ctx, id, patch)
	if err != nil {
		s.discard(ctx, urls)
		return nil, err
	}

	s.catalog.Invalidate(ctx)
	s.log.Info("product updated", zap.String("product_id", id))
	return updated, nil
}

// DeleteProduct removes the product and any images this store uploaded for it.
func (s *AdminService) DeleteProduct(ctx context.Context, id string) error {
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}

	s.discard(ctx, p.Images)
	s.catalog.Invalidate(ctx)
	s.log.Info("product deleted", zap.String("product_id", id))
	return nil
}

func (s *AdminService) Dashboard(ctx context.Context) (*Dashboard, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.All(ctx)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		TotalRevenue: decimal.Zero,
		OrderCount:   len(orders),
		ProductCount: len(products),
	}
	for _, o := range orders {
		d.TotalRevenue = d.TotalRevenue.Add(o.Total)
	}
	for _, p := range products {
		if !p.InStock {
			d.OutOfStockCount++
		}
	}

	recent := append([]domain.Order(nil), orders...)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].CreatedAt.After(recent[j].CreatedAt) })
	d.RecentOrders = recent[:min(dashboardListSize, len(recent))]
	d.Products = products[:min(dashboardListSize, len(products))]
	return d, nil
}

func (s *AdminService) ExportProducts(ctx context.Context, w io.Writer) error {
	products, err := s.products.List(ctx)
	if err != nil {
		return err
	}
	return export.WriteProducts(w, products)
}

func (s *AdminService) ExportOrders(ctx context.Context, w io.Writer) error {
	orders, err := s.orders.All(ctx)
	if err != nil {
		return err
	}
	return export.WriteOrders(w, orders)
}

func (s *AdminService) upload(ctx context.Context, uploads []ImageUpload) ([]string, error) {
	urls := make([]string, 0, len(uploads))
	at := s.now()
	for i, u := range uploads {
		name := blob.ProductObjectName(u.Filename, at, i)
		if err := s.blobs.Put(ctx, name, u.ContentType, u.Body); err != nil {
			s.discard(ctx, urls)
			return nil, err
		}
		urls = append(urls, blob.URL(name))
	}
	return urls, nil
}

// discard deletes stored images best effort. References to images the store
// does not own are skipped.
func (s *AdminService) discard(ctx context.Context, urls []string) {
	for _, u := range urls {
		name, ok := blob.NameFromURL(u)
		if !ok {
			continue
		}
		err := s.blobs.Delete(context.WithoutCancel(ctx), name)
		if err != nil && !errors.Is(err, blob.ErrNotFound) {
			s.log.Warn("failed to delete image", zap.String("name", name), zap.Error(err))
		}
	}
}
