package service

import (
	"context"
	"errors"
	"time"

	"farm-market/internal/models"
	"farm-market/internal/pricing"
	"farm-market/internal/store"
	"farm-market/internal/util"

	"go.uber.org/zap"
)

const (
	featuredLimit = 10
	relatedLimit  = 4
)

// CatalogService serves the public, read-only view of active products.
type CatalogService struct {
	store  *store.Store
	logger *zap.Logger
	now    Clock
}

func NewCatalogService(store *store.Store) *CatalogService {
	return &CatalogService{
		store:  store,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// WithClock replaces the service clock.
func (s *CatalogService) WithClock(now Clock) *CatalogService {
	s.now = now
	return s
}

// CategoryInfo describes one product category.
type CategoryInfo struct {
	Value models.Category `json:"value"`
	Label string          `json:"label"`
}

// ProductDetail is a public product with a few related ones.
type ProductDetail struct {
	Product  ProductView   `json:"product"`
	Related  []ProductView `json:"related_products"`
	Category CategoryInfo  `json:"category"`
}

// Catalog pages through active, in-stock products.
func (s *CatalogService) Catalog(ctx context.Context, f models.ProductFilter) (*ProductPage, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Catalog")
	defer span.End()

	if f.Category != "" && !f.Category.Valid() {
		return nil, Validation("invalid category %q", f.Category)
	}
	f.Page, f.PageSize = normalizePage(f.Page, f.PageSize)

	products, total, err := s.store.ListCatalog(ctx, f)
	if err != nil {
		return nil, err
	}
	return buildPage(ctx, s.store, products, total, f.Page, f.PageSize, s.now())
}

// Featured returns the newest products for the storefront.
func (s *CatalogService) Featured(ctx context.Context, limit int) ([]ProductView, error) {
	if limit < 1 || limit > maxPageSize {
		limit = featuredLimit
	}
	products, err := s.store.ListFeatured(ctx, limit)
	if err != nil {
		return nil, err
	}
	return buildViews(ctx, s.store, products, s.now())
}

// Categories lists every category.
func (s *CatalogService) Categories() []CategoryInfo {
	out := make([]CategoryInfo, 0, len(models.Categories))
	for _, c := range models.Categories {
		out = append(out, CategoryInfo{Value: c, Label: string(c)})
	}
	return out
}

// activeProduct loads a product visible to the public.
func (s *CatalogService) activeProduct(ctx context.Context, productID string) (*models.Product, error) {
	product, err := s.store.GetProductByID(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("product not found")
	}
	if err != nil {
		return nil, err
	}
	if product.Status != models.ProductActive {
		return nil, NotFound("product not available")
	}
	return product, nil
}

// Product returns a public product and related products of its category.
func (s *CatalogService) Product(ctx context.Context, productID string) (*ProductDetail, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Product")
	defer span.End()

	product, err := s.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	view, err := buildView(ctx, s.store, product, now)
	if err != nil {
		return nil, err
	}

	related, err := s.store.ListRelated(ctx, product.Category, product.ID, relatedLimit)
	if err != nil {
		return nil, err
	}
	relatedViews, err := buildViews(ctx, s.store, related, now)
	if err != nil {
		return nil, err
	}

	return &ProductDetail{
		Product:  *view,
		Related:  relatedViews,
		Category: CategoryInfo{Value: product.Category, Label: string(product.Category)},
	}, nil
}

// Quote prices qty units of a public product.
func (s *CatalogService) Quote(ctx context.Context, productID string, qty int) (*pricing.Quote, error) {
	product, err := s.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return quote(ctx, s.store, product, qty, s.now())
}
