package service

import (
	"context"
	"time"

	"farm-market/internal/models"
	"farm-market/internal/pricing"
	"farm-market/internal/store"

	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ProductView is a product with its derived pricing and stock fields.
type ProductView struct {
	*models.Product
	FarmerName        *string            `json:"farmer_name"`
	StockStatus       models.StockStatus `json:"stock_status"`
	EffectivePrice    decimal.Decimal    `json:"effective_price"`
	HasActiveDiscount bool               `json:"has_active_discount"`
	HasBulkPricing    bool               `json:"has_bulk_pricing"`
	BulkPricingTiers  []pricing.Tier     `json:"bulk_pricing_tiers"`
}

// ProductPage is one page of a product listing.
type ProductPage struct {
	Products   []ProductView `json:"products"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func totalPages(total, pageSize int) int {
	if total == 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

func newProductView(p *models.Product, farmerName *string, tiers []models.BulkTier, now time.Time) ProductView {
	effective, active := p.EffectivePrice(now)
	return ProductView{
		Product:           p,
		FarmerName:        farmerName,
		StockStatus:       p.StockStatus(),
		EffectivePrice:    effective,
		HasActiveDiscount: active,
		HasBulkPricing:    len(tiers) > 0,
		BulkPricingTiers:  models.Tiers(tiers),
	}
}

// buildViews enriches products with farmer names and bulk tiers using two
// batched lookups.
func buildViews(ctx context.Context, st *store.Store, products []models.Product, now time.Time) ([]ProductView, error) {
	views := make([]ProductView, 0, len(products))
	if len(products) == 0 {
		return views, nil
	}

	ids := make([]string, 0, len(products))
	farmerIDs := make([]string, 0, len(products))
	seen := map[string]bool{}
	for _, p := range products {
		ids = append(ids, p.ID)
		if !seen[p.FarmerID] {
			seen[p.FarmerID] = true
			farmerIDs = append(farmerIDs, p.FarmerID)
		}
	}

	names, err := st.GetFarmerNames(ctx, farmerIDs)
	if err != nil {
		return nil, err
	}
	tiers, err := st.GetBulkTiersForProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i := range products {
		p := &products[i]
		var name *string
		if n, ok := names[p.FarmerID]; ok {
			name = &n
		}
		views = append(views, newProductView(p, name, tiers[p.ID], now))
	}
	return views, nil
}

func buildView(ctx context.Context, st *store.Store, p *models.Product, now time.Time) (*ProductView, error) {
	views, err := buildViews(ctx, st, []models.Product{*p}, now)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func buildPage(ctx context.Context, st *store.Store, products []models.Product, total, page, pageSize int, now time.Time) (*ProductPage, error) {
	views, err := buildViews(ctx, st, products, now)
	if err != nil {
		return nil, err
	}
	return &ProductPage{
		Products:   views,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// quote prices qty units of p against its stored tiers.
func quote(ctx context.Context, st *store.Store, p *models.Product, qty int, now time.Time) (*pricing.Quote, error) {
	if qty < 1 {
		return nil, Validation("quantity must be at least 1")
	}
	rows, err := st.GetBulkTiers(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	q := pricing.Calculate(p.Price, p.Discount(), now, qty, models.Tiers(rows))
	return &q, nil
}
