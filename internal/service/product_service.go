package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"farm-market/internal/models"
	"farm-market/internal/pricing"
	"farm-market/internal/store"
	"farm-market/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Stock change reasons carried on StockChanged events.
const (
	ReasonInventoryUpdate = "inventory_update"
	ReasonProductUpdate   = "product_update"
	ReasonOrderPlaced     = "order_placed"
	ReasonOrderCancelled  = "order_cancelled"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 2000
	priceHistoryLimit    = 50
)

// ProductService manages a farmer's listings. Every write to a product row
// is conditional on the version read just before it.
type ProductService struct {
	store  *store.Store
	events EventPublisher
	logger *zap.Logger
	now    Clock
}

// NewProductService creates a new product service
func NewProductService(store *store.Store, events EventPublisher) *ProductService {
	return &ProductService{
		store:  store,
		events: events,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// WithClock replaces the service clock.
func (s *ProductService) WithClock(now Clock) *ProductService {
	s.now = now
	return s
}

// CreateProductInput is the body of a create request.
type CreateProductInput struct {
	Name              string          `json:"name"`
	Category          models.Category `json:"category"`
	Description       string          `json:"description"`
	Price             decimal.Decimal `json:"price"`
	Unit              models.Unit     `json:"unit"`
	Quantity          int             `json:"quantity"`
	LowStockThreshold *int            `json:"low_stock_threshold"`
	Seasonality       []models.Season `json:"seasonality"`
	Images            []string        `json:"images"`
}

// UpdateProductInput is a partial update. Version is mandatory.
type UpdateProductInput struct {
	Version           *int                  `json:"version"`
	Name              *string               `json:"name"`
	Category          *models.Category      `json:"category"`
	Description       *string               `json:"description"`
	Price             *decimal.Decimal      `json:"price"`
	Unit              *models.Unit          `json:"unit"`
	Quantity          *int                  `json:"quantity"`
	LowStockThreshold *int                  `json:"low_stock_threshold"`
	Seasonality       *[]models.Season      `json:"seasonality"`
	Status            *models.ProductStatus `json:"status"`
}

func cleanName(name string) (string, error) {
	cleaned := strings.Join(strings.Fields(name), " ")
	if cleaned == "" {
		return "", Validation("product name cannot be empty")
	}
	if utf8.RuneCountInString(cleaned) > maxNameLength {
		return "", Validation("product name must be at most %d characters", maxNameLength)
	}
	return cleaned, nil
}

func cleanDescription(desc string) (string, error) {
	cleaned := strings.TrimSpace(desc)
	if cleaned == "" {
		return "", Validation("product description cannot be empty")
	}
	if utf8.RuneCountInString(cleaned) > maxDescriptionLength {
		return "", Validation("product description must be at most %d characters", maxDescriptionLength)
	}
	return cleaned, nil
}

func checkPrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return Validation("price must be greater than 0")
	}
	if !price.Equal(price.Truncate(2)) {
		return Validation("price must have at most 2 decimal places")
	}
	return nil
}

func checkQuantity(field string, qty int) error {
	if qty < 0 {
		return Validation("%s must be 0 or greater", field)
	}
	return nil
}

// cleanSeasonality removes duplicates, keeping order. Empty means year-round.
func cleanSeasonality(seasons []models.Season) (models.SeasonList, error) {
	if len(seasons) == 0 {
		return models.SeasonList{models.SeasonYearRound}, nil
	}
	seen := map[models.Season]bool{}
	out := models.SeasonList{}
	for _, season := range seasons {
		if !season.Valid() {
			return nil, Validation("invalid season %q", season)
		}
		if !seen[season] {
			seen[season] = true
			out = append(out, season)
		}
	}
	return out, nil
}

func checkImageURLs(urls []string) error {
	for _, raw := range urls {
		u, err := url.ParseRequestURI(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Validation("invalid image url %q", raw)
		}
	}
	return nil
}

// CreateProduct lists a new product at version 1.
func (s *ProductService) CreateProduct(ctx context.Context, farmerID string, in CreateProductInput) (*ProductView, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.CreateProduct")
	defer span.End()

	name, err := cleanName(in.Name)
	if err != nil {
		return nil, err
	}
	desc, err := cleanDescription(in.Description)
	if err != nil {
		return nil, err
	}
	if !in.Category.Valid() {
		return nil, Validation("invalid category %q", in.Category)
	}
	if !in.Unit.Valid() {
		return nil, Validation("invalid unit %q", in.Unit)
	}
	if err := checkPrice(in.Price); err != nil {
		return nil, err
	}
	if err := checkQuantity("quantity", in.Quantity); err != nil {
		return nil, err
	}
	threshold := models.DefaultLowStockThreshold
	if in.LowStockThreshold != nil {
		threshold = *in.LowStockThreshold
		if err := checkQuantity("low_stock_threshold", threshold); err != nil {
			return nil, err
		}
	}
	seasons, err := cleanSeasonality(in.Seasonality)
	if err != nil {
		return nil, err
	}
	if len(in.Images) > models.MaxImages {
		return nil, BusinessRule("a product can have at most %d images", models.MaxImages)
	}
	if err := checkImageURLs(in.Images); err != nil {
		return nil, err
	}

	now := s.now()
	product := &models.Product{
		FarmerID:          farmerID,
		Name:              name,
		Category:          in.Category,
		Description:       desc,
		Price:             in.Price,
		Unit:              in.Unit,
		Quantity:          in.Quantity,
		LowStockThreshold: threshold,
		Status:            models.ProductActive,
		Images:            models.StringList(in.Images),
		Seasonality:       seasons,
		CreatedAt:         now,
	}
	if product.Images == nil {
		product.Images = models.StringList{}
	}

	if err := s.store.CreateProduct(ctx, product); err != nil {
		util.ProductUpdatesTotal.WithLabelValues("create", "error").Inc()
		return nil, err
	}

	util.ProductUpdatesTotal.WithLabelValues("create", "ok").Inc()
	s.logger.Info("Product created",
		zap.String("product_id", product.ID),
		zap.String("farmer_id", farmerID))
	s.publishUpdated(ctx, "create", product, nil)

	return buildView(ctx, s.store, product, now)
}

// load fetches a product owned by farmerID. An empty farmerID skips the
// ownership check.
func (s *ProductService) load(ctx context.Context, farmerID, productID string) (*models.Product, error) {
	var (
		product *models.Product
		err     error
	)
	if farmerID == "" {
		product, err = s.store.GetProductByID(ctx, productID)
	} else {
		product, err = s.store.GetProductForFarmer(ctx, farmerID, productID)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("product not found")
	}
	return product, err
}

// GetProduct returns one of the farmer's products.
func (s *ProductService) GetProduct(ctx context.Context, farmerID, productID string) (*ProductView, error) {
	product, err := s.load(ctx, farmerID, productID)
	if err != nil {
		return nil, err
	}
	return buildView(ctx, s.store, product, s.now())
}

// ListProducts pages through the farmer's products.
func (s *ProductService) ListProducts(ctx context.Context, farmerID string, f models.ProductFilter) (*ProductPage, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, Validation("invalid status %q", f.Status)
	}
	f.Page, f.PageSize = normalizePage(f.Page, f.PageSize)

	products, total, err := s.store.ListFarmerProducts(ctx, farmerID, f)
	if err != nil {
		return nil, err
	}
	return buildPage(ctx, s.store, products, total, f.Page, f.PageSize, s.now())
}

// write performs the conditional update of current at version and publishes
// the resulting events.
func (s *ProductService) write(ctx context.Context, op string, current *models.Product, version int, changes models.ProductChanges) (*ProductView, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.write",
		attribute.String("operation", op),
		attribute.String("product_id", current.ID))
	defer span.End()

	now := s.now()
	updated, err := s.store.UpdateProductIfVersion(ctx, current.ID, version, changes, now)
	var conflict *store.VersionConflictError
	switch {
	case errors.As(err, &conflict):
		util.VersionConflictsTotal.WithLabelValues("write").Inc()
		util.ProductUpdatesTotal.WithLabelValues(op, "conflict").Inc()
		s.logger.Warn("Product version conflict",
			zap.String("product_id", current.ID),
			zap.Int("expected_version", conflict.Expected),
			zap.Int("current_version", conflict.Found))
		return nil, versionConflict(conflict.Expected, conflict.Found)
	case errors.Is(err, store.ErrNotFound):
		return nil, NotFound("product not found")
	case err != nil:
		util.ProductUpdatesTotal.WithLabelValues(op, "error").Inc()
		util.RecordError(span, err)
		return nil, err
	}

	util.ProductUpdatesTotal.WithLabelValues(op, "ok").Inc()
	if !changes.Empty() {
		s.publishUpdated(ctx, op, updated, changedFields(changes))
		if updated.Quantity != current.Quantity {
			reason := ReasonProductUpdate
			if op == "inventory" {
				reason = ReasonInventoryUpdate
			}
			publishStockChanges(ctx, s.events, s.logger, stockChangedEvents([]store.StockMovement{{
				ProductID:         updated.ID,
				FarmerID:          updated.FarmerID,
				ProductName:       updated.Name,
				PreviousQuantity:  current.Quantity,
				CurrentQuantity:   updated.Quantity,
				LowStockThreshold: updated.LowStockThreshold,
			}}, reason, now))
		}
	}

	return buildView(ctx, s.store, updated, now)
}

func (s *ProductService) publishUpdated(ctx context.Context, op string, p *models.Product, fields []string) {
	event := &models.ProductUpdatedEvent{
		BaseEvent: baseEvent(models.EventTypeProductUpdated, s.now()),
		ProductID: p.ID,
		FarmerID:  p.FarmerID,
		Operation: op,
		Version:   p.Version,
		Fields:    fields,
	}
	if err := s.events.PublishProductUpdated(ctx, event); err != nil {
		s.logger.Error("Failed to publish ProductUpdated event", zap.Error(err))
	}
}

func changedFields(c models.ProductChanges) []string {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(c.Name != nil, "name")
	add(c.Category != nil, "category")
	add(c.Description != nil, "description")
	add(c.Price != nil, "price")
	add(c.Unit != nil, "unit")
	add(c.Quantity != nil, "quantity")
	add(c.LowStockThreshold != nil, "low_stock_threshold")
	add(c.Status != nil, "status")
	add(c.Seasonality != nil, "seasonality")
	add(c.Images != nil, "images")
	add(c.Discount != nil, "discount")
	return fields
}

// UpdateProduct applies a partial update guarded by the caller's version.
func (s *ProductService) UpdateProduct(ctx context.Context, farmerID, productID string, in UpdateProductInput) (*ProductView, error) {
	if in.Version == nil {
		return nil, Validation("version is required for updates")
	}
	current, err := s.load(ctx, farmerID, productID)
	if err != nil {
		return nil, err
	}
	if current.Version != *in.Version {
		util.VersionConflictsTotal.WithLabelValues("read").Inc()
		return nil, versionConflict(*in.Version, current.Version)
	}

	changes, err := s.updateChanges(ctx, current, in)
	if err != nil {
		return nil, err
	}
	return s.write(ctx, "update", current, *in.Version, changes)
}

func (s *ProductService) updateChanges(ctx context.Context, current *models.Product, in UpdateProductInput) (models.ProductChanges, error) {
	var c models.ProductChanges
	if in.Name != nil {
		name, err := cleanName(*in.Name)
		if err != nil {
			return c, err
		}
		c.Name = &name
	}
	if in.Category != nil {
		if !in.Category.Valid() {
			return c, Validation("invalid category %q", *in.Category)
		}
		c.Category = in.Category
	}
	if in.Description != nil {
		desc, err := cleanDescription(*in.Description)
		if err != nil {
			return c, err
		}
		c.Description = &desc
	}
	if in.Price != nil {
		if err := s.checkNewPrice(ctx, current, *in.Price); err != nil {
			return c, err
		}
		c.Price = in.Price
	}
	if in.Unit != nil {
		if !in.Unit.Valid() {
			return c, Validation("invalid unit %q", *in.Unit)
		}
		c.Unit = in.Unit
	}
	if in.Quantity != nil {
		if err := checkQuantity("quantity", *in.Quantity); err != nil {
			return c, err
		}
		c.Quantity = in.Quantity
	}
	if in.LowStockThreshold != nil {
		if err := checkQuantity("low_stock_threshold", *in.LowStockThreshold); err != nil {
			return c, err
		}
		c.LowStockThreshold = in.LowStockThreshold
	}
	if in.Seasonality != nil {
		seasons, err := cleanSeasonality(*in.Seasonality)
		if err != nil {
			return c, err
		}
		c.Seasonality = &seasons
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return c, Validation("invalid status %q", *in.Status)
		}
		c.Status = in.Status
	}
	return c, nil
}

// checkNewPrice validates price and keeps an existing fixed discount and
// every stored bulk tier below it.
func (s *ProductService) checkNewPrice(ctx context.Context, current *models.Product, price decimal.Decimal) error {
	if err := checkPrice(price); err != nil {
		return err
	}
	if d := current.Discount(); d.Type == pricing.Fixed && d.Value.GreaterThanOrEqual(price) {
		return BusinessRule("%s", pricing.ErrFixedTooLarge.Error()).
			WithDetail("discount_value", d.Value.StringFixed(2))
	}

	tiers, err := s.store.GetBulkTiers(ctx, current.ID)
	if err != nil {
		return err
	}
	for _, t := range tiers {
		if t.Price.GreaterThanOrEqual(price) {
			return BusinessRule("bulk price %s for %d+ units must be less than regular price %s",
				t.Price.StringFixed(2), t.MinQuantity, price.StringFixed(2)).
				WithDetail("min_quantity", t.MinQuantity)
		}
	}
	return nil
}

// ArchiveProduct soft deletes a product.
func (s *ProductService) ArchiveProduct(ctx context.Context, farmerID, productID string) (*ProductView, error) {
	current, err := s.load(ctx, farmerID, productID)
	if err != nil {
		return nil, err
	}
	if current.Status == models.ProductArchived {
		return nil, BusinessRule("product is already archived")
	}
	status := models.ProductArchived
	return s.write(ctx, "archive", current, current.Version, models.ProductChanges{Status: &status})
}

// ReactivateProduct makes an archived product active again.
func (s *ProductService) ReactivateProduct(ctx context.Context, farmerID, productID string) (*ProductView, error) {
	current, err := s.load(ctx, farmerID, productID)
	if err != nil {
		return nil, err
	}
	if current.Status != models.ProductArchived {
		return nil, BusinessRule("only archived products can be reactivated")
	}
	status := models.ProductActive
	return s.write(ctx, "reactivate", current, current.Version, models.ProductChanges{Status: &status})
}

// DeleteProduct hard deletes a product that no open order references.
func (s *ProductService) DeleteProduct(ctx context.Context, farmerID, productID string) error {
	ctx, span := util.StartSpan(ctx, "ProductService.DeleteProduct")
	defer span.End()

	current, err := s.load(ctx, farmerID, productID)
	if err != nil {
		return err
	}
	pending, err := s.store.HasPendingOrders(ctx, current.ID)
	if err != nil {
		return err
	}
	if pending {
		return BusinessRule("cannot delete product with pending orders; archive it instead")
	}

	if err := s.store.DeleteProduct(ctx, current.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("product not found")
		}
		util.ProductUpdatesTotal.WithLabelValues("delete", "error").Inc()
		return err
	}

	util.ProductUpdatesTotal.WithLabelValues("delete", "ok").Inc()
	s.logger.Info("Product deleted", zap.String("product_id", current.ID))
	s.publishUpdated(ctx, "delete", current, nil)
	return nil
}

// UpdateInventory sets the stock quantity.
func (s *ProductService) UpdateInventory(ctx context.Context, farmerID, productID string, quantity int) (*ProductView, error) {
	if err := checkQuantity("quantity", quantity); err != nil {
		return nil, err
	}
	current, err := s.load(ctx, farmerID, productID)
	if err != nil {
		return nil, err
	}
	return s.write(ctx, "inventory", current, current.Version, models.ProductChanges{Quantity: &quantity})
}

// MarkOutOfStock sets the quantity to zero.
func (s *ProductService) MarkOutOfStock(ctx context.Context, farmerID, productID string) (*ProductView, error) {
	return s.UpdateInventory(ctx, farmerID, productID, 0)
}

// MarkInStock sets a positive quantity.
func (s *ProductService) MarkInStock(ctx context.Context, farmerID, productID string, quantity int) (*ProductView, error) {
	if quantity <= 0 {
		return nil, Validation("quantity must be greater than 0 to mark as in stock")
	}
	return s.UpdateInventory(ctx, farmerID, productID, quantity)
}

// UpdateThreshold sets the low stock threshold.
func (s *ProductService) UpdateThreshold(ctx context.Context, farmerID, productID string, threshold int) (*ProductView, error) {
	if err := checkQuantity("low_stock_threshold", threshold); err != nil {
		return nil, err
	}
	current, err := s.load(ctx, farmerID, productID)
	if err != nil {
		return nil, err
	}
	return s.write(ctx, "threshold", current, current.Version, models.ProductChanges{LowStockThreshold: &threshold})
}

// LowStockProducts lists active products at or below their threshold.
func (s *ProductService) LowStockProducts(ctx context.Context, farmerID string) ([]ProductView, error) {
	products, err := s.store.ListLowStock(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	return buildViews(ctx, s.store, products, s.now())
}

// UpdatePrice changes the base price and records it in the price history.
func (s *ProductService) UpdatePrice(ctx context.Context, farmerID, productID, changedBy string, price decimal.Decimal, reason *string) (*ProductView, error) {
	current, err := s.load(ctx, farmerID, productID)
	if err != nil {
		return nil, err
	}
	if err := s.checkNewPrice(ctx, current, price); err != nil {
		return nil, err
	}
	changes := models.ProductChanges{Price: &price, PriceChangeReason: reason}
	if changedBy != "" {
		changes.PriceChangedBy = &changedBy
	}
	return s.write(ctx, "price", current, current.Version, changes)
}

// ApplyDiscount sets or replaces the product's discount.
func (s *ProductService) ApplyDiscount(ctx context.Context, farmerID, productID string, d pricing.Discount) (*ProductView, error) {
	current, err := s.load(ctx, farmerID, productID)
	if err != nil {
		return nil, err
	}
	if err := pricing.ValidateDiscount(current.Price, d); err != nil {
		if errors.Is(err, pricing.ErrUnknownDiscountType) || errors.Is(err, pricing.ErrDiscountValue) ||
			errors.Is(err, pricing.ErrDiscountPrecision) || errors.Is(err, pricing.ErrDiscountWindow) {
			return nil, Validation("%s", err.Error())
		}
		return nil, BusinessRule("%s", err.Error())
	}
	return s.write(ctx, "discount", current, current.Version,
		models.ProductChanges{Discount: &models.DiscountChange{Discount: d}})
}

// RemoveDiscount clears the product's discount.
func (s *ProductService) RemoveDiscount(ctx context.Context, farmerID, productID string) (*ProductView, error) {
	current, err := s.load(ctx, farmerID, productID)
	if err != nil {
		return nil, err
	}
	if !current.HasDiscount() {
		return nil, BusinessRule("product does not have a discount")
	}
	return s.write(ctx, "discount", current, current.Version,
		models.ProductChanges{Discount: &models.DiscountChange{Clear: true}})
}

// SetBulkPricing replaces the product's bulk tiers.
func (s *ProductService) SetBulkPricing(ctx context.Context, farmerID, productID string, tiers []pricing.Tier) (*ProductView, error) {
	current, err := s.load(ctx, farmerID, productID)
	if err != nil {
		return nil, err
	}
	sorted, err := pricing.ValidateTiers(current.Price, tiers)
	if err != nil {
		if errors.Is(err, pricing.ErrNoTiers) || errors.Is(err, pricing.ErrTooManyTiers) ||
			errors.Is(err, pricing.ErrDuplicateTier) {
			return nil, Validation("%s", err.Error())
		}
		return nil, BusinessRule("%s", err.Error())
	}
	if _, err := s.store.ReplaceBulkTiers(ctx, current.ID, sorted, s.now()); err != nil {
		return nil, err
	}
	util.ProductUpdatesTotal.WithLabelValues("bulk_pricing", "ok").Inc()
	return buildView(ctx, s.store, current, s.now())
}

// GetBulkPricing returns the product's stored tiers.
func (s *ProductService) GetBulkPricing(ctx context.Context, farmerID, productID string) ([]models.BulkTier, error) {
	current, err := s.load(ctx, farmerID, productID)
	if err != nil {
		return nil, err
	}
	return s.store.GetBulkTiers(ctx, current.ID)
}

// DeleteBulkPricing removes every tier of the product.
func (s *ProductService) DeleteBulkPricing(ctx context.Context, farmerID, productID string) (*ProductView, error) {
	current, err := s.load(ctx, farmerID, productID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.DeleteBulkTiers(ctx, current.ID); err != nil {
		return nil, err
	}
	return buildView(ctx, s.store, current, s.now())
}

// PriceHistory lists the most recent base price changes.
func (s *ProductService) PriceHistory(ctx context.Context, farmerID, productID string) ([]models.PriceHistoryEntry, error) {
	current, err := s.load(ctx, farmerID, productID)
	if err != nil {
		return nil, err
	}
	return s.store.GetPriceHistory(ctx, current.ID, priceHistoryLimit)
}

// AddImages appends image URLs, up to MaxImages in total.
func (s *ProductService) AddImages(ctx context.Context, farmerID, productID string, urls []string) (*ProductView, error) {
	if len(urls) == 0 {
		return nil, Validation("at least one image url is required")
	}
	if err := checkImageURLs(urls); err != nil {
		return nil, err
	}
	current, err := s.load(ctx, farmerID, productID)
	if err != nil {
		return nil, err
	}
	if len(current.Images)+len(urls) > models.MaxImages {
		return nil, BusinessRule("cannot add %d images: product already has %d images (max %d)",
			len(urls), len(current.Images), models.MaxImages)
	}

	images := append(models.StringList{}, current.Images...)
	images = append(images, urls...)
	return s.write(ctx, "images", current, current.Version, models.ProductChanges{Images: &images})
}

// RemoveImage drops one image URL from the product.
func (s *ProductService) RemoveImage(ctx context.Context, farmerID, productID, imageURL string) (*ProductView, error) {
	current, err := s.load(ctx, farmerID, productID)
	if err != nil {
		return nil, err
	}

	images := models.StringList{}
	found := false
	for _, img := range current.Images {
		if img == imageURL && !found {
			found = true
			continue
		}
		images = append(images, img)
	}
	if !found {
		return nil, NotFound("image not found in product")
	}
	return s.write(ctx, "images", current, current.Version, models.ProductChanges{Images: &images})
}

// Quote prices qty units of one of the farmer's products.
func (s *ProductService) Quote(ctx context.Context, farmerID, productID string, qty int) (*pricing.Quote, error) {
	current, err := s.load(ctx, farmerID, productID)
	if err != nil {
		return nil, err
	}
	return quote(ctx, s.store, current, qty, s.now())
}
