package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"farm-market/internal/models"
	"farm-market/internal/store"
	"farm-market/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MaxCartQuantity bounds the quantity of a single cart request.
const MaxCartQuantity = 999

// CartService manages a consumer's cart. Stock is checked on every write
// but never reserved.
type CartService struct {
	store   *store.Store
	taxRate decimal.Decimal
	logger  *zap.Logger
	now     Clock
}

func NewCartService(store *store.Store, taxRate decimal.Decimal) *CartService {
	return &CartService{
		store:   store,
		taxRate: taxRate,
		logger:  util.GetLogger(),
		now:     time.Now,
	}
}

// WithClock replaces the service clock.
func (s *CartService) WithClock(now Clock) *CartService {
	s.now = now
	return s
}

// CartResult is the outcome of a cart write.
type CartResult struct {
	Message string           `json:"message"`
	Cart    *models.CartView `json:"cart"`
}

func checkCartQuantity(qty int) error {
	if qty < 1 || qty > MaxCartQuantity {
		return Validation("quantity must be between 1 and %d", MaxCartQuantity)
	}
	return nil
}

// summarize totals the lines. Tax is rounded to cents with banker's rounding.
func summarize(lines []models.CartLine, taxRate decimal.Decimal) models.CartSummary {
	subtotal := decimal.Zero
	count := 0
	for _, l := range lines {
		subtotal = subtotal.Add(l.Subtotal)
		count += l.Quantity
	}
	tax := subtotal.Mul(taxRate)
	return models.CartSummary{
		Subtotal:    subtotal,
		TaxRate:     taxRate,
		TaxAmount:   tax.RoundBank(2),
		Total:       subtotal.Add(tax).RoundBank(2),
		ItemCount:   count,
		UniqueItems: len(lines),
	}
}

func productsByID(products []models.Product) map[string]*models.Product {
	m := make(map[string]*models.Product, len(products))
	for i := range products {
		m[products[i].ID] = &products[i]
	}
	return m
}

// cartProducts loads the products referenced by items.
func (s *CartService) cartProducts(ctx context.Context, items []models.CartItem) (map[string]*models.Product, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return productsByID(products), nil
}

// view assembles the cart. Lines whose product no longer exists are left out.
func (s *CartService) view(ctx context.Context, cart *models.Cart) (*models.CartView, error) {
	items, err := s.store.GetCartItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	products, err := s.cartProducts(ctx, items)
	if err != nil {
		return nil, err
	}

	farmerIDs := make([]string, 0, len(products))
	for _, p := range products {
		farmerIDs = append(farmerIDs, p.FarmerID)
	}
	names, err := s.store.GetFarmerNames(ctx, farmerIDs)
	if err != nil {
		return nil, err
	}

	lines := make([]models.CartLine, 0, len(items))
	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok {
			continue
		}
		info := &models.CartItemProduct{
			ID:            p.ID,
			Name:          p.Name,
			Category:      p.Category,
			Unit:          p.Unit,
			Images:        p.Images,
			FarmerID:      p.FarmerID,
			StockQuantity: p.Quantity,
			Status:        p.Status,
		}
		if name, ok := names[p.FarmerID]; ok {
			info.FarmerName = &name
		}
		lines = append(lines, models.CartLine{
			ID:        item.ID,
			ProductID: item.ProductID,
			Product:   info,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
			CreatedAt: item.CreatedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}

	return &models.CartView{
		ID:        cart.ID,
		UserID:    cart.UserID,
		Items:     lines,
		Summary:   summarize(lines, s.taxRate),
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}, nil
}

// GetCart returns the user's cart, creating an empty one on first use.
func (s *CartService) GetCart(ctx context.Context, userID string) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	cart, err := s.store.GetOrCreateCart(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

// AddItem adds quantity units of a product, merging with an existing line.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (*CartResult, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if err := checkCartQuantity(quantity); err != nil {
		return nil, err
	}

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if errors.Is(err, store.ErrNotFound) {
		product = nil
	}

	now := s.now()
	cart, err := s.store.GetOrCreateCart(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	message, err := s.addOrMerge(ctx, cart, product, productID, quantity, now)
	if errors.Is(err, store.ErrDuplicate) {
		// a concurrent add created the line first
		message, err = s.addOrMerge(ctx, cart, product, productID, quantity, now)
	}
	if err != nil {
		return nil, err
	}

	util.CartOperationsTotal.WithLabelValues("add").Inc()
	view, err := s.view(ctx, cart)
	if err != nil {
		return nil, err
	}
	return &CartResult{Message: message, Cart: view}, nil
}

func (s *CartService) addOrMerge(ctx context.Context, cart *models.Cart, product *models.Product, productID string, quantity int, now time.Time) (string, error) {
	existing, err := s.store.GetCartItemByProduct(ctx, cart.ID, productID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	held := 0
	if existing != nil {
		held = existing.Quantity
	}
	if v := CheckStock(product, held, quantity); v != nil {
		return "", rejectStock(v)
	}

	if existing != nil {
		total := held + quantity
		if err := s.store.UpdateCartItemQuantity(ctx, cart.ID, existing.ID, total, now); err != nil {
			return "", err
		}
		return fmt.Sprintf("updated quantity to %d in your cart", total), nil
	}

	price, _ := product.EffectivePrice(now)
	item := &models.CartItem{
		ID:        uuid.NewString(),
		CartID:    cart.ID,
		ProductID: product.ID,
		Quantity:  quantity,
		UnitPrice: price,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.AddCartItem(ctx, item); err != nil {
		return "", err
	}
	return fmt.Sprintf("added %s to your cart", product.Name), nil
}

// userCartItem finds a line of the user's cart.
func (s *CartService) userCartItem(ctx context.Context, userID, itemID string) (*models.Cart, *models.CartItem, error) {
	cart, err := s.store.GetCartByUserID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, NotFound("cart not found")
	}
	if err != nil {
		return nil, nil, err
	}
	item, err := s.store.GetCartItem(ctx, cart.ID, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, NotFound("item not found in your cart")
	}
	if err != nil {
		return nil, nil, err
	}
	return cart, item, nil
}

// UpdateItem sets the quantity of a cart line.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID string, quantity int) (*CartResult, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateItem")
	defer span.End()

	if err := checkCartQuantity(quantity); err != nil {
		return nil, err
	}
	cart, item, err := s.userCartItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	product, err := s.store.GetProductByID(ctx, item.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		product = nil
	} else if err != nil {
		return nil, err
	}
	if v := CheckStock(product, 0, quantity); v != nil {
		return nil, rejectStock(v)
	}

	if err := s.store.UpdateCartItemQuantity(ctx, cart.ID, item.ID, quantity, s.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFound("item not found in your cart")
		}
		return nil, err
	}

	util.CartOperationsTotal.WithLabelValues("update").Inc()
	view, err := s.view(ctx, cart)
	if err != nil {
		return nil, err
	}
	return &CartResult{Message: fmt.Sprintf("quantity updated to %d", quantity), Cart: view}, nil
}

// RemoveItem deletes a cart line.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string) (*CartResult, error) {
	cart, item, err := s.userCartItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	name := "item"
	if product, err := s.store.GetProductByID(ctx, item.ProductID); err == nil {
		name = product.Name
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if err := s.store.DeleteCartItem(ctx, cart.ID, item.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFound("item not found in your cart")
		}
		return nil, err
	}

	util.CartOperationsTotal.WithLabelValues("remove").Inc()
	view, err := s.view(ctx, cart)
	if err != nil {
		return nil, err
	}
	return &CartResult{Message: fmt.Sprintf("%s removed from cart", name), Cart: view}, nil
}

// Clear empties the user's cart.
func (s *CartService) Clear(ctx context.Context, userID string) (*CartResult, error) {
	cart, err := s.store.GetCartByUserID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &CartResult{Message: "cart is already empty"}, nil
	}
	if err != nil {
		return nil, err
	}

	removed, err := s.store.ClearCart(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	util.CartOperationsTotal.WithLabelValues("clear").Inc()

	view, err := s.view(ctx, cart)
	if err != nil {
		return nil, err
	}
	if removed == 0 {
		return &CartResult{Message: "cart is already empty", Cart: view}, nil
	}
	return &CartResult{Message: fmt.Sprintf("removed %d item(s) from cart", removed), Cart: view}, nil
}

// Count returns the total number of units in the user's cart.
func (s *CartService) Count(ctx context.Context, userID string) (int, error) {
	return s.store.CountCartItems(ctx, userID)
}

// Validate re-checks every cart line against current stock.
func (s *CartService) Validate(ctx context.Context, userID string) ([]StockIssue, error) {
	cart, err := s.store.GetCartByUserID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return []StockIssue{}, nil
	}
	if err != nil {
		return nil, err
	}
	items, err := s.store.GetCartItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	products, err := s.cartProducts(ctx, items)
	if err != nil {
		return nil, err
	}
	return RevalidateCart(items, products), nil
}
