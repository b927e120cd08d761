package service

import (
	"context"
	"errors"
	"time"

	"farm-market/internal/models"
	"farm-market/internal/store"
)

// WishlistService keeps a consumer's saved products.
type WishlistService struct {
	store *store.Store
	now   Clock
}

func NewWishlistService(store *store.Store) *WishlistService {
	return &WishlistService{store: store, now: time.Now}
}

// WishlistEntry is a saved product. Product is nil once the product is gone.
type WishlistEntry struct {
	ID        string       `json:"id"`
	ProductID string       `json:"product_id"`
	Product   *ProductView `json:"product"`
	CreatedAt time.Time    `json:"created_at"`
}

// List returns the user's saved products, newest first.
func (s *WishlistService) List(ctx context.Context, userID string) ([]WishlistEntry, error) {
	items, err := s.store.ListWishlist(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	views, err := buildViews(ctx, s.store, products, s.now())
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*ProductView, len(views))
	for i := range views {
		byID[views[i].ID] = &views[i]
	}

	entries := make([]WishlistEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, WishlistEntry{
			ID:        item.ID,
			ProductID: item.ProductID,
			Product:   byID[item.ProductID],
			CreatedAt: item.CreatedAt,
		})
	}
	return entries, nil
}

// Add saves a product. It must exist and not already be saved.
func (s *WishlistService) Add(ctx context.Context, userID, productID string) (*models.WishlistItem, error) {
	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFound("product not found")
		}
		return nil, err
	}

	item := &models.WishlistItem{UserID: userID, ProductID: productID, CreatedAt: s.now()}
	if err := s.store.AddWishlistItem(ctx, item); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, Conflict("product is already in your wishlist")
		}
		return nil, err
	}
	return item, nil
}

// Remove deletes a saved product.
func (s *WishlistService) Remove(ctx context.Context, userID, productID string) error {
	err := s.store.RemoveWishlistItem(ctx, userID, productID)
	if errors.Is(err, store.ErrNotFound) {
		return NotFound("product is not in your wishlist")
	}
	return err
}

// Contains reports whether the product is saved.
func (s *WishlistService) Contains(ctx context.Context, userID, productID string) (bool, error) {
	return s.store.IsInWishlist(ctx, userID, productID)
}
