package store

import (
	"context"
	"fmt"

	"farm-market/internal/models"

	"github.com/google/uuid"
)

// ListWishlist returns the user's saved products, newest first.
func (s *Store) ListWishlist(ctx context.Context, userID string) ([]models.WishlistItem, error) {
	items := []models.WishlistItem{}
	err := s.db.SelectContext(ctx, &items, s.db.Rebind(
		"SELECT id, user_id, product_id, created_at FROM wishlist_items WHERE user_id = ? ORDER BY created_at DESC, id"), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wishlist: %w", err)
	}
	return items, nil
}

// AddWishlistItem saves a product. Saving it twice is ErrDuplicate.
func (s *Store) AddWishlistItem(ctx context.Context, item *models.WishlistItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CreatedAt = utc(item.CreatedAt)

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		"INSERT INTO wishlist_items (id, user_id, product_id, created_at) VALUES (?, ?, ?, ?)"),
		item.ID, item.UserID, item.ProductID, item.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to add wishlist item: %w", err)
	}
	return nil
}

func (s *Store) RemoveWishlistItem(ctx context.Context, userID, productID string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		"DELETE FROM wishlist_items WHERE user_id = ? AND product_id = ?"), userID, productID)
	if err != nil {
		return fmt.Errorf("failed to remove wishlist item: %w", err)
	}
	return expectRow(res)
}

func (s *Store) IsInWishlist(ctx context.Context, userID, productID string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.db.Rebind(
		"SELECT COUNT(*) FROM wishlist_items WHERE user_id = ? AND product_id = ?"), userID, productID)
	if err != nil {
		return false, fmt.Errorf("failed to check wishlist: %w", err)
	}
	return count > 0, nil
}
