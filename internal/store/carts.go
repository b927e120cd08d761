package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"farm-market/internal/models"

	"github.com/google/uuid"
)

const cartItemColumns = "id, cart_id, product_id, quantity, unit_price, created_at, updated_at"

// GetCartByUserID returns the user's cart or ErrNotFound.
func (s *Store) GetCartByUserID(ctx context.Context, userID string) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart,
		s.db.Rebind("SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ?"), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &cart, nil
}

// GetOrCreateCart returns the user's cart, creating it on first use.
func (s *Store) GetOrCreateCart(ctx context.Context, userID string, now time.Time) (*models.Cart, error) {
	cart, err := s.GetCartByUserID(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now = utc(now)
	cart = &models.Cart{ID: uuid.NewString(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	_, err = s.db.ExecContext(ctx,
		s.db.Rebind("INSERT INTO carts (id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)"),
		cart.ID, cart.UserID, cart.CreatedAt, cart.UpdatedAt)
	if isUniqueViolation(err) {
		// lost a race with a concurrent first add
		return s.GetCartByUserID(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return cart, nil
}

// GetCartItems returns the cart's lines in the order they were added.
func (s *Store) GetCartItems(ctx context.Context, cartID string) ([]models.CartItem, error) {
	items := []models.CartItem{}
	err := s.db.SelectContext(ctx, &items, s.db.Rebind(
		"SELECT "+cartItemColumns+" FROM cart_items WHERE cart_id = ? ORDER BY created_at, id"), cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart items: %w", err)
	}
	return items, nil
}

// GetCartItem returns one line of the cart.
func (s *Store) GetCartItem(ctx context.Context, cartID, itemID string) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item, s.db.Rebind(
		"SELECT "+cartItemColumns+" FROM cart_items WHERE id = ? AND cart_id = ?"), itemID, cartID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}
	return &item, nil
}

// GetCartItemByProduct returns the line holding productID.
func (s *Store) GetCartItemByProduct(ctx context.Context, cartID, productID string) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item, s.db.Rebind(
		"SELECT "+cartItemColumns+" FROM cart_items WHERE cart_id = ? AND product_id = ?"), cartID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}
	return &item, nil
}

// AddCartItem inserts a new line. A second line for the same product is ErrDuplicate.
func (s *Store) AddCartItem(ctx context.Context, item *models.CartItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CreatedAt = utc(item.CreatedAt)
	item.UpdatedAt = item.CreatedAt

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		"INSERT INTO cart_items ("+cartItemColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)"),
		item.ID, item.CartID, item.ProductID, item.Quantity, item.UnitPrice, item.CreatedAt, item.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to add cart item: %w", err)
	}
	return s.touchCart(ctx, item.CartID, item.CreatedAt)
}

// UpdateCartItemQuantity sets the quantity of a line.
func (s *Store) UpdateCartItemQuantity(ctx context.Context, cartID, itemID string, quantity int, now time.Time) error {
	now = utc(now)
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		"UPDATE cart_items SET quantity = ?, updated_at = ? WHERE id = ? AND cart_id = ?"),
		quantity, now, itemID, cartID)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	if err := expectRow(res); err != nil {
		return err
	}
	return s.touchCart(ctx, cartID, now)
}

// DeleteCartItem removes a line from the cart.
func (s *Store) DeleteCartItem(ctx context.Context, cartID, itemID string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		"DELETE FROM cart_items WHERE id = ? AND cart_id = ?"), itemID, cartID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	return expectRow(res)
}

// ClearCart removes every line and returns how many were removed.
func (s *Store) ClearCart(ctx context.Context, cartID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM cart_items WHERE cart_id = ?"), cartID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}
	return res.RowsAffected()
}

// CountCartItems sums the quantities in the user's cart.
func (s *Store) CountCartItems(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.db.Rebind(`
		SELECT COALESCE(SUM(ci.quantity), 0) FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		WHERE c.user_id = ?`), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count cart items: %w", err)
	}
	return count, nil
}

func (s *Store) touchCart(ctx context.Context, cartID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE carts SET updated_at = ? WHERE id = ?"), now, cartID)
	if err != nil {
		return fmt.Errorf("failed to touch cart: %w", err)
	}
	return nil
}

func expectRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
