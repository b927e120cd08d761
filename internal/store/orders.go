package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"farm-market/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const orderColumns = "id, user_id, subtotal, tax_amount, total_amount, status, idempotency_key, created_at, updated_at"

// StockMovement describes a quantity change made while placing or
// cancelling an order.
type StockMovement struct {
	ProductID         string
	FarmerID          string
	ProductName       string
	PreviousQuantity  int
	CurrentQuantity   int
	LowStockThreshold int
}

// InsufficientStockError names the product whose conditional decrement failed.
type InsufficientStockError struct {
	ProductID string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		s.db.Rebind("SELECT "+orderColumns+" FROM orders WHERE idempotency_key = ?"), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadOrderItems(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// PlaceOrder writes the order and its items, decrements stock for every
// line and empties the cart, all in one transaction. Each decrement is
// conditional on the product being active with enough stock and bumps the
// product version.
func (s *Store) PlaceOrder(ctx context.Context, order *models.Order, cartID string) ([]StockMovement, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	order.CreatedAt = utc(order.CreatedAt)
	order.UpdatedAt = order.CreatedAt
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}

	var movements []StockMovement
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO orders (`+orderColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			order.ID, order.UserID, order.Subtotal, order.TaxAmount, order.TotalAmount,
			order.Status, order.IdempotencyKey, order.CreatedAt, order.UpdatedAt)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID
			if item.ID == "" {
				item.ID = uuid.NewString()
			}

			current, err := getProduct(ctx, tx, item.ProductID)
			if errors.Is(err, ErrNotFound) {
				return &InsufficientStockError{ProductID: item.ProductID}
			}
			if err != nil {
				return err
			}

			res, err := tx.ExecContext(ctx, tx.Rebind(`
				UPDATE products
				SET quantity = quantity - ?, version = version + 1, updated_at = ?
				WHERE id = ? AND status = ? AND quantity >= ?`),
				item.Quantity, order.CreatedAt, item.ProductID, models.ProductActive, item.Quantity)
			if err != nil {
				return fmt.Errorf("failed to decrement stock: %w", err)
			}
			if rows, err := res.RowsAffected(); err != nil {
				return err
			} else if rows == 0 {
				return &InsufficientStockError{ProductID: item.ProductID}
			}

			item.FarmerID = current.FarmerID
			item.ProductName = current.Name
			if err := createOrderItem(ctx, tx, item); err != nil {
				return err
			}

			movements = append(movements, StockMovement{
				ProductID:         current.ID,
				FarmerID:          current.FarmerID,
				ProductName:       current.Name,
				PreviousQuantity:  current.Quantity,
				CurrentQuantity:   current.Quantity - item.Quantity,
				LowStockThreshold: current.LowStockThreshold,
			})
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM cart_items WHERE cart_id = ?"), cartID); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return movements, nil
}

func createOrderItem(ctx context.Context, tx *sqlx.Tx, item *models.OrderItem) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO order_items (id, order_id, product_id, farmer_id, product_name, quantity, unit_price)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		item.ID, item.OrderID, item.ProductID, item.FarmerID, item.ProductName, item.Quantity, item.UnitPrice)
	if err != nil {
		return fmt.Errorf("failed to create order item: %w", err)
	}
	return nil
}

// GetOrderByID retrieves an order with its items
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, s.db.Rebind("SELECT "+orderColumns+" FROM orders WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if err := s.loadOrderItems(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForUser retrieves an order only if userID placed it.
func (s *Store) GetOrderForUser(ctx context.Context, userID, id string) (*models.Order, error) {
	order, err := s.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotFound
	}
	return order, nil
}

// GetOrdersByUserID pages through a user's orders, newest first.
func (s *Store) GetOrdersByUserID(ctx context.Context, userID string, limit, offset int) ([]models.Order, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind("SELECT COUNT(*) FROM orders WHERE user_id = ?"), userID); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, s.db.Rebind(
		"SELECT "+orderColumns+" FROM orders WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?"),
		userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	for i := range orders {
		if err := s.loadOrderItems(ctx, &orders[i]); err != nil {
			return nil, 0, err
		}
	}
	return orders, total, nil
}

func (s *Store) loadOrderItems(ctx context.Context, order *models.Order) error {
	items, err := s.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return err
	}
	order.Items = items
	return nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := s.db.SelectContext(ctx, &items, s.db.Rebind(`
		SELECT id, order_id, product_id, farmer_id, product_name, quantity, unit_price
		FROM order_items WHERE order_id = ? ORDER BY product_name, id`), orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	return items, nil
}

// UpdateOrderStatus moves an order from one status to another. It fails
// with ErrInvalidState when the order is no longer in from.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID, from, to string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		"UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?"),
		to, utc(now), orderID, from)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrInvalidState
	}
	return nil
}

// CancelOrder cancels a pending order placed by userID and returns its
// stock to the products that still exist.
func (s *Store) CancelOrder(ctx context.Context, userID, orderID string, now time.Time) (*models.Order, []StockMovement, error) {
	now = utc(now)

	var movements []StockMovement
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var order models.Order
		err := tx.GetContext(ctx, &order, tx.Rebind(
			"SELECT "+orderColumns+" FROM orders WHERE id = ? AND user_id = ?"), orderID, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get order: %w", err)
		}

		res, err := tx.ExecContext(ctx, tx.Rebind(
			"UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?"),
			models.OrderStatusCancelled, now, orderID, models.OrderStatusPending)
		if err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		if rows, err := res.RowsAffected(); err != nil {
			return err
		} else if rows == 0 {
			return ErrInvalidState
		}

		var items []models.OrderItem
		if err := tx.SelectContext(ctx, &items, tx.Rebind(`
			SELECT id, order_id, product_id, farmer_id, product_name, quantity, unit_price
			FROM order_items WHERE order_id = ?`), orderID); err != nil {
			return fmt.Errorf("failed to get order items: %w", err)
		}

		for _, item := range items {
			current, err := getProduct(ctx, tx, item.ProductID)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, tx.Rebind(`
				UPDATE products SET quantity = quantity + ?, version = version + 1, updated_at = ?
				WHERE id = ?`), item.Quantity, now, item.ProductID)
			if err != nil {
				return fmt.Errorf("failed to restock product: %w", err)
			}
			movements = append(movements, StockMovement{
				ProductID:         current.ID,
				FarmerID:          current.FarmerID,
				ProductName:       current.Name,
				PreviousQuantity:  current.Quantity,
				CurrentQuantity:   current.Quantity + item.Quantity,
				LowStockThreshold: current.LowStockThreshold,
			})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	order, err := s.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, movements, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		s.db.Rebind("SELECT COUNT(*) FROM processed_events WHERE event_id = ?"), eventID)
	return count > 0, err
}

// MarkEventProcessed marks an event as processed. It reports false when the
// event had already been recorded.
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string, now time.Time) (bool, error) {
	return markEventProcessed(ctx, s.db, eventID, eventType, now)
}

func markEventProcessed(ctx context.Context, q sqlx.ExtContext, eventID, eventType string, now time.Time) (bool, error) {
	res, err := q.ExecContext(ctx, q.Rebind(
		"INSERT INTO processed_events (event_id, event_type, processed_at) VALUES (?, ?, ?) ON CONFLICT (event_id) DO NOTHING"),
		eventID, eventType, utc(now))
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
