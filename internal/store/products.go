package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"farm-market/internal/models"
	"farm-market/internal/pricing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const productColumns = `id, farmer_id, name, category, description, price, unit, quantity,
	low_stock_threshold, status, images, seasonality, version, discount_type, discount_value,
	discount_start_date, discount_end_date, created_at, updated_at`

// PriceChangeManual is the history change type for a direct price edit.
const PriceChangeManual = "manual"

// CreateProduct inserts p at version 1. ID and timestamps are filled in when empty.
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := utc(time.Now())
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.CreatedAt = utc(p.CreatedAt)
	p.UpdatedAt = p.CreatedAt
	p.Version = 1
	if p.Status == "" {
		p.Status = models.ProductActive
	}

	query := s.db.Rebind(`
		INSERT INTO products (` + productColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.FarmerID, p.Name, p.Category, p.Description, p.Price, p.Unit, p.Quantity,
		p.LowStockThreshold, p.Status, p.Images, p.Seasonality, p.Version, p.DiscountType,
		p.DiscountValue, p.DiscountStartsAt, p.DiscountEndsAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func getProduct(ctx context.Context, q sqlx.ExtContext, id string) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q, &product, q.Rebind("SELECT "+productColumns+" FROM products WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	return getProduct(ctx, s.db, id)
}

// GetProductForFarmer retrieves a product only if farmerID owns it.
func (s *Store) GetProductForFarmer(ctx context.Context, farmerID, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		s.db.Rebind("SELECT "+productColumns+" FROM products WHERE id = ? AND farmer_id = ?"), id, farmerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	if err := s.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	return products, nil
}

// listProducts runs a paged query over products matching where.
func (s *Store) listProducts(ctx context.Context, where []string, args []any, order string, limit, offset int) ([]models.Product, int, error) {
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind("SELECT COUNT(*) FROM products"+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query := "SELECT " + productColumns + " FROM products" + clause + " ORDER BY " + order
	pageArgs := append([]any{}, args...)
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		pageArgs = append(pageArgs, limit, offset)
	}

	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, s.db.Rebind(query), pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

func searchClause(where []string, args []any, search string) ([]string, []any) {
	search = strings.TrimSpace(search)
	if search == "" {
		return where, args
	}
	pattern := "%" + strings.ToLower(search) + "%"
	where = append(where, "(LOWER(name) LIKE ? OR LOWER(description) LIKE ?)")
	return where, append(args, pattern, pattern)
}

// ListFarmerProducts pages through one farmer's products, newest first.
func (s *Store) ListFarmerProducts(ctx context.Context, farmerID string, f models.ProductFilter) ([]models.Product, int, error) {
	where := []string{"farmer_id = ?"}
	args := []any{farmerID}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	where, args = searchClause(where, args, f.Search)
	return s.listProducts(ctx, where, args, "created_at DESC, id", f.PageSize, f.Offset())
}

// ListCatalog pages through active, in-stock products.
func (s *Store) ListCatalog(ctx context.Context, f models.ProductFilter) ([]models.Product, int, error) {
	where := []string{"status = ?", "quantity > 0"}
	args := []any{models.ProductActive}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	where, args = searchClause(where, args, f.Search)
	return s.listProducts(ctx, where, args, "created_at DESC, id", f.PageSize, f.Offset())
}

// ListAllProducts pages through every product regardless of owner.
func (s *Store) ListAllProducts(ctx context.Context, f models.ProductFilter) ([]models.Product, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	where, args = searchClause(where, args, f.Search)
	return s.listProducts(ctx, where, args, "created_at DESC, id", f.PageSize, f.Offset())
}

// ListFeatured returns the newest active, in-stock products.
func (s *Store) ListFeatured(ctx context.Context, limit int) ([]models.Product, error) {
	products, _, err := s.listProducts(ctx,
		[]string{"status = ?", "quantity > 0"}, []any{models.ProductActive},
		"created_at DESC, id", limit, 0)
	return products, err
}

// ListRelated returns other active, in-stock products of the same category.
func (s *Store) ListRelated(ctx context.Context, category models.Category, excludeID string, limit int) ([]models.Product, error) {
	products, _, err := s.listProducts(ctx,
		[]string{"status = ?", "quantity > 0", "category = ?", "id <> ?"},
		[]any{models.ProductActive, category, excludeID},
		"created_at DESC, id", limit, 0)
	return products, err
}

// ListLowStock returns a farmer's active products at or below their threshold.
func (s *Store) ListLowStock(ctx context.Context, farmerID string) ([]models.Product, error) {
	products, _, err := s.listProducts(ctx,
		[]string{"farmer_id = ?", "status = ?", "quantity <= low_stock_threshold"},
		[]any{farmerID, models.ProductActive},
		"quantity ASC, name", 0, 0)
	return products, err
}

// UpdateProductIfVersion applies changes only if the stored version equals
// expected, bumping the version by one. A base price change is recorded in
// price_history inside the same transaction.
func (s *Store) UpdateProductIfVersion(ctx context.Context, id string, expected int, changes models.ProductChanges, now time.Time) (*models.Product, error) {
	now = utc(now)

	var updated *models.Product
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		current, err := getProduct(ctx, tx, id)
		if err != nil {
			return err
		}

		if changes.Empty() {
			if current.Version != expected {
				return &VersionConflictError{Expected: expected, Found: current.Version}
			}
			updated = current
			return nil
		}

		sets, args := productSetClause(changes)
		sets = append(sets, "version = version + 1", "updated_at = ?")
		args = append(args, now, id, expected)

		query := tx.Rebind("UPDATE products SET " + strings.Join(sets, ", ") + " WHERE id = ? AND version = ?")
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		if rows == 0 {
			// The row may have moved on after current was read, so report
			// the version stored now.
			var found int
			if err := tx.GetContext(ctx, &found, tx.Rebind("SELECT version FROM products WHERE id = ?"), id); err != nil {
				return fmt.Errorf("failed to read product version: %w", err)
			}
			return &VersionConflictError{Expected: expected, Found: found}
		}

		if changes.Price != nil && !changes.Price.Equal(current.Price) {
			entry := models.PriceHistoryEntry{
				ID:            uuid.NewString(),
				ProductID:     id,
				PreviousPrice: current.Price,
				NewPrice:      *changes.Price,
				ChangeType:    PriceChangeManual,
				ChangedBy:     changes.PriceChangedBy,
				ChangeReason:  changes.PriceChangeReason,
				CreatedAt:     now,
			}
			if err := insertPriceHistory(ctx, tx, entry); err != nil {
				return err
			}
		}

		updated, err = getProduct(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func productSetClause(c models.ProductChanges) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if c.Name != nil {
		add("name", *c.Name)
	}
	if c.Category != nil {
		add("category", *c.Category)
	}
	if c.Description != nil {
		add("description", *c.Description)
	}
	if c.Price != nil {
		add("price", *c.Price)
	}
	if c.Unit != nil {
		add("unit", *c.Unit)
	}
	if c.Quantity != nil {
		add("quantity", *c.Quantity)
	}
	if c.LowStockThreshold != nil {
		add("low_stock_threshold", *c.LowStockThreshold)
	}
	if c.Status != nil {
		add("status", *c.Status)
	}
	if c.Seasonality != nil {
		add("seasonality", *c.Seasonality)
	}
	if c.Images != nil {
		add("images", *c.Images)
	}
	if c.Discount != nil {
		if c.Discount.Clear {
			add("discount_type", nil)
			add("discount_value", nil)
			add("discount_start_date", nil)
			add("discount_end_date", nil)
		} else {
			d := c.Discount.Discount
			add("discount_type", string(d.Type))
			add("discount_value", d.Value)
			add("discount_start_date", utcPtr(d.StartsAt))
			add("discount_end_date", utcPtr(d.EndsAt))
		}
	}
	return sets, args
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func insertPriceHistory(ctx context.Context, tx *sqlx.Tx, e models.PriceHistoryEntry) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO price_history (id, product_id, previous_price, new_price, change_type, changed_by, change_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.ProductID, e.PreviousPrice, e.NewPrice, e.ChangeType, e.ChangedBy, e.ChangeReason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record price history: %w", err)
	}
	return nil
}

// DeleteProduct removes a product and everything that cascades from it.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM products WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// HasPendingOrders reports whether any open order references the product.
func (s *Store) HasPendingOrders(ctx context.Context, productID string) (bool, error) {
	query, args, err := sqlx.In(`
		SELECT COUNT(*) FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.product_id = ? AND o.status IN (?)`, productID, models.OpenOrderStatuses)
	if err != nil {
		return false, err
	}

	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(query), args...); err != nil {
		return false, fmt.Errorf("failed to check pending orders: %w", err)
	}
	return count > 0, nil
}

const bulkColumns = "id, product_id, min_quantity, price, created_at, updated_at"

// ReplaceBulkTiers swaps the product's tiers for tiers in one transaction.
func (s *Store) ReplaceBulkTiers(ctx context.Context, productID string, tiers []pricing.Tier, now time.Time) ([]models.BulkTier, error) {
	now = utc(now)
	rows := make([]models.BulkTier, 0, len(tiers))

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM bulk_pricing WHERE product_id = ?"), productID); err != nil {
			return fmt.Errorf("failed to clear bulk pricing: %w", err)
		}
		for _, t := range tiers {
			row := models.BulkTier{
				ID:          uuid.NewString(),
				ProductID:   productID,
				MinQuantity: t.MinQuantity,
				Price:       t.Price,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			_, err := tx.ExecContext(ctx, tx.Rebind(
				"INSERT INTO bulk_pricing ("+bulkColumns+") VALUES (?, ?, ?, ?, ?, ?)"),
				row.ID, row.ProductID, row.MinQuantity, row.Price, row.CreatedAt, row.UpdatedAt)
			if err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicate
				}
				return fmt.Errorf("failed to insert bulk tier: %w", err)
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetBulkTiers returns the product's tiers ordered by min_quantity.
func (s *Store) GetBulkTiers(ctx context.Context, productID string) ([]models.BulkTier, error) {
	tiers := []models.BulkTier{}
	err := s.db.SelectContext(ctx, &tiers, s.db.Rebind(
		"SELECT "+bulkColumns+" FROM bulk_pricing WHERE product_id = ? ORDER BY min_quantity"), productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bulk pricing: %w", err)
	}
	return tiers, nil
}

// GetBulkTiersForProducts groups tiers by product id.
func (s *Store) GetBulkTiersForProducts(ctx context.Context, productIDs []string) (map[string][]models.BulkTier, error) {
	out := make(map[string][]models.BulkTier)
	if len(productIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(
		"SELECT "+bulkColumns+" FROM bulk_pricing WHERE product_id IN (?) ORDER BY product_id, min_quantity", productIDs)
	if err != nil {
		return nil, err
	}

	var tiers []models.BulkTier
	if err := s.db.SelectContext(ctx, &tiers, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get bulk pricing: %w", err)
	}
	for _, t := range tiers {
		out[t.ProductID] = append(out[t.ProductID], t)
	}
	return out, nil
}

// DeleteBulkTiers removes every tier of the product and returns how many went.
func (s *Store) DeleteBulkTiers(ctx context.Context, productID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM bulk_pricing WHERE product_id = ?"), productID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete bulk pricing: %w", err)
	}
	return res.RowsAffected()
}

// GetPriceHistory returns the newest price changes first.
func (s *Store) GetPriceHistory(ctx context.Context, productID string, limit int) ([]models.PriceHistoryEntry, error) {
	entries := []models.PriceHistoryEntry{}
	err := s.db.SelectContext(ctx, &entries, s.db.Rebind(`
		SELECT id, product_id, previous_price, new_price, change_type, changed_by, change_reason, created_at
		FROM price_history WHERE product_id = ? ORDER BY created_at DESC, id LIMIT ?`), productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	return entries, nil
}
