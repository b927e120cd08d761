package store

import (
	"context"
	"fmt"
	"time"

	"farm-market/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const alertColumns = `id, farmer_id, product_id, product_name, previous_quantity, current_quantity,
	threshold, alert_type, is_read, created_at`

// MaxAlerts caps the alert listing.
const MaxAlerts = 50

// RecordStockAlert marks eventID processed and stores alert if it is not
// nil, in one transaction. It reports false when the event was already
// handled, in which case nothing is written.
func (s *Store) RecordStockAlert(ctx context.Context, eventID, eventType string, alert *models.StockAlert, now time.Time) (bool, error) {
	var fresh bool
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		fresh, err = markEventProcessed(ctx, tx, eventID, eventType, now)
		if err != nil || !fresh || alert == nil {
			return err
		}

		if alert.ID == "" {
			alert.ID = uuid.NewString()
		}
		alert.CreatedAt = utc(now)
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO low_stock_alerts (`+alertColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			alert.ID, alert.FarmerID, alert.ProductID, alert.ProductName, alert.PreviousQuantity,
			alert.CurrentQuantity, alert.Threshold, alert.AlertType, alert.IsRead, alert.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create stock alert: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return fresh, nil
}

// ListStockAlerts returns a farmer's newest alerts.
func (s *Store) ListStockAlerts(ctx context.Context, farmerID string, unreadOnly bool) ([]models.StockAlert, error) {
	query := "SELECT " + alertColumns + " FROM low_stock_alerts WHERE farmer_id = ?"
	args := []any{farmerID}
	if unreadOnly {
		query += " AND is_read = ?"
		args = append(args, false)
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, MaxAlerts)

	alerts := []models.StockAlert{}
	if err := s.db.SelectContext(ctx, &alerts, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list stock alerts: %w", err)
	}
	return alerts, nil
}

// MarkAlertsRead flags the farmer's alerts in ids as read and returns how
// many rows changed. Ids owned by other farmers are ignored.
func (s *Store) MarkAlertsRead(ctx context.Context, farmerID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(
		"UPDATE low_stock_alerts SET is_read = ? WHERE farmer_id = ? AND id IN (?)", true, farmerID, ids)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark alerts read: %w", err)
	}
	return res.RowsAffected()
}
