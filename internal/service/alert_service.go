package service

import (
	"context"
	"time"

	"farm-market/internal/models"
	"farm-market/internal/store"
	"farm-market/internal/util"

	"go.uber.org/zap"
)

// AlertService turns stock changes into farmer alerts.
type AlertService struct {
	store  *store.Store
	logger *zap.Logger
	now    Clock
}

func NewAlertService(store *store.Store) *AlertService {
	return &AlertService{
		store:  store,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// ClassifyStockChange returns the alert type for a quantity change, or ""
// when the change crosses no boundary.
func ClassifyStockChange(previous, current, threshold int) string {
	switch {
	case current == 0 && previous > 0:
		return models.AlertOutOfStock
	case previous == 0 && current > 0:
		return models.AlertBackInStock
	case current <= threshold && previous > threshold:
		return models.AlertLowStock
	}
	return ""
}

// HandleStockChanged records an alert for the event. Redelivered events
// are ignored.
func (s *AlertService) HandleStockChanged(ctx context.Context, event *models.StockChangedEvent) error {
	ctx, span := util.StartSpan(ctx, "AlertService.HandleStockChanged")
	defer span.End()

	var alert *models.StockAlert
	alertType := ClassifyStockChange(event.PreviousQuantity, event.CurrentQuantity, event.LowStockThreshold)
	if alertType != "" {
		alert = &models.StockAlert{
			FarmerID:         event.FarmerID,
			ProductID:        event.ProductID,
			ProductName:      event.ProductName,
			PreviousQuantity: event.PreviousQuantity,
			CurrentQuantity:  event.CurrentQuantity,
			Threshold:        event.LowStockThreshold,
			AlertType:        alertType,
		}
	}

	fresh, err := s.store.RecordStockAlert(ctx, event.EventID, event.EventType, alert, s.now())
	if err != nil {
		util.RecordError(span, err)
		return err
	}
	if !fresh {
		s.logger.Info("Event already processed, skipping", zap.String("event_id", event.EventID))
		return nil
	}
	if alert != nil {
		util.StockAlertsTotal.WithLabelValues(alertType).Inc()
		s.logger.Info("Stock alert raised",
			zap.String("product_id", event.ProductID),
			zap.String("type", alertType),
			zap.Int("quantity", event.CurrentQuantity))
	}
	return nil
}

// List returns the farmer's newest alerts.
func (s *AlertService) List(ctx context.Context, farmerID string, unreadOnly bool) ([]models.StockAlert, error) {
	return s.store.ListStockAlerts(ctx, farmerID, unreadOnly)
}

// MarkRead flags alerts as read and returns how many changed.
func (s *AlertService) MarkRead(ctx context.Context, farmerID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, Validation("at least one alert id is required")
	}
	return s.store.MarkAlertsRead(ctx, farmerID, ids)
}
