package service

import (
	"context"
	"time"

	"farm-market/internal/models"
	"farm-market/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher is satisfied by *broker.EventPublisher and broker.NopPublisher.
type EventPublisher interface {
	PublishProductUpdated(ctx context.Context, event *models.ProductUpdatedEvent) error
	PublishStockChanged(ctx context.Context, event *models.StockChangedEvent) error
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

// IdempotencyStore remembers client idempotency keys. *redisclient.Client
// implements it.
type IdempotencyStore interface {
	SetIdempotencyKey(ctx context.Context, scope, key, value string, ttl time.Duration) (bool, error)
	GetIdempotencyKey(ctx context.Context, scope, key string) (string, bool, error)
}

// Clock returns the current time. Services default to time.Now.
type Clock func() time.Time

func baseEvent(eventType string, now time.Time) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: now.UTC(),
	}
}

// stockChangedEvents converts store movements into StockChanged events.
func stockChangedEvents(movements []store.StockMovement, reason string, now time.Time) []*models.StockChangedEvent {
	events := make([]*models.StockChangedEvent, 0, len(movements))
	for _, m := range movements {
		events = append(events, &models.StockChangedEvent{
			BaseEvent:         baseEvent(models.EventTypeStockChanged, now),
			ProductID:         m.ProductID,
			FarmerID:          m.FarmerID,
			ProductName:       m.ProductName,
			PreviousQuantity:  m.PreviousQuantity,
			CurrentQuantity:   m.CurrentQuantity,
			LowStockThreshold: m.LowStockThreshold,
			Reason:            reason,
		})
	}
	return events
}

func publishStockChanges(ctx context.Context, publisher EventPublisher, logger *zap.Logger, events []*models.StockChangedEvent) {
	for _, event := range events {
		if err := publisher.PublishStockChanged(ctx, event); err != nil {
			logger.Error("Failed to publish StockChanged event",
				zap.String("product_id", event.ProductID),
				zap.Error(err))
		}
	}
}

// farmerName looks up a single display name. A missing farmer yields nil.
func farmerName(ctx context.Context, s *store.Store, farmerID string) (*string, error) {
	names, err := s.GetFarmerNames(ctx, []string{farmerID})
	if err != nil {
		return nil, err
	}
	if name, ok := names[farmerID]; ok {
		return &name, nil
	}
	return nil, nil
}
