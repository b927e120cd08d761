package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"farm-market/internal/models"
	"farm-market/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher sends one event under a partition key. *Producer implements it.
type Publisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer Publisher) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func (ep *EventPublisher) publish(ctx context.Context, key, eventType string, event interface{}) error {
	err := ep.producer.PublishEvent(ctx, key, event)
	result := "ok"
	if err != nil {
		result = "error"
	}
	util.EventsPublishedTotal.WithLabelValues(eventType, result).Inc()
	return err
}

// PublishProductUpdated publishes ProductUpdated event
func (ep *EventPublisher) PublishProductUpdated(ctx context.Context, event *models.ProductUpdatedEvent) error {
	return ep.publish(ctx, "product-"+event.ProductID, event.EventType, event)
}

// PublishStockChanged publishes StockChanged event
func (ep *EventPublisher) PublishStockChanged(ctx context.Context, event *models.StockChangedEvent) error {
	return ep.publish(ctx, "product-"+event.ProductID, event.EventType, event)
}

// PublishOrderPlaced publishes OrderPlaced event
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return ep.publish(ctx, "order-"+event.OrderID, event.EventType, event)
}

// PublishOrderCancelled publishes OrderCancelled event
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return ep.publish(ctx, "order-"+event.OrderID, event.EventType, event)
}

// NopPublisher is wired in when EVENTS_ENABLED is false.
type NopPublisher struct{}

func (NopPublisher) PublishProductUpdated(context.Context, *models.ProductUpdatedEvent) error {
	return nil
}

func (NopPublisher) PublishStockChanged(context.Context, *models.StockChangedEvent) error {
	return nil
}

func (NopPublisher) PublishOrderPlaced(context.Context, *models.OrderPlacedEvent) error {
	return nil
}

func (NopPublisher) PublishOrderCancelled(context.Context, *models.OrderCancelledEvent) error {
	return nil
}

// EventHandler handles incoming events
type EventHandler struct {
	onStockChanged   func(context.Context, *models.StockChangedEvent) error
	onOrderPlaced    func(context.Context, *models.OrderPlacedEvent) error
	onOrderCancelled func(context.Context, *models.OrderCancelledEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnStockChanged registers a handler for StockChanged events
func (eh *EventHandler) OnStockChanged(handler func(context.Context, *models.StockChangedEvent) error) {
	eh.onStockChanged = handler
}

// OnOrderPlaced registers a handler for OrderPlaced events
func (eh *EventHandler) OnOrderPlaced(handler func(context.Context, *models.OrderPlacedEvent) error) {
	eh.onOrderPlaced = handler
}

// OnOrderCancelled registers a handler for OrderCancelled events
func (eh *EventHandler) OnOrderCancelled(handler func(context.Context, *models.OrderCancelledEvent) error) {
	eh.onOrderCancelled = handler
}

// HandleMessage routes messages to appropriate handlers. Event types with
// no registered handler are skipped.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeStockChanged:
		if eh.onStockChanged != nil {
			var event models.StockChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal StockChanged event: %w", err)
			}
			return eh.onStockChanged(ctx, &event)
		}

	case models.EventTypeOrderPlaced:
		if eh.onOrderPlaced != nil {
			var event models.OrderPlacedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderPlaced event: %w", err)
			}
			return eh.onOrderPlaced(ctx, &event)
		}

	case models.EventTypeOrderCancelled:
		if eh.onOrderCancelled != nil {
			var event models.OrderCancelledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCancelled event: %w", err)
			}
			return eh.onOrderCancelled(ctx, &event)
		}
	}

	return nil
}
