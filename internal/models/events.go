package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeProductUpdated = "PRODUCT_UPDATED"
	EventTypeStockChanged   = "STOCK_CHANGED"
	EventTypeOrderPlaced    = "ORDER_PLACED"
	EventTypeOrderCancelled = "ORDER_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ProductUpdatedEvent is published after every successful product write.
type ProductUpdatedEvent struct {
	BaseEvent
	ProductID string   `json:"product_id"`
	FarmerID  string   `json:"farmer_id"`
	Operation string   `json:"operation"`
	Version   int      `json:"version"`
	Fields    []string `json:"fields,omitempty"`
}

// StockChangedEvent is published whenever a product's quantity changes.
type StockChangedEvent struct {
	BaseEvent
	ProductID         string `json:"product_id"`
	FarmerID          string `json:"farmer_id"`
	ProductName       string `json:"product_name"`
	PreviousQuantity  int    `json:"previous_quantity"`
	CurrentQuantity   int    `json:"current_quantity"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	Reason            string `json:"reason"`
}

// OrderPlacedEvent published when checkout succeeds
type OrderPlacedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderCancelledEvent published when a pending order is cancelled
type OrderCancelledEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Reason  string `json:"reason"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string          `json:"product_id"`
	FarmerID  string          `json:"farmer_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
