package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// OpenOrderStatuses block hard deletion of the products they reference.
var OpenOrderStatuses = []string{OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing}

// Order is a placed order. Totals are computed from the cart snapshot.
type Order struct {
	ID             string          `db:"id" json:"id"`
	UserID         string          `db:"user_id" json:"user_id"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	TaxAmount      decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status         string          `db:"status" json:"status"`
	IdempotencyKey *string         `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`

	Items []OrderItem `db:"-" json:"items,omitempty"`
}

// OrderItem represents items in an order
type OrderItem struct {
	ID          string          `db:"id" json:"id"`
	OrderID     string          `db:"order_id" json:"order_id"`
	ProductID   string          `db:"product_id" json:"product_id"`
	FarmerID    string          `db:"farmer_id" json:"farmer_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
