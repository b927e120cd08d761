package models

import "time"

// Alert types
const (
	AlertLowStock    = "low_stock"
	AlertOutOfStock  = "out_of_stock"
	AlertBackInStock = "back_in_stock"
)

// StockAlert is raised when a stock change crosses a threshold.
type StockAlert struct {
	ID               string    `db:"id" json:"id"`
	FarmerID         string    `db:"farmer_id" json:"farmer_id"`
	ProductID        string    `db:"product_id" json:"product_id"`
	ProductName      string    `db:"product_name" json:"product_name"`
	PreviousQuantity int       `db:"previous_quantity" json:"previous_quantity"`
	CurrentQuantity  int       `db:"current_quantity" json:"current_quantity"`
	Threshold        int       `db:"threshold" json:"threshold"`
	AlertType        string    `db:"alert_type" json:"alert_type"`
	IsRead           bool      `db:"is_read" json:"is_read"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
