package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartItem holds one product line. UnitPrice is the price when first added.
type CartItem struct {
	ID        string          `db:"id" json:"id"`
	CartID    string          `db:"cart_id" json:"cart_id"`
	ProductID string          `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// CartItemProduct is the product snapshot shown next to a cart line.
type CartItemProduct struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Category      Category      `json:"category"`
	Unit          Unit          `json:"unit"`
	Images        []string      `json:"images"`
	FarmerID      string        `json:"farmer_id"`
	FarmerName    *string       `json:"farmer_name"`
	StockQuantity int           `json:"stock_quantity"`
	Status        ProductStatus `json:"status"`
}

type CartLine struct {
	ID        string           `json:"id"`
	ProductID string           `json:"product_id"`
	Product   *CartItemProduct `json:"product"`
	Quantity  int              `json:"quantity"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	Subtotal  decimal.Decimal  `json:"subtotal"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type CartSummary struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"item_count"`
	UniqueItems int             `json:"unique_items"`
}

type CartView struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Items     []CartLine  `json:"items"`
	Summary   CartSummary `json:"summary"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
