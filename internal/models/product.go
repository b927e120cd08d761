package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"farm-market/internal/pricing"

	"github.com/shopspring/decimal"
)

// Category is the closed set of product categories.
type Category string

const (
	CategoryVegetables Category = "Vegetables"
	CategoryFruits     Category = "Fruits"
	CategoryDairy      Category = "Dairy"
	CategoryMeat       Category = "Meat"
	CategoryEggs       Category = "Eggs"
	CategoryHoney      Category = "Honey"
	CategoryHerbs      Category = "Herbs"
	CategoryGrains     Category = "Grains"
	CategoryOther      Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryVegetables, CategoryFruits, CategoryDairy, CategoryMeat, CategoryEggs,
	CategoryHoney, CategoryHerbs, CategoryGrains, CategoryOther,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Unit is the unit a product is sold by.
type Unit string

const (
	UnitLB    Unit = "lb"
	UnitKG    Unit = "kg"
	UnitEach  Unit = "each"
	UnitDozen Unit = "dozen"
	UnitBunch Unit = "bunch"
)

func (u Unit) Valid() bool {
	switch u {
	case UnitLB, UnitKG, UnitEach, UnitDozen, UnitBunch:
		return true
	}
	return false
}

// Season marks when a product is available.
type Season string

const (
	SeasonSpring    Season = "Spring"
	SeasonSummer    Season = "Summer"
	SeasonFall      Season = "Fall"
	SeasonWinter    Season = "Winter"
	SeasonYearRound Season = "Year-round"
)

func (s Season) Valid() bool {
	switch s {
	case SeasonSpring, SeasonSummer, SeasonFall, SeasonWinter, SeasonYearRound:
		return true
	}
	return false
}

// ProductStatus is the lifecycle state of a product.
type ProductStatus string

const (
	ProductActive   ProductStatus = "active"
	ProductInactive ProductStatus = "inactive"
	ProductArchived ProductStatus = "archived"
)

func (s ProductStatus) Valid() bool {
	switch s {
	case ProductActive, ProductInactive, ProductArchived:
		return true
	}
	return false
}

// StockStatus is derived from quantity and the low stock threshold.
type StockStatus string

const (
	InStock    StockStatus = "in_stock"
	LowStock   StockStatus = "low_stock"
	OutOfStock StockStatus = "out_of_stock"
)

const (
	DefaultLowStockThreshold = 10
	MaxImages                = 5
)

// StringList is a list of strings stored as a JSON text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	return scanJSON(src, l)
}

// SeasonList is a list of seasons stored as a JSON text column.
type SeasonList []Season

func (l SeasonList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]Season(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *SeasonList) Scan(src any) error {
	return scanJSON(src, l)
}

func scanJSON(src any, dst any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported type %T for JSON column", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// Product is a farmer's listing. Version starts at 1 and grows by one on
// every successful write.
type Product struct {
	ID                string                `db:"id" json:"id"`
	FarmerID          string                `db:"farmer_id" json:"farmer_id"`
	Name              string                `db:"name" json:"name"`
	Category          Category              `db:"category" json:"category"`
	Description       string                `db:"description" json:"description"`
	Price             decimal.Decimal       `db:"price" json:"price"`
	Unit              Unit                  `db:"unit" json:"unit"`
	Quantity          int                   `db:"quantity" json:"quantity"`
	LowStockThreshold int                   `db:"low_stock_threshold" json:"low_stock_threshold"`
	Status            ProductStatus         `db:"status" json:"status"`
	Images            StringList            `db:"images" json:"images"`
	Seasonality       SeasonList            `db:"seasonality" json:"seasonality"`
	Version           int                   `db:"version" json:"version"`
	DiscountType      *pricing.DiscountType `db:"discount_type" json:"discount_type"`
	DiscountValue     decimal.NullDecimal   `db:"discount_value" json:"discount_value"`
	DiscountStartsAt  *time.Time            `db:"discount_start_date" json:"discount_start_date"`
	DiscountEndsAt    *time.Time            `db:"discount_end_date" json:"discount_end_date"`
	CreatedAt         time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time             `db:"updated_at" json:"updated_at"`
}

// Discount returns the product's discount, zero when none is set.
func (p *Product) Discount() pricing.Discount {
	if p.DiscountType == nil {
		return pricing.Discount{}
	}
	return pricing.Discount{
		Type:     *p.DiscountType,
		Value:    p.DiscountValue.Decimal,
		StartsAt: p.DiscountStartsAt,
		EndsAt:   p.DiscountEndsAt,
	}
}

// HasDiscount reports whether a discount is configured, active or not.
func (p *Product) HasDiscount() bool {
	return p.DiscountType != nil
}

// EffectivePrice is the unit price after any discount active at now.
func (p *Product) EffectivePrice(now time.Time) (decimal.Decimal, bool) {
	return pricing.EffectivePrice(p.Price, p.Discount(), now)
}

func (p *Product) StockStatus() StockStatus {
	switch {
	case p.Quantity == 0:
		return OutOfStock
	case p.Quantity <= p.LowStockThreshold:
		return LowStock
	}
	return InStock
}

// DiscountChange sets or clears the discount in a ProductChanges.
type DiscountChange struct {
	Clear    bool
	Discount pricing.Discount
}

// ProductChanges is a partial update. Nil fields are left untouched.
type ProductChanges struct {
	Name              *string
	Category          *Category
	Description       *string
	Price             *decimal.Decimal
	Unit              *Unit
	Quantity          *int
	LowStockThreshold *int
	Status            *ProductStatus
	Seasonality       *SeasonList
	Images            *StringList
	Discount          *DiscountChange

	// PriceChangedBy and PriceChangeReason annotate the history row written
	// when Price changes.
	PriceChangedBy    *string
	PriceChangeReason *string
}

// Empty reports whether the change set touches no field.
func (c ProductChanges) Empty() bool {
	return c.Name == nil && c.Category == nil && c.Description == nil &&
		c.Price == nil && c.Unit == nil && c.Quantity == nil &&
		c.LowStockThreshold == nil && c.Status == nil &&
		c.Seasonality == nil && c.Images == nil && c.Discount == nil
}

// PriceHistoryEntry records a change of the base price.
type PriceHistoryEntry struct {
	ID            string          `db:"id" json:"id"`
	ProductID     string          `db:"product_id" json:"product_id"`
	PreviousPrice decimal.Decimal `db:"previous_price" json:"previous_price"`
	NewPrice      decimal.Decimal `db:"new_price" json:"new_price"`
	ChangeType    string          `db:"change_type" json:"change_type"`
	ChangedBy     *string         `db:"changed_by" json:"changed_by"`
	ChangeReason  *string         `db:"change_reason" json:"change_reason"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// BulkTier is a stored bulk pricing tier.
type BulkTier struct {
	ID          string          `db:"id" json:"id"`
	ProductID   string          `db:"product_id" json:"product_id"`
	MinQuantity int             `db:"min_quantity" json:"min_quantity"`
	Price       decimal.Decimal `db:"price" json:"price"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Tiers converts stored tiers to pricing tiers.
func Tiers(rows []BulkTier) []pricing.Tier {
	tiers := make([]pricing.Tier, 0, len(rows))
	for _, r := range rows {
		tiers = append(tiers, pricing.Tier{MinQuantity: r.MinQuantity, Price: r.Price})
	}
	return tiers
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Status   ProductStatus
	Category Category
	Search   string
	Page     int
	PageSize int
}

// Offset returns the row offset for the 1-based page.
func (f ProductFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}
