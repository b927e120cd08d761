// Package pricing computes the unit price charged for a product from its base
// price, an optional time-windowed discount and optional bulk tiers.
//
// Discount and bulk tier prices are reported side by side and never combined.
package pricing

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType is the kind of discount applied to a product.
type DiscountType string

const (
	Percentage DiscountType = "percentage"
	Fixed      DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	switch t {
	case Percentage, Fixed:
		return true
	}
	return false
}

// MaxTiers is the maximum number of bulk tiers per product.
const MaxTiers = 10

var (
	MinimumPrice = decimal.RequireFromString("0.01")
	hundred      = decimal.NewFromInt(100)
)

var (
	ErrUnknownDiscountType = errors.New("discount type must be percentage or fixed")
	ErrDiscountValue       = errors.New("discount value must be greater than 0")
	ErrDiscountPrecision   = errors.New("discount value must have at most 2 decimal places")
	ErrPercentageRange     = errors.New("percentage discount must be between 0 and 100")
	ErrFixedTooLarge       = errors.New("fixed discount must be less than price")
	ErrDiscountWindow      = errors.New("discount end date must be after start date")
	ErrNoTiers             = errors.New("at least one pricing tier is required")
	ErrTooManyTiers        = fmt.Errorf("at most %d pricing tiers are allowed", MaxTiers)
	ErrDuplicateTier       = errors.New("duplicate quantity thresholds are not allowed")
)

// Discount is a product discount. A zero Type means no discount.
type Discount struct {
	Type     DiscountType    `json:"discount_type,omitempty"`
	Value    decimal.Decimal `json:"discount_value"`
	StartsAt *time.Time      `json:"discount_start_date,omitempty"`
	EndsAt   *time.Time      `json:"discount_end_date,omitempty"`
}

// ActiveAt reports whether the discount applies at now.
// The start bound is inclusive, the end bound exclusive.
func (d Discount) ActiveAt(now time.Time) bool {
	if d.Type == "" {
		return false
	}
	if d.StartsAt != nil && d.StartsAt.After(now) {
		return false
	}
	if d.EndsAt != nil && !d.EndsAt.After(now) {
		return false
	}
	return true
}

// Tier is a bulk pricing rule: buying at least MinQuantity units charges Price per unit.
type Tier struct {
	MinQuantity int             `db:"min_quantity" json:"min_quantity"`
	Price       decimal.Decimal `db:"price" json:"price"`
}

// Quote is the full pricing picture for a product at a given quantity.
type Quote struct {
	Price             decimal.Decimal `json:"price"`
	EffectivePrice    decimal.Decimal `json:"effective_price"`
	HasActiveDiscount bool            `json:"has_active_discount"`
	Quantity          int             `json:"quantity"`
	BulkTier          *Tier           `json:"bulk_tier,omitempty"`
	BulkTiers         []Tier          `json:"bulk_pricing_tiers"`
}

// EffectivePrice applies d to base if it is active at now.
func EffectivePrice(base decimal.Decimal, d Discount, now time.Time) (decimal.Decimal, bool) {
	if !d.ActiveAt(now) {
		return base, false
	}

	var price decimal.Decimal
	switch d.Type {
	case Percentage:
		factor := decimal.NewFromInt(1).Sub(d.Value.Div(hundred))
		price = base.Mul(factor).RoundBank(2)
	case Fixed:
		price = base.Sub(d.Value)
	default:
		return base, false
	}

	if price.LessThan(MinimumPrice) {
		price = MinimumPrice
	}
	return price, true
}

// SelectTier returns the tier with the largest MinQuantity not above qty.
func SelectTier(tiers []Tier, qty int) (Tier, bool) {
	var (
		best  Tier
		found bool
	)
	for _, t := range tiers {
		if t.MinQuantity > qty {
			continue
		}
		if !found || t.MinQuantity > best.MinQuantity {
			best = t
			found = true
		}
	}
	return best, found
}

// Calculate builds a Quote. It has no side effects.
func Calculate(base decimal.Decimal, d Discount, now time.Time, qty int, tiers []Tier) Quote {
	effective, active := EffectivePrice(base, d, now)

	q := Quote{
		Price:             base,
		EffectivePrice:    effective,
		HasActiveDiscount: active,
		Quantity:          qty,
		BulkTiers:         tiers,
	}
	if q.BulkTiers == nil {
		q.BulkTiers = []Tier{}
	}
	if tier, ok := SelectTier(tiers, qty); ok {
		q.BulkTier = &tier
	}
	return q
}

// ValidateDiscount checks d against the base price it will be applied to.
func ValidateDiscount(base decimal.Decimal, d Discount) error {
	if !d.Type.Valid() {
		return ErrUnknownDiscountType
	}
	if !d.Value.IsPositive() {
		return ErrDiscountValue
	}
	if !d.Value.Equal(d.Value.Truncate(2)) {
		return ErrDiscountPrecision
	}

	switch d.Type {
	case Percentage:
		if d.Value.GreaterThan(hundred) {
			return ErrPercentageRange
		}
	case Fixed:
		if d.Value.GreaterThanOrEqual(base) {
			return ErrFixedTooLarge
		}
	}

	if d.StartsAt != nil && d.EndsAt != nil && !d.EndsAt.After(*d.StartsAt) {
		return ErrDiscountWindow
	}
	return nil
}

// ValidateTiers checks tiers against the regular price and returns them
// sorted by MinQuantity.
func ValidateTiers(base decimal.Decimal, tiers []Tier) ([]Tier, error) {
	if len(tiers) == 0 {
		return nil, ErrNoTiers
	}
	if len(tiers) > MaxTiers {
		return nil, ErrTooManyTiers
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinQuantity < sorted[j].MinQuantity })

	for i, t := range sorted {
		if t.MinQuantity <= 0 {
			return nil, fmt.Errorf("tier minimum quantity must be greater than 0")
		}
		if !t.Price.IsPositive() {
			return nil, fmt.Errorf("tier price for %d+ units must be greater than 0", t.MinQuantity)
		}
		if t.Price.GreaterThanOrEqual(base) {
			return nil, fmt.Errorf("bulk price %s for %d+ units must be less than regular price %s",
				t.Price.StringFixed(2), t.MinQuantity, base.StringFixed(2))
		}
		if i > 0 && sorted[i-1].MinQuantity == t.MinQuantity {
			return nil, ErrDuplicateTier
		}
	}
	return sorted, nil
}
