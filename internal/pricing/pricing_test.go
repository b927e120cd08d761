package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(t time.Time) *time.Time { return &t }

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func TestPercentageDiscount(t *testing.T) {
	d := Discount{Type: Percentage, Value: dec("25")}

	price, active := EffectivePrice(dec("20.00"), d, now)

	assert.True(t, active)
	assert.True(t, price.Equal(dec("15.00")), "got %s", price)
}

func TestFixedDiscount(t *testing.T) {
	d := Discount{Type: Fixed, Value: dec("2.50")}

	price, active := EffectivePrice(dec("10.00"), d, now)

	assert.True(t, active)
	assert.True(t, price.Equal(dec("7.50")))
}

func TestEffectivePriceFloor(t *testing.T) {
	full := Discount{Type: Percentage, Value: dec("100")}
	price, _ := EffectivePrice(dec("3.00"), full, now)
	assert.True(t, price.Equal(MinimumPrice))

	tiny := Discount{Type: Fixed, Value: dec("9.999")}
	price, _ = EffectivePrice(dec("10.00"), tiny, now)
	assert.True(t, price.Equal(MinimumPrice))
}

func TestDiscountWindow(t *testing.T) {
	base := dec("20.00")

	future := Discount{Type: Percentage, Value: dec("10"), StartsAt: ptr(now.Add(time.Hour))}
	price, active := EffectivePrice(base, future, now)
	assert.False(t, active)
	assert.True(t, price.Equal(base))

	expired := Discount{Type: Percentage, Value: dec("10"), EndsAt: ptr(now.Add(-time.Hour))}
	price, active = EffectivePrice(base, expired, now)
	assert.False(t, active)
	assert.True(t, price.Equal(base))

	endsNow := Discount{Type: Fixed, Value: dec("1"), EndsAt: ptr(now)}
	assert.False(t, endsNow.ActiveAt(now))

	startsNow := Discount{Type: Fixed, Value: dec("1"), StartsAt: ptr(now)}
	assert.True(t, startsNow.ActiveAt(now))
}

func TestNoDiscount(t *testing.T) {
	price, active := EffectivePrice(dec("4.99"), Discount{}, now)
	assert.False(t, active)
	assert.True(t, price.Equal(dec("4.99")))
}

func TestSelectTier(t *testing.T) {
	tiers := []Tier{
		{MinQuantity: 10, Price: dec("4.00")},
		{MinQuantity: 5, Price: dec("4.50")},
		{MinQuantity: 20, Price: dec("3.50")},
	}

	_, ok := SelectTier(tiers, 4)
	assert.False(t, ok)

	tier, ok := SelectTier(tiers, 12)
	require.True(t, ok)
	assert.Equal(t, 10, tier.MinQuantity)

	tier, ok = SelectTier(tiers, 20)
	require.True(t, ok)
	assert.Equal(t, 20, tier.MinQuantity)
}

func TestCalculateKeepsDiscountAndTierSeparate(t *testing.T) {
	tiers := []Tier{{MinQuantity: 5, Price: dec("8.00")}}
	d := Discount{Type: Percentage, Value: dec("50")}

	q := Calculate(dec("10.00"), d, now, 6, tiers)

	assert.True(t, q.EffectivePrice.Equal(dec("5.00")))
	require.NotNil(t, q.BulkTier)
	assert.True(t, q.BulkTier.Price.Equal(dec("8.00")))
	assert.True(t, q.HasActiveDiscount)
	assert.Len(t, q.BulkTiers, 1)

	q = Calculate(dec("10.00"), Discount{}, now, 1, nil)
	assert.Nil(t, q.BulkTier)
	assert.NotNil(t, q.BulkTiers)
}

func TestValidateDiscount(t *testing.T) {
	base := dec("20.00")

	assert.ErrorIs(t, ValidateDiscount(base, Discount{Type: Fixed, Value: dec("25")}), ErrFixedTooLarge)
	assert.ErrorIs(t, ValidateDiscount(base, Discount{Type: Fixed, Value: dec("20")}), ErrFixedTooLarge)
	assert.ErrorIs(t, ValidateDiscount(base, Discount{Type: Percentage, Value: dec("100.01")}), ErrPercentageRange)
	assert.ErrorIs(t, ValidateDiscount(base, Discount{Type: Percentage, Value: dec("0")}), ErrDiscountValue)
	assert.ErrorIs(t, ValidateDiscount(base, Discount{Type: Percentage, Value: dec("12.555")}), ErrDiscountPrecision)
	assert.ErrorIs(t, ValidateDiscount(base, Discount{Type: Fixed, Value: dec("0.001")}), ErrDiscountPrecision)
	assert.ErrorIs(t, ValidateDiscount(base, Discount{Type: "bogo", Value: dec("1")}), ErrUnknownDiscountType)
	assert.ErrorIs(t, ValidateDiscount(base, Discount{
		Type: Percentage, Value: dec("10"), StartsAt: ptr(now), EndsAt: ptr(now),
	}), ErrDiscountWindow)

	assert.NoError(t, ValidateDiscount(base, Discount{Type: Percentage, Value: dec("100")}))
	assert.NoError(t, ValidateDiscount(base, Discount{Type: Fixed, Value: dec("19.99")}))
	assert.NoError(t, ValidateDiscount(base, Discount{Type: Percentage, Value: dec("12.50")}))
}

func TestValidateTiers(t *testing.T) {
	base := dec("5.00")

	sorted, err := ValidateTiers(base, []Tier{
		{MinQuantity: 10, Price: dec("4.00")},
		{MinQuantity: 5, Price: dec("4.50")},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, sorted[0].MinQuantity)

	_, err = ValidateTiers(base, []Tier{
		{MinQuantity: 5, Price: dec("4.00")},
		{MinQuantity: 5, Price: dec("3.00")},
	})
	assert.ErrorIs(t, err, ErrDuplicateTier)

	_, err = ValidateTiers(base, []Tier{{MinQuantity: 5, Price: dec("5.00")}})
	assert.ErrorContains(t, err, "must be less than regular price 5.00")

	_, err = ValidateTiers(base, nil)
	assert.ErrorIs(t, err, ErrNoTiers)
}
