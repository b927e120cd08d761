package service

import (
	"context"
	"testing"

	"farm-market/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStockChange(t *testing.T) {
	tests := []struct {
		name                         string
		previous, current, threshold int
		want                         string
	}{
		{"sold out", 4, 0, 10, models.AlertOutOfStock},
		{"restocked", 0, 20, 10, models.AlertBackInStock},
		{"restocked below threshold", 0, 3, 10, models.AlertBackInStock},
		{"crossed threshold", 12, 10, 10, models.AlertLowStock},
		{"already low", 8, 5, 10, ""},
		{"still plenty", 50, 40, 10, ""},
		{"stayed empty", 0, 0, 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStockChange(tt.previous, tt.current, tt.threshold))
		})
	}
}

func stockEvent(farmerID, productID string, previous, current int) *models.StockChangedEvent {
	return &models.StockChangedEvent{
		BaseEvent:         baseEvent(models.EventTypeStockChanged, testNow),
		ProductID:         productID,
		FarmerID:          farmerID,
		ProductName:       "Heirloom Tomatoes",
		PreviousQuantity:  previous,
		CurrentQuantity:   current,
		LowStockThreshold: 10,
		Reason:            ReasonOrderPlaced,
	}
}

func TestHandleStockChangedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alerts := NewAlertService(f.store)
	product := f.createProduct(t, "4.99", 12)

	event := stockEvent(f.farmer.ID, product.ID, 12, 4)
	require.NoError(t, alerts.HandleStockChanged(ctx, event))
	require.NoError(t, alerts.HandleStockChanged(ctx, event))

	list, err := alerts.List(ctx, f.farmer.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.AlertLowStock, list[0].AlertType)
	assert.Equal(t, 4, list[0].CurrentQuantity)
	assert.False(t, list[0].IsRead)
}

func TestHandleStockChangedWithoutAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alerts := NewAlertService(f.store)
	product := f.createProduct(t, "4.99", 50)

	require.NoError(t, alerts.HandleStockChanged(ctx, stockEvent(f.farmer.ID, product.ID, 50, 45)))

	list, err := alerts.List(ctx, f.farmer.ID, false)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMarkAlertsRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alerts := NewAlertService(f.store)
	product := f.createProduct(t, "4.99", 12)

	require.NoError(t, alerts.HandleStockChanged(ctx, stockEvent(f.farmer.ID, product.ID, 12, 0)))
	require.NoError(t, alerts.HandleStockChanged(ctx, stockEvent(f.farmer.ID, product.ID, 0, 30)))

	unread, err := alerts.List(ctx, f.farmer.ID, true)
	require.NoError(t, err)
	require.Len(t, unread, 2)

	_, err = alerts.MarkRead(ctx, f.farmer.ID, nil)
	requireKind(t, err, KindValidation)

	_, other := seedFarmer(t, f.store, "other-farm@example.com")
	n, err := alerts.MarkRead(ctx, other.ID, []string{unread[0].ID})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = alerts.MarkRead(ctx, f.farmer.ID, []string{unread[0].ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	unread, err = alerts.List(ctx, f.farmer.ID, true)
	require.NoError(t, err)
	assert.Len(t, unread, 1)
}

func TestStockAlertsFromCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alerts := NewAlertService(f.store)
	product := f.createProduct(t, "4.99", 3)

	_, err := f.carts.AddItem(ctx, f.consumer.ID, product.ID, 3)
	require.NoError(t, err)
	_, err = f.orders.Checkout(ctx, f.consumer.ID, "")
	require.NoError(t, err)

	require.Len(t, f.events.stock, 1)
	require.NoError(t, alerts.HandleStockChanged(ctx, f.events.stock[0]))

	list, err := alerts.List(ctx, f.farmer.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.AlertOutOfStock, list[0].AlertType)
}
