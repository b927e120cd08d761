package service

import (
	"context"
	"sync"
	"testing"

	"farm-market/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutPlacesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.createProduct(t, "4.99", 12)

	_, err := f.carts.AddItem(ctx, f.consumer.ID, product.ID, 4)
	require.NoError(t, err)

	res, err := f.orders.Checkout(ctx, f.consumer.ID, "checkout-1")
	require.NoError(t, err)
	assert.False(t, res.Replayed)

	order := res.Order
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "19.96", order.Subtotal.StringFixed(2))
	assert.Equal(t, "1.60", order.TaxAmount.StringFixed(2))
	assert.Equal(t, "21.56", order.TotalAmount.StringFixed(2))
	require.Len(t, order.Items, 1)
	assert.Equal(t, f.farmer.ID, order.Items[0].FarmerID)

	stocked, err := f.products.GetProduct(ctx, f.farmer.ID, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, stocked.Quantity)
	assert.Equal(t, 2, stocked.Version)

	count, err := f.carts.Count(ctx, f.consumer.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.Len(t, f.events.placed, 1)
	assert.Equal(t, order.ID, f.events.placed[0].OrderID)
	require.Len(t, f.events.stock, 1)
	assert.Equal(t, ReasonOrderPlaced, f.events.stock[0].Reason)
	assert.Equal(t, 12, f.events.stock[0].PreviousQuantity)
	assert.Equal(t, 8, f.events.stock[0].CurrentQuantity)
}

func TestCheckoutReplaysIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.createProduct(t, "4.99", 12)

	_, err := f.carts.AddItem(ctx, f.consumer.ID, product.ID, 2)
	require.NoError(t, err)
	first, err := f.orders.Checkout(ctx, f.consumer.ID, "same-key")
	require.NoError(t, err)

	second, err := f.orders.Checkout(ctx, f.consumer.ID, "same-key")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Len(t, f.events.placed, 1)

	stocked, err := f.products.GetProduct(ctx, f.farmer.ID, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stocked.Quantity)
}

func TestCheckoutReplayWithoutRedis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orders := NewOrderService(f.store, nil, f.events, dec("0.08"), 0).WithClock(fixedClock)
	product := f.createProduct(t, "4.99", 12)

	_, err := f.carts.AddItem(ctx, f.consumer.ID, product.ID, 2)
	require.NoError(t, err)
	first, err := orders.Checkout(ctx, f.consumer.ID, "db-key")
	require.NoError(t, err)

	second, err := orders.Checkout(ctx, f.consumer.ID, "db-key")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
}

func TestCheckoutKeyOfAnotherUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.createProduct(t, "4.99", 12)
	other := seedConsumer(t, f.store, "neighbour@example.com")

	_, err := f.carts.AddItem(ctx, f.consumer.ID, product.ID, 1)
	require.NoError(t, err)
	_, err = f.orders.Checkout(ctx, f.consumer.ID, "shared")
	require.NoError(t, err)

	_, err = f.carts.AddItem(ctx, other.ID, product.ID, 1)
	require.NoError(t, err)
	_, err = f.orders.Checkout(ctx, other.ID, "shared")
	requireKind(t, err, KindConflict)
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.Checkout(context.Background(), f.consumer.ID, "")
	e := requireKind(t, err, KindBusinessRule)
	assert.Equal(t, "cart is empty", e.Message)
}

func TestCheckoutStaleCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.createProduct(t, "4.99", 10)

	_, err := f.carts.AddItem(ctx, f.consumer.ID, product.ID, 6)
	require.NoError(t, err)
	_, err = f.products.UpdateInventory(ctx, f.farmer.ID, product.ID, 2)
	require.NoError(t, err)

	_, err = f.orders.Checkout(ctx, f.consumer.ID, "")
	e := requireKind(t, err, KindBusinessRule)
	issues, ok := e.Details["issues"].([]StockIssue)
	require.True(t, ok)
	require.Len(t, issues, 1)
	assert.Equal(t, ActionReduce, issues[0].Action)

	count, err := f.carts.Count(ctx, f.consumer.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
	assert.Empty(t, f.events.placed)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.createProduct(t, "4.99", 5)

	buyers := make([]*models.User, 3)
	for i := range buyers {
		buyers[i] = seedConsumer(t, f.store, "buyer"+string(rune('a'+i))+"@example.com")
		_, err := f.carts.AddItem(ctx, buyers[i].ID, product.ID, 3)
		require.NoError(t, err)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		placed int
	)
	for _, buyer := range buyers {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			if _, err := f.orders.Checkout(ctx, userID, ""); err == nil {
				mu.Lock()
				placed++
				mu.Unlock()
			}
		}(buyer.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, placed)
	stocked, err := f.products.GetProduct(ctx, f.farmer.ID, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stocked.Quantity)
}

func TestCancelOrderRestocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.createProduct(t, "4.99", 10)

	_, err := f.carts.AddItem(ctx, f.consumer.ID, product.ID, 4)
	require.NoError(t, err)
	res, err := f.orders.Checkout(ctx, f.consumer.ID, "")
	require.NoError(t, err)

	cancelled, err := f.orders.CancelOrder(ctx, f.consumer.ID, res.Order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)

	stocked, err := f.products.GetProduct(ctx, f.farmer.ID, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stocked.Quantity)

	require.Len(t, f.events.cancelled, 1)
	assert.Equal(t, "cancelled by customer", f.events.cancelled[0].Reason)
	require.Len(t, f.events.stock, 2)
	assert.Equal(t, ReasonOrderCancelled, f.events.stock[1].Reason)

	_, err = f.orders.CancelOrder(ctx, f.consumer.ID, res.Order.ID, "")
	e := requireKind(t, err, KindBusinessRule)
	assert.Equal(t, "only pending orders can be cancelled", e.Message)
}

func TestOrdersAreScopedToUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.createProduct(t, "4.99", 10)
	other := seedConsumer(t, f.store, "nosy@example.com")

	_, err := f.carts.AddItem(ctx, f.consumer.ID, product.ID, 1)
	require.NoError(t, err)
	res, err := f.orders.Checkout(ctx, f.consumer.ID, "")
	require.NoError(t, err)

	_, err = f.orders.GetOrder(ctx, other.ID, res.Order.ID)
	requireKind(t, err, KindNotFound)
	_, err = f.orders.CancelOrder(ctx, other.ID, res.Order.ID, "")
	requireKind(t, err, KindNotFound)

	page, err := f.orders.ListOrders(ctx, f.consumer.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Orders, 1)

	page, err = f.orders.ListOrders(ctx, other.ID, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Equal(t, defaultPageSize, page.PageSize)
}

func TestAdvanceOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.createProduct(t, "4.99", 10)

	_, err := f.carts.AddItem(ctx, f.consumer.ID, product.ID, 1)
	require.NoError(t, err)
	res, err := f.orders.Checkout(ctx, f.consumer.ID, "")
	require.NoError(t, err)

	_, err = f.orders.AdvanceOrder(ctx, res.Order.ID, models.OrderStatusShipped)
	e := requireKind(t, err, KindBusinessRule)
	assert.Equal(t, "cannot move order from pending to shipped", e.Message)

	for _, status := range []string{
		models.OrderStatusConfirmed,
		models.OrderStatusProcessing,
		models.OrderStatusShipped,
		models.OrderStatusDelivered,
	} {
		order, err := f.orders.AdvanceOrder(ctx, res.Order.ID, status)
		require.NoError(t, err)
		assert.Equal(t, status, order.Status)
	}

	_, err = f.orders.AdvanceOrder(ctx, "missing", models.OrderStatusConfirmed)
	requireKind(t, err, KindNotFound)
}
