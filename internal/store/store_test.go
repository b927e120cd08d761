package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"farm-market/internal/models"
	"farm-market/internal/pricing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedFarmer(t *testing.T, s *Store, email string) (*models.User, *models.Farmer) {
	t.Helper()
	farmName := "Green Valley Farm"
	user := &models.User{
		Email:        email,
		PasswordHash: "hash",
		FullName:     "Jane Grower",
		Role:         models.RoleFarmer,
		CreatedAt:    testNow,
	}
	farmer := &models.Farmer{FarmName: &farmName, CreatedAt: testNow}
	require.NoError(t, s.CreateFarmerAccount(context.Background(), user, farmer))
	return user, farmer
}

func seedConsumer(t *testing.T, s *Store, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, PasswordHash: "hash", FullName: "Sam Shopper", CreatedAt: testNow}
	require.NoError(t, s.CreateUser(context.Background(), user))
	return user
}

func seedProduct(t *testing.T, s *Store, farmerID string, qty int) *models.Product {
	t.Helper()
	p := &models.Product{
		FarmerID:          farmerID,
		Name:              "Heirloom Tomatoes",
		Category:          models.CategoryVegetables,
		Description:       "Sweet and juicy",
		Price:             dec("4.99"),
		Unit:              models.UnitLB,
		Quantity:          qty,
		LowStockThreshold: 10,
		Images:            models.StringList{},
		Seasonality:       models.SeasonList{models.SeasonSummer},
		CreatedAt:         testNow,
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

func TestCreateAndGetProduct(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	_, farmer := seedFarmer(t, s, "farm@example.com")

	p := seedProduct(t, s, farmer.ID, 50)

	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, "Heirloom Tomatoes", got.Name)
	assert.True(t, got.Price.Equal(dec("4.99")))
	assert.Equal(t, models.SeasonList{models.SeasonSummer}, got.Seasonality)
	assert.Empty(t, got.Images)
	assert.Nil(t, got.DiscountType)
	assert.False(t, got.DiscountValue.Valid)
	assert.True(t, got.CreatedAt.Equal(testNow))

	_, err = s.GetProductForFarmer(ctx, "someone-else", p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetProductByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProductIfVersion(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	_, farmer := seedFarmer(t, s, "farm@example.com")
	p := seedProduct(t, s, farmer.ID, 50)

	qty := 40
	updated, err := s.UpdateProductIfVersion(ctx, p.ID, 1, models.ProductChanges{Quantity: &qty}, testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, 40, updated.Quantity)

	stale := 99
	_, err = s.UpdateProductIfVersion(ctx, p.ID, 1, models.ProductChanges{Quantity: &stale}, testNow)
	assert.ErrorIs(t, err, ErrVersionConflict)
	var conflict *VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 1, conflict.Expected)
	assert.Equal(t, 2, conflict.Found)

	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Quantity)
	assert.Equal(t, 2, got.Version)
}

func TestUpdateProductEmptyChanges(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	_, farmer := seedFarmer(t, s, "farm@example.com")
	p := seedProduct(t, s, farmer.ID, 50)

	got, err := s.UpdateProductIfVersion(ctx, p.ID, 1, models.ProductChanges{}, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)

	_, err = s.UpdateProductIfVersion(ctx, p.ID, 7, models.ProductChanges{}, testNow)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.EqualError(t, err, "version conflict: expected 7, found 1")
}

func TestConcurrentUpdatesOneWins(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	_, farmer := seedFarmer(t, s, "farm@example.com")
	p := seedProduct(t, s, farmer.ID, 50)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			qty := 10 + i
			_, results[i] = s.UpdateProductIfVersion(ctx, p.ID, 1, models.ProductChanges{Quantity: &qty}, testNow)
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrVersionConflict):
			conflicts++
			var conflict *VersionConflictError
			if assert.ErrorAs(t, err, &conflict) {
				assert.Equal(t, 2, conflict.Found)
			}
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
}

func TestPriceChangeWritesHistory(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	user, farmer := seedFarmer(t, s, "farm@example.com")
	p := seedProduct(t, s, farmer.ID, 50)

	price := dec("5.49")
	_, err := s.UpdateProductIfVersion(ctx, p.ID, 1, models.ProductChanges{
		Price:          &price,
		PriceChangedBy: &user.ID,
	}, testNow)
	require.NoError(t, err)

	history, err := s.GetPriceHistory(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].PreviousPrice.Equal(dec("4.99")))
	assert.True(t, history[0].NewPrice.Equal(dec("5.49")))
	assert.Equal(t, PriceChangeManual, history[0].ChangeType)
	require.NotNil(t, history[0].ChangedBy)
	assert.Equal(t, user.ID, *history[0].ChangedBy)
}

func TestDiscountRoundTrip(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	_, farmer := seedFarmer(t, s, "farm@example.com")
	p := seedProduct(t, s, farmer.ID, 50)

	ends := testNow.Add(48 * time.Hour)
	got, err := s.UpdateProductIfVersion(ctx, p.ID, 1, models.ProductChanges{
		Discount: &models.DiscountChange{Discount: pricing.Discount{
			Type: pricing.Percentage, Value: dec("20"), EndsAt: &ends,
		}},
	}, testNow)
	require.NoError(t, err)
	require.NotNil(t, got.DiscountType)
	assert.Equal(t, pricing.Percentage, *got.DiscountType)
	assert.True(t, got.DiscountValue.Decimal.Equal(dec("20")))
	require.NotNil(t, got.DiscountEndsAt)
	assert.True(t, got.DiscountEndsAt.Equal(ends))

	got, err = s.UpdateProductIfVersion(ctx, p.ID, 2, models.ProductChanges{
		Discount: &models.DiscountChange{Clear: true},
	}, testNow)
	require.NoError(t, err)
	assert.Nil(t, got.DiscountType)
	assert.Nil(t, got.DiscountEndsAt)
	assert.Equal(t, 3, got.Version)
}

func TestCatalogFilters(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	_, farmer := seedFarmer(t, s, "farm@example.com")

	seedProduct(t, s, farmer.ID, 50)
	seedProduct(t, s, farmer.ID, 0)
	honey := &models.Product{
		FarmerID: farmer.ID, Name: "Wildflower Honey", Category: models.CategoryHoney,
		Description: "Raw honey", Price: dec("12.00"), Unit: models.UnitEach, Quantity: 5,
		LowStockThreshold: 10, Seasonality: models.SeasonList{models.SeasonYearRound}, CreatedAt: testNow.Add(time.Hour),
	}
	require.NoError(t, s.CreateProduct(ctx, honey))

	products, total, err := s.ListCatalog(ctx, models.ProductFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, honey.ID, products[0].ID)

	products, total, err = s.ListCatalog(ctx, models.ProductFilter{Search: "HONEY", Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Wildflower Honey", products[0].Name)

	_, total, err = s.ListCatalog(ctx, models.ProductFilter{Category: models.CategoryVegetables, Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	low, err := s.ListLowStock(ctx, farmer.ID)
	require.NoError(t, err)
	assert.Len(t, low, 2)
	assert.Equal(t, 0, low[0].Quantity)
}

func TestBulkTiers(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	_, farmer := seedFarmer(t, s, "farm@example.com")
	p := seedProduct(t, s, farmer.ID, 50)

	_, err := s.ReplaceBulkTiers(ctx, p.ID, []pricing.Tier{
		{MinQuantity: 10, Price: dec("4.00")},
		{MinQuantity: 5, Price: dec("4.50")},
	}, testNow)
	require.NoError(t, err)

	tiers, err := s.GetBulkTiers(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	assert.Equal(t, 5, tiers[0].MinQuantity)

	byProduct, err := s.GetBulkTiersForProducts(ctx, []string{p.ID, "other"})
	require.NoError(t, err)
	assert.Len(t, byProduct[p.ID], 2)

	n, err := s.DeleteBulkTiers(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCartItems(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	_, farmer := seedFarmer(t, s, "farm@example.com")
	consumer := seedConsumer(t, s, "shop@example.com")
	p := seedProduct(t, s, farmer.ID, 50)

	cart, err := s.GetOrCreateCart(ctx, consumer.ID, testNow)
	require.NoError(t, err)
	again, err := s.GetOrCreateCart(ctx, consumer.ID, testNow)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)

	item := &models.CartItem{CartID: cart.ID, ProductID: p.ID, Quantity: 3, UnitPrice: p.Price, CreatedAt: testNow}
	require.NoError(t, s.AddCartItem(ctx, item))

	dup := &models.CartItem{CartID: cart.ID, ProductID: p.ID, Quantity: 1, UnitPrice: p.Price, CreatedAt: testNow}
	assert.ErrorIs(t, s.AddCartItem(ctx, dup), ErrDuplicate)

	require.NoError(t, s.UpdateCartItemQuantity(ctx, cart.ID, item.ID, 7, testNow))
	count, err := s.CountCartItems(ctx, consumer.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	assert.ErrorIs(t, s.DeleteCartItem(ctx, cart.ID, "missing"), ErrNotFound)
	require.NoError(t, s.DeleteCartItem(ctx, cart.ID, item.ID))

	items, err := s.GetCartItems(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func placeTestOrder(t *testing.T, s *Store, userID string, p *models.Product, qty int, key string) (*models.Order, []StockMovement, error) {
	t.Helper()
	ctx := context.Background()
	cart, err := s.GetOrCreateCart(ctx, userID, testNow)
	require.NoError(t, err)

	order := &models.Order{
		UserID:         userID,
		Subtotal:       p.Price.Mul(decimal.NewFromInt(int64(qty))),
		TaxAmount:      decimal.Zero,
		TotalAmount:    p.Price.Mul(decimal.NewFromInt(int64(qty))),
		IdempotencyKey: &key,
		CreatedAt:      testNow,
		Items:          []models.OrderItem{{ProductID: p.ID, Quantity: qty, UnitPrice: p.Price}},
	}
	movements, err := s.PlaceOrder(ctx, order, cart.ID)
	return order, movements, err
}

func TestPlaceOrderDecrementsStock(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	_, farmer := seedFarmer(t, s, "farm@example.com")
	consumer := seedConsumer(t, s, "shop@example.com")
	p := seedProduct(t, s, farmer.ID, 12)

	order, movements, err := placeTestOrder(t, s, consumer.ID, p, 5, "key-1")
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, 12, movements[0].PreviousQuantity)
	assert.Equal(t, 7, movements[0].CurrentQuantity)

	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Quantity)
	assert.Equal(t, 2, got.Version)

	byKey, err := s.GetOrderByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, order.ID, byKey.ID)
	require.Len(t, byKey.Items, 1)
	assert.Equal(t, "Heirloom Tomatoes", byKey.Items[0].ProductName)

	pending, err := s.HasPendingOrders(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, pending)

	missing, err := s.GetOrderByIdempotencyKey(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPlaceOrderInsufficientStockRollsBack(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	_, farmer := seedFarmer(t, s, "farm@example.com")
	consumer := seedConsumer(t, s, "shop@example.com")
	p := seedProduct(t, s, farmer.ID, 3)

	_, _, err := placeTestOrder(t, s, consumer.ID, p, 4, "key-2")
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, p.ID, stockErr.ProductID)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Quantity)
	assert.Equal(t, 1, got.Version)

	orders, total, err := s.GetOrdersByUserID(ctx, consumer.ID, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)
}

func TestCancelOrderRestocks(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	_, farmer := seedFarmer(t, s, "farm@example.com")
	consumer := seedConsumer(t, s, "shop@example.com")
	p := seedProduct(t, s, farmer.ID, 10)

	order, _, err := placeTestOrder(t, s, consumer.ID, p, 4, "key-3")
	require.NoError(t, err)

	cancelled, movements, err := s.CancelOrder(ctx, consumer.ID, order.ID, testNow)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	require.Len(t, movements, 1)
	assert.Equal(t, 10, movements[0].CurrentQuantity)

	_, _, err = s.CancelOrder(ctx, consumer.ID, order.ID, testNow)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, _, err = s.CancelOrder(ctx, "stranger", order.ID, testNow)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Quantity)
	assert.Equal(t, 3, got.Version)
}

func TestIdempotencyKeyUnique(t *testing.T) {
	s := NewTestStore(t)
	_, farmer := seedFarmer(t, s, "farm@example.com")
	consumer := seedConsumer(t, s, "shop@example.com")
	p := seedProduct(t, s, farmer.ID, 10)

	_, _, err := placeTestOrder(t, s, consumer.ID, p, 1, "same-key")
	require.NoError(t, err)

	_, _, err = placeTestOrder(t, s, consumer.ID, p, 1, "same-key")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUsersAndLockout(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	user := seedConsumer(t, s, "Shop@Example.com")

	got, err := s.GetUserByEmail(ctx, "shop@example.COM")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, models.RoleConsumer, got.Role)

	dup := &models.User{Email: "shop@example.com", PasswordHash: "x", FullName: "Other", CreatedAt: testNow}
	assert.ErrorIs(t, s.CreateUser(ctx, dup), ErrDuplicate)

	until := testNow.Add(15 * time.Minute)
	require.NoError(t, s.RecordFailedLogin(ctx, user.ID, 5, &until, testNow))
	got, err = s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.FailedLoginAttempts)
	assert.True(t, got.LockedAt(testNow))

	require.NoError(t, s.RecordSuccessfulLogin(ctx, user.ID, testNow))
	got, err = s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailedLoginAttempts)
	assert.Nil(t, got.LockedUntil)
	assert.NotNil(t, got.LastLoginAt)
}

func TestFarmerNames(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	_, named := seedFarmer(t, s, "a@example.com")

	user := &models.User{Email: "b@example.com", PasswordHash: "x", FullName: "Bob Barn", Role: models.RoleFarmer, CreatedAt: testNow}
	unnamed := &models.Farmer{CreatedAt: testNow}
	require.NoError(t, s.CreateFarmerAccount(ctx, user, unnamed))

	names, err := s.GetFarmerNames(ctx, []string{named.ID, unnamed.ID})
	require.NoError(t, err)
	assert.Equal(t, "Green Valley Farm", names[named.ID])
	assert.Equal(t, "Bob Barn", names[unnamed.ID])
}

func TestWishlist(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	_, farmer := seedFarmer(t, s, "farm@example.com")
	consumer := seedConsumer(t, s, "shop@example.com")
	p := seedProduct(t, s, farmer.ID, 10)

	require.NoError(t, s.AddWishlistItem(ctx, &models.WishlistItem{UserID: consumer.ID, ProductID: p.ID, CreatedAt: testNow}))
	assert.ErrorIs(t, s.AddWishlistItem(ctx, &models.WishlistItem{UserID: consumer.ID, ProductID: p.ID, CreatedAt: testNow}), ErrDuplicate)

	in, err := s.IsInWishlist(ctx, consumer.ID, p.ID)
	require.NoError(t, err)
	assert.True(t, in)

	require.NoError(t, s.RemoveWishlistItem(ctx, consumer.ID, p.ID))
	assert.ErrorIs(t, s.RemoveWishlistItem(ctx, consumer.ID, p.ID), ErrNotFound)
}

func TestRecordStockAlertIsIdempotent(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	_, farmer := seedFarmer(t, s, "farm@example.com")
	p := seedProduct(t, s, farmer.ID, 0)

	alert := &models.StockAlert{
		FarmerID: farmer.ID, ProductID: p.ID, ProductName: p.Name,
		PreviousQuantity: 4, CurrentQuantity: 0, Threshold: 10, AlertType: models.AlertOutOfStock,
	}
	fresh, err := s.RecordStockAlert(ctx, "evt-1", models.EventTypeStockChanged, alert, testNow)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = s.RecordStockAlert(ctx, "evt-1", models.EventTypeStockChanged, &models.StockAlert{
		FarmerID: farmer.ID, ProductID: p.ID, ProductName: p.Name, AlertType: models.AlertOutOfStock,
	}, testNow)
	require.NoError(t, err)
	assert.False(t, fresh)

	alerts, err := s.ListStockAlerts(ctx, farmer.ID, true)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	n, err := s.MarkAlertsRead(ctx, farmer.ID, []string{alerts[0].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	alerts, err = s.ListStockAlerts(ctx, farmer.ID, true)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	processed, err := s.IsEventProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestDeleteProduct(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	_, farmer := seedFarmer(t, s, "farm@example.com")
	p := seedProduct(t, s, farmer.ID, 10)

	require.NoError(t, s.DeleteProduct(ctx, p.ID))
	assert.ErrorIs(t, s.DeleteProduct(ctx, p.ID), ErrNotFound)
}
