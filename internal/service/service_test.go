package service

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"farm-market/internal/auth"
	"farm-market/internal/models"
	"farm-market/internal/store"
	"farm-market/internal/util"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func TestMain(m *testing.M) {
	_ = util.InitLogger("test")
	os.Exit(m.Run())
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func boolPtr(v bool) *bool { return &v }

func newSealer(t *testing.T) *auth.Sealer {
	t.Helper()
	s, err := auth.NewSealer("test-encryption-key")
	require.NoError(t, err)
	return s
}

type recordingPublisher struct {
	mu        sync.Mutex
	updated   []*models.ProductUpdatedEvent
	stock     []*models.StockChangedEvent
	placed    []*models.OrderPlacedEvent
	cancelled []*models.OrderCancelledEvent
}

func (p *recordingPublisher) PublishProductUpdated(_ context.Context, e *models.ProductUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = append(p.updated, e)
	return nil
}

func (p *recordingPublisher) PublishStockChanged(_ context.Context, e *models.StockChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stock = append(p.stock, e)
	return nil
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, e)
	return nil
}

func (p *recordingPublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, e)
	return nil
}

// memoryIdempotency is an in-process IdempotencyStore.
type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: map[string]string{}}
}

func (m *memoryIdempotency) SetIdempotencyKey(_ context.Context, scope, key, value string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scope + ":" + key
	if _, ok := m.keys[k]; ok {
		return false, nil
	}
	m.keys[k] = value
	return true, nil
}

func (m *memoryIdempotency) GetIdempotencyKey(_ context.Context, scope, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[scope+":"+key]
	return v, ok, nil
}

type fixture struct {
	store    *store.Store
	events   *recordingPublisher
	products *ProductService
	catalog  *CatalogService
	carts    *CartService
	orders   *OrderService
	farmer   *models.Farmer
	consumer *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewTestStore(t)
	events := &recordingPublisher{}
	f := &fixture{
		store:    st,
		events:   events,
		products: NewProductService(st, events).WithClock(fixedClock),
		catalog:  NewCatalogService(st).WithClock(fixedClock),
		carts:    NewCartService(st, dec("0.08")).WithClock(fixedClock),
		orders:   NewOrderService(st, newMemoryIdempotency(), events, dec("0.08"), time.Hour).WithClock(fixedClock),
	}
	_, f.farmer = seedFarmer(t, st, "grower@example.com")
	f.consumer = seedConsumer(t, st, "shopper@example.com")
	return f
}

func seedFarmer(t *testing.T, st *store.Store, email string) (*models.User, *models.Farmer) {
	t.Helper()
	user := &models.User{
		Email:         email,
		PasswordHash:  "hash",
		FullName:      "Jane Grower",
		Role:          models.RoleFarmer,
		EmailVerified: true,
		CreatedAt:     testNow,
	}
	farmer := &models.Farmer{FarmName: strPtr("Green Valley Farm"), CreatedAt: testNow}
	require.NoError(t, st.CreateFarmerAccount(context.Background(), user, farmer))
	return user, farmer
}

func seedConsumer(t *testing.T, st *store.Store, email string) *models.User {
	t.Helper()
	user := &models.User{
		Email:         email,
		PasswordHash:  "hash",
		FullName:      "Sam Shopper",
		EmailVerified: true,
		CreatedAt:     testNow,
	}
	require.NoError(t, st.CreateUser(context.Background(), user))
	return user
}

func (f *fixture) createProduct(t *testing.T, price string, qty int) *ProductView {
	t.Helper()
	view, err := f.products.CreateProduct(context.Background(), f.farmer.ID, CreateProductInput{
		Name:        "Heirloom Tomatoes",
		Category:    models.CategoryVegetables,
		Description: "Sweet and juicy",
		Price:       dec(price),
		Unit:        models.UnitLB,
		Quantity:    qty,
	})
	require.NoError(t, err)
	return view
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, kind, e.Kind, "unexpected error: %v", err)
	return e
}
