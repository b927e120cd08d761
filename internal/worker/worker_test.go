package worker

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"farm-market/internal/broker"
	"farm-market/internal/models"
	"farm-market/internal/service"
	"farm-market/internal/store"
	"farm-market/internal/util"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	_ = util.InitLogger("test")
	os.Exit(m.Run())
}

// replaySource hands a fixed list of messages to the handler.
type replaySource struct {
	messages []kafka.Message
	errs     []error
	closed   bool
}

func (s *replaySource) StartConsuming(ctx context.Context, handler broker.MessageHandler) error {
	for _, msg := range s.messages {
		s.errs = append(s.errs, handler(ctx, msg))
	}
	return nil
}

func (s *replaySource) Close() error {
	s.closed = true
	return nil
}

type countingMailer struct {
	mu       sync.Mutex
	subjects []string
}

func (m *countingMailer) SendVerification(context.Context, string, string, string) error  { return nil }
func (m *countingMailer) SendPasswordReset(context.Context, string, string, string) error { return nil }
func (m *countingMailer) SendOrderNotification(_ context.Context, _, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return nil
}

func message(t *testing.T, event any) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: payload}
}

func seedFarmer(t *testing.T, st *store.Store) *models.Farmer {
	t.Helper()
	name := "Green Valley Farm"
	user := &models.User{Email: "grower@example.com", PasswordHash: "x", FullName: "Jane Grower", Role: models.RoleFarmer}
	farmer := &models.Farmer{FarmName: &name}
	require.NoError(t, st.CreateFarmerAccount(context.Background(), user, farmer))
	return farmer
}

func TestStockAlertWorker(t *testing.T) {
	st := store.NewTestStore(t)
	farmer := seedFarmer(t, st)
	product := &models.Product{
		FarmerID:    farmer.ID,
		Name:        "Heirloom Tomatoes",
		Category:    models.CategoryVegetables,
		Description: "Sweet",
		Price:       decimal.RequireFromString("4.99"),
		Unit:        models.UnitLB,
		Quantity:    0,
		Status:      models.ProductActive,
	}
	require.NoError(t, st.CreateProduct(context.Background(), product))

	now := time.Now().UTC()
	stock := models.StockChangedEvent{
		BaseEvent:         models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeStockChanged, Timestamp: now},
		ProductID:         product.ID,
		FarmerID:          farmer.ID,
		ProductName:       product.Name,
		PreviousQuantity:  6,
		CurrentQuantity:   0,
		LowStockThreshold: 10,
		Reason:            service.ReasonOrderPlaced,
	}
	placed := models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-2", EventType: models.EventTypeOrderPlaced, Timestamp: now},
		OrderID:   "order-1",
	}
	source := &replaySource{messages: []kafka.Message{message(t, stock), message(t, placed), message(t, stock)}}

	alerts := service.NewAlertService(st)
	w := NewStockAlertWorker(source, alerts)
	require.NoError(t, w.Start(context.Background()))
	for _, err := range source.errs {
		assert.NoError(t, err)
	}

	list, err := alerts.List(context.Background(), farmer.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.AlertOutOfStock, list[0].AlertType)

	require.NoError(t, w.Stop())
	assert.True(t, source.closed)
}

func TestOrderNotificationWorker(t *testing.T) {
	st := store.NewTestStore(t)
	customer := &models.User{Email: "shopper@example.com", PasswordHash: "x", FullName: "Sam Shopper"}
	require.NoError(t, st.CreateUser(context.Background(), customer))

	now := time.Now().UTC()
	cancelled := models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-3", EventType: models.EventTypeOrderCancelled, Timestamp: now},
		OrderID:   "order-1",
		UserID:    customer.ID,
		Reason:    "cancelled by customer",
	}
	stock := models.StockChangedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-4", EventType: models.EventTypeStockChanged, Timestamp: now},
	}
	source := &replaySource{messages: []kafka.Message{message(t, cancelled), message(t, stock)}}

	mailer := &countingMailer{}
	w := NewOrderNotificationWorker(source, service.NewNotificationService(st, mailer))
	require.NoError(t, w.Start(context.Background()))

	assert.Equal(t, []string{"Order cancelled"}, mailer.subjects)
	require.NoError(t, w.Stop())
}
