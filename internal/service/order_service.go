package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"farm-market/internal/models"
	"farm-market/internal/store"
	"farm-market/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// nextOrderStatus is the fulfilment path an order may move along.
var nextOrderStatus = map[string]string{
	models.OrderStatusPending:    models.OrderStatusConfirmed,
	models.OrderStatusConfirmed:  models.OrderStatusProcessing,
	models.OrderStatusProcessing: models.OrderStatusShipped,
	models.OrderStatusShipped:    models.OrderStatusDelivered,
}

// OrderService handles order business logic
type OrderService struct {
	store          *store.Store
	idempotency    IdempotencyStore
	eventPublisher EventPublisher
	taxRate        decimal.Decimal
	idempotencyTTL time.Duration
	logger         *zap.Logger
	now            Clock
}

// NewOrderService creates a new order service. idempotency may be nil, in
// which case keys are only checked against stored orders.
func NewOrderService(
	store *store.Store,
	idempotency IdempotencyStore,
	eventPublisher EventPublisher,
	taxRate decimal.Decimal,
	idempotencyTTL time.Duration,
) *OrderService {
	return &OrderService{
		store:          store,
		idempotency:    idempotency,
		eventPublisher: eventPublisher,
		taxRate:        taxRate,
		idempotencyTTL: idempotencyTTL,
		logger:         util.GetLogger(),
		now:            time.Now,
	}
}

// WithClock replaces the service clock.
func (s *OrderService) WithClock(now Clock) *OrderService {
	s.now = now
	return s
}

// CheckoutResult is the order produced by a checkout. Replayed is set when
// the idempotency key matched an earlier checkout.
type CheckoutResult struct {
	Order    *models.Order `json:"order"`
	Replayed bool          `json:"replayed"`
}

// OrderPage is one page of a user's orders.
type OrderPage struct {
	Orders     []models.Order `json:"orders"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
}

// Checkout turns the user's cart into a pending order
func (s *OrderService) Checkout(ctx context.Context, userID, idempotencyKey string) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Checkout")
	defer span.End()

	if idempotencyKey != "" {
		existing, err := s.findByIdempotencyKey(ctx, userID, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.logger.Info("Duplicate checkout request detected",
				zap.String("idempotency_key", idempotencyKey),
				zap.String("order_id", existing.ID))
			util.CheckoutsTotal.WithLabelValues("replayed").Inc()
			return &CheckoutResult{Order: existing, Replayed: true}, nil
		}
	}

	cart, err := s.store.GetCartByUserID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, BusinessRule("cart is empty")
	}
	if err != nil {
		return nil, err
	}
	items, err := s.store.GetCartItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, BusinessRule("cart is empty")
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if issues := RevalidateCart(items, productsByID(products)); len(issues) > 0 {
		util.CheckoutsTotal.WithLabelValues("stale_cart").Inc()
		return nil, BusinessRule("some items in your cart can no longer be fulfilled").
			WithDetail("issues", issues)
	}

	now := s.now()
	order := s.buildOrder(userID, items, now)
	if idempotencyKey != "" {
		order.IdempotencyKey = &idempotencyKey
	}

	start := time.Now()
	movements, err := s.store.PlaceOrder(ctx, order, cart.ID)
	util.CheckoutLatency.Observe(time.Since(start).Seconds())

	var stockErr *store.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		util.CheckoutsTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, BusinessRule("insufficient stock for one of the items in your cart").
			WithDetail("product_id", stockErr.ProductID)
	case errors.Is(err, store.ErrDuplicate) && idempotencyKey != "":
		// a concurrent checkout with the same key won
		existing, findErr := s.findByIdempotencyKey(ctx, userID, idempotencyKey)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			return &CheckoutResult{Order: existing, Replayed: true}, nil
		}
		return nil, Conflict("idempotency key already used")
	case err != nil:
		util.CheckoutsTotal.WithLabelValues("error").Inc()
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	util.CheckoutsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.String("total", order.TotalAmount.StringFixed(2)))

	if idempotencyKey != "" && s.idempotency != nil {
		if _, err := s.idempotency.SetIdempotencyKey(ctx, userID, idempotencyKey, order.ID, s.idempotencyTTL); err != nil {
			s.logger.Error("Failed to remember idempotency key", zap.Error(err))
		}
	}

	s.publishOrderPlaced(ctx, order, now)
	publishStockChanges(ctx, s.eventPublisher, s.logger, stockChangedEvents(movements, ReasonOrderPlaced, now))

	return &CheckoutResult{Order: order}, nil
}

// findByIdempotencyKey checks Redis first, then the orders table. A key
// used by another user is a conflict.
func (s *OrderService) findByIdempotencyKey(ctx context.Context, userID, key string) (*models.Order, error) {
	if s.idempotency != nil {
		orderID, ok, err := s.idempotency.GetIdempotencyKey(ctx, userID, key)
		if err != nil {
			s.logger.Warn("Idempotency lookup failed, falling back to database", zap.Error(err))
		} else if ok {
			order, err := s.store.GetOrderForUser(ctx, userID, orderID)
			if err == nil {
				return order, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
		}
	}

	existing, err := s.store.GetOrderByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing != nil && existing.UserID != userID {
		return nil, Conflict("idempotency key already used")
	}
	return existing, nil
}

// buildOrder prices the cart lines at their snapshot prices.
func (s *OrderService) buildOrder(userID string, items []models.CartItem, now time.Time) *models.Order {
	subtotal := decimal.Zero
	orderItems := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		orderItems = append(orderItems, models.OrderItem{
			ID:        uuid.NewString(),
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	tax := subtotal.Mul(s.taxRate)

	return &models.Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		Subtotal:    subtotal,
		TaxAmount:   tax.RoundBank(2),
		TotalAmount: subtotal.Add(tax).RoundBank(2),
		Status:      models.OrderStatusPending,
		CreatedAt:   now,
		Items:       orderItems,
	}
}

func (s *OrderService) publishOrderPlaced(ctx context.Context, order *models.Order, now time.Time) {
	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.OrderItemData{
			ProductID: item.ProductID,
			FarmerID:  item.FarmerID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	event := &models.OrderPlacedEvent{
		BaseEvent:   baseEvent(models.EventTypeOrderPlaced, now),
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       items,
	}
	if err := s.eventPublisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}
}

// ListOrders pages through the user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID string, page, pageSize int) (*OrderPage, error) {
	page, pageSize = normalizePage(page, pageSize)
	orders, total, err := s.store.GetOrdersByUserID(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	return &OrderPage{
		Orders:     orders,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// GetOrder retrieves one of the user's orders.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID string) (*models.Order, error) {
	order, err := s.store.GetOrderForUser(ctx, userID, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("order not found")
	}
	return order, err
}

// CancelOrder cancels a pending order and returns its stock.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	now := s.now()
	order, movements, err := s.store.CancelOrder(ctx, userID, orderID, now)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, NotFound("order not found")
	case errors.Is(err, store.ErrInvalidState):
		return nil, BusinessRule("only pending orders can be cancelled")
	case err != nil:
		return nil, err
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled", zap.String("order_id", orderID))

	if reason == "" {
		reason = "cancelled by customer"
	}
	event := &models.OrderCancelledEvent{
		BaseEvent: baseEvent(models.EventTypeOrderCancelled, now),
		OrderID:   order.ID,
		UserID:    order.UserID,
		Reason:    reason,
	}
	if err := s.eventPublisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
	publishStockChanges(ctx, s.eventPublisher, s.logger, stockChangedEvents(movements, ReasonOrderCancelled, now))

	return order, nil
}

// AdvanceOrder moves an order to status, which must be the next step of
// the fulfilment path.
func (s *OrderService) AdvanceOrder(ctx context.Context, orderID, status string) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("order not found")
	}
	if err != nil {
		return nil, err
	}

	if next, ok := nextOrderStatus[order.Status]; !ok || next != status {
		return nil, BusinessRule("cannot move order from %s to %s", order.Status, status)
	}

	if err := s.store.UpdateOrderStatus(ctx, order.ID, order.Status, status, s.now()); err != nil {
		if errors.Is(err, store.ErrInvalidState) {
			return nil, Conflict("order status changed concurrently")
		}
		return nil, err
	}

	s.logger.Info("Order status updated",
		zap.String("order_id", order.ID),
		zap.String("from", order.Status),
		zap.String("to", status))
	return s.store.GetOrderByID(ctx, order.ID)
}
