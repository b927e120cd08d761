package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"farm-market/internal/models"
	"farm-market/internal/store"
	"farm-market/internal/util"

	"go.uber.org/zap"
)

// NotificationService emails customers and farmers about their orders.
type NotificationService struct {
	store  *store.Store
	mailer Mailer
	logger *zap.Logger
	now    Clock
}

func NewNotificationService(store *store.Store, mailer Mailer) *NotificationService {
	return &NotificationService{
		store:  store,
		mailer: mailer,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// claim records the event and reports whether this delivery is the first.
func (s *NotificationService) claim(ctx context.Context, event models.BaseEvent) (bool, error) {
	fresh, err := s.store.MarkEventProcessed(ctx, event.EventID, event.EventType, s.now())
	if err != nil {
		return false, err
	}
	if !fresh {
		s.logger.Info("Event already processed, skipping", zap.String("event_id", event.EventID))
	}
	return fresh, nil
}

func (s *NotificationService) emailOf(ctx context.Context, userID string) (string, bool, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return user.Email, true, nil
}

// HandleOrderPlaced confirms the order to the customer and tells each
// farmer what was sold.
func (s *NotificationService) HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	ctx, span := util.StartSpan(ctx, "NotificationService.HandleOrderPlaced")
	defer span.End()

	fresh, err := s.claim(ctx, event.BaseEvent)
	if err != nil || !fresh {
		return err
	}

	if email, ok, err := s.emailOf(ctx, event.UserID); err != nil {
		return err
	} else if ok {
		body := fmt.Sprintf("Your order %s for %s has been placed.", event.OrderID, event.TotalAmount.StringFixed(2))
		s.send(ctx, email, "Order confirmation", body)
	}

	units := map[string]int{}
	for _, item := range event.Items {
		units[item.FarmerID] += item.Quantity
	}
	for farmerID, qty := range units {
		farmer, err := s.store.GetFarmerByID(ctx, farmerID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		email, ok, err := s.emailOf(ctx, farmer.UserID)
		if err != nil {
			return err
		}
		if ok {
			s.send(ctx, email, "New order received",
				fmt.Sprintf("Order %s includes %d unit(s) of your products.", event.OrderID, qty))
		}
	}
	return nil
}

// HandleOrderCancelled tells the customer the order was cancelled.
func (s *NotificationService) HandleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	fresh, err := s.claim(ctx, event.BaseEvent)
	if err != nil || !fresh {
		return err
	}
	email, ok, err := s.emailOf(ctx, event.UserID)
	if err != nil || !ok {
		return err
	}
	s.send(ctx, email, "Order cancelled",
		fmt.Sprintf("Your order %s has been cancelled: %s.", event.OrderID, event.Reason))
	return nil
}

// send logs delivery failures. The event is already claimed, so a retry
// would not resend.
func (s *NotificationService) send(ctx context.Context, to, subject, body string) {
	if err := s.mailer.SendOrderNotification(ctx, to, subject, body); err != nil {
		s.logger.Error("Failed to send order notification",
			zap.String("to", to),
			zap.Error(err))
	}
}
