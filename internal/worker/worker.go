package worker

import (
	"context"

	"farm-market/internal/broker"
	"farm-market/internal/service"
	"farm-market/internal/util"

	"go.uber.org/zap"
)

// Source delivers messages to a handler until ctx is done. *broker.Consumer
// implements it.
type Source interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// StockAlertWorker turns StockChanged events into farmer alerts
type StockAlertWorker struct {
	source       Source
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewStockAlertWorker creates a new stock alert worker
func NewStockAlertWorker(source Source, alerts *service.AlertService) *StockAlertWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnStockChanged(alerts.HandleStockChanged)

	return &StockAlertWorker{
		source:       source,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start consumes until ctx is cancelled
func (w *StockAlertWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock alert worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockAlertWorker) Stop() error {
	w.logger.Info("Stopping stock alert worker")
	return w.source.Close()
}

// OrderNotificationWorker emails customers and farmers about order events
type OrderNotificationWorker struct {
	source       Source
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewOrderNotificationWorker creates a new order notification worker
func NewOrderNotificationWorker(source Source, notifications *service.NotificationService) *OrderNotificationWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPlaced(notifications.HandleOrderPlaced)
	eventHandler.OnOrderCancelled(notifications.HandleOrderCancelled)

	return &OrderNotificationWorker{
		source:       source,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start consumes until ctx is cancelled
func (w *OrderNotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order notification worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *OrderNotificationWorker) Stop() error {
	w.logger.Info("Stopping order notification worker")
	return w.source.Close()
}
