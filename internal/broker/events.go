package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"jajanin-relay/internal/models"
	"jajanin-relay/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing payment events
type EventPublisher struct {
	lifecycle     *Producer
	notifications *Producer
}

// NewEventPublisher creates a publisher. notifications may be nil when push
// confirmations are applied in-process.
func NewEventPublisher(lifecycle, notifications *Producer) *EventPublisher {
	return &EventPublisher{lifecycle: lifecycle, notifications: notifications}
}

// PublishLifecycle publishes a session opening or status change
func (ep *EventPublisher) PublishLifecycle(ctx context.Context, event models.PaymentLifecycleEvent) error {
	return ep.lifecycle.PublishEvent(ctx, "order-"+event.OrderID, event.EventType, event)
}

// PublishNotification hands a push confirmation to the confirmation workers
func (ep *EventPublisher) PublishNotification(ctx context.Context, event *models.PaymentNotificationEvent) error {
	if ep.notifications == nil {
		return fmt.Errorf("notification topic not configured")
	}
	return ep.notifications.PublishEvent(ctx, "order-"+event.OrderID, event.EventType, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onPaymentNotification func(context.Context, *models.PaymentNotificationEvent) error
	logger                *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.ComponentLogger("broker")}
}

// OnPaymentNotification registers a handler for push confirmations
func (eh *EventHandler) OnPaymentNotification(handler func(context.Context, *models.PaymentNotificationEvent) error) {
	eh.onPaymentNotification = handler
}

// HandleMessage routes messages to appropriate handlers. Undecodable messages are
// dropped so they cannot block the partition.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		util.NotificationsProcessedTotal.WithLabelValues("malformed").Inc()
		eh.logger.Warn("Dropping undecodable message", zap.String("key", string(msg.Key)), zap.Error(err))
		return nil
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypePaymentNotified:
		if eh.onPaymentNotification != nil {
			var event models.PaymentNotificationEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil || event.OrderID == "" {
				util.NotificationsProcessedTotal.WithLabelValues("malformed").Inc()
				eh.logger.Warn("Dropping malformed payment notification", zap.Error(err))
				return nil
			}
			return eh.onPaymentNotification(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
