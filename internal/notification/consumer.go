package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/merchflow/checkout-service/internal/order/domain"
	"github.com/merchflow/checkout-service/pkg/idempotency"
	"github.com/merchflow/checkout-service/pkg/tracing"
)

// Consumer turns order milestone events into sink notifications. Sink
// failures are logged and the message committed anyway: notification
// delivery never blocks or replays the workflow.
type Consumer struct {
	log    *slog.Logger
	reader *kafka.Reader
	sink   *Sink
	idem   *idempotency.Store
	tracer trace.Tracer
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, sink *Sink, idem *idempotency.Store) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return &Consumer{
		log:    log,
		reader: r,
		sink:   sink,
		idem:   idem,
		tracer: otel.Tracer("notification-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		key := c.idem.MessageKey(msg.Topic, msg.Partition, msg.Offset)
		seen, err := c.idem.Seen(ctx, key)
		if err != nil {
			c.log.Error("idempotency check failed", "err", err)
			continue
		}
		if seen {
			c.log.Info("duplicate message skipped", "key", key)
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
		msgCtx, span := c.tracer.Start(msgCtx, "ConsumeOrderEvent")

		eventType := headerValue(msg.Headers, "event_type")
		n, err := buildNotification(eventType, msg.Value)
		if err != nil {
			c.log.Error("event skipped", "event_type", eventType, "err", err)
		} else if n.To == "" {
			// Guest checkout milestones with no contact reference.
			c.log.Debug("no recipient, skipped", "event_type", eventType)
		} else if err := c.sink.Notify(msgCtx, n); err != nil {
			c.log.Error("notification dispatch failed", "event_type", eventType, "err", err)
		} else {
			c.log.Info("notification dispatched", "event_type", eventType, "to", n.To)
		}
		span.End()
		_ = c.reader.CommitMessages(ctx, msg)
	}
}

func buildNotification(eventType string, payload []byte) (Notification, error) {
	switch eventType {
	case domain.EventOrderPlaced:
		var e domain.OrderPlaced
		if err := json.Unmarshal(payload, &e); err != nil {
			return Notification{}, err
		}
		return Notification{
			Type:    "order_placed",
			To:      e.Customer,
			Subject: "We received your order",
			Data:    map[string]any{"order_id": e.OrderID, "total_cents": e.TotalCents, "currency": e.Currency},
		}, nil
	case domain.EventOrderPaid:
		var e domain.OrderPaid
		if err := json.Unmarshal(payload, &e); err != nil {
			return Notification{}, err
		}
		return Notification{
			Type:    "order_paid",
			To:      e.Customer,
			Subject: "Payment confirmed",
			Data:    map[string]any{"order_id": e.OrderID},
		}, nil
	case domain.EventPaymentFailed:
		var e domain.PaymentFailed
		if err := json.Unmarshal(payload, &e); err != nil {
			return Notification{}, err
		}
		return Notification{
			Type:    "payment_failed",
			To:      e.Customer,
			Subject: "Your payment did not go through",
			Data:    map[string]any{"order_id": e.OrderID, "reason": e.Reason},
		}, nil
	case domain.EventOrderExpired:
		var e domain.OrderExpired
		if err := json.Unmarshal(payload, &e); err != nil {
			return Notification{}, err
		}
		return Notification{
			Type:    "order_expired",
			To:      e.Customer,
			Subject: "Your order expired",
			Data:    map[string]any{"order_id": e.OrderID},
		}, nil
	case domain.EventOrderRefunded:
		var e domain.OrderRefunded
		if err := json.Unmarshal(payload, &e); err != nil {
			return Notification{}, err
		}
		return Notification{
			Type:    "order_refunded",
			To:      e.Customer,
			Subject: "Your refund is on its way",
			Data:    map[string]any{"order_id": e.OrderID, "amount_cents": e.AmountCents, "currency": e.Currency},
		}, nil
	default:
		return Notification{}, fmt.Errorf("unknown event type %q", eventType)
	}
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
