package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/merchflow/checkout-service/internal/order/domain"
)

// Gateway statuses as they appear on webhook payloads.
const (
	GatewaySucceeded = "succeeded"
	GatewayFailed    = "failed"
	GatewayCancelled = "cancelled"
	GatewayPending   = "pending"
)

// Reconcile updates local order state to match the gateway's view of an
// intent. Gateways redeliver; the whole operation is idempotent: the
// payment transition is guarded on the pending state, and debit
// reversal only runs when this call won the transition.
func (c *Coordinator) Reconcile(ctx context.Context, intentID, gatewayStatus string) error {
	o, err := c.orders.GetByIntentID(ctx, intentID)
	if errors.Is(err, domain.ErrNotFound) {
		c.log.Warn("webhook for unknown intent dropped", "intent_id", intentID, "status", gatewayStatus)
		return nil
	}
	if err != nil {
		return err
	}

	switch gatewayStatus {
	case GatewaySucceeded:
		_, err := c.markPaid(ctx, o, domain.MethodGateway, nil, "")
		return err

	case GatewayFailed, GatewayCancelled:
		won, err := c.orders.TransitionPayment(ctx, o.ID, domain.PaymentStatusPending, domain.PaymentStatusFailed)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		// The customer never paid: hand the instruments back.
		c.reverseDebits(ctx, o)
		if err := c.orders.SetStatus(ctx, o.ID, domain.StatusCancelled); err != nil {
			return err
		}
		failed, err := json.Marshal(domain.PaymentFailed{
			OrderID:  o.ID,
			Customer: o.Customer,
			Reason:   gatewayStatus,
		})
		if err != nil {
			return err
		}
		if err := c.orders.AppendEvent(ctx, o.ID, domain.EventPaymentFailed, failed, nil, ""); err != nil {
			return err
		}
		c.log.Info("payment failed, debits reversed", "order_id", o.ID, "gateway_status", gatewayStatus)
		return nil

	case GatewayPending:
		return nil

	default:
		return fmt.Errorf("unknown gateway status %q", gatewayStatus)
	}
}

// reverseDebits returns a coupon use and a gift-card debit recorded on
// the order. Failures are logged and left for operators: money reversal
// must never be silently dropped, and there is nothing further to roll
// back here.
func (c *Coordinator) reverseDebits(ctx context.Context, o domain.Order) {
	if o.CouponCode != "" {
		if err := c.discounts.ReleaseCoupon(ctx, o.CouponCode); err != nil {
			c.log.Error("coupon release failed", "order_id", o.ID, "code", o.CouponCode, "err", err)
		}
	}
	if o.GiftCardDebit > 0 {
		if err := c.discounts.CreditGiftCard(ctx, o.GiftCardCode, o.GiftCardDebit); err != nil {
			c.log.Error("gift card credit failed", "order_id", o.ID, "code", o.GiftCardCode, "err", err)
		}
	}
}
