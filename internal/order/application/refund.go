package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/merchflow/checkout-service/internal/order/domain"
)

// IssueRefund creates a gateway-side refund and records it locally only
// after the gateway accepted it, so a local refund row always has a
// matching gateway refund. The sum of refunds never exceeds the paid
// total; a partial refund leaves the order paid, a full refund moves it
// to refunded.
func (c *Coordinator) IssueRefund(ctx context.Context, orderID string, amountCents int64, reason string) (domain.Refund, error) {
	if amountCents <= 0 {
		return domain.Refund{}, ErrInvalidAmount
	}

	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Refund{}, err
	}
	if o.PaymentStatus != domain.PaymentStatusPaid {
		return domain.Refund{}, ErrOrderNotPaid
	}

	refunded, err := c.orders.SumRefunds(ctx, orderID)
	if err != nil {
		return domain.Refund{}, err
	}
	remaining := o.TotalCents - refunded
	if amountCents > remaining {
		return domain.Refund{}, ErrRefundExceedsPaid
	}
	if o.PaymentIntentID == "" {
		return domain.Refund{}, ErrNoGatewayPayment
	}

	res, err := c.gateway.CreateRefund(ctx, o.PaymentIntentID,
		c.convert.ToGatewayMinor(amountCents, o.Currency), reason)
	if err != nil {
		return domain.Refund{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	ref := domain.Refund{
		ID:              c.newID(),
		OrderID:         o.ID,
		GatewayRefundID: res.RefundID,
		AmountCents:     amountCents,
		Currency:        o.Currency,
		Reason:          reason,
		Status:          mapRefundStatus(res.Status),
		CreatedAt:       c.now().UTC(),
	}
	if err := c.orders.InsertRefund(ctx, ref); err != nil {
		// Gateway refund exists but the record write failed; surface
		// loudly, the gateway id in the log is the recovery handle.
		c.log.Error("refund persisted at gateway but not locally",
			"order_id", o.ID, "gateway_refund_id", res.RefundID, "err", err)
		return domain.Refund{}, err
	}

	if amountCents == remaining {
		if _, err := c.orders.TransitionPayment(ctx, o.ID, domain.PaymentStatusPaid, domain.PaymentStatusRefunded); err != nil {
			return domain.Refund{}, err
		}
	}

	event, err := json.Marshal(domain.OrderRefunded{
		OrderID:     o.ID,
		Customer:    o.Customer,
		AmountCents: amountCents,
		Currency:    o.Currency,
	})
	if err != nil {
		return domain.Refund{}, err
	}
	if err := c.orders.AppendEvent(ctx, o.ID, domain.EventOrderRefunded, event, nil, ""); err != nil {
		return domain.Refund{}, err
	}

	c.log.Info("refund issued", "order_id", o.ID, "amount_cents", amountCents,
		"gateway_refund_id", res.RefundID)
	return ref, nil
}

// OrderRefunds returns an order's refund history, oldest first. The
// order must exist; an empty history is not an error.
func (c *Coordinator) OrderRefunds(ctx context.Context, orderID string) ([]domain.Refund, error) {
	if _, err := c.orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return c.orders.ListRefunds(ctx, orderID)
}

func mapRefundStatus(gatewayStatus string) domain.RefundStatus {
	switch gatewayStatus {
	case "succeeded":
		return domain.RefundSucceeded
	case "failed":
		return domain.RefundFailed
	default:
		return domain.RefundPending
	}
}
