package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchflow/checkout-service/internal/order/domain"
)

func placePaidOrder(t *testing.T, c *Coordinator) string {
	t.Helper()
	ctx := context.Background()
	res, err := c.PlaceOrder(ctx, cartInput())
	require.NoError(t, err)
	o, err := c.orders.Get(ctx, res.OrderID)
	require.NoError(t, err)
	require.NoError(t, c.Reconcile(ctx, o.PaymentIntentID, GatewaySucceeded))
	return res.OrderID
}

func TestIssueRefundPartialThenFull(t *testing.T) {
	c, orders, _, gw := newTestCoordinator(t)
	ctx := context.Background()
	orderID := placePaidOrder(t, c)

	ref, err := c.IssueRefund(ctx, orderID, 3000, "damaged item")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), ref.AmountCents)
	assert.Equal(t, domain.RefundSucceeded, ref.Status)
	require.Len(t, gw.refunds, 1)

	// Partial refund leaves the order paid.
	o, _ := orders.Get(ctx, orderID)
	assert.Equal(t, domain.PaymentStatusPaid, o.PaymentStatus)

	// Remaining 1500: exceeding it is rejected before the gateway sees it.
	_, err = c.IssueRefund(ctx, orderID, 2000, "too much")
	assert.ErrorIs(t, err, ErrRefundExceedsPaid)
	assert.Len(t, gw.refunds, 1)

	// Refunding exactly the remainder closes the order out.
	_, err = c.IssueRefund(ctx, orderID, 1500, "rest")
	require.NoError(t, err)
	o, _ = orders.Get(ctx, orderID)
	assert.Equal(t, domain.PaymentStatusRefunded, o.PaymentStatus)
	assert.Equal(t, 2, orders.countEvents(domain.EventOrderRefunded))
}

func TestIssueRefundPreconditions(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.IssueRefund(ctx, "missing", 100, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	res, err := c.PlaceOrder(ctx, cartInput())
	require.NoError(t, err)

	_, err = c.IssueRefund(ctx, res.OrderID, 100, "")
	assert.ErrorIs(t, err, ErrOrderNotPaid, "pending orders cannot be refunded")

	orderID := placePaidOrder(t, c)
	_, err = c.IssueRefund(ctx, orderID, 0, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = c.IssueRefund(ctx, orderID, -5, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestIssueRefundGatewayRejectionWritesNothing(t *testing.T) {
	c, orders, _, gw := newTestCoordinator(t)
	ctx := context.Background()
	orderID := placePaidOrder(t, c)
	gw.failRefund = true

	_, err := c.IssueRefund(ctx, orderID, 1000, "attempt")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Empty(t, orders.refunds, "no orphaned refund record")

	o, _ := orders.Get(ctx, orderID)
	assert.Equal(t, domain.PaymentStatusPaid, o.PaymentStatus)
}

func TestRefundSumNeverExceedsTotal(t *testing.T) {
	c, orders, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	orderID := placePaidOrder(t, c)

	amounts := []int64{2000, 2000, 2000}
	var granted int64
	for _, a := range amounts {
		if _, err := c.IssueRefund(ctx, orderID, a, "loop"); err == nil {
			granted += a
		}
	}
	sum, err := orders.SumRefunds(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, granted, sum)
	assert.LessOrEqual(t, sum, int64(4500))
}

func TestOrderRefundsHistory(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	orderID := placePaidOrder(t, c)

	_, err := c.IssueRefund(ctx, orderID, 1000, "damaged item")
	require.NoError(t, err)
	_, err = c.IssueRefund(ctx, orderID, 500, "late delivery")
	require.NoError(t, err)

	refs, err := c.OrderRefunds(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, int64(1000), refs[0].AmountCents)
	assert.Equal(t, "late delivery", refs[1].Reason)

	_, err = c.OrderRefunds(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
