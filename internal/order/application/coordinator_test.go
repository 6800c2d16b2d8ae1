package application

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	discount "github.com/merchflow/checkout-service/internal/discount/domain"
	"github.com/merchflow/checkout-service/internal/order/domain"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeOrderRepo, *fakeDiscountRepo, *fakeGateway) {
	t.Helper()
	orders := newFakeOrderRepo()
	discounts := newFakeDiscountRepo()
	gw := &fakeGateway{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewCoordinator(log, orders, discounts, gw,
		CurrencyConverter{GatewayCurrency: "USD", Rate: 1},
		"https://shop.example/success", "https://shop.example/cancel")
	return c, orders, discounts, gw
}

func cartInput() PlaceOrderInput {
	return PlaceOrderInput{
		Customer: "ada@example.com",
		Currency: "USD",
		Items: []domain.Item{
			{ProductID: "tee-45", Name: "Custom Tee", Quantity: 3, UnitPriceCents: 1500},
		},
		DeliveryType:    domain.DeliveryShipping,
		ShippingAddress: domain.Address{Name: "Ada", Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		BillingAddress:  domain.Address{Name: "Ada", Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	c, orders, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.PlaceOrder(ctx, PlaceOrderInput{Currency: "USD"})
	assert.ErrorIs(t, err, ErrEmptyCart)

	in := cartInput()
	in.Items[0].Quantity = 0
	_, err = c.PlaceOrder(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidItem)

	assert.Empty(t, orders.orders, "no side effects before validation passes")
}

func TestPlaceOrderGiftCardAndGateway(t *testing.T) {
	c, orders, discounts, gw := newTestCoordinator(t)
	ctx := context.Background()
	discounts.cards["GIFT20"] = &discount.GiftCard{Code: "GIFT20", BalanceCents: 2000, Active: true}

	in := cartInput()
	in.GiftCardCode = "gift20"
	res, err := c.PlaceOrder(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, int64(4500), res.TotalCents)
	assert.False(t, res.FullyCovered)
	assert.NotEmpty(t, res.RedirectURL)

	// Card fully consumed, gateway only asked for the remainder.
	assert.Equal(t, int64(0), discounts.cards["GIFT20"].BalanceCents)
	require.Len(t, gw.intents, 1)
	assert.Equal(t, int64(2500), gw.intents[0].AmountMinor)
	assert.Equal(t, "order-"+res.OrderID, gw.intents[0].IdempotencyKey)

	o, err := orders.Get(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, o.PaymentStatus)
	assert.Equal(t, "pi_1", o.PaymentIntentID)
	assert.Equal(t, int64(2000), o.GiftCardDebit)
	assert.Equal(t, 1, orders.countEvents(domain.EventOrderPlaced))
}

func TestPlaceOrderFullyCoveredSkipsGateway(t *testing.T) {
	c, orders, discounts, gw := newTestCoordinator(t)
	ctx := context.Background()
	discounts.cards["BIG"] = &discount.GiftCard{Code: "BIG", BalanceCents: 10_000, Active: true}

	in := cartInput()
	in.GiftCardCode = "BIG"
	res, err := c.PlaceOrder(ctx, in)
	require.NoError(t, err)

	assert.True(t, res.FullyCovered)
	assert.Empty(t, res.RedirectURL)
	assert.Empty(t, gw.intents)
	assert.Equal(t, int64(5500), discounts.cards["BIG"].BalanceCents)

	o, _ := orders.Get(ctx, res.OrderID)
	assert.Equal(t, domain.PaymentStatusPaid, o.PaymentStatus)
	assert.Equal(t, domain.MethodInstrument, o.PaymentMethod)
	assert.Equal(t, 1, orders.countEvents(domain.EventOrderPaid))
}

func TestPlaceOrderCouponDiscount(t *testing.T) {
	c, orders, discounts, gw := newTestCoordinator(t)
	ctx := context.Background()
	discounts.coupons["SAVE10"] = &discount.Coupon{Code: "SAVE10", Kind: discount.KindPercent, Value: 10, UsageLimit: 5}

	in := cartInput()
	in.CouponCode = "save10"
	res, err := c.PlaceOrder(ctx, in)
	require.NoError(t, err)

	// 4500 - 10% = 4050 total, charged in full at the gateway.
	assert.Equal(t, int64(4050), res.TotalCents)
	require.Len(t, gw.intents, 1)
	assert.Equal(t, int64(4050), gw.intents[0].AmountMinor)
	assert.Equal(t, 1, discounts.coupons["SAVE10"].UsageCount)

	o, _ := orders.Get(ctx, res.OrderID)
	assert.Equal(t, int64(450), o.DiscountCents)
}

func TestPlaceOrderCouponExhaustedBeforeOrder(t *testing.T) {
	c, orders, discounts, _ := newTestCoordinator(t)
	ctx := context.Background()
	discounts.coupons["GONE"] = &discount.Coupon{Code: "GONE", Kind: discount.KindFixed, Value: 500, UsageCount: 3, UsageLimit: 3}

	in := cartInput()
	in.CouponCode = "GONE"
	_, err := c.PlaceOrder(ctx, in)
	assert.ErrorIs(t, err, ErrCouponExhausted)
	assert.Empty(t, orders.orders, "rejected before the order row exists")
}

func TestPlaceOrderCouponRaceLost(t *testing.T) {
	c, orders, discounts, _ := newTestCoordinator(t)
	ctx := context.Background()
	discounts.coupons["LAST"] = &discount.Coupon{Code: "LAST", Kind: discount.KindFixed, Value: 500, UsageCount: 0, UsageLimit: 1}
	// Another checkout takes the final use between our read and write.
	discounts.redeemDenied = true

	in := cartInput()
	in.CouponCode = "LAST"
	_, err := c.PlaceOrder(ctx, in)
	assert.ErrorIs(t, err, ErrCouponExhausted)

	require.Len(t, orders.orders, 1)
	for _, o := range orders.orders {
		assert.Equal(t, domain.StatusCancelled, o.Status)
		assert.Equal(t, domain.PaymentStatusFailed, o.PaymentStatus)
	}
}

func TestPlaceOrderGatewayFailureCompensates(t *testing.T) {
	c, orders, discounts, gw := newTestCoordinator(t)
	ctx := context.Background()
	discounts.coupons["SAVE10"] = &discount.Coupon{Code: "SAVE10", Kind: discount.KindPercent, Value: 10, UsageLimit: 5}
	discounts.cards["GIFT20"] = &discount.GiftCard{Code: "GIFT20", BalanceCents: 2000, Active: true}
	gw.failIntent = true

	in := cartInput()
	in.CouponCode = "SAVE10"
	in.GiftCardCode = "GIFT20"
	_, err := c.PlaceOrder(ctx, in)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	// Both debits handed back, order parked in a terminal state.
	assert.Equal(t, 0, discounts.coupons["SAVE10"].UsageCount)
	assert.Equal(t, int64(2000), discounts.cards["GIFT20"].BalanceCents)
	for _, o := range orders.orders {
		assert.Equal(t, domain.StatusCancelled, o.Status)
		assert.Equal(t, domain.PaymentStatusFailed, o.PaymentStatus)
	}
}

func TestPlaceOrderIntentPersistFailureCompensates(t *testing.T) {
	c, _, discounts, _ := newTestCoordinator(t)
	ctx := context.Background()
	discounts.cards["GIFT20"] = &discount.GiftCard{Code: "GIFT20", BalanceCents: 2000, Active: true}
	c.orders.(*fakeOrderRepo).failSetIntent = true

	in := cartInput()
	in.GiftCardCode = "GIFT20"
	_, err := c.PlaceOrder(ctx, in)
	require.Error(t, err)
	assert.Equal(t, int64(2000), discounts.cards["GIFT20"].BalanceCents)
}

func TestPlaceOrderExpiredGiftCardRejected(t *testing.T) {
	c, orders, discounts, _ := newTestCoordinator(t)
	ctx := context.Background()
	past := c.now().UTC().Add(-24 * time.Hour)
	discounts.cards["OLD"] = &discount.GiftCard{Code: "OLD", BalanceCents: 2000, Active: true, ExpiresAt: &past}

	in := cartInput()
	in.GiftCardCode = "OLD"
	_, err := c.PlaceOrder(ctx, in)
	assert.ErrorIs(t, err, ErrGiftCardInvalid)
	assert.Empty(t, orders.orders)
	assert.Equal(t, int64(2000), discounts.cards["OLD"].BalanceCents)
}

func TestPriceSnapshotImmutable(t *testing.T) {
	c, orders, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	in := cartInput()
	res, err := c.PlaceOrder(ctx, in)
	require.NoError(t, err)

	// A later catalog price change must not touch the placed order.
	in.Items[0].UnitPriceCents = 9999

	o, err := orders.Get(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), o.Items[0].UnitPriceCents)
	assert.Equal(t, int64(4500), o.TotalCents)
}

func TestPlaceOrderKeepsDebitsOnceTransitionWon(t *testing.T) {
	c, orders, discounts, _ := newTestCoordinator(t)
	ctx := context.Background()
	discounts.cards["BIG"] = &discount.GiftCard{Code: "BIG", BalanceCents: 10_000, Active: true}
	discounts.coupons["SAVE10"] = &discount.Coupon{Code: "SAVE10", Kind: discount.KindPercent, Value: 10, UsageLimit: 5}
	orders.failAppendEvent = true

	in := cartInput()
	in.GiftCardCode = "BIG"
	in.CouponCode = "SAVE10"
	_, err := c.PlaceOrder(ctx, in)
	require.Error(t, err)

	// The paid transition won before the event write failed: the order
	// stays paid and its debits stay spent. Total 4500 - 450 discount.
	var orderID string
	for id := range orders.orders {
		orderID = id
	}
	o, getErr := orders.Get(ctx, orderID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.PaymentStatusPaid, o.PaymentStatus)
	assert.Equal(t, int64(10_000-4050), discounts.cards["BIG"].BalanceCents, "debit must not be reversed")
	assert.Equal(t, 1, discounts.coupons["SAVE10"].UsageCount, "coupon use must not be released")
	assert.NotEqual(t, domain.StatusCancelled, o.Status)
}
