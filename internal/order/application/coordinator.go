package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	discount "github.com/merchflow/checkout-service/internal/discount/domain"
	"github.com/merchflow/checkout-service/internal/order/domain"
)

// Coordinator drives an order from checkout intent to a terminal payment
// state. Every step that debits shared state pushes its inverse onto a
// compensation stack; any later failure unwinds the stack in reverse
// before the error is surfaced, so no debit is ever stranded.
type Coordinator struct {
	log       *slog.Logger
	orders    OrderRepository
	discounts DiscountRepository
	gateway   PaymentGateway
	convert   CurrencyConverter

	successURL string
	cancelURL  string

	newID func() string
	now   func() time.Time
}

func NewCoordinator(log *slog.Logger, orders OrderRepository, discounts DiscountRepository,
	gw PaymentGateway, convert CurrencyConverter, successURL, cancelURL string) *Coordinator {
	return &Coordinator{
		log:        log,
		orders:     orders,
		discounts:  discounts,
		gateway:    gw,
		convert:    convert,
		successURL: successURL,
		cancelURL:  cancelURL,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

type PlaceOrderInput struct {
	Customer        string
	Currency        string
	Items           []domain.Item
	ShippingCents   int64
	DeliveryType    domain.DeliveryType
	ShippingAddress domain.Address
	BillingAddress  domain.Address
	CouponCode      string
	GiftCardCode    string
	Headers         map[string]string
	Traceparent     string
}

type PlaceOrderResult struct {
	OrderID      string
	TotalCents   int64
	RedirectURL  string
	FullyCovered bool
}

type compensation struct {
	name string
	undo func(ctx context.Context) error
}

func (c *Coordinator) PlaceOrder(ctx context.Context, in PlaceOrderInput) (PlaceOrderResult, error) {
	if err := validateInput(in); err != nil {
		return PlaceOrderResult{}, err
	}

	var subtotal int64
	for _, item := range in.Items {
		subtotal += item.SubtotalCents()
	}

	// Read instruments up front so validation errors reject before the
	// order row exists. The reads fix the amounts; the later conditional
	// writes re-check every predicate, so a race loses cleanly.
	var discountCents int64
	if in.CouponCode != "" {
		coupon, err := c.discounts.GetCoupon(ctx, in.CouponCode)
		if errors.Is(err, discount.ErrNotFound) {
			return PlaceOrderResult{}, ErrCouponInvalid
		}
		if err != nil {
			return PlaceOrderResult{}, err
		}
		if coupon.Exhausted() {
			return PlaceOrderResult{}, ErrCouponExhausted
		}
		discountCents = coupon.DiscountCents(subtotal)
	}

	o := domain.NewOrder(c.newID(), in.Customer, in.Currency, in.Items,
		in.ShippingCents, discountCents, in.DeliveryType, in.ShippingAddress, in.BillingAddress)
	o.CouponCode = discount.NormalizeCode(in.CouponCode)

	var giftDebit int64
	if in.GiftCardCode != "" {
		card, err := c.discounts.GetGiftCard(ctx, in.GiftCardCode)
		if errors.Is(err, discount.ErrNotFound) {
			return PlaceOrderResult{}, ErrGiftCardInvalid
		}
		if err != nil {
			return PlaceOrderResult{}, err
		}
		if !card.Usable(c.now().UTC()) {
			return PlaceOrderResult{}, ErrGiftCardInvalid
		}
		giftDebit = card.ApplicableCents(o.TotalCents)
		o.GiftCardCode = discount.NormalizeCode(in.GiftCardCode)
		o.GiftCardDebit = giftDebit
	}

	placed, err := json.Marshal(domain.OrderPlaced{
		OrderID:    o.ID,
		Customer:   o.Customer,
		TotalCents: o.TotalCents,
		Currency:   o.Currency,
	})
	if err != nil {
		return PlaceOrderResult{}, err
	}

	// Step 1: order + items + placed event, one transaction. Safe to
	// retry wholesale; nothing external has happened yet.
	if err := c.orders.CreateWithOutbox(ctx, o, domain.EventOrderPlaced, placed, in.Headers, in.Traceparent); err != nil {
		return PlaceOrderResult{}, fmt.Errorf("persist order: %w", err)
	}

	var comps []compensation

	// Step 2: coupon usage counter, conditional on remaining capacity.
	if o.CouponCode != "" {
		ok, err := c.discounts.RedeemCoupon(ctx, o.CouponCode)
		if err != nil {
			return PlaceOrderResult{}, c.abort(ctx, o, comps, fmt.Errorf("redeem coupon: %w", err))
		}
		if !ok {
			return PlaceOrderResult{}, c.abort(ctx, o, comps, ErrCouponExhausted)
		}
		code := o.CouponCode
		comps = append(comps, compensation{"release coupon", func(ctx context.Context) error {
			return c.discounts.ReleaseCoupon(ctx, code)
		}})
	}

	// Step 3: gift card debit, conditional on balance and validity.
	if giftDebit > 0 {
		ok, err := c.discounts.DebitGiftCard(ctx, o.GiftCardCode, giftDebit)
		if err != nil {
			return PlaceOrderResult{}, c.abort(ctx, o, comps, fmt.Errorf("debit gift card: %w", err))
		}
		if !ok {
			return PlaceOrderResult{}, c.abort(ctx, o, comps, ErrGiftCardRejected)
		}
		code, amount := o.GiftCardCode, giftDebit
		comps = append(comps, compensation{"credit gift card", func(ctx context.Context) error {
			return c.discounts.CreditGiftCard(ctx, code, amount)
		}})
	}

	// Fully covered by instruments: terminal state, gateway never sees
	// this order.
	remaining := o.TotalCents - giftDebit
	if remaining <= 0 {
		won, err := c.markPaid(ctx, o, domain.MethodInstrument, in.Headers, in.Traceparent)
		if err != nil && !won {
			return PlaceOrderResult{}, c.abort(ctx, o, comps, err)
		}
		if err != nil {
			// The paid transition already won: the debits bought a paid
			// order and must stay spent. Only the bookkeeping after the
			// transition failed.
			c.log.Error("order paid but post-payment bookkeeping failed", "order_id", o.ID, "err", err)
			return PlaceOrderResult{}, err
		}
		return PlaceOrderResult{OrderID: o.ID, TotalCents: o.TotalCents, FullyCovered: true}, nil
	}

	// Step 4: payment intent. The idempotency key is derived from the
	// order id, so a retried call cannot create a second intent.
	intent, err := c.gateway.CreateIntent(ctx, IntentRequest{
		AmountMinor:    c.convert.ToGatewayMinor(remaining, o.Currency),
		Currency:       c.convert.GatewayCurrency,
		SuccessURL:     c.successURL,
		CancelURL:      c.cancelURL,
		IdempotencyKey: "order-" + o.ID,
	})
	if err != nil {
		return PlaceOrderResult{}, c.abort(ctx, o, comps, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err))
	}

	// Step 5: persist the correlation id before the caller redirects.
	if err := c.orders.SetPaymentIntent(ctx, o.ID, intent.IntentID); err != nil {
		return PlaceOrderResult{}, c.abort(ctx, o, comps, fmt.Errorf("persist intent id: %w", err))
	}

	c.log.Info("order placed", "order_id", o.ID, "total_cents", o.TotalCents,
		"gift_card_debit_cents", giftDebit, "intent_id", intent.IntentID)
	return PlaceOrderResult{
		OrderID:     o.ID,
		TotalCents:  o.TotalCents,
		RedirectURL: intent.RedirectURL,
	}, nil
}

func (c *Coordinator) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return c.orders.Get(ctx, id)
}

// abort unwinds compensations in reverse and parks the order in a
// cancelled/failed terminal state. The original error is returned; undo
// failures are logged, not swallowed into the caller's error.
func (c *Coordinator) abort(ctx context.Context, o domain.Order, comps []compensation, cause error) error {
	for i := len(comps) - 1; i >= 0; i-- {
		if err := comps[i].undo(ctx); err != nil {
			c.log.Error("compensation failed", "order_id", o.ID, "step", comps[i].name, "err", err)
		}
	}
	if _, err := c.orders.TransitionPayment(ctx, o.ID, domain.PaymentStatusPending, domain.PaymentStatusFailed); err != nil {
		c.log.Error("abort transition failed", "order_id", o.ID, "err", err)
	}
	if err := c.orders.SetStatus(ctx, o.ID, domain.StatusCancelled); err != nil {
		c.log.Error("abort cancel failed", "order_id", o.ID, "err", err)
	}
	c.log.Warn("order aborted", "order_id", o.ID, "cause", cause)
	return cause
}

// markPaid applies the pending-to-paid transition and the bookkeeping
// behind it. The returned bool reports whether this call won the
// transition; once it is true the order's debits are spent for good and
// callers must not compensate, whatever the error.
func (c *Coordinator) markPaid(ctx context.Context, o domain.Order, method string, headers map[string]string, traceparent string) (bool, error) {
	won, err := c.orders.TransitionPayment(ctx, o.ID, domain.PaymentStatusPending, domain.PaymentStatusPaid)
	if err != nil || !won {
		return false, err
	}
	if err := c.orders.SetPaymentMethod(ctx, o.ID, method); err != nil {
		return true, err
	}
	if err := c.orders.SetStatus(ctx, o.ID, domain.StatusProcessing); err != nil {
		return true, err
	}
	paid, err := json.Marshal(domain.OrderPaid{
		OrderID:    o.ID,
		Customer:   o.Customer,
		TotalCents: o.TotalCents,
		Currency:   o.Currency,
	})
	if err != nil {
		return true, err
	}
	return true, c.orders.AppendEvent(ctx, o.ID, domain.EventOrderPaid, paid, headers, traceparent)
}

func validateInput(in PlaceOrderInput) error {
	if len(in.Items) == 0 {
		return ErrEmptyCart
	}
	if in.Currency == "" || in.ShippingCents < 0 {
		return ErrInvalidItem
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 || item.UnitPriceCents < 0 || item.ProductID == "" {
			return ErrInvalidItem
		}
	}
	return nil
}
