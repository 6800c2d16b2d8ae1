package application

import "errors"

var (
	// Validation: rejected before any side effect.
	ErrEmptyCart     = errors.New("cart is empty")
	ErrInvalidItem   = errors.New("invalid cart item")
	ErrInvalidAmount = errors.New("invalid amount")

	// Conflict: the instrument exists but cannot serve this order.
	ErrCouponInvalid    = errors.New("coupon code is not valid")
	ErrCouponExhausted  = errors.New("coupon usage limit reached")
	ErrGiftCardInvalid  = errors.New("gift card is not valid")
	ErrGiftCardRejected = errors.New("gift card could not cover the order")

	// Refund preconditions.
	ErrOrderNotPaid      = errors.New("order is not paid")
	ErrRefundExceedsPaid = errors.New("refund exceeds remaining paid amount")
	ErrNoGatewayPayment  = errors.New("order has no gateway payment to refund against")

	// External dependency.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)
