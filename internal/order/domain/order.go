package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned by repositories when no order matches.
var ErrNotFound = errors.New("order not found")

type Status string

const (
	StatusPending        Status = "pending"
	StatusProcessing     Status = "processing"
	StatusShipped        Status = "shipped"
	StatusDelivered      Status = "delivered"
	StatusReadyForPickup Status = "ready_for_pickup"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type DeliveryType string

const (
	DeliveryShipping DeliveryType = "shipping"
	DeliveryPickup   DeliveryType = "pickup"
)

// PaymentMethod tags how an order was (or will be) paid.
const (
	MethodGateway    = "gateway"
	MethodInstrument = "instrument" // fully covered by coupon/gift card
)

// Address is snapshotted onto the order at placement and never follows
// later profile edits.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type Order struct {
	ID              string
	Customer        string // empty for guest checkout
	Currency        string
	SubtotalCents   int64
	ShippingCents   int64
	DiscountCents   int64
	TotalCents      int64
	Status          Status
	PaymentStatus   PaymentStatus
	PaymentMethod   string
	DeliveryType    DeliveryType
	ShippingAddress Address
	BillingAddress  Address
	Items           []Item
	CouponCode      string
	GiftCardCode    string
	GiftCardDebit   int64
	PaymentIntentID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Item captures the unit price at purchase time; later catalog price
// changes must not alter it.
type Item struct {
	ProductID      string
	Name           string
	Quantity       int
	UnitPriceCents int64
	Customization  map[string]string
}

func (i Item) SubtotalCents() int64 {
	return int64(i.Quantity) * i.UnitPriceCents
}

// NewOrder builds a pending order from a cart snapshot. TotalCents is
// fixed here: subtotal + shipping - discount. Callers validate first.
func NewOrder(id, customer, currency string, items []Item, shippingCents, discountCents int64,
	deliveryType DeliveryType, shipping, billing Address) Order {

	var subtotal int64
	for _, item := range items {
		subtotal += item.SubtotalCents()
	}
	total := subtotal + shippingCents - discountCents
	if total < 0 {
		total = 0
	}
	now := time.Now().UTC()
	return Order{
		ID:              id,
		Customer:        customer,
		Currency:        currency,
		SubtotalCents:   subtotal,
		ShippingCents:   shippingCents,
		DiscountCents:   discountCents,
		TotalCents:      total,
		Status:          StatusPending,
		PaymentStatus:   PaymentStatusPending,
		PaymentMethod:   MethodGateway,
		DeliveryType:    deliveryType,
		ShippingAddress: shipping,
		BillingAddress:  billing,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
