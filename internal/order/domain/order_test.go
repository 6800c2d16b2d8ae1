package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewOrderTotals(t *testing.T) {
	items := []Item{
		{ProductID: "mug", Quantity: 2, UnitPriceCents: 1200},
		{ProductID: "tee", Quantity: 1, UnitPriceCents: 2500},
	}
	o := NewOrder("o1", "ada@example.com", "USD", items, 500, 900, DeliveryShipping, Address{}, Address{})

	assert.Equal(t, int64(4900), o.SubtotalCents)
	assert.Equal(t, int64(4500), o.TotalCents, "subtotal + shipping - discount")
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentStatusPending, o.PaymentStatus)
}

func TestNewOrderTotalNeverNegative(t *testing.T) {
	items := []Item{{ProductID: "sticker", Quantity: 1, UnitPriceCents: 100}}
	o := NewOrder("o2", "", "USD", items, 0, 10_000, DeliveryPickup, Address{}, Address{})
	assert.Equal(t, int64(0), o.TotalCents)
}

func TestItemSubtotal(t *testing.T) {
	item := Item{ProductID: "poster", Quantity: 3, UnitPriceCents: 750}
	assert.Equal(t, int64(2250), item.SubtotalCents())
}
