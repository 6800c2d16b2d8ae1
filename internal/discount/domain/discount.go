package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by repositories when no instrument matches.
var ErrNotFound = errors.New("discount instrument not found")

type CouponKind string

const (
	KindPercent CouponKind = "percent"
	KindFixed   CouponKind = "fixed"
)

// Coupon codes are case-insensitive; NormalizeCode is applied before any
// lookup or redemption.
type Coupon struct {
	Code       string
	Kind       CouponKind
	Value      int64 // percent (0-100) or fixed minor units
	UsageCount int
	UsageLimit int
}

func (c Coupon) Exhausted() bool {
	return c.UsageCount >= c.UsageLimit
}

// DiscountCents computes the discount against a subtotal, capped at the
// subtotal so an over-sized fixed coupon never produces a negative total.
func (c Coupon) DiscountCents(subtotalCents int64) int64 {
	var d int64
	switch c.Kind {
	case KindPercent:
		d = subtotalCents * c.Value / 100
	case KindFixed:
		d = c.Value
	}
	if d > subtotalCents {
		d = subtotalCents
	}
	if d < 0 {
		d = 0
	}
	return d
}

type GiftCard struct {
	Code         string
	BalanceCents int64
	Active       bool
	ExpiresAt    *time.Time
}

func (g GiftCard) Usable(now time.Time) bool {
	if !g.Active || g.BalanceCents <= 0 {
		return false
	}
	if g.ExpiresAt != nil && !now.Before(*g.ExpiresAt) {
		return false
	}
	return true
}

// ApplicableCents is the amount this card can cover on a given remainder.
func (g GiftCard) ApplicableCents(remainderCents int64) int64 {
	if g.BalanceCents < remainderCents {
		return g.BalanceCents
	}
	return remainderCents
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
