package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	discount "github.com/merchflow/checkout-service/internal/discount/domain"
	"github.com/merchflow/checkout-service/internal/order/domain"
)

type fakeOrderRepo struct {
	orders  map[string]*domain.Order
	events  []string
	refunds []domain.Refund

	failCreate      bool
	failSetIntent   bool
	failAppendEvent bool
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[string]*domain.Order{}}
}

func (r *fakeOrderRepo) CreateWithOutbox(_ context.Context, o domain.Order, eventType string, _ []byte, _ map[string]string, _ string) error {
	if r.failCreate {
		return errors.New("create failed")
	}
	items := make([]domain.Item, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	r.orders[o.ID] = &o
	r.events = append(r.events, eventType)
	return nil
}

func (r *fakeOrderRepo) Get(_ context.Context, id string) (domain.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return *o, nil
}

func (r *fakeOrderRepo) GetByIntentID(_ context.Context, intentID string) (domain.Order, error) {
	for _, o := range r.orders {
		if o.PaymentIntentID == intentID {
			return *o, nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

func (r *fakeOrderRepo) SetPaymentIntent(_ context.Context, orderID, intentID string) error {
	if r.failSetIntent {
		return errors.New("set intent failed")
	}
	o, ok := r.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	o.PaymentIntentID = intentID
	return nil
}

func (r *fakeOrderRepo) SetStatus(_ context.Context, orderID string, status domain.Status) error {
	o, ok := r.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	return nil
}

func (r *fakeOrderRepo) SetPaymentMethod(_ context.Context, orderID, method string) error {
	o, ok := r.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	o.PaymentMethod = method
	return nil
}

func (r *fakeOrderRepo) TransitionPayment(_ context.Context, orderID string, from, to domain.PaymentStatus) (bool, error) {
	o, ok := r.orders[orderID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if o.PaymentStatus != from {
		return false, nil
	}
	o.PaymentStatus = to
	return true, nil
}

func (r *fakeOrderRepo) ListAbandonedPending(_ context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range r.orders {
		if o.PaymentStatus == domain.PaymentStatusPending && o.Status == domain.StatusPending && o.CreatedAt.Before(cutoff) {
			out = append(out, *o)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) AppendEvent(_ context.Context, _, eventType string, _ []byte, _ map[string]string, _ string) error {
	if r.failAppendEvent {
		return errors.New("append event failed")
	}
	r.events = append(r.events, eventType)
	return nil
}

func (r *fakeOrderRepo) InsertRefund(_ context.Context, ref domain.Refund) error {
	r.refunds = append(r.refunds, ref)
	return nil
}

func (r *fakeOrderRepo) SumRefunds(_ context.Context, orderID string) (int64, error) {
	var sum int64
	for _, ref := range r.refunds {
		if ref.OrderID == orderID && ref.Status != domain.RefundFailed {
			sum += ref.AmountCents
		}
	}
	return sum, nil
}

func (r *fakeOrderRepo) ListRefunds(_ context.Context, orderID string) ([]domain.Refund, error) {
	var out []domain.Refund
	for _, ref := range r.refunds {
		if ref.OrderID == orderID {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) countEvents(eventType string) int {
	n := 0
	for _, e := range r.events {
		if e == eventType {
			n++
		}
	}
	return n
}

type fakeDiscountRepo struct {
	coupons map[string]*discount.Coupon
	cards   map[string]*discount.GiftCard

	redeemDenied bool
	now          time.Time
}

func newFakeDiscountRepo() *fakeDiscountRepo {
	return &fakeDiscountRepo{
		coupons: map[string]*discount.Coupon{},
		cards:   map[string]*discount.GiftCard{},
		now:     time.Now().UTC(),
	}
}

func (r *fakeDiscountRepo) GetCoupon(_ context.Context, code string) (discount.Coupon, error) {
	c, ok := r.coupons[discount.NormalizeCode(code)]
	if !ok {
		return discount.Coupon{}, discount.ErrNotFound
	}
	return *c, nil
}

func (r *fakeDiscountRepo) GetGiftCard(_ context.Context, code string) (discount.GiftCard, error) {
	g, ok := r.cards[discount.NormalizeCode(code)]
	if !ok {
		return discount.GiftCard{}, discount.ErrNotFound
	}
	return *g, nil
}

func (r *fakeDiscountRepo) RedeemCoupon(_ context.Context, code string) (bool, error) {
	if r.redeemDenied {
		return false, nil
	}
	c, ok := r.coupons[discount.NormalizeCode(code)]
	if !ok || c.UsageCount >= c.UsageLimit {
		return false, nil
	}
	c.UsageCount++
	return true, nil
}

func (r *fakeDiscountRepo) ReleaseCoupon(_ context.Context, code string) error {
	c, ok := r.coupons[discount.NormalizeCode(code)]
	if ok && c.UsageCount > 0 {
		c.UsageCount--
	}
	return nil
}

func (r *fakeDiscountRepo) DebitGiftCard(_ context.Context, code string, amountCents int64) (bool, error) {
	g, ok := r.cards[discount.NormalizeCode(code)]
	if !ok || !g.Usable(r.now) || g.BalanceCents < amountCents {
		return false, nil
	}
	g.BalanceCents -= amountCents
	return true, nil
}

func (r *fakeDiscountRepo) CreditGiftCard(_ context.Context, code string, amountCents int64) error {
	g, ok := r.cards[discount.NormalizeCode(code)]
	if !ok {
		return discount.ErrNotFound
	}
	g.BalanceCents += amountCents
	return nil
}

type fakeGateway struct {
	intents []IntentRequest
	refunds []string

	failIntent bool
	failRefund bool
	nextSeq    int
}

func (g *fakeGateway) CreateIntent(_ context.Context, req IntentRequest) (IntentResult, error) {
	if g.failIntent {
		return IntentResult{}, errors.New("gateway down")
	}
	g.intents = append(g.intents, req)
	g.nextSeq++
	return IntentResult{
		IntentID:    fmt.Sprintf("pi_%d", g.nextSeq),
		RedirectURL: fmt.Sprintf("https://pay.example/session/%d", g.nextSeq),
	}, nil
}

func (g *fakeGateway) CreateRefund(_ context.Context, intentID string, _ int64, _ string) (RefundResult, error) {
	if g.failRefund {
		return RefundResult{}, errors.New("gateway down")
	}
	g.nextSeq++
	id := fmt.Sprintf("re_%d", g.nextSeq)
	g.refunds = append(g.refunds, intentID)
	return RefundResult{RefundID: id, Status: "succeeded"}, nil
}
