package application

import (
	"context"
	"time"

	discount "github.com/merchflow/checkout-service/internal/discount/domain"
	"github.com/merchflow/checkout-service/internal/order/domain"
)

// OrderRepository is the order side of the ledger store. Not-found
// lookups return domain.ErrNotFound.
type OrderRepository interface {
	CreateWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte, headers map[string]string, traceparent string) error
	Get(ctx context.Context, id string) (domain.Order, error)
	GetByIntentID(ctx context.Context, intentID string) (domain.Order, error)
	SetPaymentIntent(ctx context.Context, orderID, intentID string) error
	SetStatus(ctx context.Context, orderID string, status domain.Status) error
	SetPaymentMethod(ctx context.Context, orderID, method string) error
	// TransitionPayment applies payment_status=to only while the row is
	// still at from; false means someone else got there first.
	TransitionPayment(ctx context.Context, orderID string, from, to domain.PaymentStatus) (bool, error)
	ListAbandonedPending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)
	AppendEvent(ctx context.Context, orderID, eventType string, payload []byte, headers map[string]string, traceparent string) error
	InsertRefund(ctx context.Context, ref domain.Refund) error
	SumRefunds(ctx context.Context, orderID string) (int64, error)
	ListRefunds(ctx context.Context, orderID string) ([]domain.Refund, error)
}

// DiscountRepository covers both instrument ledgers. All debits are
// conditional updates; the bool reports whether the predicate held.
type DiscountRepository interface {
	GetCoupon(ctx context.Context, code string) (discount.Coupon, error)
	GetGiftCard(ctx context.Context, code string) (discount.GiftCard, error)
	RedeemCoupon(ctx context.Context, code string) (bool, error)
	ReleaseCoupon(ctx context.Context, code string) error
	DebitGiftCard(ctx context.Context, code string, amountCents int64) (bool, error)
	CreditGiftCard(ctx context.Context, code string, amountCents int64) error
}

type IntentRequest struct {
	AmountMinor    int64
	Currency       string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

type IntentResult struct {
	IntentID    string
	RedirectURL string
}

type RefundResult struct {
	RefundID string
	Status   string
}

type PaymentGateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResult, error)
	CreateRefund(ctx context.Context, intentID string, amountMinor int64, reason string) (RefundResult, error)
}
