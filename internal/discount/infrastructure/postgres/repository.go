package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/merchflow/checkout-service/internal/discount/domain"
)

// Repository performs all coupon and gift-card balance changes as
// conditional updates checked via RowsAffected, never read-then-write.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) GetCoupon(ctx context.Context, code string) (domain.Coupon, error) {
	var c domain.Coupon
	err := r.pool.QueryRow(ctx,
		`SELECT code, kind, value, usage_count, usage_limit FROM coupons WHERE code=$1`,
		domain.NormalizeCode(code)).
		Scan(&c.Code, &c.Kind, &c.Value, &c.UsageCount, &c.UsageLimit)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Coupon{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Coupon{}, err
	}
	return c, nil
}

func (r *Repository) GetGiftCard(ctx context.Context, code string) (domain.GiftCard, error) {
	var g domain.GiftCard
	err := r.pool.QueryRow(ctx,
		`SELECT code, balance_cents, active, expires_at FROM gift_cards WHERE code=$1`,
		domain.NormalizeCode(code)).
		Scan(&g.Code, &g.BalanceCents, &g.Active, &g.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GiftCard{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.GiftCard{}, err
	}
	return g, nil
}

// RedeemCoupon increments the usage counter only while capacity remains.
// Returns false when the coupon is exhausted or unknown; concurrent
// redemptions of the same code are serialized by the row update itself.
func (r *Repository) RedeemCoupon(ctx context.Context, code string) (bool, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE coupons SET usage_count = usage_count + 1
		 WHERE code=$1 AND usage_count < usage_limit`,
		domain.NormalizeCode(code))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// ReleaseCoupon compensates a redemption that did not lead to payment.
func (r *Repository) ReleaseCoupon(ctx context.Context, code string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE coupons SET usage_count = usage_count - 1
		 WHERE code=$1 AND usage_count > 0`,
		domain.NormalizeCode(code))
	return err
}

// DebitGiftCard takes amountCents off the card balance only if the card
// is active, unexpired and holds enough. Returns false on any miss.
func (r *Repository) DebitGiftCard(ctx context.Context, code string, amountCents int64) (bool, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE gift_cards SET balance_cents = balance_cents - $2
		 WHERE code=$1 AND active
		   AND (expires_at IS NULL OR expires_at > now())
		   AND balance_cents >= $2`,
		domain.NormalizeCode(code), amountCents)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// CreditGiftCard restores a debit taken by an attempt that failed
// downstream. Expiry is deliberately not checked: money taken from a
// card must always be returnable to it.
func (r *Repository) CreditGiftCard(ctx context.Context, code string, amountCents int64) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE gift_cards SET balance_cents = balance_cents + $2 WHERE code=$1`,
		domain.NormalizeCode(code), amountCents)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
