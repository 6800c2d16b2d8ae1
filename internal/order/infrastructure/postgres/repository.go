package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/merchflow/checkout-service/internal/order/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// CreateWithOutbox writes the order, its line items and the OrderPlaced
// outbox event as one transaction. Nothing external may happen before
// this commit succeeds.
func (r *Repository) CreateWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte, headers map[string]string, traceparent string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	shipAddr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return err
	}
	billAddr, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `INSERT INTO orders
			(id, customer, currency, subtotal_cents, shipping_cents, discount_cents, total_cents,
			 status, payment_status, payment_method, delivery_type,
			 shipping_address, billing_address,
			 coupon_code, gift_card_code, gift_card_debit_cents,
			 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		o.ID, o.Customer, o.Currency, o.SubtotalCents, o.ShippingCents, o.DiscountCents, o.TotalCents,
		o.Status, o.PaymentStatus, o.PaymentMethod, o.DeliveryType,
		shipAddr, billAddr,
		o.CouponCode, o.GiftCardCode, o.GiftCardDebit,
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		custom, err := json.Marshal(item.Customization)
		if err != nil {
			return err
		}
		batch.Queue(`INSERT INTO order_items (order_id, product_id, name, quantity, unit_price_cents, customization)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, item.ProductID, item.Name, item.Quantity, item.UnitPriceCents, custom)
	}
	batchResult := tx.SendBatch(ctx, batch)
	if err = batchResult.Close(); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		"order", o.ID, eventType, payload, headers, traceparent)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	o, err := r.scanOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	if err != nil {
		return domain.Order{}, err
	}
	return r.loadItems(ctx, o)
}

// GetByIntentID resolves webhook deliveries; payment_intent_id carries a
// unique index so at most one order can match.
func (r *Repository) GetByIntentID(ctx context.Context, intentID string) (domain.Order, error) {
	o, err := r.scanOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_intent_id=$1`, intentID)
	if err != nil {
		return domain.Order{}, err
	}
	return r.loadItems(ctx, o)
}

const orderColumns = `id, customer, currency, subtotal_cents, shipping_cents, discount_cents, total_cents,
	status, payment_status, payment_method, delivery_type, shipping_address, billing_address,
	coupon_code, gift_card_code, gift_card_debit_cents, COALESCE(payment_intent_id, ''), created_at, updated_at`

func (r *Repository) scanOrder(ctx context.Context, query string, arg any) (domain.Order, error) {
	var o domain.Order
	var shipAddr, billAddr []byte
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&o.ID, &o.Customer, &o.Currency, &o.SubtotalCents, &o.ShippingCents, &o.DiscountCents, &o.TotalCents,
		&o.Status, &o.PaymentStatus, &o.PaymentMethod, &o.DeliveryType, &shipAddr, &billAddr,
		&o.CouponCode, &o.GiftCardCode, &o.GiftCardDebit, &o.PaymentIntentID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	if err := json.Unmarshal(shipAddr, &o.ShippingAddress); err != nil {
		return domain.Order{}, err
	}
	if err := json.Unmarshal(billAddr, &o.BillingAddress); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *Repository) loadItems(ctx context.Context, o domain.Order) (domain.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT product_id, name, quantity, unit_price_cents, customization FROM order_items WHERE order_id=$1`, o.ID)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.Item
		var custom []byte
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity, &item.UnitPriceCents, &custom); err != nil {
			return domain.Order{}, err
		}
		if len(custom) > 0 {
			if err := json.Unmarshal(custom, &item.Customization); err != nil {
				return domain.Order{}, err
			}
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

// SetPaymentIntent records the gateway correlation id before the caller
// is redirected, so the webhook can find the order again.
func (r *Repository) SetPaymentIntent(ctx context.Context, orderID, intentID string) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE orders SET payment_intent_id=$2, updated_at=now() WHERE id=$1`,
		orderID, intentID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// TransitionPayment moves payment_status from an expected prior state.
// A zero-row result means someone else already applied a terminal state;
// callers treat that as the idempotent no-op it is.
func (r *Repository) TransitionPayment(ctx context.Context, orderID string, from, to domain.PaymentStatus) (bool, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE orders SET payment_status=$3, updated_at=now() WHERE id=$1 AND payment_status=$2`,
		orderID, from, to)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repository) SetStatus(ctx context.Context, orderID string, status domain.Status) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`,
		orderID, status)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) SetPaymentMethod(ctx context.Context, orderID, method string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE orders SET payment_method=$2, updated_at=now() WHERE id=$1`,
		orderID, method)
	return err
}

// ListAbandonedPending returns payment-pending orders older than the
// cutoff, for the expiry sweep.
func (r *Repository) ListAbandonedPending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE payment_status='pending' AND status='pending' AND created_at < $1
		 ORDER BY created_at
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		var shipAddr, billAddr []byte
		if err := rows.Scan(
			&o.ID, &o.Customer, &o.Currency, &o.SubtotalCents, &o.ShippingCents, &o.DiscountCents, &o.TotalCents,
			&o.Status, &o.PaymentStatus, &o.PaymentMethod, &o.DeliveryType, &shipAddr, &billAddr,
			&o.CouponCode, &o.GiftCardCode, &o.GiftCardDebit, &o.PaymentIntentID, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// AppendEvent writes a milestone event to the outbox outside of the
// order-creation transaction.
func (r *Repository) AppendEvent(ctx context.Context, orderID, eventType string, payload []byte, headers map[string]string, traceparent string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		 VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		"order", orderID, eventType, payload, headers, traceparent)
	return err
}
