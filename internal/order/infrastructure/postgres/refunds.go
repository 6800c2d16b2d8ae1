package postgres

import (
	"context"

	"github.com/merchflow/checkout-service/internal/order/domain"
)

func (r *Repository) InsertRefund(ctx context.Context, ref domain.Refund) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO refunds (id, order_id, gateway_refund_id, amount_cents, currency, reason, status, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		ref.ID, ref.OrderID, ref.GatewayRefundID, ref.AmountCents, ref.Currency, ref.Reason, ref.Status, ref.CreatedAt)
	return err
}

func (r *Repository) SumRefunds(ctx context.Context, orderID string) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM refunds WHERE order_id=$1 AND status <> 'failed'`,
		orderID).Scan(&sum)
	return sum, err
}

func (r *Repository) ListRefunds(ctx context.Context, orderID string) ([]domain.Refund, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, gateway_refund_id, amount_cents, currency, reason, status, created_at
		 FROM refunds WHERE order_id=$1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Refund
	for rows.Next() {
		var ref domain.Refund
		if err := rows.Scan(&ref.ID, &ref.OrderID, &ref.GatewayRefundID, &ref.AmountCents,
			&ref.Currency, &ref.Reason, &ref.Status, &ref.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}
