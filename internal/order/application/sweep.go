package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/merchflow/checkout-service/internal/order/domain"
)

// Sweeper expires orders whose customer abandoned the hosted payment
// page. An abandoned order still holds its discount debits; expiry
// cancels the order and hands them back.
type Sweeper struct {
	log         *slog.Logger
	coordinator *Coordinator
	ttl         time.Duration
	interval    time.Duration
	batchSize   int
}

func NewSweeper(log *slog.Logger, coordinator *Coordinator, ttl time.Duration) *Sweeper {
	return &Sweeper{
		log:         log,
		coordinator: coordinator,
		ttl:         ttl,
		interval:    time.Minute,
		batchSize:   100,
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopping")
			return nil
		case <-t.C:
			if err := s.sweepOnce(ctx); err != nil {
				s.log.Error("sweep error", "err", err)
			}
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) error {
	c := s.coordinator
	cutoff := c.now().UTC().Add(-s.ttl)
	orders, err := c.orders.ListAbandonedPending(ctx, cutoff, s.batchSize)
	if err != nil {
		return err
	}

	for _, o := range orders {
		won, err := c.orders.TransitionPayment(ctx, o.ID, domain.PaymentStatusPending, domain.PaymentStatusFailed)
		if err != nil {
			s.log.Error("expire transition failed", "order_id", o.ID, "err", err)
			continue
		}
		if !won {
			// A webhook settled this order between the listing and now.
			continue
		}
		c.reverseDebits(ctx, o)
		if err := c.orders.SetStatus(ctx, o.ID, domain.StatusCancelled); err != nil {
			s.log.Error("expire cancel failed", "order_id", o.ID, "err", err)
			continue
		}
		expired, err := json.Marshal(domain.OrderExpired{OrderID: o.ID, Customer: o.Customer})
		if err != nil {
			return err
		}
		if err := c.orders.AppendEvent(ctx, o.ID, domain.EventOrderExpired, expired, nil, ""); err != nil {
			s.log.Error("expire event append failed", "order_id", o.ID, "err", err)
			continue
		}
		s.log.Info("pending order expired", "order_id", o.ID, "age", c.now().UTC().Sub(o.CreatedAt).String())
	}
	return nil
}
