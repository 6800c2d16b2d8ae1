package domain

import "time"

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundSucceeded RefundStatus = "succeeded"
	RefundFailed    RefundStatus = "failed"
)

type Refund struct {
	ID              string
	OrderID         string
	GatewayRefundID string
	AmountCents     int64
	Currency        string
	Reason          string
	Status          RefundStatus
	CreatedAt       time.Time
}
