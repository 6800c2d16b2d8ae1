package domain

// Milestone events written to the outbox; the notification worker turns
// them into email/push dispatches.
const (
	EventOrderPlaced   = "OrderPlaced"
	EventOrderPaid     = "OrderPaid"
	EventPaymentFailed = "PaymentFailed"
	EventOrderExpired  = "OrderExpired"
	EventOrderRefunded = "OrderRefunded"
)

type OrderPlaced struct {
	OrderID    string `json:"order_id"`
	Customer   string `json:"customer"`
	TotalCents int64  `json:"total_cents"`
	Currency   string `json:"currency"`
}

type OrderPaid struct {
	OrderID    string `json:"order_id"`
	Customer   string `json:"customer"`
	TotalCents int64  `json:"total_cents"`
	Currency   string `json:"currency"`
}

type PaymentFailed struct {
	OrderID  string `json:"order_id"`
	Customer string `json:"customer"`
	Reason   string `json:"reason"`
}

type OrderExpired struct {
	OrderID  string `json:"order_id"`
	Customer string `json:"customer"`
}

type OrderRefunded struct {
	OrderID     string `json:"order_id"`
	Customer    string `json:"customer"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}
