package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/merchflow/checkout-service/internal/order/application"
	"github.com/merchflow/checkout-service/internal/order/domain"
	"github.com/merchflow/checkout-service/pkg/tracing"
)

// CheckoutService is the slice of the coordinator the storefront API
// needs.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, in application.PlaceOrderInput) (application.PlaceOrderResult, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	IssueRefund(ctx context.Context, orderID string, amountCents int64, reason string) (domain.Refund, error)
	OrderRefunds(ctx context.Context, orderID string) ([]domain.Refund, error)
}

type Handler struct {
	log         *slog.Logger
	coordinator CheckoutService
	tracer      trace.Tracer
}

func NewHandler(log *slog.Logger, coordinator CheckoutService) *Handler {
	return &Handler{
		log:         log,
		coordinator: coordinator,
		tracer:      otel.Tracer("checkout-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/checkout", h.placeOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/refunds", h.issueRefund)
	r.Get("/orders/{id}/refunds", h.listRefunds)
	return r
}

type checkoutReq struct {
	Customer        string            `json:"customer"`
	Currency        string            `json:"currency"`
	Items           []checkoutItem    `json:"items"`
	ShippingCents   int64             `json:"shipping_cents"`
	DeliveryType    string            `json:"delivery_type"`
	ShippingAddress domain.Address    `json:"shipping_address"`
	BillingAddress  domain.Address    `json:"billing_address"`
	CouponCode      string            `json:"coupon_code"`
	GiftCardCode    string            `json:"gift_card_code"`
	Headers         map[string]string `json:"headers"`
}

type checkoutItem struct {
	ProductID      string            `json:"product_id"`
	Name           string            `json:"name"`
	Quantity       int               `json:"quantity"`
	UnitPriceCents int64             `json:"unit_price_cents"`
	Customization  map[string]string `json:"customization"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PlaceOrder")
	defer span.End()

	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	items := make([]domain.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.Item{
			ProductID:      it.ProductID,
			Name:           it.Name,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			Customization:  it.Customization,
		})
	}

	traceparent := r.Header.Get(tracing.TraceparentHeader)
	if traceparent == "" {
		traceparent = tracing.Traceparent(ctx)
	}

	res, err := h.coordinator.PlaceOrder(ctx, application.PlaceOrderInput{
		Customer:        req.Customer,
		Currency:        req.Currency,
		Items:           items,
		ShippingCents:   req.ShippingCents,
		DeliveryType:    domain.DeliveryType(req.DeliveryType),
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		CouponCode:      req.CouponCode,
		GiftCardCode:    req.GiftCardCode,
		Headers:         filterEventHeaders(req.Headers),
		Traceparent:     traceparent,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"order_id":      res.OrderID,
		"total_cents":   res.TotalCents,
		"redirect_url":  res.RedirectURL,
		"fully_covered": res.FullyCovered,
	})
}

// Only notification routing hints may flow from the client into event
// headers; anything else could shadow the relay's own kafka headers.
var allowedEventHeaders = map[string]bool{
	"notify_to": true,
	"locale":    true,
	"channel":   true,
}

func filterEventHeaders(in map[string]string) map[string]string {
	var out map[string]string
	for k, v := range in {
		if !allowedEventHeaders[strings.ToLower(k)] {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(in))
		}
		out[strings.ToLower(k)] = v
	}
	return out
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	o, err := h.coordinator.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(orderView(o))
}

type refundReq struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

func (h *Handler) issueRefund(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "IssueRefund")
	defer span.End()

	var req refundReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	ref, err := h.coordinator.IssueRefund(ctx, chi.URLParam(r, "id"), req.AmountCents, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"refund_id":         ref.ID,
		"gateway_refund_id": ref.GatewayRefundID,
		"amount_cents":      ref.AmountCents,
		"status":            ref.Status,
	})
}

func (h *Handler) listRefunds(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListRefunds")
	defer span.End()

	refs, err := h.coordinator.OrderRefunds(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(refs))
	for _, ref := range refs {
		views = append(views, map[string]any{
			"refund_id":         ref.ID,
			"gateway_refund_id": ref.GatewayRefundID,
			"amount_cents":      ref.AmountCents,
			"reason":            ref.Reason,
			"status":            ref.Status,
			"created_at":        ref.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"refunds": views})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, application.ErrEmptyCart),
		errors.Is(err, application.ErrInvalidItem),
		errors.Is(err, application.ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, application.ErrCouponInvalid),
		errors.Is(err, application.ErrCouponExhausted),
		errors.Is(err, application.ErrGiftCardInvalid),
		errors.Is(err, application.ErrGiftCardRejected),
		errors.Is(err, application.ErrOrderNotPaid),
		errors.Is(err, application.ErrRefundExceedsPaid),
		errors.Is(err, application.ErrNoGatewayPayment):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, application.ErrGatewayUnavailable):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		h.log.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func orderView(o domain.Order) map[string]any {
	items := make([]map[string]any, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, map[string]any{
			"product_id":       it.ProductID,
			"name":             it.Name,
			"quantity":         it.Quantity,
			"unit_price_cents": it.UnitPriceCents,
		})
	}
	return map[string]any{
		"order_id":       o.ID,
		"status":         o.Status,
		"payment_status": o.PaymentStatus,
		"currency":       o.Currency,
		"total_cents":    o.TotalCents,
		"discount_cents": o.DiscountCents,
		"items":          items,
	}
}
