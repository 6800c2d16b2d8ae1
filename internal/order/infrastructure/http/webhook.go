package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/merchflow/checkout-service/pkg/idempotency"
)

const signatureHeader = "X-Gateway-Signature"

// Reconciler matches the coordinator's webhook-facing surface.
type Reconciler interface {
	Reconcile(ctx context.Context, intentID, gatewayStatus string) error
}

// WebhookHandler receives the gateway's payment status callbacks.
// Deliveries are HMAC-signed and may be repeated; the idempotency store
// drops duplicates by event id before reconciliation runs.
type WebhookHandler struct {
	log         *slog.Logger
	coordinator Reconciler
	idem        *idempotency.Store
	secret      []byte
	tracer      trace.Tracer
}

func NewWebhookHandler(log *slog.Logger, coordinator Reconciler, idem *idempotency.Store, secret string) *WebhookHandler {
	return &WebhookHandler{
		log:         log,
		coordinator: coordinator,
		idem:        idem,
		secret:      []byte(secret),
		tracer:      otel.Tracer("payment-webhook"),
	}
}

func (h *WebhookHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/webhooks/payment", h.handle)
	return r
}

type webhookPayload struct {
	EventID  string `json:"event_id"`
	IntentID string `json:"intent_id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PaymentWebhook")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	if !h.verify(body, r.Header.Get(signatureHeader)) {
		h.log.Warn("webhook signature rejected")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.IntentID == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	marked := false
	if payload.EventID != "" && h.idem != nil {
		seen, err := h.idem.Seen(ctx, h.idem.WebhookKey(payload.EventID))
		if err != nil {
			h.log.Error("idempotency check failed", "err", err)
			// Fall through: Reconcile is idempotent anyway.
		} else if seen {
			h.log.Info("duplicate webhook skipped", "event_id", payload.EventID)
			w.WriteHeader(http.StatusOK)
			return
		} else {
			marked = true
		}
	}

	if err := h.coordinator.Reconcile(ctx, payload.IntentID, payload.Status); err != nil {
		h.log.Error("reconcile failed", "intent_id", payload.IntentID, "err", err)
		if marked {
			// Release the mark or the gateway's retry would be dropped
			// as a duplicate and the status change lost.
			if err := h.idem.Forget(ctx, h.idem.WebhookKey(payload.EventID)); err != nil {
				h.log.Error("idempotency release failed", "event_id", payload.EventID, "err", err)
			}
		}
		// Non-2xx makes the gateway retry later.
		http.Error(w, "reconcile failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) verify(body []byte, signature string) bool {
	if len(h.secret) == 0 {
		return true
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}
