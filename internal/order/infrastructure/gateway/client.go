package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/merchflow/checkout-service/internal/order/application"
)

// Client talks to the hosted payment provider. Intent creation carries
// an Idempotency-Key so a retried request cannot mint a second intent
// for the same order.
type Client struct {
	log     *slog.Logger
	http    *http.Client
	baseURL string
	apiKey  string
}

func NewClient(log *slog.Logger, baseURL, apiKey string) *Client {
	return &Client{
		log:     log,
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

type intentRequest struct {
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type intentResponse struct {
	IntentID    string `json:"intent_id"`
	RedirectURL string `json:"redirect_url"`
}

type refundRequest struct {
	IntentID string `json:"intent_id"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
}

type refundResponse struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

func (c *Client) CreateIntent(ctx context.Context, req application.IntentRequest) (application.IntentResult, error) {
	body := intentRequest{
		Amount:     req.AmountMinor,
		Currency:   req.Currency,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	}
	var out intentResponse
	if err := c.post(ctx, "/v1/intents", body, req.IdempotencyKey, &out); err != nil {
		return application.IntentResult{}, err
	}
	if out.IntentID == "" || out.RedirectURL == "" {
		return application.IntentResult{}, fmt.Errorf("gateway returned incomplete intent")
	}
	return application.IntentResult{IntentID: out.IntentID, RedirectURL: out.RedirectURL}, nil
}

func (c *Client) CreateRefund(ctx context.Context, intentID string, amountMinor int64, reason string) (application.RefundResult, error) {
	var out refundResponse
	err := c.post(ctx, "/v1/refunds", refundRequest{IntentID: intentID, Amount: amountMinor, Reason: reason}, "", &out)
	if err != nil {
		return application.RefundResult{}, err
	}
	return application.RefundResult{RefundID: out.RefundID, Status: out.Status}, nil
}

func (c *Client) post(ctx context.Context, path string, body any, idempotencyKey string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.log.Error("gateway rejected request", "path", path, "status", resp.StatusCode, "body", string(msg))
		return fmt.Errorf("gateway responded %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
