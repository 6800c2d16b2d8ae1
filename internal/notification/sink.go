package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Notification is the structured payload the sink accepts. The sink is
// best effort: no response contract beyond the status code is relied
// upon, and callers never branch on a delivery failure.
type Notification struct {
	Type    string         `json:"type"`
	To      string         `json:"to"`
	Subject string         `json:"subject"`
	Data    map[string]any `json:"data,omitempty"`
}

type Sink struct {
	log     *slog.Logger
	http    *http.Client
	baseURL string
}

func NewSink(log *slog.Logger, baseURL string) *Sink {
	return &Sink{
		log:     log,
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
	}
}

func (s *Sink) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/notify", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.log.Warn("notification sink rejected payload", "type", n.Type, "status", resp.StatusCode)
	}
	return nil
}
