package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultWebhookTimeout = 5 * time.Second

// Webhook POSTs notifications as JSON to a URL.
type Webhook struct {
	URL     string
	Secret  string
	Filter  Filter
	Timeout time.Duration
	Client  *http.Client
}

type webhookBody struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	ActorName string          `json:"actor_name"`
	ActorRole string          `json:"actor_role"`
	TS        string          `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
	Status    string          `json:"status"`
	Request   any             `json:"request"`
}

func (w Webhook) Name() string { return "webhook " + w.URL }

func (w Webhook) Accepts(eventType string) bool { return w.Filter.Match(eventType) }

func (w Webhook) Deliver(ctx context.Context, n Notification) error {
	payload := json.RawMessage("{}")
	if n.Event.Payload != "" && json.Valid([]byte(n.Event.Payload)) {
		payload = json.RawMessage(n.Event.Payload)
	}
	data, err := json.Marshal(webhookBody{
		ID:        n.Event.ID,
		Type:      n.Event.Type,
		RequestID: n.Event.RequestID,
		ActorName: n.Event.ActorName,
		ActorRole: n.Event.ActorRole,
		TS:        n.Event.TS,
		Payload:   payload,
		Status:    string(n.Request.Status),
		Request:   n.Request,
	})
	if err != nil {
		return err
	}
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Robline-Event", n.Event.Type)
	req.Header.Set("X-Robline-Delivery", uuid.NewString())
	req.Header.Set("X-Robline-Request", n.Event.RequestID)
	if strings.TrimSpace(w.Secret) != "" {
		req.Header.Set("X-Robline-Secret", w.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
