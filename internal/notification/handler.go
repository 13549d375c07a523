package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/example/ledger-event-driven/internal/infrastructure/store"
)

// Publisher pushes one committed event to an outbound channel. Delivery is
// at-least-once: the consumer retries on error, so receivers must dedupe on
// the event ID.
type Publisher interface {
	Publish(ctx context.Context, event store.Event) error
}

// Handler bridges the post-commit event feed to a Publisher. It only ever
// sees committed events; nothing is published before the append succeeds.
type Handler struct {
	publisher Publisher
}

func NewHandler(publisher Publisher) *Handler {
	return &Handler{publisher: publisher}
}

// HandleEvent consumes one Kafka message
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	return h.Publish(ctx, event)
}

// Publish forwards one already-decoded event, used by the Kinesis consumers
func (h *Handler) Publish(ctx context.Context, event store.Event) error {
	return h.publisher.Publish(ctx, event)
}

// LogPublisher writes notifications to the process log, the dev default
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event store.Event) error {
	log.Printf("[Notification] %s on %s %s (version %d)",
		event.EventType, event.AggregateType, event.AggregateID, event.Version)
	return nil
}

// WebhookPublisher POSTs each event to a configured endpoint
type WebhookPublisher struct {
	URL    string
	client *http.Client
}

func NewWebhookPublisher(url string) *WebhookPublisher {
	return &WebhookPublisher{
		URL:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *WebhookPublisher) Publish(ctx context.Context, event store.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook delivery failed: status %d", resp.StatusCode)
	}
	return nil
}
