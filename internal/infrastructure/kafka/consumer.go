package kafka

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageHandler processes one committed ledger event. A failing message is
// retried with backoff; after the retry budget it is quarantined with a
// dead-letter log line and the consumer moves on. The event itself stays in
// the durable log and is recoverable through catch-up.
type MessageHandler func(ctx context.Context, key, value []byte) error

const handlerRetries = 5

var handlerRetryBackoff = 500 * time.Millisecond

// Consumer tails the ledger event topic as part of a consumer group. Messages
// are keyed by aggregate ID, so one aggregate's events always arrive in order
// on the same partition.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})
	return &Consumer{reader: reader}
}

// Consume reads until the context is cancelled
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("[Kafka] Error reading message: %v", err)
				continue
			}

			if err := handleWithRetry(ctx, handler, msg.Key, msg.Value); err != nil {
				log.Printf("[Kafka] DEAD-LETTER: event %s quarantined after %d attempts: %v",
					msg.Key, handlerRetries, err)
			}
		}
	}
}

// handleWithRetry runs the handler up to handlerRetries times with a linearly
// growing backoff between attempts.
func handleWithRetry(ctx context.Context, handler MessageHandler, key, value []byte) error {
	var err error
	for attempt := 1; attempt <= handlerRetries; attempt++ {
		if err = handler(ctx, key, value); err == nil {
			return nil
		}
		if attempt == handlerRetries {
			break
		}
		log.Printf("[Kafka] Error handling event %s (attempt %d/%d): %v",
			key, attempt, handlerRetries, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * handlerRetryBackoff):
		}
	}
	return err
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
