package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/ledger-event-driven/internal/infrastructure/kinesis"
	"github.com/example/ledger-event-driven/internal/infrastructure/store"
	"github.com/example/ledger-event-driven/internal/notification"
)

// Forwards committed ledger events from the Kinesis stream to the configured
// notification channel.

var notifier *notification.Handler

func init() {
	var publisher notification.Publisher = notification.LogPublisher{}
	if webhookURL := os.Getenv("NOTIFICATION_WEBHOOK_URL"); webhookURL != "" {
		publisher = notification.NewWebhookPublisher(webhookURL)
		log.Printf("[Lambda Notifier] Publishing to webhook: %s", webhookURL)
	}
	notifier = notification.NewHandler(publisher)
}

func handler(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	response := kinesis.ProcessBatch(kinesisEvent, func(event *store.Event) error {
		return notifier.Publish(ctx, *event)
	})
	log.Printf("[Lambda Notifier] %d/%d records delivered",
		len(kinesisEvent.Records)-len(response.BatchItemFailures), len(kinesisEvent.Records))
	return response, nil
}

func main() {
	lambda.Start(handler)
}
