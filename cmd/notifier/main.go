package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/example/ledger-event-driven/internal/infrastructure/kafka"
	"github.com/example/ledger-event-driven/internal/notification"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Configuration from environment variables
	kafkaBrokersStr := getEnv("KAFKA_BROKERS", "localhost:9092")
	kafkaBrokers := strings.Split(kafkaBrokersStr, ",")
	kafkaTopic := getEnv("KAFKA_TOPIC", "ledger-events")
	consumerGroup := getEnv("KAFKA_CONSUMER_GROUP", "notifier")
	webhookURL := os.Getenv("NOTIFICATION_WEBHOOK_URL")

	log.Println("[Notifier] ========================================")
	log.Println("[Notifier] Ledger Platform - Notification Worker")
	log.Println("[Notifier] ========================================")
	log.Printf("[Notifier] Kafka: %v", kafkaBrokers)
	log.Printf("[Notifier] Topic: %s", kafkaTopic)

	// Webhook when configured, process log otherwise
	var publisher notification.Publisher = notification.LogPublisher{}
	if webhookURL != "" {
		publisher = notification.NewWebhookPublisher(webhookURL)
		log.Printf("[Notifier] Publishing to webhook: %s", webhookURL)
	} else {
		log.Println("[Notifier] No webhook configured, logging notifications")
	}

	handler := notification.NewHandler(publisher)

	consumer := kafka.NewConsumer(kafkaBrokers, kafkaTopic, consumerGroup)
	defer consumer.Close()

	go func() {
		log.Println("[Notifier] Starting event consumer...")
		if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && ctx.Err() == nil {
			log.Printf("[Notifier] Consumer error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Notifier] Shutting down...")
	cancel()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
