package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"agenda/internal/reservations/notifications"
	"agenda/pkg/config"
	"agenda/pkg/kafka"
	kafka_middleware "agenda/pkg/kafka/middleware"
)

const ServiceName = "notifier"

func main() {
	cfg := config.Load(ServiceName)
	if !cfg.Kafka.Enabled() {
		cfg.Log.Fatal("Notifier requires Kafka, set KAFKA_BROKERS")
	}

	renderer, err := notifications.NewRenderer()
	if err != nil {
		cfg.Log.Fatal("Failed to parse notification templates", "error", err)
	}
	var mailer notifications.Mailer = notifications.NewLogMailer(cfg.Log)
	if cfg.SMTPAddr != "" {
		smtpMailer := notifications.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPFrom)
		cfg.Log.Info("Delivering notifications over SMTP", "host", smtpMailer.Host())
		mailer = smtpMailer
	}
	sender := notifications.NewSender(renderer, mailer, cfg.Log)

	consumer, err := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Log,
		cfg.Kafka.NotificationsTopic,
		cfg.Kafka.NotificationsGroupID,
		cfg.Kafka.NotificationsDLQTopic,
		notifications.NewMessageHandler(sender, cfg.Log),
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}

	metrics := kafka_middleware.NewMetrics()
	if cfg.Kafka.EnableMiddleware {
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
		consumer.Use(metrics.ConsumerMiddleware())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg.Log.Info("Starting notifier", "topic", cfg.Kafka.NotificationsTopic, "group_id", cfg.Kafka.NotificationsGroupID)
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Error("Consumer stopped with error", "error", err)
	}

	if err := consumer.Close(); err != nil {
		cfg.Log.Error("Failed to close consumer", "error", err)
	}
	cfg.Log.Info("Notifier stopped", "metrics", metrics.Snapshot())
}
