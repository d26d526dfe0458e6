package main

import (
	"context"

	"agenda/internal/reservations/handler"
	"agenda/internal/reservations/notifications"
	"agenda/internal/reservations/repository"
	"agenda/internal/reservations/service"
	"agenda/internal/reservations/validator"
	"agenda/pkg/app"
	"agenda/pkg/config"
	mongotx "agenda/pkg/db/mongo"
	"agenda/pkg/kafka"
	kafka_middleware "agenda/pkg/kafka/middleware"
	"agenda/pkg/outbox"
	"agenda/pkg/sanitizer"
	"agenda/pkg/sealer"
)

const ServiceName = "reservations"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	sanitizer.SetPhoneRegions(cfg.PhoneRegions...)

	cfg.Log.Info("Starting Reservations service")
	serverApp := app.NewApplication(cfg)

	queue := outbox.NewQueue(outbox.Config{
		Workers:     cfg.OutboxWorkers,
		BufferSize:  cfg.OutboxBuffer,
		TaskTimeout: cfg.OutboxTaskTimeout,
	}, outbox.NewLogMonitor(cfg.Log), cfg.Log)
	queue.Start(context.Background())
	// Drain pending tasks before the producer they publish through closes.
	serverApp.OnShutdown("outbox", queue.Shutdown)

	emails := initEmailDispatcher(cfg, serverApp)

	reservationService := initServices(cfg, queue, emails)
	serverApp.SetApp(handler.NewReservationHandler(reservationService, cfg.Log))
	serverApp.Run()
}

func initEmailDispatcher(cfg *config.Config, serverApp *app.Application) service.EmailDispatcher {
	if !cfg.Kafka.Enabled() {
		cfg.Log.Warn("Kafka disabled, notifications are delivered in-process")
		return notifications.NewDirectDispatcher(newSender(cfg))
	}

	producer, err := kafka.NewProducer(cfg.Kafka, cfg.Log, cfg.Kafka.NotificationsTopic, cfg.Kafka.NotificationsDLQTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	if cfg.Kafka.EnableMiddleware {
		metrics := kafka_middleware.NewMetrics()
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
		producer.Use(metrics.ProducerMiddleware())
		serverApp.OnShutdown("kafka-metrics", func(context.Context) error {
			cfg.Log.Info("Kafka producer metrics", "metrics", metrics.Snapshot())
			return nil
		})
	}
	serverApp.OnShutdown("kafka-producer", func(context.Context) error {
		return producer.Close()
	})

	cfg.Log.Info("Notifications published to Kafka", "topic", cfg.Kafka.NotificationsTopic)
	return notifications.NewKafkaDispatcher(producer, ServiceName, cfg.Log)
}

func newSender(cfg *config.Config) *notifications.Sender {
	renderer, err := notifications.NewRenderer()
	if err != nil {
		cfg.Log.Fatal("Failed to parse notification templates", "error", err)
	}

	var mailer notifications.Mailer = notifications.NewLogMailer(cfg.Log)
	if cfg.SMTPAddr != "" {
		mailer = notifications.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPFrom)
	}
	return notifications.NewSender(renderer, mailer, cfg.Log)
}

func initServices(cfg *config.Config, queue outbox.Enqueuer, emails service.EmailDispatcher) service.ReservationService {
	tokenSealer, err := sealer.New(cfg.SealerKey)
	if err != nil {
		cfg.Log.Fatal("Invalid sealer key", "error", err)
	}

	customers := repository.NewMongoCustomerRepository(cfg)
	txManager := mongotx.NewTransactionManager(
		cfg.Client.Mongo,
		cfg.Log,
		mongotx.WithMaxRetries(cfg.TxMaxRetries),
		mongotx.WithBaseDelay(cfg.TxBaseDelay),
	)

	reservationService := service.NewReservationService(service.Dependencies{
		Reservations:   repository.NewMongoReservationRepository(cfg),
		Services:       repository.NewMongoServiceRepository(cfg),
		Resources:      repository.NewMongoResourceRepository(cfg),
		Customers:      customers,
		DayLocks:       repository.NewMongoDayLockRepository(cfg),
		Blackouts:      repository.NewMongoBlackoutPolicy(cfg),
		Standing:       repository.NewMongoClientStandingPolicy(cfg),
		Tx:             txManager,
		Outbox:         queue,
		Emails:         emails,
		Counter:        service.NewCustomerCounter(customers),
		Validator:      validator.NewReservationValidator(cfg.Log),
		Sealer:         tokenSealer,
		Log:            cfg.Log,
		Location:       cfg.Location(),
		ReviewTokenTTL: cfg.ReviewTokenTTL,
	})

	cfg.Log.Info("Reservation service initialized", "database", cfg.MongoDatabaseName)
	return reservationService
}
